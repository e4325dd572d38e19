package quota

import "github.com/dustin/go-humanize"

// TierName identifies a quota tier.
type TierName string

const (
	Free    TierName = "FREE"
	Premium TierName = "PREMIUM"
)

// Tier is a fixed set of limits.
type Tier struct {
	Name               TierName `json:"name"`
	MaxDurationSeconds int      `json:"max_duration_seconds"`
	MaxTotalBytes      int64    `json:"max_total_bytes"`
	MaxVideoCount      int      `json:"max_video_count"`
}

var tiers = map[TierName]Tier{
	Free: {
		Name:               Free,
		MaxDurationSeconds: 180,
		MaxTotalBytes:      100 * 1024 * 1024,
		MaxVideoCount:      1,
	},
	Premium: {
		Name:               Premium,
		MaxDurationSeconds: 600,
		MaxTotalBytes:      500 * 1024 * 1024,
		MaxVideoCount:      5,
	},
}

// LookupTier returns the tier with the given name.
func LookupTier(name TierName) (Tier, bool) {
	t, ok := tiers[name]
	return t, ok
}

// TierFor returns the named tier, falling back to Free for unknown names
// read back from storage.
func TierFor(name string) Tier {
	if t, ok := tiers[TierName(name)]; ok {
		return t
	}
	return tiers[Free]
}

// String renders the limits for logs and the CLI.
func (t Tier) String() string {
	return string(t.Name) + " (" + humanize.IBytes(uint64(t.MaxTotalBytes)) + ", " +
		humanize.Comma(int64(t.MaxVideoCount)) + " videos, " +
		humanize.Comma(int64(t.MaxDurationSeconds)) + "s)"
}
