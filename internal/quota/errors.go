package quota

import (
	"errors"
	"fmt"
)

var (
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrNotLoaded     = errors.New("quota: not loaded")
	ErrUnknownTier   = errors.New("quota: unknown tier")
)

// Limit names the ceiling an ExceededError hit.
type Limit string

const (
	LimitVideos   Limit = "videos"
	LimitBytes    Limit = "bytes"
	LimitDuration Limit = "duration"
)

// ExceededError reports which limit would be violated.
type ExceededError struct {
	Limit     Limit
	Tier      TierName
	Requested int64
	Max       int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s %d > %d on tier %s", e.Limit, e.Requested, e.Max, e.Tier)
}

func (e *ExceededError) Is(target error) bool { return target == ErrQuotaExceeded }
