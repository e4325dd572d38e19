// Package compositor turns live camera frames into styled output frames.
//
// Each frame passes through a fixed pipeline: background, scaled live frame
// with the filter chain applied, post-processing effects, text overlays and
// finally the countdown veil. A Compositor reuses its buffers between frames
// and is not safe for concurrent use; the render loop owns it.
package compositor

import (
	"image"
	"image/draw"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/aura-webinar/videocreator/internal/session"
)

// Compositor renders frames at a fixed output size.
type Compositor struct {
	w, h int
	out  *image.RGBA
	work *image.RGBA

	bg backgroundCache

	matrices []matrix
	lut      [256]uint8
	lutKey   [2]float64
	lutReady bool
	blurTmp  []uint8

	vignetteMask []uint16
	noise        uint64
	rowBuf       []uint8

	masks map[maskKey]*textMask
}

// New returns a compositor producing w x h frames.
func New(w, h int) *Compositor {
	rect := image.Rect(0, 0, w, h)
	return &Compositor{
		w:     w,
		h:     h,
		out:   image.NewRGBA(rect),
		work:  image.NewRGBA(rect),
		noise: 0x9e3779b97f4a7c15,
		masks: make(map[maskKey]*textMask),
	}
}

// Bounds is the output rectangle.
func (c *Compositor) Bounds() image.Rectangle { return c.out.Rect }

// Render composes one output frame. src may be nil before the camera has
// produced anything, in which case only the background, effects and
// overlays are drawn. countdown > 0 draws the countdown veil.
//
// The returned image is owned by the compositor and overwritten by the next
// call.
func (c *Compositor) Render(src *image.RGBA, snap session.Snapshot, now time.Time, countdown int) *image.RGBA {
	c.paintBackground(c.out, snap.Background, snap.Seed)

	if src != nil && !src.Rect.Empty() {
		if src.Rect.Size() == c.work.Rect.Size() {
			draw.Draw(c.work, c.work.Rect, src, src.Rect.Min, draw.Src)
		} else {
			xdraw.ApproxBiLinear.Scale(c.work, c.work.Rect, src, src.Rect, draw.Src, nil)
		}
		c.applyFilters(c.work, snap.Filters.Clamp())
		draw.Draw(c.out, c.out.Rect, c.work, image.Point{}, draw.Over)
	}

	c.applyEffects(c.out, snap.Effects)
	c.drawOverlays(c.out, snap.Overlays, now)
	if countdown > 0 {
		c.drawCountdown(c.out, countdown)
	}
	return c.out
}
