package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"time"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/aura-webinar/videocreator/internal/session"
)

const (
	overlayMargin   = 20
	slideAmplitude  = 20
	shadowOffset    = 2
	shadowBlur      = 4
	countdownSize   = 120
	maxCachedMasks  = 64
	glyphHeight     = 13
	glyphAscent     = 11
	shadowOpacity   = 128
	countdownVeilOp = 128
)

type maskKey struct {
	text string
	size int
}

// textMask is a rendered line of text at a given pixel size. shadow is the
// same glyphs blurred, padded by shadowBlur on every side.
type textMask struct {
	glyphs *image.Alpha
	shadow *image.Alpha
	ascent int
}

// mask returns the cached mask for text at size, rendering it on first use.
// Glyphs come from the 7x13 bitmap face scaled to the requested size.
func (c *Compositor) mask(text string, size int) *textMask {
	key := maskKey{text, size}
	if m, ok := c.masks[key]; ok {
		return m
	}
	if len(c.masks) >= maxCachedMasks {
		clear(c.masks)
	}

	face := basicfont.Face7x13
	nw := font.MeasureString(face, text).Ceil()
	if nw == 0 {
		nw = 1
	}
	native := image.NewAlpha(image.Rect(0, 0, nw, glyphHeight))
	d := font.Drawer{Dst: native, Src: image.Opaque, Face: face, Dot: fixed.P(0, glyphAscent)}
	d.DrawString(text)

	scale := float64(size) / glyphHeight
	sw := max(1, int(math.Round(float64(nw)*scale)))
	glyphs := image.NewAlpha(image.Rect(0, 0, sw, size))
	xdraw.ApproxBiLinear.Scale(glyphs, glyphs.Rect, native, native.Rect, draw.Src, nil)

	pad := shadowBlur
	shadow := image.NewAlpha(image.Rect(0, 0, sw+2*pad, size+2*pad))
	draw.Draw(shadow, glyphs.Rect.Add(image.Pt(pad, pad)), glyphs, image.Point{}, draw.Src)
	tmp := make([]uint8, len(shadow.Pix))
	sh, sww := shadow.Rect.Dy(), shadow.Rect.Dx()
	for _, bs := range boxSizes(shadowBlur/2.0, 3) {
		if r := (bs - 1) / 2; r >= 1 {
			boxHorizontal(shadow.Pix, tmp, sww, sh, r, 1)
			boxVertical(tmp, shadow.Pix, sww, sh, r, 1)
		}
	}

	m := &textMask{glyphs: glyphs, shadow: shadow, ascent: int(math.Round(glyphAscent * scale))}
	c.masks[key] = m
	return m
}

// drawOverlays paints every overlay in order at its anchor.
func (c *Compositor) drawOverlays(dst *image.RGBA, overlays []session.TextOverlay, now time.Time) {
	phase := float64(now.UnixMilli()) / 1000
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	for _, o := range overlays {
		if o.Text == "" || o.FontSize <= 0 {
			continue
		}
		col, err := ParseColor(o.Color)
		if err != nil {
			col = color.NRGBA{255, 255, 255, 255}
		}
		m := c.mask(o.Text, o.FontSize)
		tw := m.glyphs.Rect.Dx()

		// x is the anchor on the alignment edge, baseline the text baseline.
		var left, baseline int
		switch o.Position {
		case session.PositionTop:
			left, baseline = w/2-tw/2, o.FontSize+overlayMargin
		case session.PositionBottom:
			left, baseline = w/2-tw/2, h-overlayMargin
		case session.PositionLeft:
			left, baseline = o.FontSize, h/2
		case session.PositionRight:
			left, baseline = w-o.FontSize-tw, h/2
		default:
			left, baseline = w/2-tw/2, h/2
		}

		alpha := 1.0
		switch o.Animation {
		case session.AnimationFade:
			alpha = (math.Sin(phase) + 1) / 2
		case session.AnimationSlide:
			left += int(math.Round(math.Sin(phase) * slideAmplitude))
		}

		top := baseline - m.ascent
		if o.Shadow {
			sc := color.NRGBA{0, 0, 0, uint8(shadowOpacity * alpha)}
			at := image.Pt(left+shadowOffset-shadowBlur, top+shadowOffset-shadowBlur)
			paintMask(dst, m.shadow, at, sc)
		}
		col.A = uint8(float64(col.A) * alpha)
		paintMask(dst, m.glyphs, image.Pt(left, top), col)
	}
}

// drawCountdown veils the frame and prints the remaining seconds centred.
func (c *Compositor) drawCountdown(dst *image.RGBA, n int) {
	veil := image.NewUniform(color.NRGBA{0, 0, 0, countdownVeilOp})
	draw.Draw(dst, dst.Rect, veil, image.Point{}, draw.Over)

	m := c.mask(strconv.Itoa(n), countdownSize)
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	at := image.Pt(w/2-m.glyphs.Rect.Dx()/2, h/2-m.glyphs.Rect.Dy()/2)
	paintMask(dst, m.glyphs, at, color.NRGBA{255, 255, 255, 255})
}

func paintMask(dst *image.RGBA, mask *image.Alpha, at image.Point, col color.NRGBA) {
	if col.A == 0 {
		return
	}
	r := mask.Rect.Add(at)
	draw.DrawMask(dst, r, image.NewUniform(col), image.Point{}, mask, mask.Rect.Min, draw.Over)
}
