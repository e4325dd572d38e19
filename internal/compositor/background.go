package compositor

import (
	"hash/fnv"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/aura-webinar/videocreator/internal/session"
)

const (
	patternCell = 50
	patternLine = 0.3
	patternRing = 0.6
)

var patternStroke = color.NRGBA{255, 255, 255, 26}

// backgroundCache holds the last rendered background and its key.
type backgroundCache struct {
	key string
	img *image.RGBA
}

func backgroundKey(bg session.Background, seed int64) string {
	var b strings.Builder
	b.WriteString(string(bg.Type))
	b.WriteByte('|')
	b.WriteString(bg.Style)
	b.WriteByte('|')
	b.WriteString(strings.Join(bg.Colors, ","))
	if bg.Type == session.BackgroundPattern {
		b.WriteByte('|')
		b.WriteString(strconv.FormatInt(seed, 10))
	}
	return b.String()
}

// paintBackground fills dst. Backgrounds depend only on the session, so the
// rendered layer is reused until the background settings or the output size change.
func (c *Compositor) paintBackground(dst *image.RGBA, bg session.Background, seed int64) {
	if bg.Type == session.BackgroundNone {
		clear(dst.Pix)
		return
	}
	key := backgroundKey(bg, seed)
	if c.bg.img == nil || c.bg.key != key {
		if c.bg.img == nil {
			c.bg.img = image.NewRGBA(dst.Rect)
		}
		switch bg.Type {
		case session.BackgroundGradient:
			drawGradient(c.bg.img, bg.Colors)
		case session.BackgroundPattern:
			drawPattern(c.bg.img, bg.Style, seed)
		default:
			clear(c.bg.img.Pix)
		}
		c.bg.key = key
	}
	copy(dst.Pix, c.bg.img.Pix)
}

// drawGradient paints a linear gradient from the top-left to the
// bottom-right corner with evenly spaced stops.
func drawGradient(dst *image.RGBA, colors []string) {
	stops := make([]color.NRGBA, 0, len(colors))
	for _, s := range colors {
		if col, err := ParseColor(s); err == nil {
			stops = append(stops, col)
		}
	}
	if len(stops) == 0 {
		clear(dst.Pix)
		return
	}
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	den := float64(w*w + h*h)
	n := len(stops) - 1
	for y := 0; y < h; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			t := float64(x*w+y*h) / den
			var col color.NRGBA
			if n == 0 {
				col = stops[0]
			} else {
				pos := t * float64(n)
				i := min(int(pos), n-1)
				col = lerp(stops[i], stops[i+1], pos-float64(i))
			}
			i := x * 4
			a := uint32(col.A)
			row[i] = uint8(uint32(col.R) * a / 255)
			row[i+1] = uint8(uint32(col.G) * a / 255)
			row[i+2] = uint8(uint32(col.B) * a / 255)
			row[i+3] = col.A
		}
	}
}

func lerp(a, b color.NRGBA, t float64) color.NRGBA {
	mix := func(x, y uint8) uint8 { return clampF(float64(x) + (float64(y)-float64(x))*t) }
	return color.NRGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), mix(a.A, b.A)}
}

// drawPattern paints the geometric pattern on black: each 50px cell holds a
// diagonal line, a ring or nothing. The choice per cell is a hash of the
// session seed and the cell coordinates, so the texture holds still.
func drawPattern(dst *image.RGBA, style string, seed int64) {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	for i := 0; i < len(dst.Pix); i += 4 {
		dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = 0, 0, 0, 255
	}
	if style != "geometric" {
		return
	}
	for cx := 0; cx < w; cx += patternCell {
		for cy := 0; cy < h; cy += patternCell {
			r := cellRandom(seed, cx, cy)
			switch {
			case r < patternLine:
				for d := 0; d < patternCell; d++ {
					blendPixel(dst, cx+d, cy+d, patternStroke)
				}
			case r < patternRing:
				strokeCircle(dst, cx+patternCell/2, cy+patternCell/2, patternCell/4)
			}
		}
	}
}

func cellRandom(seed int64, x, y int) float64 {
	h := fnv.New64a()
	var buf [24]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(seed >> (8 * i))
		buf[8+i] = byte(int64(x) >> (8 * i))
		buf[16+i] = byte(int64(y) >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	return float64(h.Sum64()>>11) / float64(1<<53)
}

func strokeCircle(dst *image.RGBA, cx, cy, r int) {
	steps := int(2 * math.Pi * float64(r) * 2)
	lastX, lastY := -1, -1
	for i := 0; i < steps; i++ {
		a := 2 * math.Pi * float64(i) / float64(steps)
		x := cx + int(math.Round(float64(r)*math.Cos(a)))
		y := cy + int(math.Round(float64(r)*math.Sin(a)))
		if x == lastX && y == lastY {
			continue
		}
		blendPixel(dst, x, y, patternStroke)
		lastX, lastY = x, y
	}
}

// blendPixel composites c over the pixel at (x, y) if it is in bounds.
func blendPixel(dst *image.RGBA, x, y int, c color.NRGBA) {
	if !(image.Point{x, y}.In(dst.Rect)) {
		return
	}
	i := dst.PixOffset(x, y)
	a := uint32(c.A)
	inv := 255 - a
	dst.Pix[i] = uint8((uint32(c.R)*a + uint32(dst.Pix[i])*inv) / 255)
	dst.Pix[i+1] = uint8((uint32(c.G)*a + uint32(dst.Pix[i+1])*inv) / 255)
	dst.Pix[i+2] = uint8((uint32(c.B)*a + uint32(dst.Pix[i+2])*inv) / 255)
	dst.Pix[i+3] = uint8(a + uint32(dst.Pix[i+3])*inv/255)
}
