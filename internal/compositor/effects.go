package compositor

import (
	"image"
	"math"

	"github.com/aura-webinar/videocreator/internal/session"
)

const (
	grainRange         = 10
	scanlineKeep       = 230 // 255 * (1 - 0.1)
	aberrationOffset   = 2
	vignetteMaxOpacity = 0.5
)

// applyEffects runs the enabled effects in order: vignette, grain,
// scanlines, chromatic aberration.
func (c *Compositor) applyEffects(img *image.RGBA, e session.Effects) {
	if e.Vignette {
		c.vignette(img)
	}
	if e.Grain {
		c.grain(img)
	}
	if e.Scanlines {
		scanlines(img)
	}
	if e.ChromaticAberration {
		c.chromaticAberration(img)
	}
}

// vignette darkens towards a radius of width/1.5 around the centre, up to
// 50% black. The per-pixel keep factor is computed once per output size.
func (c *Compositor) vignette(img *image.RGBA) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if len(c.vignetteMask) != w*h {
		c.vignetteMask = make([]uint16, w*h)
		cx, cy := float64(w)/2, float64(h)/2
		radius := float64(w) / 1.5
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy) / radius
				alpha := vignetteMaxOpacity * math.Min(d, 1)
				c.vignetteMask[y*w+x] = uint16((1 - alpha) * 256)
			}
		}
	}
	pix := img.Pix
	for p, k := range c.vignetteMask {
		i := p * 4
		pix[i] = uint8(uint16(pix[i]) * k >> 8)
		pix[i+1] = uint8(uint16(pix[i+1]) * k >> 8)
		pix[i+2] = uint8(uint16(pix[i+2]) * k >> 8)
	}
}

// grain adds the same offset in [-10, 10] to r, g and b of every pixel.
func (c *Compositor) grain(img *image.RGBA) {
	pix := img.Pix
	s := c.noise
	for i := 0; i < len(pix); i += 4 {
		s ^= s << 13
		s ^= s >> 17
		s ^= s << 5
		n := int(s%(2*grainRange+1)) - grainRange
		pix[i] = clampByte(int(pix[i]) + n)
		pix[i+1] = clampByte(int(pix[i+1]) + n)
		pix[i+2] = clampByte(int(pix[i+2]) + n)
	}
	c.noise = s
}

// scanlines darkens every other row starting at the top by 10%.
func scanlines(img *image.RGBA) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y += 2 {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			row[i] = uint8(uint16(row[i]) * scanlineKeep / 255)
			row[i+1] = uint8(uint16(row[i+1]) * scanlineKeep / 255)
			row[i+2] = uint8(uint16(row[i+2]) * scanlineKeep / 255)
		}
	}
}

// chromaticAberration samples red two pixels to the right and blue two
// pixels to the left. Samples that would come from outside the row keep
// their original value.
func (c *Compositor) chromaticAberration(img *image.RGBA) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if len(c.rowBuf) != w*4 {
		c.rowBuf = make([]uint8, w*4)
	}
	off := aberrationOffset * 4
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		copy(c.rowBuf, row)
		for x := 0; x < w; x++ {
			i := x * 4
			if x+aberrationOffset < w {
				row[i] = c.rowBuf[i+off]
			}
			if x-aberrationOffset >= 0 {
				row[i+2] = c.rowBuf[i-off+2]
			}
		}
	}
}
