package compositor

import (
	"image"
	"math"

	"github.com/aura-webinar/videocreator/internal/session"
)

// matrix is a 3x3 colour matrix applied to linear RGB triples.
type matrix [9]float64

func grayscaleMatrix(amount float64) matrix {
	a := 1 - amount
	return matrix{
		0.2126 + 0.7874*a, 0.7152 - 0.7152*a, 0.0722 - 0.0722*a,
		0.2126 - 0.2126*a, 0.7152 + 0.2848*a, 0.0722 - 0.0722*a,
		0.2126 - 0.2126*a, 0.7152 - 0.7152*a, 0.0722 + 0.9278*a,
	}
}

func sepiaMatrix(amount float64) matrix {
	a := 1 - amount
	return matrix{
		0.393 + 0.607*a, 0.769 - 0.769*a, 0.189 - 0.189*a,
		0.349 - 0.349*a, 0.686 + 0.314*a, 0.168 - 0.168*a,
		0.272 - 0.272*a, 0.534 - 0.534*a, 0.131 + 0.869*a,
	}
}

func saturateMatrix(s float64) matrix {
	return matrix{
		0.213 + 0.787*s, 0.715 - 0.715*s, 0.072 - 0.072*s,
		0.213 - 0.213*s, 0.715 + 0.285*s, 0.072 - 0.072*s,
		0.213 - 0.213*s, 0.715 - 0.715*s, 0.072 + 0.928*s,
	}
}

func hueRotateMatrix(deg float64) matrix {
	rad := deg * math.Pi / 180
	c, s := math.Cos(rad), math.Sin(rad)
	return matrix{
		0.213 + c*0.787 - s*0.213, 0.715 - c*0.715 - s*0.715, 0.072 - c*0.072 + s*0.928,
		0.213 - c*0.213 + s*0.143, 0.715 + c*0.285 + s*0.140, 0.072 - c*0.072 - s*0.283,
		0.213 - c*0.213 - s*0.787, 0.715 - c*0.715 + s*0.715, 0.072 + c*0.928 + s*0.072,
	}
}

// applyFilters runs the chain in its fixed order: blur, brightness,
// contrast, grayscale, sepia, saturate, hue-rotate. Values are clamped to
// 0..255 after every step.
func (c *Compositor) applyFilters(img *image.RGBA, f session.Filters) {
	if f.Blur > 0 {
		c.blur(img, f.Blur)
	}
	if f.Brightness != 100 || f.Contrast != 100 {
		c.applyLUT(img, f.Brightness/100, f.Contrast/100)
	}

	ms := c.matrices[:0]
	if f.Grayscale > 0 {
		ms = append(ms, grayscaleMatrix(f.Grayscale/100))
	}
	if f.Sepia > 0 {
		ms = append(ms, sepiaMatrix(f.Sepia/100))
	}
	if f.Saturate != 100 {
		ms = append(ms, saturateMatrix(f.Saturate/100))
	}
	if math.Mod(f.HueRotate, 360) != 0 {
		ms = append(ms, hueRotateMatrix(f.HueRotate))
	}
	c.matrices = ms
	if len(ms) == 0 {
		return
	}
	pix := img.Pix
	for i := 0; i < len(pix); i += 4 {
		r, g, b := float64(pix[i]), float64(pix[i+1]), float64(pix[i+2])
		for _, m := range ms {
			r, g, b = float64(clampF(m[0]*r+m[1]*g+m[2]*b)), float64(clampF(m[3]*r+m[4]*g+m[5]*b)), float64(clampF(m[6]*r+m[7]*g+m[8]*b))
		}
		pix[i], pix[i+1], pix[i+2] = uint8(r), uint8(g), uint8(b)
	}
}

// applyLUT folds brightness then contrast into one lookup table.
func (c *Compositor) applyLUT(img *image.RGBA, brightness, contrast float64) {
	if c.lutKey != [2]float64{brightness, contrast} || !c.lutReady {
		for v := 0; v < 256; v++ {
			b := float64(clampF(float64(v) * brightness))
			c.lut[v] = clampF((b-127.5)*contrast + 127.5)
		}
		c.lutKey = [2]float64{brightness, contrast}
		c.lutReady = true
	}
	pix := img.Pix
	for i := 0; i < len(pix); i += 4 {
		pix[i] = c.lut[pix[i]]
		pix[i+1] = c.lut[pix[i+1]]
		pix[i+2] = c.lut[pix[i+2]]
	}
}

// blur approximates a gaussian of the given radius with three box passes.
func (c *Compositor) blur(img *image.RGBA, sigma float64) {
	if len(c.blurTmp) != len(img.Pix) {
		c.blurTmp = make([]uint8, len(img.Pix))
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for _, size := range boxSizes(sigma, 3) {
		r := (size - 1) / 2
		if r < 1 {
			continue
		}
		boxHorizontal(img.Pix, c.blurTmp, w, h, r, 4)
		boxVertical(c.blurTmp, img.Pix, w, h, r, 4)
	}
}

// boxSizes returns n odd box widths whose sequence approximates a
// gaussian with standard deviation sigma.
func boxSizes(sigma float64, n int) []int {
	nf := float64(n)
	ideal := math.Sqrt(12*sigma*sigma/nf + 1)
	wl := int(math.Floor(ideal))
	if wl%2 == 0 {
		wl--
	}
	wu := wl + 2
	mIdeal := (12*sigma*sigma - nf*float64(wl*wl) - 4*nf*float64(wl) - 3*nf) / (-4*float64(wl) - 4)
	m := int(math.Round(mIdeal))
	sizes := make([]int, n)
	for i := range sizes {
		if i < m {
			sizes[i] = wl
		} else {
			sizes[i] = wu
		}
	}
	return sizes
}

// boxHorizontal blurs rows of n-channel pixels with a window of 2r+1,
// clamping at the edges.
func boxHorizontal(src, dst []uint8, w, h, r, n int) {
	div := 2*r + 1
	for y := 0; y < h; y++ {
		row := y * w * n
		for ch := 0; ch < n; ch++ {
			first, last := int(src[row+ch]), int(src[row+(w-1)*n+ch])
			sum := first * (r + 1)
			for x := 0; x < r; x++ {
				sum += int(src[row+min(x, w-1)*n+ch])
			}
			for x := 0; x < w; x++ {
				in := x + r
				if in < w {
					sum += int(src[row+in*n+ch])
				} else {
					sum += last
				}
				out := x - r - 1
				if out >= 0 {
					sum -= int(src[row+out*n+ch])
				} else {
					sum -= first
				}
				dst[row+x*n+ch] = uint8(sum / div)
			}
		}
	}
}

func boxVertical(src, dst []uint8, w, h, r, n int) {
	div := 2*r + 1
	stride := w * n
	for x := 0; x < w; x++ {
		col := x * n
		for ch := 0; ch < n; ch++ {
			first, last := int(src[col+ch]), int(src[(h-1)*stride+col+ch])
			sum := first * (r + 1)
			for y := 0; y < r; y++ {
				sum += int(src[min(y, h-1)*stride+col+ch])
			}
			for y := 0; y < h; y++ {
				in := y + r
				if in < h {
					sum += int(src[in*stride+col+ch])
				} else {
					sum += last
				}
				out := y - r - 1
				if out >= 0 {
					sum -= int(src[out*stride+col+ch])
				} else {
					sum -= first
				}
				dst[y*stride+col+ch] = uint8(sum / div)
			}
		}
	}
}
