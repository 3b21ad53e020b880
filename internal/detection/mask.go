package detection

import (
	"image"

	"github.com/anthonynsimon/bild/effect"

	"github.com/ironsheep/thermal-dots-mcp/internal/imaging"
)

// hueMax is one past the largest 8-bit hue value.
const hueMax = 180

// morphRadius is the radius of the structuring element used to clean masks.
const morphRadius = 2

// mask is a row-major foreground map.
type mask struct {
	width  int
	height int
	fg     []bool
}

func newMask(width, height int) *mask {
	return &mask{width: width, height: height, fg: make([]bool, width*height)}
}

func (m *mask) at(x, y int) bool {
	return x >= 0 && y >= 0 && x < m.width && y < m.height && m.fg[y*m.width+x]
}

// referenceMask marks pixels at least tol brighter than the reference value.
//
// The cutoff is one-sided: pixels with V >= min(255, vRef+tol) are foreground.
// When vRef+tol saturates, only fully bright pixels qualify.
func referenceMask(p *imaging.HSVPlanes, vRef uint8, tol int) *mask {
	threshold := int(vRef) + tol
	if threshold > 255 {
		threshold = 255
	}
	m := newMask(p.Width, p.Height)
	for i, v := range p.V {
		m.fg[i] = int(v) >= threshold
	}
	return m
}

// hueRanges returns the inclusive hue intervals within tol of h on the hue
// circle [0,180).
//
// An interval that underflows 0 or overflows 179 is split in two, e.g. a
// target of 2 with tolerance 10 gives [0,12] and [172,179]. A tolerance wide
// enough to cover the circle yields the single range [0,179].
func hueRanges(h, tol int) [][2]int {
	if 2*tol+1 >= hueMax {
		return [][2]int{{0, hueMax - 1}}
	}
	lo, hi := h-tol, h+tol
	switch {
	case lo < 0:
		return [][2]int{{0, hi}, {hueMax + lo, hueMax - 1}}
	case hi > hueMax-1:
		return [][2]int{{lo, hueMax - 1}, {0, hi - hueMax}}
	default:
		return [][2]int{{lo, hi}}
	}
}

// colorMask marks pixels whose hue is within tol of the target on the hue
// circle and whose saturation is within tol of the target saturation.
// Brightness is not constrained.
func colorMask(p *imaging.HSVPlanes, target imaging.HSVColor, tol int) *mask {
	ranges := hueRanges(int(target.H), tol)
	sLo := int(target.S) - tol
	sHi := int(target.S) + tol
	if sLo < 0 {
		sLo = 0
	}
	if sHi > 255 {
		sHi = 255
	}

	m := newMask(p.Width, p.Height)
	for i := range p.H {
		s := int(p.S[i])
		if s < sLo || s > sHi {
			continue
		}
		h := int(p.H[i])
		for _, r := range ranges {
			if h >= r[0] && h <= r[1] {
				m.fg[i] = true
				break
			}
		}
	}
	return m
}

// clean applies a morphological opening followed by a closing, removing
// isolated speckles and then filling small gaps.
func (m *mask) clean() *mask {
	img := m.toGray()
	opened := effect.Dilate(effect.Erode(img, morphRadius), morphRadius)
	closed := effect.Erode(effect.Dilate(opened, morphRadius), morphRadius)

	out := newMask(m.width, m.height)
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			out.fg[y*m.width+x] = closed.RGBAAt(x, y).R > 127
		}
	}
	return out
}

func (m *mask) toGray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.width, m.height))
	for i, on := range m.fg {
		if on {
			img.Pix[i] = 255
		}
	}
	return img
}
