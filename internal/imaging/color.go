package imaging

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// RGBColor represents an RGB color with 8-bit components.
type RGBColor struct {
	R uint8 `json:"r"` // Red component (0-255)
	G uint8 `json:"g"` // Green component (0-255)
	B uint8 `json:"b"` // Blue component (0-255)
}

// HSVColor is a color in 8-bit HSV space using the OpenCV convention.
//
//   - H: 0-179 (degrees halved so the circle fits a byte)
//   - S: 0-255
//   - V: 0-255, the maximum of the three RGB components
type HSVColor struct {
	H uint8 `json:"h"`
	S uint8 `json:"s"`
	V uint8 `json:"v"`
}

// ColorResult contains a sampled color in the representations the detector
// and the tools report.
type ColorResult struct {
	Hex string   `json:"hex"` // Hex format "#RRGGBB"
	RGB RGBColor `json:"rgb"`
	HSV HSVColor `json:"hsv"`
}

// HSVPlanes holds one byte per pixel for each HSV channel, row-major.
type HSVPlanes struct {
	Width  int
	Height int
	H      []uint8
	S      []uint8
	V      []uint8
}

// RGBToHSV converts an 8-bit RGB triple to 8-bit HSV.
//
// Hue comes from go-colorful in degrees and is halved and rounded; a hue that
// rounds to 180 wraps to 0. Saturation is scaled to 0-255. Value is the
// exact maximum component, so brightness comparisons never suffer from
// rounding.
func RGBToHSV(r, g, b uint8) HSVColor {
	c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	h, s, _ := c.Hsv()

	hue := int(math.Round(h/2)) % 180
	v := r
	if g > v {
		v = g
	}
	if b > v {
		v = b
	}
	return HSVColor{
		H: uint8(hue),
		S: uint8(math.Round(s * 255)),
		V: v,
	}
}

// ToHSVPlanes converts every pixel of the frame into HSV planes.
//
// The frame is first quantized to 8 bits per channel, the same way the
// rendered frame would be encoded for display.
func ToHSVPlanes(f *Frame) *HSVPlanes {
	n := f.Width * f.Height
	p := &HSVPlanes{
		Width:  f.Width,
		Height: f.Height,
		H:      make([]uint8, n),
		S:      make([]uint8, n),
		V:      make([]uint8, n),
	}
	for i := 0; i < n; i++ {
		hsv := RGBToHSV(quantize(f.Pix[4*i]), quantize(f.Pix[4*i+1]), quantize(f.Pix[4*i+2]))
		p.H[i] = hsv.H
		p.S[i] = hsv.S
		p.V[i] = hsv.V
	}
	return p
}

// SampleColor returns the color at a pixel of the frame.
//
// Parameters:
//   - f: The frame to sample.
//   - x: X coordinate (0-based, 0 = leftmost pixel).
//   - y: Y coordinate (0-based, 0 = topmost pixel).
//
// Returns:
//   - *ColorResult: The color at (x, y) as hex, RGB and HSV.
//   - error: Non-nil if coordinates are outside the frame.
func SampleColor(f *Frame, x, y int) (*ColorResult, error) {
	if !f.In(x, y) {
		return nil, fmt.Errorf("coordinates (%d,%d) outside frame bounds %dx%d", x, y, f.Width, f.Height)
	}
	r, g, b := f.RGB8(x, y)
	return &ColorResult{
		Hex: fmt.Sprintf("#%02X%02X%02X", r, g, b),
		RGB: RGBColor{R: r, G: g, B: b},
		HSV: RGBToHSV(r, g, b),
	}, nil
}

// LabeledPoint represents a pixel coordinate with an optional descriptive label.
type LabeledPoint struct {
	X     int    `json:"x"`               // X coordinate (0-based)
	Y     int    `json:"y"`               // Y coordinate (0-based)
	Label string `json:"label,omitempty"` // Optional descriptive label for this point
}

// LabeledColorResult combines a color sample with its location and optional label.
type LabeledColorResult struct {
	Label string      `json:"label,omitempty"`
	X     int         `json:"x"`
	Y     int         `json:"y"`
	Color ColorResult `json:"color"`
}

// SampleColorsMulti samples several points in one call. On error no partial
// results are returned.
func SampleColorsMulti(f *Frame, points []LabeledPoint) ([]LabeledColorResult, error) {
	results := make([]LabeledColorResult, 0, len(points))
	for _, p := range points {
		c, err := SampleColor(f, p.X, p.Y)
		if err != nil {
			return nil, fmt.Errorf("failed to sample point (%d,%d): %w", p.X, p.Y, err)
		}
		results = append(results, LabeledColorResult{Label: p.Label, X: p.X, Y: p.Y, Color: *c})
	}
	return results, nil
}
