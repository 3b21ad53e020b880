package render

import (
	"fmt"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Colormap names a palette applied to the 8-bit intensity image.
type Colormap string

const (
	WhiteHot Colormap = "white_hot"
	BlackHot Colormap = "black_hot"
	Ironbow  Colormap = "ironbow"
	Rainbow  Colormap = "rainbow"
)

// Colormaps lists the supported palettes in display order.
var Colormaps = []Colormap{WhiteHot, BlackHot, Ironbow, Rainbow}

// ParseColormap validates a palette name.
func ParseColormap(name string) (Colormap, error) {
	for _, c := range Colormaps {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown colormap %q", name)
}

// stop is a palette anchor at position t in [0,1].
type stop struct {
	t float64
	c colorful.Color
}

var paletteStops = map[Colormap][]stop{
	Ironbow: {
		{0, colorful.Color{R: 0, G: 0, B: 0}},
		{0.2, mustHex("#1e0a70")},
		{0.4, mustHex("#a01e96")},
		{0.6, mustHex("#e8461e")},
		{0.8, mustHex("#fcb414")},
		{1, mustHex("#ffffe0")},
	},
	Rainbow: {
		{0, mustHex("#0000ff")},
		{0.25, mustHex("#00ffff")},
		{0.5, mustHex("#00ff00")},
		{0.75, mustHex("#ffff00")},
		{1, mustHex("#ff0000")},
	},
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// lut is a 256-entry RGB table.
type lut [256][3]uint8

// buildLUT expands a palette into a lookup table.
//
// The grey palettes are exact ramps so brightness stays proportional to
// temperature; the color palettes blend between anchors in CIE L*a*b*.
func buildLUT(cm Colormap) lut {
	var t lut
	for i := 0; i < 256; i++ {
		var c colorful.Color
		switch cm {
		case BlackHot:
			v := float64(255-i) / 255
			c = colorful.Color{R: v, G: v, B: v}
		case Ironbow, Rainbow:
			c = blendStops(paletteStops[cm], float64(i)/255)
		default:
			v := float64(i) / 255
			c = colorful.Color{R: v, G: v, B: v}
		}
		r, g, b := c.Clamped().RGB255()
		t[i] = [3]uint8{r, g, b}
	}
	return t
}

func blendStops(stops []stop, t float64) colorful.Color {
	for i := 1; i < len(stops); i++ {
		if t <= stops[i].t {
			lo, hi := stops[i-1], stops[i]
			return lo.c.BlendLab(hi.c, (t-lo.t)/(hi.t-lo.t))
		}
	}
	return stops[len(stops)-1].c
}
