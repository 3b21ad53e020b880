package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
)

// OverlayArea is a labelled rectangle drawn on top of a frame.
type OverlayArea struct {
	Name string
	Rect image.Rectangle
}

// OverlayMark is a detected dot drawn as a circle.
type OverlayMark struct {
	X, Y   float64
	Radius float64
	Label  string // optional, digits only
}

// OverlayResult contains the annotated frame.
type OverlayResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
	// Legend maps the number drawn in each area's corner to its name.
	Legend map[string]string `json:"legend,omitempty"`
}

var areaPalette = []color.RGBA{
	{255, 0, 0, 255},
	{0, 0, 255, 255},
	{255, 165, 0, 255},
	{128, 0, 128, 255},
	{0, 128, 128, 255},
}

var markColor = color.RGBA{255, 255, 0, 255}

// Overlay draws area rectangles and mark circles over a frame.
//
// Areas cycle through a fixed palette and are numbered from 1 in the order
// given; the numbers are returned in the legend since the built-in font only
// covers digits. Marks are drawn as circles of their radius plus a 3 pixel
// margin so the outline does not hide the dot itself.
func Overlay(f *Frame, areas []OverlayArea, marks []OverlayMark) (*OverlayResult, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	result := image.NewRGBA(f.Bounds())
	draw.Draw(result, result.Bounds(), f.ToNRGBA(), image.Point{}, draw.Src)

	labelFg := color.RGBA{255, 255, 255, 255}
	labelBg := color.RGBA{0, 0, 0, 180}

	legend := make(map[string]string, len(areas))
	for i, a := range areas {
		c := areaPalette[i%len(areaPalette)]
		drawRect(result, a.Rect, c)
		num := strconv.Itoa(i + 1)
		legend[num] = a.Name
		drawLabel(result, a.Rect.Min.X+2, a.Rect.Min.Y+2, num, labelFg, labelBg)
	}

	for _, m := range marks {
		drawCircle(result, int(math.Round(m.X)), int(math.Round(m.Y)), int(math.Round(m.Radius))+3, markColor)
		if m.Label != "" {
			drawLabel(result, int(m.X)+int(m.Radius)+4, int(m.Y)-3, m.Label, labelFg, labelBg)
		}
	}

	data, err := EncodePNG(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode overlay: %w", err)
	}
	return &OverlayResult{
		Width:       f.Width,
		Height:      f.Height,
		ImageBase64: data,
		MimeType:    "image/png",
		Legend:      legend,
	}, nil
}

// drawRect draws a one pixel outline. The rectangle's max corner is inclusive,
// matching the area containment rule.
func drawRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	for x := r.Min.X; x <= r.Max.X; x++ {
		setClipped(img, x, r.Min.Y, c)
		setClipped(img, x, r.Max.Y, c)
	}
	for y := r.Min.Y; y <= r.Max.Y; y++ {
		setClipped(img, r.Min.X, y, c)
		setClipped(img, r.Max.X, y, c)
	}
}

// drawCircle draws a circle outline using the midpoint algorithm.
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	x := radius
	y := 0
	err := 0
	for x >= y {
		setClipped(img, cx+x, cy+y, c)
		setClipped(img, cx+y, cy+x, c)
		setClipped(img, cx-y, cy+x, c)
		setClipped(img, cx-x, cy+y, c)
		setClipped(img, cx-x, cy-y, c)
		setClipped(img, cx-y, cy-x, c)
		setClipped(img, cx+y, cy-x, c)
		setClipped(img, cx+x, cy-y, c)

		if err <= 0 {
			y++
			err += 2*y + 1
		}
		if err > 0 {
			x--
			err -= 2*x + 1
		}
	}
}

func setClipped(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

// drawLabel draws a label with a 3x5 pixel font (digits and comma only).
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	glyphs := map[rune][]string{
		'0': {"111", "101", "101", "101", "111"},
		'1': {"010", "110", "010", "010", "111"},
		'2': {"111", "001", "111", "100", "111"},
		'3': {"111", "001", "111", "001", "111"},
		'4': {"101", "101", "111", "001", "001"},
		'5': {"111", "100", "111", "001", "111"},
		'6': {"111", "100", "111", "101", "111"},
		'7': {"111", "001", "001", "001", "001"},
		'8': {"111", "101", "111", "101", "111"},
		'9': {"111", "101", "111", "001", "111"},
		',': {"000", "000", "000", "010", "010"},
	}

	charWidth := 4
	labelWidth := len(text) * charWidth
	labelHeight := 7

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < labelWidth; dx++ {
			setClipped(img, x+dx, y+dy, bg)
		}
	}

	cx := x
	for _, ch := range text {
		glyph, ok := glyphs[ch]
		if !ok {
			cx += charWidth
			continue
		}
		for row, line := range glyph {
			for col, pixel := range line {
				if pixel == '1' {
					setClipped(img, cx+col, y+row, fg)
				}
			}
		}
		cx += charWidth
	}
}
