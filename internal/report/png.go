package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/ironsheep/thermal-dots-mcp/internal/aggregate"
)

// Chart size for PNG output.
const (
	chartWidth  = 10 * vg.Inch
	chartHeight = 5 * vg.Inch
)

var seriesColors = []color.RGBA{
	{R: 220, G: 50, B: 47, A: 255},
	{R: 38, G: 139, B: 210, A: 255},
	{R: 203, G: 75, B: 22, A: 255},
	{R: 108, G: 113, B: 196, A: 255},
	{R: 42, G: 161, B: 152, A: 255},
}

// newPlot builds the static chart shared by the PNG writers.
func newPlot(res *aggregate.Result, title string) (*plot.Plot, error) {
	if err := validate(res); err != nil {
		return nil, err
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "% of max"
	p.Y.Min = 0
	p.Y.Max = 100
	p.Add(plotter.NewGrid())

	marks := crossings(res)
	for i, name := range areaNames(res) {
		pts := make(plotter.XYs, len(res.Timestamps))
		for j, ts := range res.Timestamps {
			pts[j] = plotter.XY{X: ts, Y: float64(res.AreaCounts[name][j])}
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create line for %s: %w", name, err)
		}
		l.StepStyle = plotter.PostStep
		l.Color = seriesColors[i%len(seriesColors)]
		l.Width = vg.Points(1.5)
		p.Add(l)
		p.Legend.Add(name, l)

		cross := make(plotter.XYs, 0)
		for _, c := range marks {
			if c.Area == name {
				cross = append(cross, plotter.XY{X: c.Timestamp, Y: float64(c.Percent)})
			}
		}
		if len(cross) == 0 {
			continue
		}
		s, err := plotter.NewScatter(cross)
		if err != nil {
			return nil, fmt.Errorf("failed to create crossings for %s: %w", name, err)
		}
		s.GlyphStyle.Color = l.Color
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Radius = vg.Points(3)
		p.Add(s)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// RenderPNG writes a static PNG chart of the result.
func RenderPNG(w io.Writer, res *aggregate.Result, title string) error {
	p, err := newPlot(res, title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(chartWidth, chartHeight, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}

// SavePNG writes the PNG chart to a file.
func SavePNG(path string, res *aggregate.Result, title string) error {
	p, err := newPlot(res, title)
	if err != nil {
		return err
	}
	if err := p.Save(chartWidth, chartHeight, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
