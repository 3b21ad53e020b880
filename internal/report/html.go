package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/ironsheep/thermal-dots-mcp/internal/aggregate"
)

// RenderHTML writes an interactive line chart of the result: one series per
// area, percent of maximum against seconds, with a marker at each percentile
// crossing.
func RenderHTML(w io.Writer, res *aggregate.Result, title string) error {
	if err := validate(res); err != nil {
		return err
	}

	x := make([]string, len(res.Timestamps))
	index := make(map[float64]string, len(res.Timestamps))
	for i, ts := range res.Timestamps {
		x[i] = fmt.Sprintf("%.1f", ts)
		index[ts] = x[i]
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1000px", Height: "560px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("frames=%d areas=%d", len(res.Timestamps), len(res.AreaCounts)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "% of max", Min: 0, Max: 100}),
	)
	line.SetXAxis(x)

	marks := crossings(res)
	for _, name := range areaNames(res) {
		data := make([]opts.LineData, len(res.AreaCounts[name]))
		for i, v := range res.AreaCounts[name] {
			data[i] = opts.LineData{Value: v}
		}

		points := make([]opts.MarkPointNameCoordItem, 0)
		for _, c := range marks {
			if c.Area != name {
				continue
			}
			points = append(points, opts.MarkPointNameCoordItem{
				Name:       fmt.Sprintf("p%d", c.Percentile),
				Coordinate: []interface{}{index[c.Timestamp], c.Percent},
			})
		}

		line.AddSeries(name, data, charts.WithMarkPointNameCoordItemOpts(points...))
	}

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
