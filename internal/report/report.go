// Package report draws the percent-of-maximum curves of a batch result.
package report

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ironsheep/thermal-dots-mcp/internal/aggregate"
)

// ErrEmptyResult is returned for results without samples or areas.
var ErrEmptyResult = errors.New("empty result")

// Crossing is one percentile crossing placed on an area's curve.
type Crossing struct {
	Area       string
	Percentile int
	Timestamp  float64
	Percent    int
}

// areaNames returns the result's areas in name order.
func areaNames(res *aggregate.Result) []string {
	names := make([]string, 0, len(res.AreaCounts))
	for name := range res.AreaCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// crossings lists every recorded crossing, by area then percentile.
func crossings(res *aggregate.Result) []Crossing {
	pcts := make([]int, 0, len(res.PercentileForArea))
	for p := range res.PercentileForArea {
		pcts = append(pcts, p)
	}
	sort.Ints(pcts)

	out := make([]Crossing, 0)
	for _, name := range areaNames(res) {
		for _, p := range pcts {
			snap, ok := res.PercentileForArea[p][name]
			if !ok {
				continue
			}
			percent := 0
			if snap.CountMax > 0 {
				percent = 100 * snap.CountCur / snap.CountMax
			}
			out = append(out, Crossing{Area: name, Percentile: p, Timestamp: snap.Timestamp, Percent: percent})
		}
	}
	return out
}

func validate(res *aggregate.Result) error {
	if res == nil || len(res.Timestamps) == 0 || len(res.AreaCounts) == 0 {
		return ErrEmptyResult
	}
	for name, counts := range res.AreaCounts {
		if len(counts) != len(res.Timestamps) {
			return fmt.Errorf("area %q has %d samples, want %d", name, len(counts), len(res.Timestamps))
		}
	}
	return nil
}
