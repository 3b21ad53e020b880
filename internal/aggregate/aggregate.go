// Package aggregate turns tracked per-frame dot sets into per-area
// percent-of-maximum curves and percentile crossing snapshots.
package aggregate

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/thermal-dots-mcp/internal/areas"
	"github.com/ironsheep/thermal-dots-mcp/internal/tracking"
)

// DefaultPercentiles are the thresholds reported when none are configured.
var DefaultPercentiles = []int{10, 50, 90}

// Point is one sampled frame with its tracked marks grouped by area.
type Point struct {
	Timestamp    float64
	BaseTempC    float64
	FrameIndex   int
	MarksInAreas map[string][]tracking.TrackedMark
}

// AreaPStatPoint records the frame at which an area first reached a
// percentile threshold.
type AreaPStatPoint struct {
	Timestamp  float64 `json:"timestamp"`
	BaseTempC  float64 `json:"base_temp_c"`
	CountCur   int     `json:"count_cur"`
	CountMax   int     `json:"count_max"`
	FrameIndex int     `json:"frame_index"`
}

// Summary holds run-wide statistics of the reference temperature.
type Summary struct {
	Frames         int     `json:"frames"`
	BaseTempMean   float64 `json:"base_temp_mean"`
	BaseTempStdDev float64 `json:"base_temp_stddev"`
	BaseTempMin    float64 `json:"base_temp_min"`
	BaseTempMax    float64 `json:"base_temp_max"`
}

// Result is the outcome of one batch analysis.
//
// Timestamps and every AreaCounts series are index-aligned and oldest first.
// AreaCounts values are integer percentages in [0,100]. PercentileForArea has
// a key for every requested threshold; an area is missing under a threshold
// it never reached.
type Result struct {
	Timestamps        []float64                         `json:"timestamps"`
	AreaCounts        map[string][]int                  `json:"area_counts"`
	PercentileForArea map[int]map[string]AreaPStatPoint `json:"percentile_for_area"`
	AreaMax           map[string]int                    `json:"area_max"`
	Summary           Summary                           `json:"summary"`
}

// GroupPoints groups each tracked frame's marks by area.
func GroupPoints(frames []tracking.TrackedFrame, list []areas.NamedArea) []Point {
	points := make([]Point, 0, len(frames))
	for _, f := range frames {
		points = append(points, Point{
			Timestamp:    f.Timestamp,
			BaseTempC:    f.BaseTempC,
			FrameIndex:   f.Index,
			MarksInAreas: areas.GroupByArea(f.Marks, list),
		})
	}
	return points
}

// Aggregate builds the per-area curves and percentile table.
//
// Returns (nil, false) when there are no areas: nothing is computed and the
// caller keeps whatever result it had.
//
// Parameters:
//   - points: Sampled frames; sorted by timestamp before use.
//   - list: The areas to report. Marks grouped under other names are ignored.
//   - percentiles: Thresholds in percent. Duplicates are ignored. Nil or
//     empty means DefaultPercentiles.
//
// # Algorithm
//
//  1. Maximum: for each area, the number of distinct track IDs seen in it
//     over the whole run
//  2. Curve: walking forward in time, the number of distinct IDs seen so far
//     in the area as an integer percentage of that maximum (0 when the
//     maximum is 0)
//  3. Crossings: thresholds sit on a stack, smallest on top; whenever the
//     current percentage reaches the top threshold it is popped and a
//     snapshot recorded, repeating while further thresholds are also reached.
//     A popped threshold is never recorded again.
func Aggregate(points []Point, list []areas.NamedArea, percentiles []int) (*Result, bool) {
	if len(list) == 0 {
		return nil, false
	}
	thresholds := normalizePercentiles(percentiles)

	ordered := make([]Point, len(points))
	copy(ordered, points)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Timestamp < ordered[j].Timestamp })

	res := &Result{
		Timestamps:        make([]float64, 0, len(ordered)),
		AreaCounts:        make(map[string][]int, len(list)),
		PercentileForArea: make(map[int]map[string]AreaPStatPoint, len(thresholds)),
		AreaMax:           make(map[string]int, len(list)),
	}
	for _, p := range thresholds {
		res.PercentileForArea[p] = make(map[string]AreaPStatPoint)
	}

	for _, a := range list {
		seen := make(map[int]struct{})
		for _, p := range ordered {
			for _, m := range p.MarksInAreas[a.Name] {
				seen[m.ID] = struct{}{}
			}
		}
		res.AreaMax[a.Name] = len(seen)
	}

	for _, p := range ordered {
		res.Timestamps = append(res.Timestamps, p.Timestamp)
	}

	for _, a := range list {
		maxCount := res.AreaMax[a.Name]
		seen := make(map[int]struct{})
		stack := make([]int, len(thresholds))
		// Largest at the bottom, smallest on top.
		for i, p := range thresholds {
			stack[len(thresholds)-1-i] = p
		}
		counts := make([]int, 0, len(ordered))

		for _, p := range ordered {
			for _, m := range p.MarksInAreas[a.Name] {
				seen[m.ID] = struct{}{}
			}
			percent := 0
			if maxCount > 0 {
				percent = 100 * len(seen) / maxCount
			}
			counts = append(counts, percent)

			for len(stack) > 0 && percent >= stack[len(stack)-1] {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				res.PercentileForArea[top][a.Name] = AreaPStatPoint{
					Timestamp:  p.Timestamp,
					BaseTempC:  p.BaseTempC,
					CountCur:   len(seen),
					CountMax:   maxCount,
					FrameIndex: p.FrameIndex,
				}
			}
		}
		res.AreaCounts[a.Name] = counts
	}

	res.Summary = summarize(ordered)
	return res, true
}

// normalizePercentiles returns the thresholds sorted ascending without
// duplicates.
func normalizePercentiles(percentiles []int) []int {
	if len(percentiles) == 0 {
		percentiles = DefaultPercentiles
	}
	seen := make(map[int]bool, len(percentiles))
	out := make([]int, 0, len(percentiles))
	for _, p := range percentiles {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}

func summarize(points []Point) Summary {
	s := Summary{Frames: len(points)}
	if len(points) == 0 {
		return s
	}
	temps := make([]float64, len(points))
	for i, p := range points {
		temps[i] = p.BaseTempC
	}
	if len(temps) > 1 {
		s.BaseTempMean, s.BaseTempStdDev = stat.MeanStdDev(temps, nil)
	} else {
		s.BaseTempMean = temps[0]
	}
	s.BaseTempMin = floats.Min(temps)
	s.BaseTempMax = floats.Max(temps)
	return s
}
