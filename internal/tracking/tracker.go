// Package tracking stitches per-frame dot detections into identities that
// stay stable across a batch run.
//
// Frames are processed newest first. Once a dot has gone unseen for a few
// processed frames its last box is retired, and any later (chronologically
// earlier) detection overlapping that box is dropped as noise instead of
// being given a new identity. A dot that froze therefore cannot reappear
// further back in time and inflate the distinct-dot count.
package tracking

import (
	"sort"

	"github.com/ironsheep/thermal-dots-mcp/internal/detection"
)

const (
	// DefaultMatchThreshold is the overlap ratio a detection must exceed to
	// match an active track or to be discarded against a retired box.
	DefaultMatchThreshold = 0.4
	// DefaultRetireAfter is how many processed frames a track may go
	// unmatched before it is retired.
	DefaultRetireAfter = 3
)

// FrameDetections is the detector output for one sampled frame.
type FrameDetections struct {
	Index     int                      `json:"frame_index"`
	Timestamp float64                  `json:"timestamp"`
	BaseTempC float64                  `json:"base_temp_c"`
	Marks     []detection.DetectedMark `json:"marks"`
}

// TrackedMark is a detection with a run-scoped identity.
type TrackedMark struct {
	ID   int                    `json:"id"`
	Mark detection.DetectedMark `json:"mark"`
	BBox BBox                   `json:"bbox"`
	// LastSeenFrameIndex is the position in the newest-first pass at which
	// the track was last matched.
	LastSeenFrameIndex int `json:"last_seen_frame_index"`
}

// Center returns the center of the latest observation.
func (t TrackedMark) Center() (float64, float64) {
	return t.Mark.CenterX, t.Mark.CenterY
}

// TrackedFrame is one frame's kept detections after tracking.
type TrackedFrame struct {
	Index     int           `json:"frame_index"`
	Timestamp float64       `json:"timestamp"`
	BaseTempC float64       `json:"base_temp_c"`
	Marks     []TrackedMark `json:"marks"`
}

// Stats summarizes one Track call.
type Stats struct {
	Created   int `json:"created"`
	Retired   int `json:"retired"`
	Discarded int `json:"discarded"`
}

// Tracker assigns identities across one batch run. The zero value is not
// usable; call NewTracker.
type Tracker struct {
	MatchThreshold float64
	RetireAfter    int

	active  []*TrackedMark
	retired []BBox
	nextID  int
	stats   Stats
}

// NewTracker returns a tracker with the default thresholds.
func NewTracker() *Tracker {
	return &Tracker{
		MatchThreshold: DefaultMatchThreshold,
		RetireAfter:    DefaultRetireAfter,
	}
}

// Stats returns counters for the last Track call.
func (t *Tracker) Stats() Stats {
	return t.stats
}

// Track assigns identities to every detection of a run.
//
// frames may arrive in any order; the output has one TrackedFrame per input
// frame in ascending timestamp order. Tracking state is reset on entry, so
// identities are only meaningful within one call. IDs start at 1.
//
// # Algorithm
//
//  1. sortNewestFirst: order frames by descending timestamp
//  2. reversePass: for each detection, drop it if it overlaps a retired box,
//     otherwise match it to the best unmatched active track or open a new
//     track; then retire tracks unseen for more than RetireAfter frames
//  3. restoreChronological: reorder the tracked frames oldest first
func (t *Tracker) Track(frames []FrameDetections) []TrackedFrame {
	t.active = nil
	t.retired = nil
	t.nextID = 1
	t.stats = Stats{}

	newestFirst := sortNewestFirst(frames)
	tracked := t.reversePass(newestFirst)
	return restoreChronological(tracked)
}

func sortNewestFirst(frames []FrameDetections) []FrameDetections {
	out := make([]FrameDetections, len(frames))
	copy(out, frames)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].Index > out[j].Index
	})
	return out
}

func (t *Tracker) reversePass(frames []FrameDetections) []TrackedFrame {
	out := make([]TrackedFrame, 0, len(frames))
	for step, f := range frames {
		out = append(out, TrackedFrame{
			Index:     f.Index,
			Timestamp: f.Timestamp,
			BaseTempC: f.BaseTempC,
			Marks:     t.step(step, f.Marks),
		})
	}
	return out
}

// step processes one frame's detections at position step of the pass.
func (t *Tracker) step(step int, marks []detection.DetectedMark) []TrackedMark {
	kept := make([]TrackedMark, 0, len(marks))
	matched := make(map[*TrackedMark]bool, len(t.active))

	for _, m := range marks {
		box := BBoxOf(m)
		if t.overlapsRetired(box) {
			t.stats.Discarded++
			continue
		}

		var best *TrackedMark
		bestRatio := t.MatchThreshold
		for _, tr := range t.active {
			if matched[tr] {
				continue
			}
			if r := OverlapRatio(box, tr.BBox); r > bestRatio {
				best, bestRatio = tr, r
			}
		}

		if best == nil {
			best = &TrackedMark{ID: t.nextID}
			t.nextID++
			t.active = append(t.active, best)
			t.stats.Created++
		}
		best.Mark = m
		best.BBox = box
		best.LastSeenFrameIndex = step
		matched[best] = true
		kept = append(kept, *best)
	}

	t.retireStale(step)
	return kept
}

func (t *Tracker) overlapsRetired(box BBox) bool {
	for _, r := range t.retired {
		if OverlapRatio(box, r) > t.MatchThreshold {
			return true
		}
	}
	return false
}

// retireStale moves tracks unseen for more than RetireAfter steps to the
// retired list, keeping only their last box.
func (t *Tracker) retireStale(step int) {
	live := t.active[:0]
	for _, tr := range t.active {
		if step-tr.LastSeenFrameIndex > t.RetireAfter {
			t.retired = append(t.retired, tr.BBox)
			t.stats.Retired++
			continue
		}
		live = append(live, tr)
	}
	t.active = live
}

func restoreChronological(frames []TrackedFrame) []TrackedFrame {
	out := make([]TrackedFrame, len(frames))
	copy(out, frames)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Index < out[j].Index
	})
	return out
}
