// Package analysis ties the dot pipeline together: it samples a recording,
// tracks dot identities across the samples, aggregates per-area curves and
// keeps the last successful result.
package analysis

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/thermal-dots-mcp/internal/aggregate"
	"github.com/ironsheep/thermal-dots-mcp/internal/areas"
	"github.com/ironsheep/thermal-dots-mcp/internal/detection"
	"github.com/ironsheep/thermal-dots-mcp/internal/imaging"
	"github.com/ironsheep/thermal-dots-mcp/internal/logging"
	"github.com/ironsheep/thermal-dots-mcp/internal/render"
	"github.com/ironsheep/thermal-dots-mcp/internal/sampler"
	"github.com/ironsheep/thermal-dots-mcp/internal/store"
	"github.com/ironsheep/thermal-dots-mcp/internal/tracking"
)

// RunStore persists finished runs. *store.Store implements it.
type RunStore interface {
	SaveRun(ctx context.Context, meta store.RunMeta, result *aggregate.Result) (string, error)
}

// Request holds the inputs of one batch run.
type Request struct {
	Source     sampler.FrameSource
	SourceName string

	// HasReference is false when no reference point has been picked yet;
	// Params.ReferenceX/Y are ignored in that case.
	HasReference bool
	Params       detection.Params
	Areas        []areas.NamedArea
	Percentiles  []int
	Render       render.Config
	Stride       int

	// Temps defaults to a render.Lookup over Render.
	Temps sampler.TemperatureLookup
}

// Outcome is what RunBatch reports back.
//
// When Ran is false the preconditions were not met and Result is the
// previous result (nil if there never was one).
type Outcome struct {
	Result   *aggregate.Result `json:"result"`
	Ran      bool              `json:"ran"`
	RunID    string            `json:"run_id,omitempty"`
	Frames   int               `json:"frames"`
	Tracking tracking.Stats    `json:"tracking"`
}

// FrameAnalysis is the detection result for a single frame.
type FrameAnalysis struct {
	Index     int                      `json:"frame_index"`
	Timestamp float64                  `json:"timestamp"`
	BaseTempC *float64                 `json:"base_temp_c,omitempty"`
	Marks     []detection.DetectedMark `json:"marks"`
	Counts    map[string]int           `json:"counts"`
	Frame     *imaging.Frame           `json:"-"`
}

// Service runs batches and remembers the last successful result. It is safe
// for concurrent use; batches themselves are not serialized.
type Service struct {
	Detector detection.Detector
	Workers  int
	Logger   logrus.FieldLogger
	Store    RunStore

	mu        sync.RWMutex
	last      *aggregate.Result
	lastRunID string
}

// NewService creates a service. runs may be nil to disable persistence.
func NewService(log logrus.FieldLogger, det detection.Detector, runs RunStore, workers int) *Service {
	return &Service{Detector: det, Workers: workers, Logger: log, Store: runs}
}

// Last returns the last successful result and its run ID, if any. The run ID
// is empty when the result was not persisted.
func (s *Service) Last() (*aggregate.Result, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.lastRunID
}

// RunBatch analyzes a recording.
//
// A request without a reference point, without areas, or with an empty
// source is a no-op: Ran is false and the previous result is returned with
// a nil error. Any failure leaves the previous result in place.
//
// Parameters:
//   - ctx: Cancels the run.
//   - req: Run inputs.
//   - progress: Optional; see sampler.Sampler.RunBatch.
//
// # Algorithm
//
//  1. Sample: detect marks and the reference temperature on every Stride-th
//     frame in parallel
//  2. Track: assign identities on a fresh tracker
//  3. Group: bucket each frame's tracked marks by area
//  4. Aggregate: per-area curves and percentile crossings
//  5. Persist: save the run when a store is configured; a store failure is
//     logged and the result is still kept
func (s *Service) RunBatch(ctx context.Context, req Request, progress sampler.ProgressFunc) (Outcome, error) {
	log := s.logger()
	if reason := unmet(req); reason != "" {
		log.WithField("reason", reason).Info("batch skipped")
		prev, id := s.Last()
		return Outcome{Result: prev, RunID: id}, nil
	}

	temps := req.Temps
	if temps == nil {
		temps = render.NewLookup(req.Render)
	}
	smp := &sampler.Sampler{
		Source:   req.Source,
		Temps:    temps,
		Detector: s.Detector,
		Params:   req.Params,
		Render:   req.Render,
		Stride:   req.Stride,
		Workers:  s.Workers,
		Logger:   log,
	}
	frames, err := smp.RunBatch(ctx, progress)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to sample frames: %w", err)
	}

	tracker := tracking.NewTracker()
	tracked := tracker.Track(frames)
	stats := tracker.Stats()
	log.WithFields(logrus.Fields{
		"created":   stats.Created,
		"retired":   stats.Retired,
		"discarded": stats.Discarded,
	}).Debug("tracking finished")

	points := aggregate.GroupPoints(tracked, req.Areas)
	result, ok := aggregate.Aggregate(points, req.Areas, req.Percentiles)
	if !ok {
		prev, id := s.Last()
		return Outcome{Result: prev, RunID: id}, nil
	}

	out := Outcome{Result: result, Ran: true, Frames: len(frames), Tracking: stats}
	if s.Store != nil {
		id, err := s.Store.SaveRun(ctx, store.RunMeta{
			Source:      req.SourceName,
			Frames:      len(frames),
			Stride:      req.Stride,
			Params:      req.Params,
			Areas:       req.Areas,
			Percentiles: req.Percentiles,
		}, result)
		if err != nil {
			log.WithError(err).Error("failed to persist run")
		} else {
			out.RunID = id
		}
	}

	s.mu.Lock()
	s.last = result
	s.lastRunID = out.RunID
	s.mu.Unlock()

	log.WithFields(logrus.Fields{
		"run_id": out.RunID,
		"frames": out.Frames,
		"areas":  len(req.Areas),
	}).Info("batch finished")
	return out, nil
}

func unmet(req Request) string {
	switch {
	case !req.HasReference:
		return "no reference point"
	case len(req.Areas) == 0:
		return "no areas"
	case req.Source == nil:
		return "no recording"
	case req.Source.FrameCount() == 0:
		return "empty recording"
	}
	return ""
}

// AnalyzeFrame detects marks on one frame and counts them per area.
//
// The reference temperature is filled in when temps can read it; a missing
// value is not an error here.
func (s *Service) AnalyzeFrame(ctx context.Context, src sampler.FrameSource, index int, params detection.Params,
	cfg render.Config, temps sampler.TemperatureLookup, list []areas.NamedArea) (*FrameAnalysis, error) {
	if src == nil {
		return nil, fmt.Errorf("failed to analyze frame: no recording")
	}
	f, err := src.ReadFrame(ctx, index, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame %d: %w", index, err)
	}
	det := s.Detector
	if det == nil {
		det = detection.PureDetector{}
	}
	marks, err := det.Detect(f, params)
	if err != nil {
		return nil, fmt.Errorf("failed to detect marks: %w", err)
	}

	res := &FrameAnalysis{
		Index:     index,
		Timestamp: f.Timestamp - src.StartTimestamp(),
		Marks:     marks,
		Counts:    areas.Counts(areas.GroupByArea(marks, list)),
		Frame:     f,
	}
	if temps == nil {
		temps = render.NewLookup(cfg)
	}
	if t, ok := temps.TempAt(f, params.ReferenceX, params.ReferenceY); ok {
		res.BaseTempC = &t
	}
	return res, nil
}

func (s *Service) logger() logrus.FieldLogger {
	if s.Logger != nil {
		return s.Logger
	}
	return logging.Discard()
}
