// Package sampler runs detection over a strided subset of a recording's frames
// on a bounded worker pool.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/thermal-dots-mcp/internal/detection"
	"github.com/ironsheep/thermal-dots-mcp/internal/imaging"
	"github.com/ironsheep/thermal-dots-mcp/internal/logging"
	"github.com/ironsheep/thermal-dots-mcp/internal/render"
	"github.com/ironsheep/thermal-dots-mcp/internal/tracking"
)

// Stride limits.
const (
	MinStride = 1
	MaxStride = 100
)

// DefaultProgressInterval is the minimum wall time between progress reports.
const DefaultProgressInterval = 300 * time.Millisecond

// ErrFrameFailed wraps the first per-frame failure of a batch.
var ErrFrameFailed = errors.New("frame failed")

// FrameSource gives concurrent random access to rendered frames.
type FrameSource interface {
	FrameCount() int
	ReadFrame(ctx context.Context, index int, cfg render.Config) (*imaging.Frame, error)
	StartTimestamp() float64
}

// TemperatureLookup reads the temperature under a frame pixel. It reports
// false when no value is available there.
type TemperatureLookup interface {
	TempAt(f *imaging.Frame, x, y int) (float64, bool)
}

// ProgressFunc receives the number of finished frames out of total.
type ProgressFunc func(done, total int)

// Sampler holds the inputs of one batch run. A zero Workers uses one worker
// per CPU; a nil Detector uses detection.PureDetector.
type Sampler struct {
	Source           FrameSource
	Temps            TemperatureLookup
	Detector         detection.Detector
	Params           detection.Params
	Render           render.Config
	Stride           int
	Workers          int
	ProgressInterval time.Duration
	Logger           logrus.FieldLogger

	now func() time.Time
}

// SampleIndices returns 0, stride, 2*stride, ... below count, with stride
// clamped to [MinStride, MaxStride].
func SampleIndices(count, stride int) []int {
	if stride < MinStride {
		stride = MinStride
	}
	if stride > MaxStride {
		stride = MaxStride
	}
	if count <= 0 {
		return []int{}
	}
	out := make([]int, 0, (count+stride-1)/stride)
	for i := 0; i < count; i += stride {
		out = append(out, i)
	}
	return out
}

// RunBatch detects marks in every sampled frame.
//
// Frames are processed concurrently; each worker reads its frame, runs the
// detector and reads the temperature at the reference point. The first
// failure cancels the remaining work and is returned wrapped in
// ErrFrameFailed. Cancelling ctx stops frames that have not started yet.
//
// Parameters:
//   - ctx: Cancels the batch.
//   - progress: Optional. Called from the calling goroutine only, at most once
//     per ProgressInterval, and always once more when the last frame is done.
//
// Returns:
//   - []tracking.FrameDetections: One entry per sampled frame, sorted by
//     timestamp (ties by frame index). Timestamps are seconds since the
//     source's StartTimestamp.
//   - error: ErrFrameFailed or the context error.
func (s *Sampler) RunBatch(ctx context.Context, progress ProgressFunc) ([]tracking.FrameDetections, error) {
	if s.Source == nil {
		return nil, fmt.Errorf("%w: no frame source", ErrFrameFailed)
	}
	log := s.logger()
	det := s.Detector
	if det == nil {
		det = detection.PureDetector{}
	}
	workers := s.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	interval := s.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	now := s.now
	if now == nil {
		now = time.Now
	}

	indices := SampleIndices(s.Source.FrameCount(), s.Stride)
	total := len(indices)
	log.WithFields(logrus.Fields{
		"frames":  total,
		"stride":  s.Stride,
		"workers": workers,
	}).Info("batch sampling started")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	results := make(chan tracking.FrameDetections, total)
	start := s.Source.StartTimestamp()

	waitErr := make(chan error, 1)
	go func() {
		for _, idx := range indices {
			idx := idx // per-iteration copy (go 1.21 loop semantics)
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				r, err := s.processFrame(gctx, det, idx, start)
				if err != nil {
					log.WithField("frame_index", idx).WithError(err).Warn("frame failed")
					return err
				}
				results <- r
				return nil
			})
		}
		waitErr <- g.Wait()
		close(results)
	}()

	out := make([]tracking.FrameDetections, 0, total)
	last := now()
	for r := range results {
		out = append(out, r)
		if progress == nil {
			continue
		}
		if t := now(); len(out) == total || t.Sub(last) >= interval {
			last = t
			progress(len(out), total)
		}
	}

	err := <-waitErr
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Index < out[j].Index
	})
	log.WithField("frames", len(out)).Info("batch sampling finished")
	return out, nil
}

func (s *Sampler) processFrame(ctx context.Context, det detection.Detector, idx int, start float64) (tracking.FrameDetections, error) {
	f, err := s.Source.ReadFrame(ctx, idx, s.Render)
	if err != nil {
		return tracking.FrameDetections{}, fmt.Errorf("%w: index %d: failed to read: %w", ErrFrameFailed, idx, err)
	}
	marks, err := det.Detect(f, s.Params)
	if err != nil {
		return tracking.FrameDetections{}, fmt.Errorf("%w: index %d: failed to detect: %w", ErrFrameFailed, idx, err)
	}
	if s.Temps == nil {
		return tracking.FrameDetections{}, fmt.Errorf("%w: index %d: no temperature lookup", ErrFrameFailed, idx)
	}
	temp, ok := s.Temps.TempAt(f, s.Params.ReferenceX, s.Params.ReferenceY)
	if !ok {
		return tracking.FrameDetections{}, fmt.Errorf("%w: index %d: no temperature at reference point (%d,%d)",
			ErrFrameFailed, idx, s.Params.ReferenceX, s.Params.ReferenceY)
	}
	return tracking.FrameDetections{
		Index:     idx,
		Timestamp: f.Timestamp - start,
		BaseTempC: temp,
		Marks:     marks,
	}, nil
}

func (s *Sampler) logger() logrus.FieldLogger {
	if s.Logger != nil {
		return s.Logger
	}
	return logging.Discard()
}
