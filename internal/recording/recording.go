// Package recording reads and writes thermal recordings and exposes them, or a
// directory of still images, as frame sources.
//
// A recording is a flat sequence of fixed-size records, one per frame:
//
//	offset 0   int64 little-endian, capture time in Unix milliseconds
//	offset 8   256*192 uint16 little-endian raw counts, row-major
//
// There is no header. A trailing partial record, left behind when capture
// stops mid-write, is ignored.
package recording

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"sync"

	"github.com/ironsheep/thermal-dots-mcp/internal/imaging"
	"github.com/ironsheep/thermal-dots-mcp/internal/render"
)

// FrameSize is the size in bytes of one frame record.
const FrameSize = 8 + render.SensorWidth*render.SensorHeight*2

var (
	// ErrTruncated is returned when a frame record cannot be read in full.
	ErrTruncated = errors.New("truncated recording")

	// ErrIndexOutOfRange is returned for frame indices outside the recording.
	ErrIndexOutOfRange = errors.New("frame index out of range")
)

// Reader gives random access to the frames of a recording file.
//
// Reader is safe for concurrent use: frames are read with ReadAt and share no
// cursor.
type Reader struct {
	path  string
	file  *os.File
	count int
	start float64
}

// Open opens a recording for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat recording: %w", err)
	}
	r := &Reader{path: path, file: f, count: int(info.Size() / FrameSize)}
	if r.count > 0 {
		ts, err := r.timestamp(0)
		if err != nil {
			f.Close()
			return nil, err
		}
		r.start = ts
	}
	return r, nil
}

// Path returns the file the reader was opened from.
func (r *Reader) Path() string { return r.path }

// FrameCount returns the number of complete frames.
func (r *Reader) FrameCount() int { return r.count }

// StartTimestamp returns the capture time of the first frame in Unix seconds,
// or 0 for an empty recording.
func (r *Reader) StartTimestamp() float64 { return r.start }

// EndTimestamp returns the capture time of the last frame in Unix seconds.
func (r *Reader) EndTimestamp() (float64, error) {
	if r.count == 0 {
		return 0, nil
	}
	return r.timestamp(r.count - 1)
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

func (r *Reader) timestamp(index int) (float64, error) {
	var buf [8]byte
	if _, err := r.file.ReadAt(buf[:], int64(index)*FrameSize); err != nil {
		return 0, fmt.Errorf("%w: frame %d timestamp: %v", ErrTruncated, index, err)
	}
	return float64(int64(binary.LittleEndian.Uint64(buf[:]))) / 1000, nil
}

// ReadRaw returns the capture time (Unix seconds) and raw counts of a frame.
func (r *Reader) ReadRaw(index int) (float64, *image.Gray16, error) {
	if index < 0 || index >= r.count {
		return 0, nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, r.count)
	}
	buf := make([]byte, FrameSize)
	n, err := r.file.ReadAt(buf, int64(index)*FrameSize)
	if n < FrameSize {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, fmt.Errorf("%w: frame %d: %v", ErrTruncated, index, err)
	}

	ts := float64(int64(binary.LittleEndian.Uint64(buf[:8]))) / 1000
	raw := image.NewGray16(image.Rect(0, 0, render.SensorWidth, render.SensorHeight))
	data := buf[8:]
	for i := 0; i < render.SensorWidth*render.SensorHeight; i++ {
		v := binary.LittleEndian.Uint16(data[2*i:])
		// image.Gray16 stores samples big-endian.
		raw.Pix[2*i] = uint8(v >> 8)
		raw.Pix[2*i+1] = uint8(v)
	}
	return ts, raw, nil
}

// ReadFrame reads and renders one frame.
func (r *Reader) ReadFrame(ctx context.Context, index int, cfg render.Config) (*imaging.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ts, raw, err := r.ReadRaw(index)
	if err != nil {
		return nil, err
	}
	f, err := render.Render(raw, ts, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to render frame %d: %w", index, err)
	}
	return f, nil
}

// Writer appends frames to a recording file.
type Writer struct {
	mu    sync.Mutex
	file  *os.File
	count int
}

// Create creates or truncates a recording file.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	return &Writer{file: f}, nil
}

// Append writes one frame captured at unixMillis. raw must be exactly
// 256x192.
func (w *Writer) Append(unixMillis int64, raw *image.Gray16) error {
	b := raw.Bounds()
	if b.Dx() != render.SensorWidth || b.Dy() != render.SensorHeight {
		return fmt.Errorf("frame is %dx%d, want %dx%d", b.Dx(), b.Dy(), render.SensorWidth, render.SensorHeight)
	}
	buf := make([]byte, FrameSize)
	binary.LittleEndian.PutUint64(buf[:8], uint64(unixMillis))
	i := 8
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			binary.LittleEndian.PutUint16(buf[i:], raw.Gray16At(x, y).Y)
			i += 2
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of frames written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to sync recording: %w", err)
	}
	return w.file.Close()
}
