package recording

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	disimaging "github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/thermal-dots-mcp/internal/render"
)

func sensorFrame(celsius float64) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, render.SensorWidth, render.SensorHeight))
	v := render.CelsiusToRaw(celsius)
	for i := 0; i < len(img.Pix); i += 2 {
		img.Pix[i] = uint8(v >> 8)
		img.Pix[i+1] = uint8(v)
	}
	return img
}

func writeRecording(t *testing.T, temps ...float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.bin")
	w, err := Create(path)
	require.NoError(t, err)
	for i, c := range temps {
		require.NoError(t, w.Append(1_700_000_000_000+int64(i)*250, sensorFrame(c)))
	}
	assert.Equal(t, len(temps), w.Count())
	require.NoError(t, w.Close())
	return path
}

func TestRecording_RoundTrip(t *testing.T) {
	path := writeRecording(t, 10, 20, 30)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 3, r.FrameCount())
	assert.Equal(t, 1_700_000_000.0, r.StartTimestamp())
	end, err := r.EndTimestamp()
	require.NoError(t, err)
	assert.InDelta(t, 1_700_000_000.5, end, 1e-6)

	ts, raw, err := r.ReadRaw(1)
	require.NoError(t, err)
	assert.InDelta(t, 1_700_000_000.25, ts, 1e-6)
	assert.Equal(t, render.CelsiusToRaw(20), raw.Gray16At(100, 100).Y)
	assert.Equal(t, render.CelsiusToRaw(20), raw.Gray16At(255, 191).Y)
}

func TestRecording_PixelOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.bin")
	raw := sensorFrame(0)
	raw.SetGray16(5, 7, color.Gray16{Y: 0x1234})

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(0, raw))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	off := 8 + 2*(7*render.SensorWidth+5)
	assert.Equal(t, byte(0x34), data[off], "low byte first")
	assert.Equal(t, byte(0x12), data[off+1])

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	_, got, err := r.ReadRaw(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), got.Gray16At(5, 7).Y)
}

func TestRecording_PartialTrailingFrameIgnored(t *testing.T) {
	path := writeRecording(t, 10, 20)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write(make([]byte, FrameSize/2))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 2, r.FrameCount())
}

func TestRecording_IndexOutOfRange(t *testing.T) {
	r, err := Open(writeRecording(t, 10))
	require.NoError(t, err)
	defer r.Close()

	_, _, err = r.ReadRaw(1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, _, err = r.ReadRaw(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestRecording_ReadFrameRenders(t *testing.T) {
	r, err := Open(writeRecording(t, 35))
	require.NoError(t, err)
	defer r.Close()

	f, err := r.ReadFrame(context.Background(), 0, render.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 2*render.SensorWidth, f.Width)
	assert.Equal(t, 2*render.SensorHeight, f.Height)
	assert.NotNil(t, f.Raw)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.ReadFrame(ctx, 0, render.DefaultConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecording_Empty(t *testing.T) {
	r, err := Open(writeRecording(t))
	require.NoError(t, err)
	defer r.Close()
	assert.Zero(t, r.FrameCount())
	assert.Zero(t, r.StartTimestamp())
}

func TestWriter_RejectsWrongSize(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "bad.bin"))
	require.NoError(t, err)
	defer w.Close()
	err = w.Append(0, image.NewGray16(image.Rect(0, 0, 10, 10)))
	assert.Error(t, err)
	assert.Zero(t, w.Count())
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.png", "c.jpg"} {
		img := disimaging.New(4, 3, color.NRGBA{200, 10, 10, 255})
		require.NoError(t, disimaging.Save(img, filepath.Join(dir, name)))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	src, err := OpenDir(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, src.FrameCount())
	assert.Equal(t, 0.0, src.StartTimestamp())

	f, err := src.ReadFrame(context.Background(), 1, render.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 4, f.Width)
	assert.Equal(t, 3, f.Height)
	assert.Equal(t, 0.5, f.Timestamp)
	assert.Nil(t, f.Raw)
	assert.Equal(t, filepath.Join(dir, "b.png"), src.files[1])

	_, err = src.ReadFrame(context.Background(), 3, render.DefaultConfig())
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestOpenSource(t *testing.T) {
	dir := t.TempDir()
	src, err := OpenSource(dir)
	require.NoError(t, err)
	assert.IsType(t, &DirSource{}, src)
	require.NoError(t, src.Close())

	src, err = OpenSource(writeRecording(t, 1))
	require.NoError(t, err)
	assert.IsType(t, &Reader{}, src)
	require.NoError(t, src.Close())

	_, err = OpenSource(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
