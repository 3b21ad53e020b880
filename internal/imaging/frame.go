package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// ErrCorruptBuffer is returned when a frame's pixel buffer does not match its
// declared dimensions.
var ErrCorruptBuffer = errors.New("corrupt frame buffer")

// Frame is one rendered thermal frame.
//
// Pix holds RGBA samples normalized to [0,1], row-major, four values per pixel.
// Frames are immutable once returned by a source; callers may share them
// between goroutines for reading.
//
// Raw optionally carries the sensor counts the frame was rendered from, so a
// temperature lookup can read the original measurement instead of inverting
// the colormap. RawScale is the ratio between the frame size and the raw size
// (the renderer upscales, so a 512x384 frame over a 256x192 sensor has 2).
type Frame struct {
	Timestamp float64 `json:"timestamp"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Pix       []float32
	Raw       *image.Gray16
	RawScale  int
}

// NewFrame wraps an RGBA float buffer after checking its length.
func NewFrame(timestamp float64, width, height int, pix []float32) (*Frame, error) {
	f := &Frame{Timestamp: timestamp, Width: width, Height: height, Pix: pix}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate reports whether the frame has usable dimensions and a buffer of
// the right size.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrCorruptBuffer)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: invalid dimensions %dx%d", ErrCorruptBuffer, f.Width, f.Height)
	}
	if len(f.Pix) != 4*f.Width*f.Height {
		return fmt.Errorf("%w: got %d samples, want %d", ErrCorruptBuffer, len(f.Pix), 4*f.Width*f.Height)
	}
	return nil
}

// Bounds returns the frame rectangle anchored at the origin.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// In reports whether (x, y) lies inside the frame.
func (f *Frame) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < f.Width && y < f.Height
}

// RGB8 returns the 8-bit color at (x, y). Values are clipped to [0,255] and
// rounded, so a frame built from an 8-bit image converts back exactly.
// No bounds checking is performed; caller must ensure coordinates are valid.
func (f *Frame) RGB8(x, y int) (r, g, b uint8) {
	i := 4 * (y*f.Width + x)
	return quantize(f.Pix[i]), quantize(f.Pix[i+1]), quantize(f.Pix[i+2])
}

// ToNRGBA converts the frame into an 8-bit image for encoding or drawing.
func (f *Frame) ToNRGBA() *image.NRGBA {
	img := image.NewNRGBA(f.Bounds())
	for i := 0; i < f.Width*f.Height; i++ {
		img.Pix[4*i] = quantize(f.Pix[4*i])
		img.Pix[4*i+1] = quantize(f.Pix[4*i+1])
		img.Pix[4*i+2] = quantize(f.Pix[4*i+2])
		img.Pix[4*i+3] = quantize(f.Pix[4*i+3])
	}
	return img
}

// FrameFromImage converts any decoded image into a frame with the given
// timestamp. The image origin is moved to (0, 0).
func FrameFromImage(img image.Image, timestamp float64) *Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]float32, 4*w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := 4 * (y*w + x)
			pix[i] = float32(c.R) / 255
			pix[i+1] = float32(c.G) / 255
			pix[i+2] = float32(c.B) / 255
			pix[i+3] = float32(c.A) / 255
		}
	}
	return &Frame{Timestamp: timestamp, Width: w, Height: h, Pix: pix}
}

func quantize(v float32) uint8 {
	s := v * 255
	if s <= 0 {
		return 0
	}
	if s >= 255 {
		return 255
	}
	return uint8(s + 0.5)
}
