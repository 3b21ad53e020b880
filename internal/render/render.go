// Package render turns raw thermal sensor counts into displayable frames and
// maps frame pixels back to temperatures.
//
// Raw counts are Kelvin multiplied by 64, the native unit of the 256x192
// sensor the recordings come from. Rendering uses a fixed temperature window
// (no automatic range), so the same surface temperature always maps to the
// same color across a recording. That property is what makes brightness
// thresholds in the detector comparable between frames.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"

	frames "github.com/ironsheep/thermal-dots-mcp/internal/imaging"
)

// Sensor geometry of the recordings.
const (
	SensorWidth  = 256
	SensorHeight = 192
)

const (
	kelvinOffset = 273.15
	rawPerKelvin = 64

	ddeStrength = 0.5
	ddeRadius   = 1.0
)

// ErrEmptyRaw is returned when there is no raw image to render.
var ErrEmptyRaw = errors.New("empty raw image")

// Config controls how raw counts become a frame.
type Config struct {
	TempMin  float64  `json:"temp_min"`
	TempMax  float64  `json:"temp_max"`
	Colormap Colormap `json:"colormap"`

	// Scale is the integer upscaling factor applied after coloring.
	Scale int `json:"scale"`

	// Emissivity and ReflectedC correct temperature readings for surfaces
	// that are not black bodies. An emissivity of 0 or 1 disables the
	// correction. Rendering itself is not affected.
	Emissivity float64 `json:"emissivity"`
	ReflectedC float64 `json:"reflected_c"`
}

// DefaultConfig returns the rendering used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		TempMin:    0,
		TempMax:    35,
		Colormap:   WhiteHot,
		Scale:      2,
		Emissivity: 1,
		ReflectedC: 20,
	}
}

// Key identifies the rendering for cache lookups. Emissivity is excluded
// because it does not change pixels.
func (c Config) Key() string {
	return fmt.Sprintf("%g:%g:%s:%d", c.TempMin, c.TempMax, c.colormap(), c.scale())
}

func (c Config) scale() int {
	if c.Scale < 1 {
		return 1
	}
	return c.Scale
}

func (c Config) colormap() Colormap {
	if _, err := ParseColormap(string(c.Colormap)); err != nil {
		return WhiteHot
	}
	return c.Colormap
}

// RawToCelsius converts a raw sensor count to degrees Celsius.
func RawToCelsius(v uint16) float64 {
	return float64(v)/rawPerKelvin - kelvinOffset
}

// CelsiusToRaw converts degrees Celsius to the nearest raw sensor count,
// saturating at the uint16 range.
func CelsiusToRaw(c float64) uint16 {
	v := math.Round((c + kelvinOffset) * rawPerKelvin)
	if v <= 0 {
		return 0
	}
	if v >= math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}

var (
	lutMu    sync.Mutex
	lutCache = map[Colormap]*lut{}
)

func lutFor(cm Colormap) *lut {
	lutMu.Lock()
	defer lutMu.Unlock()
	t, ok := lutCache[cm]
	if !ok {
		built := buildLUT(cm)
		t = &built
		lutCache[cm] = t
	}
	return t
}

// Render converts one raw thermal image into a frame.
//
// The returned frame keeps a reference to raw so temperatures can be read
// back exactly (see Lookup).
//
// Parameters:
//   - raw: Sensor counts (Kelvin x 64), any size.
//   - timestamp: Stored on the frame unchanged.
//   - cfg: Temperature window, palette and upscaling. Unknown palettes fall
//     back to white hot; an empty window (TempMax <= TempMin) is widened to
//     one degree.
//
// # Algorithm
//
//  1. Gain: counts in [TempMin, TempMax] map linearly onto 0..255, values
//     outside are clipped (truncating, like an 8-bit cast)
//  2. Detail enhancement: unsharp mask, out = in + 0.5 * (in - gaussian(in))
//  3. Palette: 256-entry lookup table
//  4. Upscale by Scale with a linear filter
func Render(raw *image.Gray16, timestamp float64, cfg Config) (*frames.Frame, error) {
	if raw == nil || raw.Bounds().Empty() {
		return nil, ErrEmptyRaw
	}
	gray := agc(raw, cfg.TempMin, cfg.TempMax)
	gray = dde(gray)

	table := lutFor(cfg.colormap())
	b := gray.Bounds()
	colored := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := table[gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y]
			i := colored.PixOffset(x, y)
			colored.Pix[i] = c[0]
			colored.Pix[i+1] = c[1]
			colored.Pix[i+2] = c[2]
			colored.Pix[i+3] = 255
		}
	}

	var out image.Image = colored
	if s := cfg.scale(); s > 1 {
		out = imaging.Resize(colored, b.Dx()*s, b.Dy()*s, imaging.Linear)
	}

	f := frames.FrameFromImage(out, timestamp)
	f.Raw = raw
	f.RawScale = cfg.scale()
	return f, nil
}

// agc maps raw counts in the fixed temperature window onto 8 bits.
func agc(raw *image.Gray16, tmin, tmax float64) *image.Gray {
	if tmax <= tmin {
		tmax = tmin + 1
	}
	lo := (tmin + kelvinOffset) * rawPerKelvin
	hi := (tmax + kelvinOffset) * rawPerKelvin

	b := raw.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			n := (float64(raw.Gray16At(b.Min.X+x, b.Min.Y+y).Y) - lo) / (hi - lo)
			n = math.Max(0, math.Min(1, n))
			out.Pix[y*out.Stride+x] = uint8(n * 255)
		}
	}
	return out
}

// dde sharpens edges with an unsharp mask so small dots stand out from a
// smooth background.
func dde(img *image.Gray) *image.Gray {
	blurred := blur.Gaussian(img, ddeRadius)
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := float64(img.GrayAt(x, y).Y)
			bl := float64(blurred.RGBAAt(x, y).R)
			e := v + ddeStrength*(v-bl)
			out.SetGray(x, y, grayOf(e))
		}
	}
	return out
}

func grayOf(v float64) color.Gray {
	if v <= 0 {
		return color.Gray{}
	}
	if v >= 255 {
		return color.Gray{Y: 255}
	}
	return color.Gray{Y: uint8(v)}
}
