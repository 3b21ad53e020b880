package render

import (
	"math"

	frames "github.com/ironsheep/thermal-dots-mcp/internal/imaging"
)

// Lookup reads temperatures from rendered frames.
type Lookup struct {
	Config Config
}

// NewLookup returns a lookup for frames rendered with cfg.
func NewLookup(cfg Config) *Lookup {
	return &Lookup{Config: cfg}
}

// TempAt returns the temperature in degrees Celsius under frame pixel (x, y).
//
// Frames carrying raw counts are read exactly: the pixel is mapped back onto
// the sensor grid by the frame's RawScale. Frames without raw data (decoded
// images) are inverted through the gain window, which is only meaningful for
// the grey palettes; any other palette reports no value.
//
// Returns false when (x, y) is outside the frame or no temperature can be
// derived.
func (l *Lookup) TempAt(f *frames.Frame, x, y int) (float64, bool) {
	if f == nil || !f.In(x, y) {
		return 0, false
	}
	if f.Raw != nil {
		scale := f.RawScale
		if scale < 1 {
			scale = 1
		}
		rb := f.Raw.Bounds()
		rx, ry := rb.Min.X+x/scale, rb.Min.Y+y/scale
		if rx >= rb.Max.X || ry >= rb.Max.Y {
			return 0, false
		}
		return l.correct(RawToCelsius(f.Raw.Gray16At(rx, ry).Y)), true
	}

	r, g, b := f.RGB8(x, y)
	v := math.Max(float64(r), math.Max(float64(g), float64(b)))
	tmin, tmax := l.Config.TempMin, l.Config.TempMax
	if tmax <= tmin {
		tmax = tmin + 1
	}
	switch l.Config.colormap() {
	case WhiteHot:
	case BlackHot:
		v = 255 - v
	default:
		return 0, false
	}
	return l.correct(tmin + v/255*(tmax-tmin)), true
}

// correct applies the emissivity correction to an apparent temperature.
//
// The sensor sees emitted plus reflected radiation; with T in Kelvin,
// T_obj^4 = (T_app^4 - (1-e) * T_refl^4) / e.
func (l *Lookup) correct(c float64) float64 {
	e := l.Config.Emissivity
	if e <= 0 || e >= 1 {
		return c
	}
	app := math.Pow(c+kelvinOffset, 4)
	refl := math.Pow(l.Config.ReflectedC+kelvinOffset, 4)
	obj := (app - (1-e)*refl) / e
	if obj <= 0 {
		return -kelvinOffset
	}
	return math.Pow(obj, 0.25) - kelvinOffset
}
