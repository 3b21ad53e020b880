package detection

// Mode selects how the foreground mask is built.
type Mode string

const (
	// ModeReference thresholds brightness against the reference pixel.
	ModeReference Mode = "reference"
	// ModeColor matches hue and saturation against a target color.
	ModeColor Mode = "color"
)

// Limits for the tunable parameters.
const (
	MinTolerance = 1
	MaxTolerance = 100
	MinAreaLimit = 10
	MaxAreaLimit = 5000
)

// RGB is an 8-bit target color for color mode.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Params controls a single detection pass.
type Params struct {
	Mode Mode `json:"mode"`

	// ReferenceX and ReferenceY locate the pixel whose brightness is the
	// threshold baseline. In color mode the pixel also supplies the target
	// color unless TargetColor is set.
	ReferenceX int `json:"reference_x"`
	ReferenceY int `json:"reference_y"`

	// TargetColor overrides the reference pixel color in color mode.
	TargetColor *RGB `json:"target_color,omitempty"`

	// Tolerance is the brightness margin in reference mode and the hue and
	// saturation half-width in color mode.
	Tolerance int `json:"tolerance"`

	// MinArea and MaxArea bound the contour area in square pixels.
	// MaxArea of zero means no upper bound.
	MinArea float64 `json:"min_area"`
	MaxArea float64 `json:"max_area"`

	// MinCircularity rejects contours with 4*pi*area/perimeter^2 below it.
	MinCircularity float64 `json:"min_circularity"`

	// Morphology enables opening and closing of the mask in reference mode.
	// Color mode always cleans the mask.
	Morphology bool `json:"morphology"`
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		Mode:           ModeReference,
		Tolerance:      30,
		MinArea:        200,
		MinCircularity: 0.5,
	}
}

// WithReference returns a copy with the reference point set.
func (p Params) WithReference(x, y int) Params {
	p.ReferenceX = x
	p.ReferenceY = y
	return p
}

// WithTolerance returns a copy with the tolerance set.
func (p Params) WithTolerance(tol int) Params {
	p.Tolerance = tol
	return p
}

// WithArea returns a copy with the area bounds set.
func (p Params) WithArea(minArea, maxArea float64) Params {
	p.MinArea = minArea
	p.MaxArea = maxArea
	return p
}

// WithCircularity returns a copy with the circularity threshold set.
func (p Params) WithCircularity(c float64) Params {
	p.MinCircularity = c
	return p
}

// WithColor switches to color mode with an explicit target color.
func (p Params) WithColor(c RGB) Params {
	p.Mode = ModeColor
	p.TargetColor = &c
	return p
}

// Clamp returns a copy with every field forced into its documented range.
//
//   - Tolerance: 1-100
//   - MinArea: 10-5000
//   - MaxArea: 0 (unbounded) or 10-5000; a maximum below the minimum is
//     treated as unbounded
//   - MinCircularity: 0-1
//   - Mode: unknown values fall back to ModeReference
func (p Params) Clamp() Params {
	p.Tolerance = clampInt(p.Tolerance, MinTolerance, MaxTolerance)
	p.MinArea = clampFloat(p.MinArea, MinAreaLimit, MaxAreaLimit)
	if p.MaxArea > 0 {
		p.MaxArea = clampFloat(p.MaxArea, MinAreaLimit, MaxAreaLimit)
		if p.MaxArea < p.MinArea {
			p.MaxArea = 0
		}
	} else {
		p.MaxArea = 0
	}
	p.MinCircularity = clampFloat(p.MinCircularity, 0, 1)
	if p.Mode != ModeColor {
		p.Mode = ModeReference
	}
	return p
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
