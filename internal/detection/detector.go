package detection

import (
	"errors"
	"fmt"
	"math"

	"github.com/ironsheep/thermal-dots-mcp/internal/imaging"
)

var (
	// ErrEmptyFrame is returned for frames without pixels or with a buffer
	// that does not match their size.
	ErrEmptyFrame = errors.New("empty frame")

	// ErrReferenceOutOfBounds is returned when the reference point lies
	// outside the frame.
	ErrReferenceOutOfBounds = errors.New("reference point outside frame")
)

// DetectedMark is one dot found in a frame.
//
// AxisA and AxisB are semi-axes with AxisA >= AxisB >= 0. Angle is the
// rotation of the AxisA direction in degrees, measured from the +X axis
// towards +Y (clockwise on screen).
type DetectedMark struct {
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	AxisA   float64 `json:"axis_a"`
	AxisB   float64 `json:"axis_b"`
	Angle   float64 `json:"angle"`
}

// Center returns the mark's center point.
func (m DetectedMark) Center() (float64, float64) {
	return m.CenterX, m.CenterY
}

// Detector finds marks in a frame.
type Detector interface {
	Detect(f *imaging.Frame, p Params) ([]DetectedMark, error)
}

// PureDetector is the default Go implementation of Detector.
type PureDetector struct{}

// Detect implements Detector.
func (PureDetector) Detect(f *imaging.Frame, p Params) ([]DetectedMark, error) {
	return Detect(f, p)
}

// Detect finds dot-like blobs in a frame.
//
// Detect is a pure function: the same frame and parameters always produce the
// same marks in the same order (raster order of each blob's top-left pixel).
// Parameters are clamped to their documented ranges before use.
//
// Parameters:
//   - f: The rendered frame to analyze.
//   - p: Detection parameters; see Params.
//
// Returns:
//   - []DetectedMark: Marks that passed the area and circularity filters.
//   - error: ErrEmptyFrame or ErrReferenceOutOfBounds.
//
// # Algorithm
//
//  1. Color conversion: quantize the frame to 8 bits and convert to HSV
//  2. Mask: in reference mode, V >= V_ref + tolerance (capped at 255); in
//     color mode, hue within tolerance of the target on the hue circle and
//     saturation within tolerance
//  3. Cleanup: opening then closing with a radius 2 element (always in color
//     mode, in reference mode only when Params.Morphology is set)
//  4. Contours: outer border of each 8-connected blob, compressed to the
//     points where the border changes direction
//  5. Filtering: reject area < MinArea, area > MaxArea (when set), zero
//     perimeter, and circularity 4π·area/perimeter² < MinCircularity
//  6. Geometry: least-squares ellipse for contours of 5 or more points,
//     otherwise (or when the fit fails) the minimum enclosing circle
func Detect(f *imaging.Frame, p Params) ([]DetectedMark, error) {
	if f == nil || f.Validate() != nil {
		return nil, ErrEmptyFrame
	}
	p = p.Clamp()
	if !f.In(p.ReferenceX, p.ReferenceY) {
		return nil, fmt.Errorf("%w: (%d,%d) in %dx%d", ErrReferenceOutOfBounds, p.ReferenceX, p.ReferenceY, f.Width, f.Height)
	}

	planes := imaging.ToHSVPlanes(f)
	m := buildMask(f, planes, p)

	marks := make([]DetectedMark, 0)
	for _, c := range findContours(m) {
		if mark, ok := measureContour(c, p); ok {
			marks = append(marks, mark)
		}
	}
	return marks, nil
}

func buildMask(f *imaging.Frame, planes *imaging.HSVPlanes, p Params) *mask {
	refIndex := p.ReferenceY*f.Width + p.ReferenceX

	if p.Mode == ModeColor {
		target := imaging.HSVColor{H: planes.H[refIndex], S: planes.S[refIndex], V: planes.V[refIndex]}
		if p.TargetColor != nil {
			target = imaging.RGBToHSV(p.TargetColor.R, p.TargetColor.G, p.TargetColor.B)
		}
		return colorMask(planes, target, p.Tolerance).clean()
	}

	m := referenceMask(planes, planes.V[refIndex], p.Tolerance)
	if p.Morphology {
		m = m.clean()
	}
	return m
}

// measureContour applies the geometric filters and fits the mark.
func measureContour(c []Point, p Params) (DetectedMark, bool) {
	area := contourArea(c)
	if area < p.MinArea {
		return DetectedMark{}, false
	}
	if p.MaxArea > 0 && area > p.MaxArea {
		return DetectedMark{}, false
	}
	perimeter := contourPerimeter(c)
	if perimeter == 0 {
		return DetectedMark{}, false
	}
	if circularity(area, perimeter) < p.MinCircularity {
		return DetectedMark{}, false
	}

	if len(c) >= 5 {
		if mark, ok := fitEllipse(c); ok {
			return mark, true
		}
	}
	cx, cy, r := minEnclosingCircle(c)
	return DetectedMark{CenterX: cx, CenterY: cy, AxisA: r, AxisB: r}, true
}

// circularity is 1 for a perfect circle and approaches 0 for elongated shapes.
func circularity(area, perimeter float64) float64 {
	return 4 * math.Pi * area / (perimeter * perimeter)
}
