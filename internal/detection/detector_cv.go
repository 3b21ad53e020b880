//go:build gocv
// +build gocv

package detection

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/ironsheep/thermal-dots-mcp/internal/imaging"
)

// CVDetector runs the same pipeline as Detect on OpenCV.
//
// Results agree with the pure detector up to OpenCV's integer rounding of
// fitted ellipse centers and axes.
type CVDetector struct{}

// NewCVDetector returns the OpenCV-backed detector.
func NewCVDetector() (*CVDetector, error) {
	return &CVDetector{}, nil
}

// Detect implements Detector.
func (d *CVDetector) Detect(f *imaging.Frame, p Params) ([]DetectedMark, error) {
	if f == nil || f.Validate() != nil {
		return nil, ErrEmptyFrame
	}
	p = p.Clamp()
	if !f.In(p.ReferenceX, p.ReferenceY) {
		return nil, fmt.Errorf("%w: (%d,%d) in %dx%d", ErrReferenceOutOfBounds, p.ReferenceX, p.ReferenceY, f.Width, f.Height)
	}

	rgb := make([]byte, 0, 3*f.Width*f.Height)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b := f.RGB8(x, y)
			rgb = append(rgb, r, g, b)
		}
	}
	src, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, rgb)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap frame: %w", err)
	}
	defer src.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(src, &hsv, gocv.ColorRGBToHSV)

	mask := gocv.NewMat()
	defer mask.Close()

	ref := imaging.RGBToHSV(f.RGB8(p.ReferenceX, p.ReferenceY))
	clean := p.Morphology
	if p.Mode == ModeColor {
		target := ref
		if p.TargetColor != nil {
			target = imaging.RGBToHSV(p.TargetColor.R, p.TargetColor.G, p.TargetColor.B)
		}
		cvColorMask(hsv, target, p.Tolerance, &mask)
		clean = true
	} else {
		channels := gocv.Split(hsv)
		defer func() {
			for _, c := range channels {
				c.Close()
			}
		}()
		threshold := math.Min(255, float64(ref.V)+float64(p.Tolerance))
		gocv.Threshold(channels[2], &mask, float32(threshold-1), 255, gocv.ThresholdBinary)
	}

	if clean {
		kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(2*morphRadius+1, 2*morphRadius+1))
		defer kernel.Close()
		gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, kernel)
		gocv.MorphologyEx(mask, &mask, gocv.MorphClose, kernel)
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	marks := make([]DetectedMark, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		area := gocv.ContourArea(c)
		if area < p.MinArea || (p.MaxArea > 0 && area > p.MaxArea) {
			continue
		}
		perimeter := gocv.ArcLength(c, true)
		if perimeter == 0 || circularity(area, perimeter) < p.MinCircularity {
			continue
		}

		if c.Size() >= 5 {
			rr := gocv.FitEllipse(c)
			a, b := float64(rr.Width)/2, float64(rr.Height)/2
			angle := rr.Angle
			if b > a {
				a, b = b, a
				angle += 90
			}
			marks = append(marks, DetectedMark{
				CenterX: float64(rr.Center.X),
				CenterY: float64(rr.Center.Y),
				AxisA:   a,
				AxisB:   b,
				Angle:   math.Mod(angle+180, 180),
			})
			continue
		}
		x, y, r := gocv.MinEnclosingCircle(c)
		marks = append(marks, DetectedMark{CenterX: float64(x), CenterY: float64(y), AxisA: float64(r), AxisB: float64(r)})
	}
	return marks, nil
}

func cvColorMask(hsv gocv.Mat, target imaging.HSVColor, tol int, dst *gocv.Mat) {
	sLo := math.Max(0, float64(target.S)-float64(tol))
	sHi := math.Min(255, float64(target.S)+float64(tol))

	for i, r := range hueRanges(int(target.H), tol) {
		lower := gocv.NewScalar(float64(r[0]), sLo, 0, 0)
		upper := gocv.NewScalar(float64(r[1]), sHi, 255, 0)
		if i == 0 {
			gocv.InRangeWithScalar(hsv, lower, upper, dst)
			continue
		}
		part := gocv.NewMat()
		gocv.InRangeWithScalar(hsv, lower, upper, &part)
		gocv.BitwiseOr(*dst, part, dst)
		part.Close()
	}
}
