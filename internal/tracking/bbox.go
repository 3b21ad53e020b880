package tracking

import (
	"math"

	"github.com/ironsheep/thermal-dots-mcp/internal/detection"
)

// BBox is an axis-aligned box in pixel coordinates with X1 <= X2, Y1 <= Y2.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Area returns the box area, or 0 for inverted boxes.
func (b BBox) Area() float64 {
	w, h := b.X2-b.X1, b.Y2-b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// BBoxOf returns the axis-aligned extent of a mark's rotated ellipse.
func BBoxOf(m detection.DetectedMark) BBox {
	rad := m.Angle * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	halfW := math.Sqrt(m.AxisA*m.AxisA*cos*cos + m.AxisB*m.AxisB*sin*sin)
	halfH := math.Sqrt(m.AxisA*m.AxisA*sin*sin + m.AxisB*m.AxisB*cos*cos)
	return BBox{
		X1: m.CenterX - halfW,
		Y1: m.CenterY - halfH,
		X2: m.CenterX + halfW,
		Y2: m.CenterY + halfH,
	}
}

// OverlapRatio returns the intersection area divided by the smaller box's
// area. It is 1 when one box contains the other and 0 when the boxes are
// disjoint or either box has no area.
func OverlapRatio(a, b BBox) float64 {
	areaA, areaB := a.Area(), b.Area()
	if areaA <= 0 || areaB <= 0 {
		return 0
	}
	inter := BBox{
		X1: math.Max(a.X1, b.X1),
		Y1: math.Max(a.Y1, b.Y1),
		X2: math.Min(a.X2, b.X2),
		Y2: math.Min(a.Y2, b.Y2),
	}.Area()
	if inter <= 0 {
		return 0
	}
	return inter / math.Min(areaA, areaB)
}
