package detection

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// fitEllipse fits an ellipse to contour points by direct least squares.
//
// Returns ok=false when the points do not determine an ellipse (fewer than 5
// points, collinear points, or a best-fit conic that is a hyperbola or
// parabola). Callers then fall back to the minimum enclosing circle.
//
// # Algorithm (Halir and Flusser)
//
//  1. Normalize: subtract the centroid and divide by the largest absolute
//     coordinate deviation, keeping the scatter matrices well conditioned
//  2. Split the design matrix into quadratic terms D1 = [x², xy, y²] and
//     linear terms D2 = [x, y, 1]; form S1 = D1ᵀD1, S2 = D1ᵀD2, S3 = D2ᵀD2
//  3. Eliminate the linear part: T = -S3⁻¹S2ᵀ, M = S1 + S2·T
//  4. Apply the inverse ellipse constraint matrix to M and take the real
//     eigenvector a1 with 4·a0·a2 - a1² > 0; the linear coefficients are T·a1
//  5. Convert the conic A..F to center, semi-axes and rotation, then undo
//     the normalization
//
// The angle is the direction of the major axis in degrees, in [0, 180).
func fitEllipse(pts []Point) (DetectedMark, bool) {
	n := len(pts)
	if n < 5 {
		return DetectedMark{}, false
	}

	var mx, my float64
	for _, p := range pts {
		mx += float64(p.X)
		my += float64(p.Y)
	}
	mx /= float64(n)
	my /= float64(n)

	scale := 0.0
	for _, p := range pts {
		scale = math.Max(scale, math.Abs(float64(p.X)-mx))
		scale = math.Max(scale, math.Abs(float64(p.Y)-my))
	}
	if scale == 0 {
		return DetectedMark{}, false
	}

	d1 := mat.NewDense(n, 3, nil)
	d2 := mat.NewDense(n, 3, nil)
	for i, p := range pts {
		x := (float64(p.X) - mx) / scale
		y := (float64(p.Y) - my) / scale
		d1.SetRow(i, []float64{x * x, x * y, y * y})
		d2.SetRow(i, []float64{x, y, 1})
	}

	var s1, s2, s3 mat.Dense
	s1.Mul(d1.T(), d1)
	s2.Mul(d1.T(), d2)
	s3.Mul(d2.T(), d2)

	var s3inv mat.Dense
	if err := s3inv.Inverse(&s3); err != nil {
		return DetectedMark{}, false
	}

	var t mat.Dense
	t.Mul(&s3inv, s2.T())
	t.Scale(-1, &t)

	var s2t, m mat.Dense
	s2t.Mul(&s2, &t)
	m.Add(&s1, &s2t)

	// Premultiply by the inverse of the constraint matrix [[0,0,2],[0,-1,0],[2,0,0]].
	reduced := mat.NewDense(3, 3, nil)
	for j := 0; j < 3; j++ {
		reduced.Set(0, j, m.At(2, j)/2)
		reduced.Set(1, j, -m.At(1, j))
		reduced.Set(2, j, m.At(0, j)/2)
	}

	var eig mat.Eigen
	if !eig.Factorize(reduced, mat.EigenRight) {
		return DetectedMark{}, false
	}
	values := eig.Values(nil)
	var vecs mat.CDense
	eig.VectorsTo(&vecs)

	var a1 []float64
	for j, v := range values {
		if math.Abs(imag(v)) > 1e-12*math.Max(1, math.Abs(real(v))) {
			continue
		}
		c0, c1, c2 := real(vecs.At(0, j)), real(vecs.At(1, j)), real(vecs.At(2, j))
		if 4*c0*c2-c1*c1 > 0 {
			a1 = []float64{c0, c1, c2}
			break
		}
	}
	if a1 == nil {
		return DetectedMark{}, false
	}

	a2 := mat.NewVecDense(3, nil)
	a2.MulVec(&t, mat.NewVecDense(3, a1))

	return conicToEllipse(a1[0], a1[1], a1[2], a2.AtVec(0), a2.AtVec(1), a2.AtVec(2), mx, my, scale)
}

// conicToEllipse converts A x² + B xy + C y² + D x + E y + F = 0 in
// normalized coordinates to a mark in pixel coordinates.
func conicToEllipse(a, b, c, d, e, f, mx, my, scale float64) (DetectedMark, bool) {
	// Eigenvectors have arbitrary sign; fix it so the quadratic part is
	// positive definite and the angle formula picks the major axis.
	if a+c < 0 {
		a, b, c, d, e, f = -a, -b, -c, -d, -e, -f
	}
	disc := b*b - 4*a*c
	if disc >= 0 {
		return DetectedMark{}, false
	}

	x0 := (2*c*d - b*e) / disc
	y0 := (2*a*e - b*d) / disc

	num := 2 * (a*e*e + c*d*d - b*d*e + disc*f)
	root := math.Sqrt((a-c)*(a-c) + b*b)
	s1 := math.Sqrt(math.Abs(num*((a+c)+root))) / math.Abs(disc)
	s2 := math.Sqrt(math.Abs(num*((a+c)-root))) / math.Abs(disc)

	angle := 0.5 * math.Atan2(-b, c-a) * 180 / math.Pi
	angle = math.Mod(angle+180, 180)

	semiA := math.Max(s1, s2) * scale
	semiB := math.Min(s1, s2) * scale
	mark := DetectedMark{
		CenterX: x0*scale + mx,
		CenterY: y0*scale + my,
		AxisA:   semiA,
		AxisB:   semiB,
		Angle:   angle,
	}
	for _, v := range []float64{mark.CenterX, mark.CenterY, mark.AxisA, mark.AxisB, mark.Angle} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return DetectedMark{}, false
		}
	}
	return mark, true
}

// minEnclosingCircle returns the smallest circle containing every point,
// using the incremental form of Welzl's algorithm.
func minEnclosingCircle(pts []Point) (cx, cy, r float64) {
	if len(pts) == 0 {
		return 0, 0, 0
	}
	type circle struct{ x, y, r float64 }
	const eps = 1e-7

	contains := func(c circle, p Point) bool {
		return math.Hypot(float64(p.X)-c.x, float64(p.Y)-c.y) <= c.r+eps
	}
	fromTwo := func(p, q Point) circle {
		x := float64(p.X+q.X) / 2
		y := float64(p.Y+q.Y) / 2
		return circle{x, y, math.Hypot(float64(p.X)-x, float64(p.Y)-y)}
	}
	fromThree := func(p, q, s Point) circle {
		ax, ay := float64(p.X), float64(p.Y)
		bx, by := float64(q.X), float64(q.Y)
		cx, cy := float64(s.X), float64(s.Y)
		d := 2 * (ax*(by-cy) + bx*(cy-ay) + cx*(ay-by))
		if math.Abs(d) < eps {
			// Collinear: the widest pair spans the others.
			best := fromTwo(p, q)
			for _, c := range []circle{fromTwo(p, s), fromTwo(q, s)} {
				if c.r > best.r {
					best = c
				}
			}
			return best
		}
		ux := ((ax*ax+ay*ay)*(by-cy) + (bx*bx+by*by)*(cy-ay) + (cx*cx+cy*cy)*(ay-by)) / d
		uy := ((ax*ax+ay*ay)*(cx-bx) + (bx*bx+by*by)*(ax-cx) + (cx*cx+cy*cy)*(bx-ax)) / d
		return circle{ux, uy, math.Hypot(ax-ux, ay-uy)}
	}

	c := circle{float64(pts[0].X), float64(pts[0].Y), 0}
	for i := 1; i < len(pts); i++ {
		if contains(c, pts[i]) {
			continue
		}
		c = circle{float64(pts[i].X), float64(pts[i].Y), 0}
		for j := 0; j < i; j++ {
			if contains(c, pts[j]) {
				continue
			}
			c = fromTwo(pts[i], pts[j])
			for k := 0; k < j; k++ {
				if !contains(c, pts[k]) {
					c = fromThree(pts[i], pts[j], pts[k])
				}
			}
		}
	}
	return c.x, c.y, c.r
}
