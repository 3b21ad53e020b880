package detection

import "math"

// Point represents a 2D coordinate in pixel space.
type Point struct {
	X int `json:"x"` // Horizontal position (0 = leftmost)
	Y int `json:"y"` // Vertical position (0 = topmost)
}

// Clockwise neighbour directions in image coordinates (Y down), starting east.
var directions = [8]Point{
	{1, 0},   // E
	{1, 1},   // SE
	{0, 1},   // S
	{-1, 1},  // SW
	{-1, 0},  // W
	{-1, -1}, // NW
	{0, -1},  // N
	{1, -1},  // NE
}

const dirWest = 4

// findContours returns the outer border of every 8-connected foreground
// component, in raster order of each component's first pixel.
//
// Components are labelled with an iterative flood fill; each border is then
// traced from the component's top-left pixel and compressed so only the
// points where the chain changes direction remain. Holes inside a component
// are not reported.
func findContours(m *mask) [][]Point {
	visited := make([]bool, len(m.fg))
	contours := make([][]Point, 0)

	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			i := y*m.width + x
			if !m.fg[i] || visited[i] {
				continue
			}
			floodFill(m, visited, x, y)
			contours = append(contours, compressChain(traceBoundary(m, Point{x, y})))
		}
	}
	return contours
}

// floodFill marks every pixel 8-connected to (startX, startY) as visited.
//
// Uses a stack-based approach (not recursive) to avoid stack overflow on
// large components.
func floodFill(m *mask, visited []bool, startX, startY int) {
	stack := []Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !m.at(p.X, p.Y) {
			continue
		}
		i := p.Y*m.width + p.X
		if visited[i] {
			continue
		}
		visited[i] = true

		for _, d := range directions {
			stack = append(stack, Point{X: p.X + d.X, Y: p.Y + d.Y})
		}
	}
}

// traceBoundary follows the outer border of the component containing start
// using Moore-neighbour tracing.
//
// start must be the component's first pixel in raster order, so its west
// neighbour is background and serves as the initial backtrack direction.
// Tracing stops when the walk returns to start and is about to repeat its
// first move (Jacob's criterion), which handles one-pixel-wide parts that are
// visited twice. An isolated pixel yields a single point.
//
// # Algorithm
//
//  1. From the current pixel, scan the 8 neighbours clockwise starting just
//     after the backtrack direction
//  2. Move to the first foreground neighbour found
//  3. The new backtrack direction points at the last background pixel
//     examined, seen from the new position
func traceBoundary(m *mask, start Point) []Point {
	chain := []Point{start}

	d, ok := nextBorderDir(m, start, dirWest)
	if !ok {
		return chain
	}
	second := Point{start.X + directions[d].X, start.Y + directions[d].Y}

	cur := second
	for {
		back := (d + 6) % 8
		if d%2 == 1 {
			back = (d + 5) % 8
		}
		d, _ = nextBorderDir(m, cur, back)
		next := Point{cur.X + directions[d].X, cur.Y + directions[d].Y}
		if cur == start && next == second {
			break
		}
		chain = append(chain, cur)
		cur = next
	}
	return chain
}

// nextBorderDir finds the first foreground neighbour of p scanning clockwise
// from back+1.
func nextBorderDir(m *mask, p Point, back int) (int, bool) {
	for k := 1; k <= 8; k++ {
		d := (back + k) % 8
		if m.at(p.X+directions[d].X, p.Y+directions[d].Y) {
			return d, true
		}
	}
	return 0, false
}

// compressChain keeps only the points of a closed chain where the outgoing
// step differs from the incoming one, dropping the interior of straight
// horizontal, vertical and diagonal runs.
func compressChain(chain []Point) []Point {
	n := len(chain)
	if n < 3 {
		return chain
	}
	out := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		prev := chain[(i+n-1)%n]
		cur := chain[i]
		next := chain[(i+1)%n]
		in := Point{cur.X - prev.X, cur.Y - prev.Y}
		outStep := Point{next.X - cur.X, next.Y - cur.Y}
		if in != outStep {
			out = append(out, cur)
		}
	}
	return out
}

// contourArea returns the absolute polygon area of a closed contour
// (shoelace formula).
func contourArea(c []Point) float64 {
	n := len(c)
	if n < 3 {
		return 0
	}
	sum := 0
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += c[i].X*c[j].Y - c[j].X*c[i].Y
	}
	return math.Abs(float64(sum)) / 2
}

// contourPerimeter returns the length of the closed polyline through c.
func contourPerimeter(c []Point) float64 {
	n := len(c)
	if n < 2 {
		return 0
	}
	total := 0.0
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		total += math.Hypot(float64(c[j].X-c[i].X), float64(c[j].Y-c[i].Y))
	}
	return total
}
