package geometry

import "math"

// Polygon is a closed ring of vertices. The closing edge from the last vertex
// back to the first is implicit.
type Polygon struct {
	Vertices []Point2D `json:"vertices"`
}

// NewPolygon creates a polygon from a vertex ring.
func NewPolygon(vertices []Point2D) Polygon {
	return Polygon{Vertices: vertices}
}

// FromRect creates a rectangular polygon.
func FromRect(r Rect) Polygon {
	return Polygon{Vertices: r.Vertices()}
}

// Valid reports whether the polygon is usable as an analysis region:
// at least three vertices, non-zero area, and no self-intersections.
func (pg Polygon) Valid() bool {
	return len(pg.Vertices) >= 3 && pg.Area() > 0 && pg.IsSimple()
}

// Area returns the enclosed area via the shoelace formula, independent of
// vertex winding order.
func (pg Polygon) Area() float64 {
	n := len(pg.Vertices)
	if n < 3 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += pg.Vertices[i].X*pg.Vertices[j].Y - pg.Vertices[j].X*pg.Vertices[i].Y
	}
	return math.Abs(sum) / 2
}

// Bounds returns the axis-aligned bounding box of the polygon.
func (pg Polygon) Bounds() Rect {
	return BoundingBox(pg.Vertices)
}

// Contains tests if a point is inside the polygon using ray casting.
func (pg Polygon) Contains(p Point2D) bool {
	n := len(pg.Vertices)
	if n < 3 {
		return false
	}

	inside := false
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		pi, pj := pg.Vertices[i], pg.Vertices[j]

		// Check if ray from p going right intersects edge pi-pj
		if ((pi.Y > p.Y) != (pj.Y > p.Y)) &&
			(p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}
	return inside
}

// IsSimple reports whether no two non-adjacent edges of the polygon cross.
func (pg Polygon) IsSimple() bool {
	n := len(pg.Vertices)
	if n < 3 {
		return false
	}

	for i := 0; i < n; i++ {
		a1 := pg.Vertices[i]
		a2 := pg.Vertices[(i+1)%n]
		for j := i + 1; j < n; j++ {
			// Skip adjacent edges, which always share a vertex.
			if (j+1)%n == i || (i+1)%n == j {
				continue
			}
			b1 := pg.Vertices[j]
			b2 := pg.Vertices[(j+1)%n]
			if segmentsCross(a1, a2, b1, b2) {
				return false
			}
		}
	}
	return true
}

// Intersect computes the intersection of this polygon with a convex clip
// polygon using the Sutherland-Hodgman algorithm. Returns a zero-vertex
// polygon if there is no overlap.
func (pg Polygon) Intersect(clip Polygon) Polygon {
	if len(pg.Vertices) < 3 || len(clip.Vertices) < 3 {
		return Polygon{}
	}

	clipRing := counterClockwise(clip.Vertices)
	output := make([]Point2D, len(pg.Vertices))
	copy(output, pg.Vertices)

	// Clip against each edge of the clip polygon.
	for i := 0; i < len(clipRing); i++ {
		if len(output) == 0 {
			return Polygon{}
		}
		edgeStart := clipRing[i]
		edgeEnd := clipRing[(i+1)%len(clipRing)]
		output = clipRingByEdge(output, edgeStart, edgeEnd)
	}

	if len(output) < 3 {
		return Polygon{}
	}
	return Polygon{Vertices: output}
}

// clipRingByEdge clips a vertex ring against a single directed edge.
func clipRingByEdge(ring []Point2D, edgeStart, edgeEnd Point2D) []Point2D {
	var clipped []Point2D

	for i := 0; i < len(ring); i++ {
		current := ring[i]
		next := ring[(i+1)%len(ring)]

		currentInside := isInsideEdge(current, edgeStart, edgeEnd)
		nextInside := isInsideEdge(next, edgeStart, edgeEnd)

		if currentInside {
			clipped = append(clipped, current)
			if !nextInside {
				// Exiting: add intersection point
				if p, ok := lineIntersection(current, next, edgeStart, edgeEnd); ok {
					clipped = append(clipped, p)
				}
			}
		} else if nextInside {
			// Entering: add intersection point
			if p, ok := lineIntersection(current, next, edgeStart, edgeEnd); ok {
				clipped = append(clipped, p)
			}
		}
	}

	return clipped
}

// isInsideEdge checks if a point is on the inside (left side) of the directed
// edge. The clip ring must be counter-clockwise.
func isInsideEdge(p, edgeStart, edgeEnd Point2D) bool {
	return (edgeEnd.X-edgeStart.X)*(p.Y-edgeStart.Y)-
		(edgeEnd.Y-edgeStart.Y)*(p.X-edgeStart.X) >= 0
}

// lineIntersection computes the intersection point of the infinite lines
// through p1-p2 and e1-e2. Returns false when the lines are parallel.
func lineIntersection(p1, p2, e1, e2 Point2D) (Point2D, bool) {
	x1, y1 := p1.X, p1.Y
	x2, y2 := p2.X, p2.Y
	x3, y3 := e1.X, e1.Y
	x4, y4 := e2.X, e2.Y

	denom := (x1-x2)*(y3-y4) - (y1-y2)*(x3-x4)
	if math.Abs(denom) < 1e-10 {
		return Point2D{}, false
	}

	t := ((x1-x3)*(y3-y4) - (y1-y3)*(x3-x4)) / denom
	return Point2D{
		X: x1 + t*(x2-x1),
		Y: y1 + t*(y2-y1),
	}, true
}

// counterClockwise returns the ring in counter-clockwise order, reversing it
// if its signed area is negative.
func counterClockwise(ring []Point2D) []Point2D {
	sum := 0.0
	for i := 0; i < len(ring); i++ {
		j := (i + 1) % len(ring)
		sum += ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
	}
	if sum >= 0 {
		return ring
	}
	reversed := make([]Point2D, len(ring))
	for i, p := range ring {
		reversed[len(ring)-1-i] = p
	}
	return reversed
}

// segmentsCross reports whether segments a1-a2 and b1-b2 properly intersect.
func segmentsCross(a1, a2, b1, b2 Point2D) bool {
	d1 := crossProduct(b1, b2, a1)
	d2 := crossProduct(b1, b2, a2)
	d3 := crossProduct(a1, a2, b1)
	d4 := crossProduct(a1, a2, b2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

// crossProduct computes the cross product of vectors OA and OB.
func crossProduct(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
