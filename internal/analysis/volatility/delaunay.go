package volatility

import (
	"math"
)

type point2 struct{ x, y float64 }

type triangle struct {
	a, b, c int // counter-clockwise vertex indices
}

type edge struct{ a, b int }

func (e edge) key() edge {
	if e.a > e.b {
		return edge{e.b, e.a}
	}
	return e
}

func orient(p, q, r point2) float64 {
	return (q.x-p.x)*(r.y-p.y) - (q.y-p.y)*(r.x-p.x)
}

// inCircumcircle reports whether d lies strictly inside the circumcircle of
// the counter-clockwise triangle abc.
func inCircumcircle(a, b, c, d point2) bool {
	adx, ady := a.x-d.x, a.y-d.y
	bdx, bdy := b.x-d.x, b.y-d.y
	cdx, cdy := c.x-d.x, c.y-d.y
	det := (adx*adx+ady*ady)*(bdx*cdy-cdx*bdy) -
		(bdx*bdx+bdy*bdy)*(adx*cdy-cdx*ady) +
		(cdx*cdx+cdy*cdy)*(adx*bdy-bdx*ady)
	return det > 0
}

// triangulate returns the Delaunay triangulation of pts using Bowyer-Watson
// insertion inside an enclosing super-triangle. Vertex indices refer to pts.
func triangulate(pts []point2) []triangle {
	n := len(pts)
	if n < 3 {
		return nil
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX, maxX = math.Min(minX, p.x), math.Max(maxX, p.x)
		minY, maxY = math.Min(minY, p.y), math.Max(maxY, p.y)
	}
	delta := math.Max(maxX-minX, maxY-minY)
	if delta == 0 {
		return nil
	}
	midX, midY := (minX+maxX)/2, (minY+maxY)/2

	all := make([]point2, n, n+3)
	copy(all, pts)
	all = append(all,
		point2{midX - 100*delta, midY - 100*delta},
		point2{midX + 100*delta, midY - 100*delta},
		point2{midX, midY + 100*delta},
	)
	tris := []triangle{{n, n + 1, n + 2}}

	for i := 0; i < n; i++ {
		p := all[i]
		var bad []int
		for j, t := range tris {
			if inCircumcircle(all[t.a], all[t.b], all[t.c], p) {
				bad = append(bad, j)
			}
		}

		edgeCount := make(map[edge]int)
		var boundary []edge
		for _, j := range bad {
			t := tris[j]
			for _, e := range []edge{{t.a, t.b}, {t.b, t.c}, {t.c, t.a}} {
				edgeCount[e.key()]++
				boundary = append(boundary, e)
			}
		}

		isBad := make(map[int]bool, len(bad))
		for _, j := range bad {
			isBad[j] = true
		}
		kept := tris[:0:0]
		for j, t := range tris {
			if !isBad[j] {
				kept = append(kept, t)
			}
		}

		for _, e := range boundary {
			if edgeCount[e.key()] != 1 {
				continue
			}
			t := triangle{e.a, e.b, i}
			if orient(all[t.a], all[t.b], all[t.c]) < 0 {
				t.a, t.b = t.b, t.a
			}
			kept = append(kept, t)
		}
		tris = kept
	}

	out := tris[:0:0]
	for _, t := range tris {
		if t.a >= n || t.b >= n || t.c >= n {
			continue
		}
		// Drop slivers from collinear input.
		if orient(pts[t.a], pts[t.b], pts[t.c]) == 0 {
			continue
		}
		out = append(out, t)
	}
	return out
}

// barycentric returns the weights of p in triangle abc and whether p lies
// inside it, edges included within tol.
func barycentric(a, b, c, p point2, tol float64) (float64, float64, float64, bool) {
	den := orient(a, b, c)
	if den == 0 {
		return 0, 0, 0, false
	}
	w1 := orient(p, b, c) / den
	w2 := orient(a, p, c) / den
	w3 := 1 - w1 - w2
	inside := w1 >= -tol && w2 >= -tol && w3 >= -tol
	return w1, w2, w3, inside
}

// linearInterpolator evaluates the piecewise-linear interpolant of scattered
// values over their Delaunay triangulation.
type linearInterpolator struct {
	pts    []point2
	values []float64
	tris   []triangle
}

func (li *linearInterpolator) at(p point2) float64 {
	const tol = 1e-10
	for _, t := range li.tris {
		a, b, c := li.pts[t.a], li.pts[t.b], li.pts[t.c]
		if p.x < math.Min(a.x, math.Min(b.x, c.x))-tol || p.x > math.Max(a.x, math.Max(b.x, c.x))+tol {
			continue
		}
		if p.y < math.Min(a.y, math.Min(b.y, c.y))-tol || p.y > math.Max(a.y, math.Max(b.y, c.y))+tol {
			continue
		}
		w1, w2, w3, inside := barycentric(a, b, c, p, tol)
		if inside {
			return w1*li.values[t.a] + w2*li.values[t.b] + w3*li.values[t.c]
		}
	}
	return math.NaN()
}

func collinear(pts []point2) bool {
	if len(pts) < 3 {
		return true
	}
	a := pts[0]
	var b point2
	found := false
	for _, p := range pts[1:] {
		if p != a {
			b, found = p, true
			break
		}
	}
	if !found {
		return true
	}
	for _, p := range pts {
		if orient(a, b, p) != 0 {
			return false
		}
	}
	return true
}
