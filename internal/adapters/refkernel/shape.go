package refkernel

import (
	"math"
	"sync/atomic"

	"go.trai.ch/kernelproxy/internal/core/domain"
)

// Shape types reported by getShapeType.
const (
	TypeEdge     = "edge"
	TypeWire     = "wire"
	TypeFace     = "face"
	TypeShell    = "shell"
	TypeSolid    = "solid"
	TypeCompound = "compound"
)

type vec [3]float64

func (a vec) add(b vec) vec { return vec{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func (a vec) sub(b vec) vec { return vec{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func (a vec) scale(s float64) vec { return vec{a[0] * s, a[1] * s, a[2] * s} }
func (a vec) dot(b vec) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }
func (a vec) length() float64 { return math.Sqrt(a.dot(a)) }
func (a vec) yToZ() vec { return vec{a[0], -a[2], a[1]} }
func (a vec) cross(b vec) vec {
	return vec{a[1]*b[2] - a[2]*b[1], a[2]*b[0] - a[0]*b[2], a[0]*b[1] - a[1]*b[0]}
}

func (a vec) normalize() vec {
	l := a.length()
	if l == 0 {
		return a
	}
	return a.scale(1 / l)
}

// basis returns two unit vectors perpendicular to n and to each other.
func basis(n vec) (vec, vec) {
	n = n.normalize()
	ref := vec{1, 0, 0}
	if math.Abs(n[0]) > 0.9 {
		ref = vec{0, 1, 0}
	}
	u := n.cross(ref).normalize()
	return u, n.cross(u)
}

// circle describes an analytic circle so it can be resampled at any precision.
type circle struct {
	center vec
	normal vec
	radius float64
}

func (c circle) sample(segments int) []vec {
	u, v := basis(c.normal)
	pts := make([]vec, segments+1)
	for i := range segments + 1 {
		t := 2 * math.Pi * float64(i) / float64(segments)
		pts[i] = c.center.add(u.scale(c.radius * math.Cos(t))).add(v.scale(c.radius * math.Sin(t)))
	}
	return pts
}

type face struct {
	vertices  []vec
	triangles [][3]uint32
	normal    vec
}

type edge struct {
	points []vec
	circle *circle
}

// handle carries the bookkeeping every kernel object shares.
type handle struct {
	key      domain.Fingerprint
	ptr      uintptr
	released atomic.Bool
}

// Key returns the stamped fingerprint.
func (h *handle) Key() domain.Fingerprint { return h.key }

// Stamp records the fingerprint under which the object is stored.
func (h *handle) Stamp(key domain.Fingerprint) { h.key = key }

// Pointer returns the simulated native address.
func (h *handle) Pointer() uintptr { return h.ptr }

// Probe reports whether the object was released.
func (h *handle) Probe() error {
	if h.released.Load() {
		return domain.ErrObjectReleased
	}
	return nil
}

// Shape is a geometry object of the reference kernel.
type Shape struct {
	handle
	shapeType string
	faces     []face
	edges     []edge
	children  []*Shape
	volume    float64
}

// Kind reports KindShape.
func (s *Shape) Kind() domain.Kind { return domain.KindShape }

// ShapeType returns the topological type of the shape.
func (s *Shape) ShapeType() string { return s.shapeType }

// Length returns the total length of all edges.
func (s *Shape) Length() float64 {
	var total float64
	for _, e := range s.edges {
		if e.circle != nil {
			total += 2 * math.Pi * e.circle.radius
			continue
		}
		for i := 1; i < len(e.points); i++ {
			total += e.points[i].sub(e.points[i-1]).length()
		}
	}
	for _, c := range s.children {
		total += c.Length()
	}
	return total
}

// Volume returns the enclosed volume of solids.
func (s *Shape) Volume() float64 {
	total := s.volume
	for _, c := range s.children {
		total += c.Volume()
	}
	return total
}

// transformed returns a deep copy with f applied to every point. Reflections
// pass flip so triangle winding stays outward.
func (s *Shape) transformed(f func(vec) vec, normal func(vec) vec, flip bool) *Shape {
	out := &Shape{shapeType: s.shapeType, volume: s.volume}
	for _, fc := range s.faces {
		nf := face{normal: normal(fc.normal), vertices: make([]vec, len(fc.vertices))}
		for i, p := range fc.vertices {
			nf.vertices[i] = f(p)
		}
		nf.triangles = make([][3]uint32, len(fc.triangles))
		for i, tri := range fc.triangles {
			if flip {
				tri[1], tri[2] = tri[2], tri[1]
			}
			nf.triangles[i] = tri
		}
		out.faces = append(out.faces, nf)
	}
	for _, e := range s.edges {
		ne := edge{points: make([]vec, len(e.points))}
		for i, p := range e.points {
			ne.points[i] = f(p)
		}
		if e.circle != nil {
			c := circle{center: f(e.circle.center), normal: normal(e.circle.normal), radius: e.circle.radius}
			ne.circle = &c
		}
		out.edges = append(out.edges, ne)
	}
	for _, c := range s.children {
		out.children = append(out.children, c.transformed(f, normal, flip))
	}
	return out
}

// allFaces returns the faces of the shape and its children in order.
func (s *Shape) allFaces() []face {
	out := append([]face(nil), s.faces...)
	for _, c := range s.children {
		out = append(out, c.allFaces()...)
	}
	return out
}

// allEdges returns the edges of the shape and its children in order.
func (s *Shape) allEdges() []edge {
	out := append([]edge(nil), s.edges...)
	for _, c := range s.children {
		out = append(out, c.allEdges()...)
	}
	return out
}

// Document is a non-geometry kernel handle.
type Document struct {
	handle
	Name string
}

// Kind reports KindEntity.
func (d *Document) Kind() domain.Kind { return domain.KindEntity }

func quad(a, b, c, d vec) face {
	n := b.sub(a).cross(c.sub(a)).normalize()
	return face{
		vertices:  []vec{a, b, c, d},
		triangles: [][3]uint32{{0, 1, 2}, {0, 2, 3}},
		normal:    n,
	}
}

func boxShape(center vec, width, length, height float64) *Shape {
	hx, hy, hz := width/2, height/2, length/2
	p := func(x, y, z float64) vec { return center.add(vec{x, y, z}) }

	v := [8]vec{
		p(-hx, -hy, -hz), p(hx, -hy, -hz), p(hx, hy, -hz), p(-hx, hy, -hz),
		p(-hx, -hy, hz), p(hx, -hy, hz), p(hx, hy, hz), p(-hx, hy, hz),
	}
	faces := []face{
		quad(v[0], v[3], v[2], v[1]),
		quad(v[4], v[5], v[6], v[7]),
		quad(v[0], v[1], v[5], v[4]),
		quad(v[3], v[7], v[6], v[2]),
		quad(v[0], v[4], v[7], v[3]),
		quad(v[1], v[2], v[6], v[5]),
	}
	pairs := [12][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}, {4, 5}, {5, 6}, {6, 7}, {7, 4}, {0, 4}, {1, 5}, {2, 6}, {3, 7}}
	edges := make([]edge, len(pairs))
	for i, pr := range pairs {
		edges[i] = edge{points: []vec{v[pr[0]], v[pr[1]]}}
	}
	return &Shape{shapeType: TypeSolid, faces: faces, edges: edges, volume: width * length * height}
}

func faceShape(f face) *Shape {
	n := len(f.vertices)
	edges := make([]edge, n)
	for i := range n {
		edges[i] = edge{points: []vec{f.vertices[i], f.vertices[(i+1)%n]}}
	}
	return &Shape{shapeType: TypeFace, faces: []face{f}, edges: edges}
}
