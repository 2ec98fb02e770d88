package refkernel

import (
	"context"
	"fmt"
	"math"

	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/zerr"
)

// loftSegments is the number of side panels generated between two profiles.
const loftSegments = 32

var (
	origin = vec{0, 0, 0}
	zAxis  = vec{0, 0, 1}
)

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}

func identity(v vec) vec { return v }

func (k *Kernel) createCircleWire(_ context.Context, inputs map[string]any) (any, error) {
	radius, err := positiveInput(inputs, "radius")
	if err != nil {
		return nil, err
	}
	center, err := vecInput(inputs, "center", origin)
	if err != nil {
		return nil, err
	}
	direction, err := vecInput(inputs, "direction", zAxis)
	if err != nil {
		return nil, err
	}
	if direction.length() == 0 {
		return nil, invalid("direction", inputs["direction"])
	}
	c := circle{center: center, normal: direction.normalize(), radius: radius}
	return k.shape(&Shape{shapeType: TypeWire, edges: []edge{{circle: &c}}}), nil
}

func (k *Kernel) getWireLength(_ context.Context, inputs map[string]any) (any, error) {
	s, err := shapeInput(inputs, "shape")
	if err != nil {
		return nil, err
	}
	return s.Length(), nil
}

func (k *Kernel) createBox(_ context.Context, inputs map[string]any) (any, error) {
	var dims [3]float64
	for i, key := range []string{"width", "length", "height"} {
		d, err := positiveInput(inputs, key)
		if err != nil {
			return nil, err
		}
		dims[i] = d
	}
	center, err := vecInput(inputs, "center", origin)
	if err != nil {
		return nil, err
	}
	return k.shape(boxShape(center, dims[0], dims[1], dims[2])), nil
}

func (k *Kernel) getSolidVolume(_ context.Context, inputs map[string]any) (any, error) {
	s, err := shapeInput(inputs, "shape")
	if err != nil {
		return nil, err
	}
	return s.Volume(), nil
}

func (k *Kernel) getShapeType(_ context.Context, inputs map[string]any) (any, error) {
	s, err := shapeInput(inputs, "shape")
	if err != nil {
		return nil, err
	}
	return s.ShapeType(), nil
}

func (k *Kernel) getFaces(_ context.Context, inputs map[string]any) (any, error) {
	s, err := shapeInput(inputs, "shape")
	if err != nil {
		return nil, err
	}
	faces := s.allFaces()
	out := make([]*Shape, len(faces))
	for i, f := range faces {
		out[i] = k.shape(faceShape(f))
	}
	return out, nil
}

func (k *Kernel) makeCompound(_ context.Context, inputs map[string]any) (any, error) {
	shapes, err := shapesInput(inputs, "shapes")
	if err != nil {
		return nil, err
	}
	return k.shape(compound(shapes)), nil
}

func compound(shapes []*Shape) *Shape {
	out := &Shape{shapeType: TypeCompound}
	for _, s := range shapes {
		out.children = append(out.children, s.transformed(identity, identity, false))
	}
	return out
}

func (k *Kernel) translate(_ context.Context, inputs map[string]any) (any, error) {
	s, err := shapeInput(inputs, "shape")
	if err != nil {
		return nil, err
	}
	t, err := vecInput(inputs, "translation", origin)
	if err != nil {
		return nil, err
	}
	move := func(p vec) vec { return p.add(t) }
	return k.shape(s.transformed(move, identity, false)), nil
}

func (k *Kernel) mirror(_ context.Context, inputs map[string]any) (any, error) {
	s, err := shapeInput(inputs, "shape")
	if err != nil {
		return nil, err
	}
	o, err := vecInput(inputs, "origin", origin)
	if err != nil {
		return nil, err
	}
	d, err := vecInput(inputs, "direction", zAxis)
	if err != nil {
		return nil, err
	}
	if d.length() == 0 {
		return nil, invalid("direction", inputs["direction"])
	}
	d = d.normalize()

	reflect := func(v vec) vec { return v.sub(d.scale(2 * v.dot(d))) }
	point := func(p vec) vec { return o.add(reflect(p.sub(o))) }
	return k.shape(s.transformed(point, reflect, true)), nil
}

// loft joins circular profiles with straight side panels. With makeSolid the
// ends are capped and the result encloses the frustum volume.
func (k *Kernel) loft(_ context.Context, inputs map[string]any) (any, error) {
	profiles, err := shapesInput(inputs, "shapes")
	if err != nil {
		return nil, err
	}
	if len(profiles) < 2 {
		return nil, zerr.With(zerr.Wrap(ErrInvalidInput, "loft needs at least two profiles"), "input", "shapes")
	}
	solid, _ := inputs["makeSolid"].(bool)

	circles := make([]circle, len(profiles))
	for i, p := range profiles {
		c, ok := profileCircle(p)
		if !ok {
			return nil, zerr.With(zerr.Wrap(ErrInvalidInput, "loft profiles must be circle wires"), "index", i)
		}
		circles[i] = c
	}

	out := &Shape{shapeType: TypeShell}
	rings := make([][]vec, len(circles))
	for i, c := range circles {
		rings[i] = c.sample(loftSegments)
		cc := c
		out.edges = append(out.edges, edge{circle: &cc})
	}
	for i := 1; i < len(rings); i++ {
		lower, upper := rings[i-1], rings[i]
		for j := range loftSegments {
			out.faces = append(out.faces, quad(lower[j], lower[j+1], upper[j+1], upper[j]))
		}
		out.edges = append(out.edges, edge{points: []vec{lower[0], upper[0]}})
	}

	if solid {
		out.shapeType = TypeSolid
		out.faces = append(out.faces, capFace(rings[0], true), capFace(rings[len(rings)-1], false))
		for i := 1; i < len(circles); i++ {
			out.volume += frustumVolume(circles[i-1], circles[i])
		}
	}
	return k.shape(out), nil
}

func profileCircle(s *Shape) (circle, bool) {
	if len(s.edges) != 1 || s.edges[0].circle == nil {
		return circle{}, false
	}
	return *s.edges[0].circle, true
}

func frustumVolume(a, b circle) float64 {
	h := b.center.sub(a.center).length()
	return math.Pi * h / 3 * (a.radius*a.radius + a.radius*b.radius + b.radius*b.radius)
}

// capFace fans a closed ring around its centroid. Bottom caps are wound in
// reverse so their normal points away from the solid.
func capFace(ring []vec, bottom bool) face {
	n := len(ring) - 1
	var c vec
	for _, p := range ring[:n] {
		c = c.add(p)
	}
	c = c.scale(1 / float64(n))

	f := face{vertices: append([]vec{c}, ring[:n]...)}
	for i := range n {
		a, b := uint32(i+1), uint32((i+1)%n+1)
		if bottom {
			a, b = b, a
		}
		f.triangles = append(f.triangles, [3]uint32{0, a, b})
	}
	f.normal = f.vertices[f.triangles[0][1]].sub(c).cross(f.vertices[f.triangles[0][2]].sub(c)).normalize()
	return f
}

func (k *Kernel) createAssembly(_ context.Context, inputs map[string]any) (any, error) {
	name, err := stringInput(inputs, "name", "assembly")
	if err != nil {
		return nil, err
	}
	parts, ok := inputs["parts"].([]any)
	if !ok || len(parts) == 0 {
		return nil, missing("parts")
	}

	shapes := make([]*Shape, len(parts))
	children := make([]domain.Child, len(parts))
	for i, p := range parts {
		part, ok := p.(map[string]any)
		if !ok {
			return nil, zerr.With(invalid("parts", p), "index", i)
		}
		id, err := stringInput(part, "id", fmt.Sprintf("part-%d", i))
		if err != nil {
			return nil, zerr.With(err, "index", i)
		}
		s, err := shapeInput(part, "shape")
		if err != nil {
			return nil, zerr.With(err, "index", i)
		}
		shapes[i] = s
		children[i] = domain.Child{ID: id, Shape: k.shape(s.transformed(identity, identity, false))}
	}

	return &domain.Composite{
		Compound: k.shape(compound(shapes)),
		Data:     map[string]any{"name": name, "parts": float64(len(parts))},
		Shapes:   children,
	}, nil
}

func (k *Kernel) createDocument(_ context.Context, inputs map[string]any) (any, error) {
	name, err := stringInput(inputs, "name", "untitled")
	if err != nil {
		return nil, err
	}
	d := &Document{Name: name}
	k.alloc(&d.handle)
	return d, nil
}
