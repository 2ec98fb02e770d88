package refkernel

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/kernelproxy/internal/core/ports"
)

func call(t *testing.T, k *Kernel, path string, inputs map[string]any) any {
	t.Helper()
	var node any = k.Surface()
	for _, seg := range strings.Split(path, ".") {
		ns, ok := node.(ports.Namespace)
		require.True(t, ok, "segment %s", seg)
		node = ns[seg]
	}
	op, ok := node.(ports.Operation)
	require.True(t, ok, "%s is not an operation", path)

	out, err := op(context.Background(), inputs)
	require.NoError(t, err)
	return out
}

func TestCircleWireLength(t *testing.T) {
	k := New()
	wire := call(t, k, "shapes.wire.createCircleWire", map[string]any{
		"radius":    1.0,
		"center":    []any{0.0, 0.0, 0.0},
		"direction": []any{0.0, 0.0, 1.0},
	})
	require.IsType(t, &Shape{}, wire)
	assert.Equal(t, domain.KindShape, wire.(*Shape).Kind())

	length := call(t, k, "shapes.wire.getWireLength", map[string]any{"shape": wire})
	assert.InDelta(t, 2*math.Pi, length, 1e-12)
	assert.Equal(t, TypeWire, call(t, k, "shapes.shape.getShapeType", map[string]any{"shape": wire}))
}

func TestCreateBox(t *testing.T) {
	k := New()
	box := call(t, k, "shapes.solid.createBox", map[string]any{"width": 2.0, "length": 3.0, "height": 4.0})

	assert.InDelta(t, 24.0, call(t, k, "shapes.solid.getSolidVolume", map[string]any{"shape": box}), 1e-12)
	assert.Equal(t, TypeSolid, call(t, k, "shapes.shape.getShapeType", map[string]any{"shape": box}))
	assert.InDelta(t, 4*(2.0+3.0+4.0), box.(*Shape).Length(), 1e-12)

	faces := call(t, k, "shapes.face.getFaces", map[string]any{"shape": box})
	require.Len(t, faces, 6)
	for _, f := range faces.([]*Shape) {
		assert.Equal(t, TypeFace, f.ShapeType())
	}
	assert.Equal(t, 7, k.Live())
}

func TestCreateBox_InvalidInput(t *testing.T) {
	k := New()

	_, err := k.createBox(context.Background(), map[string]any{"width": 1.0, "length": 1.0})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingInput)

	_, err = k.createBox(context.Background(), map[string]any{"width": -1.0, "length": 1.0, "height": 1.0})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = k.createBox(context.Background(), map[string]any{"width": 1.0, "length": 1.0, "height": 1.0, "center": "up"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTranslateAndMirror(t *testing.T) {
	k := New()
	box := call(t, k, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 1.0})

	moved := call(t, k, "transforms.translate", map[string]any{
		"shape":       box,
		"translation": map[string]any{"x": 5.0, "y": 0.0, "z": 0.0},
	}).(*Shape)
	assert.NotSame(t, box, moved)
	assert.InDelta(t, 1.0, moved.Volume(), 1e-12)
	assert.InDelta(t, 4.5, moved.faces[0].vertices[0][0], 1e-12)

	mirrored := call(t, k, "transforms.mirror", map[string]any{
		"shape":     moved,
		"origin":    []any{0.0, 0.0, 0.0},
		"direction": []any{1.0, 0.0, 0.0},
	}).(*Shape)
	assert.InDelta(t, -4.5, mirrored.faces[0].vertices[0][0], 1e-12)
	assert.Equal(t, [3]uint32{0, 2, 1}, mirrored.faces[0].triangles[0])
}

func TestLoft(t *testing.T) {
	k := New()
	bottom := call(t, k, "shapes.wire.createCircleWire", map[string]any{"radius": 1.0})
	top := call(t, k, "shapes.wire.createCircleWire", map[string]any{"radius": 2.0, "center": []any{0.0, 0.0, 3.0}})

	shell := call(t, k, "operations.loft", map[string]any{"shapes": []any{bottom, top}}).(*Shape)
	assert.Equal(t, TypeShell, shell.ShapeType())
	assert.Zero(t, shell.Volume())
	assert.Len(t, shell.faces, loftSegments)

	solid := call(t, k, "operations.loft", map[string]any{"shapes": []any{bottom, top}, "makeSolid": true}).(*Shape)
	assert.Equal(t, TypeSolid, solid.ShapeType())
	assert.InDelta(t, 7*math.Pi, solid.Volume(), 1e-9)
	assert.Len(t, solid.faces, loftSegments+2)
}

func TestLoft_RejectsNonCircleProfiles(t *testing.T) {
	k := New()
	box := call(t, k, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 1.0})
	wire := call(t, k, "shapes.wire.createCircleWire", map[string]any{"radius": 1.0})

	_, err := k.loft(context.Background(), map[string]any{"shapes": []any{wire, box}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = k.loft(context.Background(), map[string]any{"shapes": []any{wire}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMakeCompound(t *testing.T) {
	k := New()
	a := call(t, k, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 1.0})
	b := call(t, k, "shapes.solid.createBox", map[string]any{"width": 2.0, "length": 1.0, "height": 1.0})

	c := call(t, k, "shapes.compound.makeCompound", map[string]any{"shapes": []any{a, b}}).(*Shape)
	assert.Equal(t, TypeCompound, c.ShapeType())
	assert.InDelta(t, 3.0, c.Volume(), 1e-12)
	assert.Len(t, c.allFaces(), 12)
}

func TestCreateAssembly(t *testing.T) {
	k := New()
	lid := call(t, k, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 1.0})
	body := call(t, k, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 2.0})

	out := call(t, k, "assembly.createAssembly", map[string]any{
		"name": "jar",
		"parts": []any{
			map[string]any{"id": "lid", "shape": lid},
			map[string]any{"id": "body", "shape": body},
		},
	})
	asm, ok := out.(*domain.Composite)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"name": "jar", "parts": 2.0}, asm.Data)
	require.Len(t, asm.Shapes, 2)
	assert.Equal(t, "lid", asm.Shapes[0].ID)
	assert.NotSame(t, lid, asm.Shapes[0].Shape)
	assert.InDelta(t, 3.0, asm.Compound.(*Shape).Volume(), 1e-12)
}

func TestCreateDocument(t *testing.T) {
	k := New()
	doc := call(t, k, "io.createDocument", map[string]any{"name": "part"})
	require.IsType(t, &Document{}, doc)
	assert.Equal(t, domain.KindEntity, doc.(*Document).Kind())
	assert.Equal(t, domain.KindEntity, domain.KindOf(doc))
}

func TestRelease(t *testing.T) {
	k := New()
	box := call(t, k, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 1.0}).(*Shape)
	assert.NotZero(t, box.Pointer())
	require.Equal(t, 1, k.Live())

	require.NoError(t, k.Release(box))
	assert.ErrorIs(t, box.Probe(), domain.ErrObjectReleased)
	assert.Equal(t, 0, k.Live())

	assert.ErrorIs(t, k.Release(box), ErrDoubleRelease)

	_, err := k.Mesh(context.Background(), box, domain.MeshOptions{})
	assert.ErrorIs(t, err, domain.ErrObjectReleased)
}

func TestInjectDependencies(t *testing.T) {
	k := New()
	k.InjectDependencies(map[string]any{"a": 1.0})
	k.InjectDependencies(map[string]any{"b": "x", "a": 2.0})

	assert.Equal(t, map[string]any{"a": 2.0, "b": "x"}, k.Dependencies())
}

func TestMesh(t *testing.T) {
	k := New()
	box := call(t, k, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 1.0}).(*Shape)

	out, err := k.Mesh(context.Background(), box, domain.MeshOptions{Precision: 0.01})
	require.NoError(t, err)
	mesh := out.(Mesh)
	assert.Len(t, mesh.Faces.Vertices, 6*4*3)
	assert.Len(t, mesh.Faces.Normals, 6*4*3)
	assert.Len(t, mesh.Faces.Triangles, 6*2*3)
	assert.Len(t, mesh.Faces.Groups, 6)
	assert.Equal(t, FaceGroup{Start: 6, Count: 6, FaceID: 1}, mesh.Faces.Groups[1])
	assert.Len(t, mesh.Edges.Groups, 12)
	assert.Len(t, mesh.Edges.Lines, 12*2*3)
}

func TestMesh_CirclePrecision(t *testing.T) {
	k := New()
	wire := call(t, k, "shapes.wire.createCircleWire", map[string]any{"radius": 10.0}).(*Shape)

	coarse, err := k.Mesh(context.Background(), wire, domain.MeshOptions{Precision: 1})
	require.NoError(t, err)
	fine, err := k.Mesh(context.Background(), wire, domain.MeshOptions{Precision: 0.001})
	require.NoError(t, err)

	assert.Less(t, coarse.(Mesh).Edges.Groups[0].Count, fine.(Mesh).Edges.Groups[0].Count)
	assert.Empty(t, coarse.(Mesh).Faces.Vertices)
}

func TestMesh_AdjustYtoZ(t *testing.T) {
	k := New()
	box := call(t, k, "shapes.solid.createBox", map[string]any{
		"width": 1.0, "length": 1.0, "height": 1.0, "center": []any{0.0, 10.0, 0.0},
	}).(*Shape)

	out, err := k.Mesh(context.Background(), box, domain.MeshOptions{AdjustYtoZ: true})
	require.NoError(t, err)
	v := out.(Mesh).Faces.Vertices
	assert.InDelta(t, 9.5, v[2], 1e-6)
}

func TestCircleSegments(t *testing.T) {
	assert.Equal(t, minCircleSegments, circleSegments(1, 2))
	assert.Equal(t, minCircleSegments, circleSegments(1, 0))
	assert.Equal(t, maxCircleSegments, circleSegments(1000, 1e-9))
	assert.Greater(t, circleSegments(1, 0.001), circleSegments(1, 0.1))
}

func TestExportSTEP(t *testing.T) {
	k := New()
	box := call(t, k, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 1.0}).(*Shape)

	out, err := k.ExportSTEP(context.Background(), box, domain.StepOptions{FileName: "o'brien.step"})
	require.NoError(t, err)
	text := string(out)
	assert.True(t, strings.HasPrefix(text, "ISO-10303-21;\n"))
	assert.True(t, strings.HasSuffix(text, "END-ISO-10303-21;\n"))
	assert.Contains(t, text, "FILE_NAME('o''brien.step'")
	assert.Equal(t, 24, strings.Count(text, "CARTESIAN_POINT"))
	assert.Equal(t, 6, strings.Count(text, "POLY_LOOP"))
	assert.Contains(t, text, "FACETED_BREP('solid'")
	assert.Contains(t, text, "(-0.5,-0.5,-0.5)")
}

func TestStepReal(t *testing.T) {
	assert.Equal(t, "1.", stepReal(1))
	assert.Equal(t, "-0.5", stepReal(-0.5))
	assert.Equal(t, "1e+21", stepReal(1e21))
}
