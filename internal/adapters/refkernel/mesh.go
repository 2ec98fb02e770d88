package refkernel

import (
	"math"

	"go.trai.ch/kernelproxy/internal/core/domain"
)

const (
	minCircleSegments = 8
	maxCircleSegments = 1024
)

// Mesh is the tessellation payload returned by shapeToMesh.
type Mesh struct {
	Faces FaceMesh `json:"faces"`
	Edges EdgeMesh `json:"edges"`
}

// FaceMesh holds the triangles of every face in one flat buffer.
type FaceMesh struct {
	Vertices  []float32   `json:"vertices"`
	Normals   []float32   `json:"normals"`
	Triangles []uint32    `json:"triangles"`
	Groups    []FaceGroup `json:"faceGroups"`
}

// FaceGroup maps a range of triangle indexes back to its face.
type FaceGroup struct {
	Start  int `json:"start"`
	Count  int `json:"count"`
	FaceID int `json:"faceId"`
}

// EdgeMesh holds every edge as a polyline of line segments.
type EdgeMesh struct {
	Lines  []float32   `json:"lines"`
	Groups []EdgeGroup `json:"edgeGroups"`
}

// EdgeGroup maps a range of line points back to its edge.
type EdgeGroup struct {
	Start  int `json:"start"`
	Count  int `json:"count"`
	EdgeID int `json:"edgeId"`
}

// circleSegments picks the segment count that keeps the chord deviation
// within tolerance.
func circleSegments(radius, tolerance float64) int {
	if tolerance <= 0 || tolerance >= radius {
		return minCircleSegments
	}
	n := int(math.Ceil(math.Pi / math.Acos(1-tolerance/radius)))
	return min(max(n, minCircleSegments), maxCircleSegments)
}

func tessellate(s *Shape, opts domain.MeshOptions) Mesh {
	tolerance := opts.Precision
	if tolerance <= 0 {
		tolerance = domain.DefaultMeshPrecision
	}
	orient := identity
	if opts.AdjustYtoZ {
		orient = vec.yToZ
	}
	appendVec := func(buf []float32, v vec) []float32 {
		v = orient(v)
		return append(buf, float32(v[0]), float32(v[1]), float32(v[2]))
	}

	var m Mesh
	for id, f := range s.allFaces() {
		base := uint32(len(m.Faces.Vertices) / 3)
		start := len(m.Faces.Triangles)
		for _, p := range f.vertices {
			m.Faces.Vertices = appendVec(m.Faces.Vertices, p)
			m.Faces.Normals = appendVec(m.Faces.Normals, f.normal)
		}
		for _, tri := range f.triangles {
			m.Faces.Triangles = append(m.Faces.Triangles, base+tri[0], base+tri[1], base+tri[2])
		}
		m.Faces.Groups = append(m.Faces.Groups, FaceGroup{
			Start:  start,
			Count:  len(m.Faces.Triangles) - start,
			FaceID: id,
		})
	}

	for id, e := range s.allEdges() {
		points := e.points
		if e.circle != nil {
			points = e.circle.sample(circleSegments(e.circle.radius, tolerance))
		}
		start := len(m.Edges.Lines) / 3
		for i := 1; i < len(points); i++ {
			m.Edges.Lines = appendVec(m.Edges.Lines, points[i-1])
			m.Edges.Lines = appendVec(m.Edges.Lines, points[i])
		}
		m.Edges.Groups = append(m.Edges.Groups, EdgeGroup{
			Start:  start,
			Count:  len(m.Edges.Lines)/3 - start,
			EdgeID: id,
		})
	}
	return m
}
