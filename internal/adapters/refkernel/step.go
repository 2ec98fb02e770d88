package refkernel

import (
	"fmt"
	"strings"

	"go.trai.ch/kernelproxy/internal/core/domain"
)

const defaultStepName = "shape.step"

// writeSTEP emits a faceted boundary representation. Every face becomes a
// POLY_LOOP over its vertices.
func writeSTEP(s *Shape, opts domain.StepOptions) []byte {
	name := opts.FileName
	if name == "" {
		name = defaultStepName
	}
	orient := identity
	if opts.AdjustYtoZ {
		orient = vec.yToZ
	}

	var b strings.Builder
	b.WriteString("ISO-10303-21;\nHEADER;\n")
	b.WriteString("FILE_DESCRIPTION(('kernelproxy reference kernel'),'2;1');\n")
	fmt.Fprintf(&b, "FILE_NAME('%s','',(''),(''),'kernelproxy','','');\n", escapeStep(name))
	b.WriteString("FILE_SCHEMA(('CONFIG_CONTROL_DESIGN'));\nENDSEC;\nDATA;\n")

	id := 0
	next := func() int {
		id++
		return id
	}

	faces := s.allFaces()
	loops := make([]int, 0, len(faces))
	for _, f := range faces {
		points := make([]string, len(f.vertices))
		for i, p := range f.vertices {
			p = orient(p)
			n := next()
			fmt.Fprintf(&b, "#%d=CARTESIAN_POINT('',(%s,%s,%s));\n", n, stepReal(p[0]), stepReal(p[1]), stepReal(p[2]))
			points[i] = fmt.Sprintf("#%d", n)
		}
		loop := next()
		fmt.Fprintf(&b, "#%d=POLY_LOOP('',(%s));\n", loop, strings.Join(points, ","))
		bound := next()
		fmt.Fprintf(&b, "#%d=FACE_OUTER_BOUND('',#%d,.T.);\n", bound, loop)
		loops = append(loops, next())
		fmt.Fprintf(&b, "#%d=FACE('',(#%d));\n", loops[len(loops)-1], bound)
	}

	refs := make([]string, len(loops))
	for i, l := range loops {
		refs[i] = fmt.Sprintf("#%d", l)
	}
	shell := next()
	fmt.Fprintf(&b, "#%d=CLOSED_SHELL('',(%s));\n", shell, strings.Join(refs, ","))
	fmt.Fprintf(&b, "#%d=FACETED_BREP('%s',#%d);\n", next(), s.ShapeType(), shell)
	b.WriteString("ENDSEC;\nEND-ISO-10303-21;\n")
	return []byte(b.String())
}

func stepReal(f float64) string {
	s := fmt.Sprintf("%g", f)
	if !strings.ContainsAny(s, ".eE") {
		s += "."
	}
	return s
}

func escapeStep(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
