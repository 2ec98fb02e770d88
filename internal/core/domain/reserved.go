package domain

// Reserved operation names. They never go through the memoizing store.
const (
	OpShapeToMesh    = "shapeToMesh"
	OpShapesToMeshes = "shapesToMeshes"
	OpDeleteShape    = "deleteShape"
	OpDeleteShapes   = "deleteShapes"
	OpStartedTheRun  = "startedTheRun"
	OpCleanAllCache  = "cleanAllCache"
	OpAddDependency  = "addDependency"
	OpSaveShapeSTEP  = "saveShapeSTEP"
)

var reservedOps = map[string]struct{}{
	OpShapeToMesh:    {},
	OpShapesToMeshes: {},
	OpDeleteShape:    {},
	OpDeleteShapes:   {},
	OpStartedTheRun:  {},
	OpCleanAllCache:  {},
	OpAddDependency:  {},
	OpSaveShapeSTEP:  {},
}

// IsReserved reports whether name is one of the reserved operations.
func IsReserved(name string) bool {
	_, ok := reservedOps[name]
	return ok
}

// MeshOptions controls tessellation of a shape.
type MeshOptions struct {
	Precision  float64
	AdjustYtoZ bool
}

// DefaultMeshPrecision is used when a request does not specify one.
const DefaultMeshPrecision = 0.01

// StepOptions controls STEP export.
type StepOptions struct {
	FileName   string
	AdjustYtoZ bool
}
