package domain

// Kind tags every value crossing the kernel facade boundary.
type Kind uint8

const (
	// KindPlain is serializable data that needs no handle.
	KindPlain Kind = iota
	// KindShape is a geometry-bearing kernel object.
	KindShape
	// KindEntity is any other kernel handle, such as a document.
	KindEntity
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindShape:
		return "shape"
	case KindEntity:
		return "entity"
	default:
		return "plain"
	}
}

// Object is a live kernel object owned by the worker.
// Implementations must be pointer types so the store can track them by identity.
type Object interface {
	// Kind reports whether the object is a shape or an entity.
	Kind() Kind
	// Key returns the fingerprint the store stamped on the object, or zero.
	Key() Fingerprint
	// Stamp records the fingerprint under which the object is stored.
	Stamp(key Fingerprint)
	// Pointer returns the native address of the object. It never takes part in identity.
	Pointer() uintptr
	// Probe returns nil while the native object is alive.
	Probe() error
}

// Keyed is implemented by values that carry a store fingerprint.
type Keyed interface {
	Key() Fingerprint
}

// ShapeTyper is the capability that marks geometry objects which were not
// annotated with an explicit Kind by the facade.
type ShapeTyper interface {
	ShapeType() string
}

// KindOf classifies v. Objects report their own kind; values carrying a key
// and a shape-type query are treated as shapes; keyed values without it are entities.
func KindOf(v any) Kind {
	switch o := v.(type) {
	case nil:
		return KindPlain
	case Object:
		return o.Kind()
	case Keyed:
		if _, ok := v.(ShapeTyper); ok {
			return KindShape
		}
		return KindEntity
	default:
		return KindPlain
	}
}

// Child is a named member of a Composite.
type Child struct {
	ID    string `json:"id"`
	Shape Object `json:"shape"`
}

// Composite is a grouping result: a compound kernel object, opaque associated
// data and a per-child breakdown.
type Composite struct {
	Compound Object  `json:"compound"`
	Data     any     `json:"data"`
	Shapes   []Child `json:"shapes"`
	// Extra holds any additional fields the operation returned alongside the grouping.
	Extra map[string]any `json:"-"`
}

// Objects returns the compound followed by every child shape.
func (c *Composite) Objects() []Object {
	objs := make([]Object, 0, len(c.Shapes)+1)
	if c.Compound != nil {
		objs = append(objs, c.Compound)
	}
	for _, child := range c.Shapes {
		if child.Shape != nil {
			objs = append(objs, child.Shape)
		}
	}
	return objs
}
