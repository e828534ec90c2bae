package chunk

import "fmt"

// ---------------------------------------------------------------------------
// Prototype: compiled function body
// ---------------------------------------------------------------------------

// Prototype is the compiled representation of one function body. A
// prototype exclusively owns its nested prototypes in P; the tree has no
// back-references.
type Prototype struct {
	LineDefined     int32
	LastLineDefined int32
	NumParams       uint8
	IsVarArg        bool
	MaxStackSize    uint8

	Code     []uint32
	K        []Constant
	P        []*Prototype
	Upvalues []UpvalueDesc

	// Debug information. Dropped from the output when dumping stripped.
	Source   *string
	LineInfo []int32 // one entry per instruction when present
	LocVars  []LocalVar
}

// UpvalueDesc describes one captured variable of a closure.
type UpvalueDesc struct {
	InStack bool  // captured from the enclosing function's registers
	Index   uint8 // register or upvalue index in the enclosing function
	Name    string
}

// LocalVar is the debug record for one local variable.
type LocalVar struct {
	VarName string
	StartPc int32 // first instruction where the variable is active
	EndPc   int32 // first instruction where the variable is dead
}

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

// ValueType is the tag byte written in front of each constant. The values
// match the Lua type codes.
type ValueType byte

const (
	TypeNil     ValueType = 0
	TypeBoolean ValueType = 1
	TypeNumber  ValueType = 3
	TypeString  ValueType = 4
)

// String returns the Lua name of the type.
func (t ValueType) String() string {
	switch t {
	case TypeNil:
		return "nil"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	default:
		return fmt.Sprintf("type(%d)", byte(t))
	}
}

// Constant is one entry of a prototype's constant pool. Type selects which
// payload field is meaningful; the others are ignored.
type Constant struct {
	Type   ValueType
	Bool   bool
	Number float64
	Str    *string
}

// Nil returns the nil constant.
func Nil() Constant {
	return Constant{Type: TypeNil}
}

// Bool returns a boolean constant.
func Bool(b bool) Constant {
	return Constant{Type: TypeBoolean, Bool: b}
}

// Number returns a numeric constant.
func Number(f float64) Constant {
	return Constant{Type: TypeNumber, Number: f}
}

// String returns a string constant.
func String(s string) Constant {
	return Constant{Type: TypeString, Str: &s}
}

// NullString returns a string constant with no value, encoded like an
// absent string.
func NullString() Constant {
	return Constant{Type: TypeString}
}

// StrPtr returns a pointer to s, for filling nullable string fields.
func StrPtr(s string) *string {
	return &s
}

// Equal reports whether two constants carry the same tag and payload.
// Numbers compare by value, so NaN never equals itself.
func (c Constant) Equal(o Constant) bool {
	if c.Type != o.Type {
		return false
	}
	switch c.Type {
	case TypeNil:
		return true
	case TypeBoolean:
		return c.Bool == o.Bool
	case TypeNumber:
		return c.Number == o.Number
	case TypeString:
		if c.Str == nil || o.Str == nil {
			return c.Str == nil && o.Str == nil
		}
		return *c.Str == *o.Str
	default:
		return false
	}
}

// GoString renders the constant the way a listing shows it.
func (c Constant) GoString() string {
	switch c.Type {
	case TypeNil:
		return "nil"
	case TypeBoolean:
		if c.Bool {
			return "true"
		}
		return "false"
	case TypeNumber:
		return fmt.Sprintf("%.14g", c.Number)
	case TypeString:
		if c.Str == nil {
			return "(null)"
		}
		return fmt.Sprintf("%q", *c.Str)
	default:
		return fmt.Sprintf("<%s>", c.Type)
	}
}

// ---------------------------------------------------------------------------
// Tree helpers
// ---------------------------------------------------------------------------

// Walk visits p and then every nested prototype depth-first, in the order
// they are serialized. depth is 0 for p.
func Walk(p *Prototype, fn func(p *Prototype, depth int)) {
	walk(p, 0, fn)
}

func walk(p *Prototype, depth int, fn func(*Prototype, int)) {
	if p == nil {
		return
	}
	fn(p, depth)
	for _, child := range p.P {
		walk(child, depth+1, fn)
	}
}

// Count returns the number of prototypes in the tree rooted at p.
func Count(p *Prototype) int {
	n := 0
	Walk(p, func(*Prototype, int) { n++ })
	return n
}
