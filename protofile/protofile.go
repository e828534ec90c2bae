// Package protofile is the interchange format between a compiler and the
// dumper: a prototype tree encoded as canonical CBOR.
package protofile

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"

	"github.com/chazu/luadump/chunk"
)

var log = commonlog.GetLogger("luadump.protofile")

// Kind identifies a prototype file.
const Kind = "luadump/prototype"

// Version is the current interchange format version.
const Version uint16 = 1

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	// Canonical encoding rewrites every NaN as 0x7e00; number constants
	// must keep their exact bits.
	opts := cbor.CanonicalEncOptions()
	opts.NaNConvert = cbor.NaNConvertNone
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("protofile: failed to create CBOR enc mode: %v", err))
	}
	encMode = em

	// Every nesting level of the prototype tree costs two CBOR levels
	// (map and array), so the default limit of 32 is far too small.
	dm, err := cbor.DecOptions{
		MaxNestedLevels:  2*chunk.MaxNesting + 16,
		MaxArrayElements: 1 << 24,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("protofile: failed to create CBOR dec mode: %v", err))
	}
	decMode = dm
}

// EncMode returns the encoding mode for prototype files. Messages that
// embed a File should be encoded with it.
func EncMode() cbor.EncMode {
	return encMode
}

// DecMode returns the decoding mode for prototype files. Its limits admit
// trees nested up to chunk.MaxNesting levels.
func DecMode() cbor.DecMode {
	return decMode
}

// DecodeError maps CBOR nesting-limit failures to chunk.ErrTooDeep and
// returns other errors unchanged.
func DecodeError(err error) error {
	var nested *cbor.MaxNestedLevelError
	if errors.As(err, &nested) {
		return fmt.Errorf("%w: %w", chunk.ErrTooDeep, err)
	}
	return err
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

// File is the top-level document.
type File struct {
	Kind    string    `cbor:"kind"`
	Version uint16    `cbor:"version"`
	Main    *Function `cbor:"main"`
}

// Function mirrors chunk.Prototype.
type Function struct {
	LineDefined     int32      `cbor:"line"`
	LastLineDefined int32      `cbor:"lastline"`
	NumParams       uint8      `cbor:"params"`
	IsVarArg        bool       `cbor:"vararg"`
	MaxStackSize    uint8      `cbor:"stack"`
	Code            []uint32   `cbor:"code,omitempty"`
	Constants       []Constant `cbor:"k,omitempty"`
	Functions       []Function `cbor:"p,omitempty"`
	Upvalues        []Upvalue  `cbor:"upvalues,omitempty"`
	Source          *string    `cbor:"source,omitempty"`
	LineInfo        []int32    `cbor:"lineinfo,omitempty"`
	LocVars         []LocVar   `cbor:"locvars,omitempty"`
}

// Constant mirrors chunk.Constant; Type uses the same tag values.
type Constant struct {
	Type   uint8   `cbor:"t"`
	Bool   bool    `cbor:"b,omitempty"`
	Number float64 `cbor:"n"`
	Str    *string `cbor:"s,omitempty"`
}

type Upvalue struct {
	InStack bool   `cbor:"instack"`
	Index   uint8  `cbor:"idx"`
	Name    string `cbor:"name,omitempty"`
}

type LocVar struct {
	Name    string `cbor:"name"`
	StartPc int32  `cbor:"start"`
	EndPc   int32  `cbor:"end"`
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

// FromPrototype converts an in-memory tree to its wire form.
func FromPrototype(p *chunk.Prototype) *File {
	return &File{Kind: Kind, Version: Version, Main: fromProto(p)}
}

func fromProto(p *chunk.Prototype) *Function {
	f := &Function{
		LineDefined:     p.LineDefined,
		LastLineDefined: p.LastLineDefined,
		NumParams:       p.NumParams,
		IsVarArg:        p.IsVarArg,
		MaxStackSize:    p.MaxStackSize,
		Code:            p.Code,
		Source:          p.Source,
		LineInfo:        p.LineInfo,
	}
	for _, k := range p.K {
		f.Constants = append(f.Constants, Constant{Type: uint8(k.Type), Bool: k.Bool, Number: k.Number, Str: k.Str})
	}
	for _, child := range p.P {
		f.Functions = append(f.Functions, *fromProto(child))
	}
	for _, uv := range p.Upvalues {
		f.Upvalues = append(f.Upvalues, Upvalue{InStack: uv.InStack, Index: uv.Index, Name: uv.Name})
	}
	for _, lv := range p.LocVars {
		f.LocVars = append(f.LocVars, LocVar{Name: lv.VarName, StartPc: lv.StartPc, EndPc: lv.EndPc})
	}
	return f
}

// Prototype converts the wire form back into a tree. Unlike an in-memory
// tree handed to chunk.Dump, a decoded file is untrusted input, so unknown
// constant tags are reported as errors.
func (f *File) Prototype() (*chunk.Prototype, error) {
	if f.Kind != Kind {
		return nil, fmt.Errorf("%w: kind %q", ErrNotPrototypeFile, f.Kind)
	}
	if f.Version != Version {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrUnsupportedVersion, f.Version, Version)
	}
	if f.Main == nil {
		return nil, ErrNoMain
	}
	return f.Main.toProto("main", 0)
}

func (f *Function) toProto(path string, depth int) (*chunk.Prototype, error) {
	if depth > chunk.MaxNesting {
		return nil, fmt.Errorf("%w: %s", chunk.ErrTooDeep, path)
	}
	p := &chunk.Prototype{
		LineDefined:     f.LineDefined,
		LastLineDefined: f.LastLineDefined,
		NumParams:       f.NumParams,
		IsVarArg:        f.IsVarArg,
		MaxStackSize:    f.MaxStackSize,
		Code:            f.Code,
		Source:          f.Source,
		LineInfo:        f.LineInfo,
	}
	for i, k := range f.Constants {
		switch t := chunk.ValueType(k.Type); t {
		case chunk.TypeNil, chunk.TypeBoolean, chunk.TypeNumber, chunk.TypeString:
			p.K = append(p.K, chunk.Constant{Type: t, Bool: k.Bool, Number: k.Number, Str: k.Str})
		default:
			return nil, fmt.Errorf("%w: %s constant %d has type tag %d", ErrBadConstant, path, i, k.Type)
		}
	}
	for i := range f.Functions {
		child, err := f.Functions[i].toProto(fmt.Sprintf("%s/%d", path, i), depth+1)
		if err != nil {
			return nil, err
		}
		p.P = append(p.P, child)
	}
	for _, uv := range f.Upvalues {
		p.Upvalues = append(p.Upvalues, chunk.UpvalueDesc{InStack: uv.InStack, Index: uv.Index, Name: uv.Name})
	}
	for _, lv := range f.LocVars {
		p.LocVars = append(p.LocVars, chunk.LocalVar{VarName: lv.Name, StartPc: lv.StartPc, EndPc: lv.EndPc})
	}
	if len(p.LineInfo) > 0 && len(p.LineInfo) != len(p.Code) {
		log.Warningf("%s: %d line entries for %d instructions", path, len(p.LineInfo), len(p.Code))
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// Marshal encodes a prototype tree as a prototype file.
func Marshal(p *chunk.Prototype) ([]byte, error) {
	return encMode.Marshal(FromPrototype(p))
}

// Unmarshal decodes a prototype file and converts it to a tree.
func Unmarshal(data []byte) (*chunk.Prototype, error) {
	var f File
	if err := decMode.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("protofile: unmarshal: %w", DecodeError(err))
	}
	return f.Prototype()
}

// ReadFile loads a prototype tree from path.
func ReadFile(path string) (*chunk.Prototype, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("protofile: %w", err)
	}
	p, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Debugf("loaded %s: %d prototypes", path, chunk.Count(p))
	return p, nil
}

// WriteFile stores a prototype tree at path.
func WriteFile(path string, p *chunk.Prototype) error {
	data, err := Marshal(p)
	if err != nil {
		return fmt.Errorf("protofile: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
