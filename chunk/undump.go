package chunk

import (
	"errors"
	"fmt"
	"io"
	"math"
)

// ---------------------------------------------------------------------------
// Chunk Reader Errors
// ---------------------------------------------------------------------------

var (
	ErrBadSignature    = errors.New("chunk: not a precompiled chunk")
	ErrVersionMismatch = errors.New("chunk: version mismatch")
	ErrFormatMismatch  = errors.New("chunk: format mismatch")
	ErrHeaderMismatch  = errors.New("chunk: incompatible header")
	ErrBadTail         = errors.New("chunk: corrupted header tail")
	ErrTruncated       = errors.New("chunk: truncated")
	ErrBadConstant     = errors.New("chunk: bad constant")
	ErrCorrupt         = errors.New("chunk: corrupt data")
	ErrTooDeep         = errors.New("chunk: prototypes nested too deeply")
)

// MaxNesting bounds the prototype depth the reader accepts.
const MaxNesting = 200

// Header is the parsed chunk preamble.
type Header struct {
	Version         byte
	Format          byte
	LittleEndian    bool
	SizeInt         byte
	SizeSizeT       byte
	SizeInstruction byte
	SizeNumber      byte
	Integral        bool
}

// ReadHeader parses and validates the preamble at the start of data. Only
// chunks written by this host's Dump are accepted.
func ReadHeader(data []byte) (*Header, error) {
	if len(data) < len(Signature) || string(data[:len(Signature)]) != Signature {
		return nil, ErrBadSignature
	}
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d", ErrTruncated, HeaderSize, len(data))
	}

	b := data[len(Signature):]
	h := &Header{
		Version:         b[0],
		Format:          b[1],
		LittleEndian:    b[2] == 1,
		SizeInt:         b[3],
		SizeSizeT:       b[4],
		SizeInstruction: b[5],
		SizeNumber:      b[6],
		Integral:        b[7] != 0,
	}

	if h.Version != Version {
		return nil, fmt.Errorf("%w: expected %#x, got %#x", ErrVersionMismatch, Version, h.Version)
	}
	if h.Format != Format {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrFormatMismatch, Format, h.Format)
	}

	want := BuildHeader()
	off := len(Signature) + 2
	for i := off; i < off+6; i++ {
		if data[i] != want[i] {
			return nil, fmt.Errorf("%w: byte %d is %d, expected %d", ErrHeaderMismatch, i, data[i], want[i])
		}
	}
	if string(data[HeaderSize-len(Tail):HeaderSize]) != Tail {
		return nil, ErrBadTail
	}
	return h, nil
}

// ---------------------------------------------------------------------------
// Undump
// ---------------------------------------------------------------------------

// Undump parses a complete chunk back into a prototype tree.
func Undump(data []byte) (*Prototype, error) {
	if _, err := ReadHeader(data); err != nil {
		return nil, err
	}
	r := &undumpState{data: data, off: HeaderSize}
	p, err := r.readFunction(0)
	if err != nil {
		return nil, err
	}
	if r.off != len(data) {
		log.Debugf("ignoring %d trailing bytes after chunk", len(data)-r.off)
	}
	return p, nil
}

// UndumpFrom reads all of r and parses it as a chunk.
func UndumpFrom(r io.Reader) (*Prototype, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("chunk: read: %w", err)
	}
	return Undump(data)
}

type undumpState struct {
	data []byte
	off  int
}

func (r *undumpState) take(n int) ([]byte, error) {
	if n < 0 || len(r.data)-r.off < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d", ErrTruncated, n, r.off)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *undumpState) readByte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *undumpState) readBool() (bool, error) {
	b, err := r.readByte()
	return b != 0, err
}

func (r *undumpState) readUint() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint32(b), nil
}

func (r *undumpState) readInt() (int32, error) {
	v, err := r.readUint()
	return int32(v), err
}

func (r *undumpState) readNumber() (float64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(byteOrder.Uint64(b)), nil
}

func (r *undumpState) readString() (*string, error) {
	n, err := r.readUint()
	if err != nil || n == 0 {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	s := string(b[:n-1])
	return &s, nil
}

func (r *undumpState) readName() (string, error) {
	s, err := r.readString()
	if err != nil || s == nil {
		return "", err
	}
	return *s, nil
}

// readCount reads a sequence length and rejects counts that could not fit
// in the remaining data, given the smallest encoded element size.
func (r *undumpState) readCount(minElem int) (int, error) {
	n, err := r.readUint()
	if err != nil {
		return 0, err
	}
	if minElem > 0 && int64(n)*int64(minElem) > int64(len(r.data)-r.off) {
		return 0, fmt.Errorf("%w: %d elements declared at offset %d", ErrTruncated, n, r.off-4)
	}
	return int(n), nil
}

// readVector reads a count and then that many elements. An empty sequence
// comes back as nil.
func readVector[T any](r *undumpState, minElem int, item func() (T, error)) ([]T, error) {
	n, err := r.readCount(minElem)
	if err != nil || n == 0 {
		return nil, err
	}
	list := make([]T, n)
	for i := range list {
		if list[i], err = item(); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (r *undumpState) readFunction(depth int) (*Prototype, error) {
	if depth > MaxNesting {
		return nil, ErrTooDeep
	}
	p := &Prototype{}
	var err error

	if p.LineDefined, err = r.readInt(); err != nil {
		return nil, err
	}
	if p.LastLineDefined, err = r.readInt(); err != nil {
		return nil, err
	}
	if p.NumParams, err = r.readByte(); err != nil {
		return nil, err
	}
	if p.IsVarArg, err = r.readBool(); err != nil {
		return nil, err
	}
	if p.MaxStackSize, err = r.readByte(); err != nil {
		return nil, err
	}
	if p.Code, err = readVector(r, 4, r.readUint); err != nil {
		return nil, err
	}
	if p.K, err = readVector(r, 1, r.readConstant); err != nil {
		return nil, err
	}
	if p.P, err = readVector(r, 1, func() (*Prototype, error) { return r.readFunction(depth + 1) }); err != nil {
		return nil, err
	}
	if p.Upvalues, err = readVector(r, 2, r.readUpvalue); err != nil {
		return nil, err
	}
	if err := r.readDebug(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *undumpState) readConstant() (Constant, error) {
	tag, err := r.readByte()
	if err != nil {
		return Constant{}, err
	}
	k := Constant{Type: ValueType(tag)}
	switch k.Type {
	case TypeNil:
	case TypeBoolean:
		k.Bool, err = r.readBool()
	case TypeNumber:
		k.Number, err = r.readNumber()
	case TypeString:
		k.Str, err = r.readString()
	default:
		return Constant{}, fmt.Errorf("%w: unknown type tag %d at offset %d", ErrBadConstant, tag, r.off-1)
	}
	return k, err
}

func (r *undumpState) readUpvalue() (UpvalueDesc, error) {
	var uv UpvalueDesc
	var err error
	if uv.InStack, err = r.readBool(); err != nil {
		return uv, err
	}
	uv.Index, err = r.readByte()
	return uv, err
}

// readDebug fills the debug fields of p. Upvalue names are matched to the
// descriptors by position; a stripped chunk carries none.
func (r *undumpState) readDebug(p *Prototype) error {
	var err error
	if p.Source, err = r.readString(); err != nil {
		return err
	}
	if p.LineInfo, err = readVector(r, 4, r.readInt); err != nil {
		return err
	}
	if p.LocVars, err = readVector(r, 12, r.readLocVar); err != nil {
		return err
	}
	names, err := readVector(r, 4, r.readName)
	if err != nil {
		return err
	}
	for i, name := range names {
		if i >= len(p.Upvalues) {
			return fmt.Errorf("%w: %d upvalue names for %d upvalues", ErrCorrupt, len(names), len(p.Upvalues))
		}
		p.Upvalues[i].Name = name
	}
	return nil
}

func (r *undumpState) readLocVar() (LocalVar, error) {
	var lv LocalVar
	var err error
	if lv.VarName, err = r.readName(); err != nil {
		return lv, err
	}
	if lv.StartPc, err = r.readInt(); err != nil {
		return lv, err
	}
	lv.EndPc, err = r.readInt()
	return lv, err
}
