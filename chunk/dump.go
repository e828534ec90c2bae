package chunk

import (
	"fmt"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("luadump.chunk")

// Dump serializes the prototype tree rooted at p to w as a precompiled
// chunk: the header, then p and its nested prototypes depth-first. With
// strip set the debug section of every prototype is written empty.
//
// The returned status is StatusError if w failed on any block. After the
// first failure no further blocks reach w, but the tree is still walked to
// the end. Dump panics if a constant carries an unknown type tag.
func Dump(p *Prototype, w Writer, strip bool) Status {
	d := &dumpState{
		w:      w,
		strip:  strip,
		status: StatusOK,
	}
	d.dumpHeader()
	d.dumpFunction(p)

	log.Debugf("dumped %d prototypes in %d blocks (strip=%t): %s", Count(p), d.blocks, strip, d.status)
	return d.status
}

func (d *dumpState) dumpHeader() {
	d.block(BuildHeader())
}

// dumpFunction writes one prototype and, recursively, its children.
func (d *dumpState) dumpFunction(p *Prototype) {
	d.dumpInt(p.LineDefined)
	d.dumpInt(p.LastLineDefined)
	d.dumpByte(p.NumParams)
	d.dumpBool(p.IsVarArg)
	d.dumpByte(p.MaxStackSize)
	d.dumpCode(p)
	d.dumpConstants(p)
	d.dumpUpvalues(p)
	d.dumpDebug(p)
}

func (d *dumpState) dumpCode(p *Prototype) {
	dumpVector(d, p.Code, d.dumpUint)
}

// dumpConstants writes the constant pool followed by the nested prototypes.
func (d *dumpState) dumpConstants(p *Prototype) {
	dumpVector(d, p.K, d.dumpConstant)
	dumpVector(d, p.P, d.dumpFunction)
}

func (d *dumpState) dumpConstant(k Constant) {
	d.dumpByte(byte(k.Type))
	switch k.Type {
	case TypeNil:
	case TypeBoolean:
		d.dumpBool(k.Bool)
	case TypeNumber:
		d.dumpNumber(k.Number)
	case TypeString:
		d.dumpString(k.Str)
	default:
		panic(fmt.Sprintf("chunk: constant with unknown type tag %d", byte(k.Type)))
	}
}

func (d *dumpState) dumpUpvalues(p *Prototype) {
	dumpVector(d, p.Upvalues, func(uv UpvalueDesc) {
		d.dumpBool(uv.InStack)
		d.dumpByte(uv.Index)
	})
}

// dumpDebug writes source name, line info, locals and upvalue names. A
// stripped dump writes an absent source and three empty sequences whatever
// the prototype holds.
func (d *dumpState) dumpDebug(p *Prototype) {
	if d.strip {
		d.dumpString(nil)
		d.dumpUint(0)
		d.dumpUint(0)
		d.dumpUint(0)
		return
	}

	d.dumpString(p.Source)
	dumpVector(d, p.LineInfo, d.dumpInt)
	dumpVector(d, p.LocVars, func(lv LocalVar) {
		d.dumpName(lv.VarName)
		d.dumpInt(lv.StartPc)
		d.dumpInt(lv.EndPc)
	})
	dumpVector(d, p.Upvalues, func(uv UpvalueDesc) {
		d.dumpName(uv.Name)
	})
}
