package chunk

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Instruction decoding (5.2 layout)
// ---------------------------------------------------------------------------

// OpMode is the operand layout of an instruction.
type OpMode byte

const (
	ModeABC OpMode = iota
	ModeABx
	ModeAsBx
	ModeAx
)

// Opcode is the low 6 bits of an instruction word.
type Opcode byte

const (
	OpMove Opcode = iota
	OpLoadK
	OpLoadKX
	OpLoadBool
	OpLoadNil
	OpGetUpval
	OpGetTabUp
	OpGetTable
	OpSetTabUp
	OpSetUpval
	OpSetTable
	OpNewTable
	OpSelf
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpUnm
	OpNot
	OpLen
	OpConcat
	OpJmp
	OpEq
	OpLt
	OpLe
	OpTest
	OpTestSet
	OpCall
	OpTailCall
	OpReturn
	OpForLoop
	OpForPrep
	OpTForCall
	OpTForLoop
	OpSetList
	OpClosure
	OpVararg
	OpExtraArg
	numOpcodes
)

var opNames = [numOpcodes]string{
	"MOVE", "LOADK", "LOADKX", "LOADBOOL", "LOADNIL", "GETUPVAL", "GETTABUP",
	"GETTABLE", "SETTABUP", "SETUPVAL", "SETTABLE", "NEWTABLE", "SELF", "ADD",
	"SUB", "MUL", "DIV", "MOD", "POW", "UNM", "NOT", "LEN", "CONCAT", "JMP",
	"EQ", "LT", "LE", "TEST", "TESTSET", "CALL", "TAILCALL", "RETURN",
	"FORLOOP", "FORPREP", "TFORCALL", "TFORLOOP", "SETLIST", "CLOSURE",
	"VARARG", "EXTRAARG",
}

// String returns the opcode mnemonic.
func (op Opcode) String() string {
	if op < numOpcodes {
		return opNames[op]
	}
	return fmt.Sprintf("OP_%d", byte(op))
}

// Mode returns the operand layout of op.
func (op Opcode) Mode() OpMode {
	switch op {
	case OpLoadK, OpClosure:
		return ModeABx
	case OpJmp, OpForLoop, OpForPrep, OpTForLoop:
		return ModeAsBx
	case OpExtraArg:
		return ModeAx
	default:
		return ModeABC
	}
}

// Field layout: op(6) A(8) C(9) B(9); Bx and Ax span C..B.
const (
	maxArgBx  = 1<<18 - 1
	maxArgSBx = maxArgBx >> 1
	bitRK     = 1 << 8
)

// Instruction is one 32-bit code word.
type Instruction uint32

func (i Instruction) Opcode() Opcode { return Opcode(i & 0x3F) }
func (i Instruction) A() int         { return int(i >> 6 & 0xFF) }
func (i Instruction) B() int         { return int(i >> 23 & 0x1FF) }
func (i Instruction) C() int         { return int(i >> 14 & 0x1FF) }
func (i Instruction) Bx() int        { return int(i >> 14) }
func (i Instruction) SBx() int       { return i.Bx() - maxArgSBx }
func (i Instruction) Ax() int        { return int(i >> 6) }

// Operands formats the instruction's arguments the way luac -l does;
// register/constant operands show constants as negative numbers.
func (i Instruction) Operands() string {
	op := i.Opcode()
	switch op.Mode() {
	case ModeABx:
		if op == OpLoadK {
			return fmt.Sprintf("%d %d", i.A(), -1-i.Bx())
		}
		return fmt.Sprintf("%d %d", i.A(), i.Bx())
	case ModeAsBx:
		return fmt.Sprintf("%d %d", i.A(), i.SBx())
	case ModeAx:
		return fmt.Sprintf("%d", -1-i.Ax())
	}
	return fmt.Sprintf("%d %d %d", i.A(), rk(i.B()), rk(i.C()))
}

func rk(x int) int {
	if x&bitRK != 0 {
		return -1 - (x &^ bitRK)
	}
	return x
}

// ---------------------------------------------------------------------------
// Listing
// ---------------------------------------------------------------------------

// List returns a human-readable listing of p and its nested prototypes.
// With full set it also prints the constant, local and upvalue tables.
func List(p *Prototype, full bool) string {
	var sb strings.Builder
	Walk(p, func(fn *Prototype, depth int) {
		listFunction(&sb, fn, depth == 0, full)
	})
	return sb.String()
}

func listFunction(sb *strings.Builder, p *Prototype, main, full bool) {
	source := "=?"
	if p.Source != nil {
		source = *p.Source
	}
	kind := "function"
	if main {
		kind = "main"
	}
	vararg := ""
	if p.IsVarArg {
		vararg = "+"
	}

	fmt.Fprintf(sb, "\n%s <%s:%d,%d> (%d instructions)\n",
		kind, source, p.LineDefined, p.LastLineDefined, len(p.Code))
	fmt.Fprintf(sb, "%d%s params, %d slots, %d upvalues, %d locals, %d constants, %d functions\n",
		p.NumParams, vararg, p.MaxStackSize, len(p.Upvalues), len(p.LocVars), len(p.K), len(p.P))

	for pc, word := range p.Code {
		ins := Instruction(word)
		line := "-"
		if pc < len(p.LineInfo) {
			line = fmt.Sprintf("%d", p.LineInfo[pc])
		}
		fmt.Fprintf(sb, "\t%d\t[%s]\t%-9s\t%s\n", pc+1, line, ins.Opcode(), ins.Operands())
	}

	if !full {
		return
	}

	fmt.Fprintf(sb, "constants (%d):\n", len(p.K))
	for i, k := range p.K {
		fmt.Fprintf(sb, "\t%d\t%#v\n", i+1, k)
	}
	fmt.Fprintf(sb, "locals (%d):\n", len(p.LocVars))
	for i, lv := range p.LocVars {
		fmt.Fprintf(sb, "\t%d\t%s\t%d\t%d\n", i, lv.VarName, lv.StartPc+1, lv.EndPc+1)
	}
	fmt.Fprintf(sb, "upvalues (%d):\n", len(p.Upvalues))
	for i, uv := range p.Upvalues {
		instack := 0
		if uv.InStack {
			instack = 1
		}
		fmt.Fprintf(sb, "\t%d\t%s\t%d\t%d\n", i, uv.Name, instack, uv.Index)
	}
}
