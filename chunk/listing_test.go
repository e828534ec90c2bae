package chunk

import (
	"strings"
	"testing"
)

func encodeABC(op Opcode, a, b, c int) uint32 {
	return uint32(op) | uint32(a)<<6 | uint32(c)<<14 | uint32(b)<<23
}

func encodeABx(op Opcode, a, bx int) uint32 {
	return uint32(op) | uint32(a)<<6 | uint32(bx)<<14
}

func TestInstructionDecode(t *testing.T) {
	ins := Instruction(encodeABC(OpAdd, 3, 1|bitRK, 2))
	if ins.Opcode() != OpAdd {
		t.Fatalf("opcode = %s, want ADD", ins.Opcode())
	}
	if ins.A() != 3 || ins.B() != 1|bitRK || ins.C() != 2 {
		t.Errorf("A,B,C = %d,%d,%d", ins.A(), ins.B(), ins.C())
	}
	if got := ins.Operands(); got != "3 -2 2" {
		t.Errorf("Operands = %q, want %q", got, "3 -2 2")
	}

	jmp := Instruction(encodeABx(OpJmp, 0, maxArgSBx-2))
	if jmp.SBx() != -2 {
		t.Errorf("sBx = %d, want -2", jmp.SBx())
	}

	loadk := Instruction(encodeABx(OpLoadK, 1, 4))
	if got := loadk.Operands(); got != "1 -5" {
		t.Errorf("LOADK operands = %q, want %q", got, "1 -5")
	}
}

func TestOpcodeNames(t *testing.T) {
	if OpMove.String() != "MOVE" || OpExtraArg.String() != "EXTRAARG" {
		t.Errorf("names = %s, %s", OpMove, OpExtraArg)
	}
	if Opcode(63).String() != "OP_63" {
		t.Errorf("unknown opcode name = %s", Opcode(63))
	}
	if OpClosure.Mode() != ModeABx || OpForLoop.Mode() != ModeAsBx || OpExtraArg.Mode() != ModeAx {
		t.Error("unexpected opcode modes")
	}
}

func TestList(t *testing.T) {
	p := &Prototype{
		IsVarArg:     true,
		MaxStackSize: 2,
		Code: []uint32{
			encodeABx(OpLoadK, 0, 0),
			encodeABC(OpReturn, 0, 1, 0),
		},
		K:        []Constant{String("hi")},
		P:        []*Prototype{{LineDefined: 2, LastLineDefined: 4}},
		Source:   StrPtr("@t.lua"),
		LineInfo: []int32{1, 1},
		LocVars:  []LocalVar{{VarName: "s", StartPc: 0, EndPc: 2}},
		Upvalues: []UpvalueDesc{{InStack: true, Name: "_ENV"}},
	}

	out := List(p, false)
	for _, want := range []string{
		"main <@t.lua:0,0> (2 instructions)",
		"0+ params, 2 slots, 1 upvalues, 1 locals, 1 constants, 1 functions",
		"LOADK",
		"RETURN",
		"function <=?:2,4> (0 instructions)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "constants (") {
		t.Error("short listing printed constant table")
	}

	full := List(p, true)
	for _, want := range []string{"constants (1):", `"hi"`, "locals (1):", "upvalues (1):", "_ENV"} {
		if !strings.Contains(full, want) {
			t.Errorf("full listing missing %q:\n%s", want, full)
		}
	}
}

func TestConstantGoString(t *testing.T) {
	tests := []struct {
		k    Constant
		want string
	}{
		{Nil(), "nil"},
		{Bool(true), "true"},
		{Number(3), "3"},
		{String("x"), `"x"`},
		{NullString(), "(null)"},
	}
	for _, tt := range tests {
		if got := tt.k.GoString(); got != tt.want {
			t.Errorf("GoString(%v) = %q, want %q", tt.k.Type, got, tt.want)
		}
	}
}
