package opcode

import "testing"

type fakeMem map[uint32]uint8

func (m fakeMem) ReadByte(a uint32) (uint8, error) { return m[uint32(a)], nil }
func (m fakeMem) ReadWord(a uint32) (uint16, error) {
	return uint16(m[a])<<8 | uint16(m[a+1]), nil
}

func TestDecodeLongForm2OP(t *testing.T) {
	// je (2OP/1), long form, both operands small constants: 0x01, 0x05, 0x05
	mem := fakeMem{0x100: 0b0000_0001, 0x101: 5, 0x102: 5}
	inst, err := Decode(mem, 0x100, 3, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.Number != 1 || inst.Count != OP2 {
		t.Fatalf("expected je (2OP/1), got count=%v number=%d", inst.Count, inst.Number)
	}
	if !inst.Info.Branches {
		t.Fatalf("je should be marked as branching")
	}
	if len(inst.Operands) != 2 {
		t.Fatalf("expected 2 operands, got %d", len(inst.Operands))
	}
}

func TestDecodeShortForm0OP(t *testing.T) {
	// rtrue: short form, operand type omitted (0b11), opcode number 0 -> 0xB0
	mem := fakeMem{0x200: 0b1011_0000}
	inst, err := Decode(mem, 0x200, 3, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.Count != OP0 || inst.Number != 0 {
		t.Fatalf("expected rtrue (0OP/0), got count=%v number=%d", inst.Count, inst.Number)
	}
	if inst.NextAddr != 0x201 {
		t.Fatalf("expected next addr 0x201, got 0x%x", inst.NextAddr)
	}
}

func TestDecodeVariableFormStores(t *testing.T) {
	// add (2OP/20) encoded in variable form with two small-constant operands
	// and a store byte: opcode byte 0xd4 (var form, 2OP bit clear, number 20)
	mem := fakeMem{
		0x300: 0b1101_0100,
		0x301: 0b0101_1111, // smallConstant, smallConstant, omitted, omitted
		0x302: 2,
		0x303: 3,
		0x304: 0x05, // store target
	}
	inst, err := Decode(mem, 0x300, 3, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.Count != OP2 || inst.Number != 20 {
		t.Fatalf("expected add (2OP/20), got count=%v number=%d", inst.Count, inst.Number)
	}
	if !inst.Info.Stores || inst.Store != 0x05 {
		t.Fatalf("expected store to variable 0x05, got stores=%v store=%d", inst.Info.Stores, inst.Store)
	}
	if inst.NextAddr != 0x305 {
		t.Fatalf("expected next addr 0x305, got 0x%x", inst.NextAddr)
	}
}

func TestDecodeExtendedFormV5(t *testing.T) {
	// save_undo (EXT/9), extended form: 0xbe, opcode 0x09, var operand byte (all omitted), store byte
	mem := fakeMem{0x400: 0xbe, 0x401: 0x09, 0x402: 0b1111_1111, 0x403: 0x00}
	inst, err := Decode(mem, 0x400, 5, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.Count != EXT || inst.Number != 0x09 {
		t.Fatalf("expected save_undo (EXT/9), got count=%v number=%d", inst.Count, inst.Number)
	}
	if !inst.Info.Stores {
		t.Fatalf("save_undo should store a result")
	}
}

func TestDecodeBranchOffset(t *testing.T) {
	// jz (1OP/0) short form with a variable operand, then a 1-byte
	// branch-on-true with offset 10: 0xa0 0x00 0xca
	mem := fakeMem{0x500: 0b1010_0000, 0x501: 0x00, 0x502: 0b1100_1010}
	inst, err := Decode(mem, 0x500, 3, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inst.Branch.Present || !inst.Branch.OnTrue || inst.Branch.Offset != 10 {
		t.Fatalf("unexpected branch info: %+v", inst.Branch)
	}
}

func TestUnknownOpcodeStillDecodesOperands(t *testing.T) {
	// A disassembler must still see operands/bytes for an opcode this table
	// doesn't recognise (2OP number 0 and 29-31 are unused per spec).
	mem := fakeMem{0x600: 0b0000_0000, 0x601: 1, 0x602: 2}
	inst, err := Decode(mem, 0x600, 3, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.Info.Known {
		t.Fatalf("2OP/0 should be unknown")
	}
	if len(inst.Operands) != 2 {
		t.Fatalf("expected operands still decoded, got %d", len(inst.Operands))
	}
}
