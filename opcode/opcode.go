// Package opcode implements Z-machine instruction decoding: the bit-level
// form/operand parsing plus a metadata table of which opcodes store a
// result, branch, or carry trailing text. Decoding is independent of
// dispatch (package zmachine consults the decoded Instruction to execute
// it) so a future disassembler can decode an unrecognised opcode and still
// report its raw bytes.
package opcode

import "fmt"

type Form uint8

const (
	LongForm Form = iota
	ExtForm
	ShortForm
	VarForm
)

type Count uint8

const (
	OP0 Count = iota
	OP1
	OP2
	VAR
	EXT
)

type OperandType uint8

const (
	LargeConstant OperandType = 0b00
	SmallConstant OperandType = 0b01
	Variable      OperandType = 0b10
	Omitted       OperandType = 0b11
)

type Operand struct {
	Type  OperandType
	Value uint16
}

// Reader is the minimal memory surface Decode needs; *zcore.Core satisfies
// it directly.
type Reader interface {
	ReadByte(addr uint32) (uint8, error)
	ReadWord(addr uint32) (uint16, error)
}

// Instruction is a fully-decoded opcode: everything needed to execute or
// disassemble it, with no reference back to any call frame.
type Instruction struct {
	Addr       uint32
	NextAddr   uint32
	Form       Form
	Count      Count
	Number     uint8
	Operands   []Operand
	Info       Info
	Store      uint8 // valid iff Info.Stores
	Branch     BranchInfo
	Text       string // valid iff Info.HasText
	TextLength uint32
}

type BranchInfo struct {
	Present  bool
	OnTrue   bool
	Offset   int16
	IsReturn bool // offset 0/1 => rfalse/rtrue shortcut
}

// Info is the static metadata for one opcode, keyed by (Count, Number,
// version). Unknown opcodes decode fine (Number/operands are always
// available) but look up to the zero Info, which a caller can detect via
// Known.
type Info struct {
	Known      bool
	Mnemonic   string
	Stores     bool
	Branches   bool
	HasText    bool
	MinVersion uint8
	MaxVersion uint8 // 0 means "no upper bound"
}

// TextReader decodes a Z-string starting at addr, returning the text and
// the address immediately following it. Only opcodes with HasText (print,
// print_ret) consult it; callers that never decode those may pass nil.
type TextReader func(addr uint32) (string, uint32, error)

func lookup(count Count, number uint8, version uint8) Info {
	table := baseTable
	if overlay, ok := versionOverlay[version]; ok {
		table = overlay
	}
	if info, ok := table[key{count, number}]; ok {
		if info.MinVersion <= version && (info.MaxVersion == 0 || version <= info.MaxVersion) {
			return info
		}
	}
	if info, ok := baseTable[key{count, number}]; ok {
		return info
	}
	return Info{}
}

// Decode reads one instruction starting at addr. textReader is consulted
// only for the two opcodes that carry inline Z-string text (print,
// print_ret); pass nil if the caller never decodes those.
func Decode(mem Reader, addr uint32, version uint8, textReader TextReader) (Instruction, error) {
	cursor := addr
	readByte := func() (uint8, error) {
		b, err := mem.ReadByte(cursor)
		cursor++
		return b, err
	}
	readWord := func() (uint16, error) {
		w, err := mem.ReadWord(cursor)
		cursor += 2
		return w, err
	}

	opcodeByte, err := readByte()
	if err != nil {
		return Instruction{}, fmt.Errorf("opcode: reading opcode byte at 0x%x: %w", addr, err)
	}

	inst := Instruction{Addr: addr, Form: Form(opcodeByte >> 6)}

	switch {
	case opcodeByte == 0xbe && version >= 5:
		number, err := readByte()
		if err != nil {
			return Instruction{}, err
		}
		inst.Form = ExtForm
		inst.Count = EXT
		inst.Number = number
		if err := decodeVariableOperands(&inst, readByte, readWord, number); err != nil {
			return Instruction{}, err
		}

	case Form(opcodeByte>>6) == VarForm:
		inst.Number = opcodeByte & 0b1_1111
		inst.Count = VAR
		if (opcodeByte>>5)&1 == 0 {
			inst.Count = OP2
		}
		if err := decodeVariableOperands(&inst, readByte, readWord, inst.Number); err != nil {
			return Instruction{}, err
		}

	case Form(opcodeByte>>6) == ShortForm:
		inst.Number = opcodeByte & 0b1111
		operandType := OperandType((opcodeByte >> 4) & 0b11)
		switch operandType {
		case LargeConstant:
			v, err := readWord()
			if err != nil {
				return Instruction{}, err
			}
			inst.Operands = append(inst.Operands, Operand{Type: operandType, Value: v})
			inst.Count = OP1
		case SmallConstant, Variable:
			v, err := readByte()
			if err != nil {
				return Instruction{}, err
			}
			inst.Operands = append(inst.Operands, Operand{Type: operandType, Value: uint16(v)})
			inst.Count = OP1
		case Omitted:
			inst.Count = OP0
		}

	default: // long form
		inst.Form = LongForm
		inst.Number = opcodeByte & 0b1_1111
		inst.Count = OP2

		op1Type, op2Type := SmallConstant, SmallConstant
		if (opcodeByte>>6)&1 == 1 {
			op1Type = Variable
		}
		if (opcodeByte>>5)&1 == 1 {
			op2Type = Variable
		}
		for _, t := range []OperandType{op1Type, op2Type} {
			v, err := readByte()
			if err != nil {
				return Instruction{}, err
			}
			inst.Operands = append(inst.Operands, Operand{Type: t, Value: uint16(v)})
		}
	}

	inst.Info = lookup(inst.Count, inst.Number, version)

	if inst.Info.Stores {
		b, err := readByte()
		if err != nil {
			return Instruction{}, err
		}
		inst.Store = b
	}

	if inst.Info.Branches {
		b1, err := readByte()
		if err != nil {
			return Instruction{}, err
		}
		inst.Branch.Present = true
		inst.Branch.OnTrue = b1&0b1000_0000 != 0
		var offset int16
		if b1&0b0100_0000 != 0 {
			offset = int16(b1 & 0b0011_1111)
		} else {
			b2, err := readByte()
			if err != nil {
				return Instruction{}, err
			}
			raw := (uint16(b1&0b0011_1111) << 8) | uint16(b2)
			if raw&0b0010_0000_0000_0000 != 0 {
				raw |= 0b1100_0000_0000_0000 // sign-extend 14 bits
			}
			offset = int16(raw)
		}
		inst.Branch.Offset = offset
		inst.Branch.IsReturn = offset == 0 || offset == 1
	}

	if inst.Info.HasText {
		if textReader == nil {
			return Instruction{}, fmt.Errorf("opcode: %s at 0x%x needs a text reader", inst.Info.Mnemonic, addr)
		}
		text, next, err := textReader(cursor)
		if err != nil {
			return Instruction{}, err
		}
		inst.Text = text
		inst.TextLength = next - cursor
		cursor = next
	}

	inst.NextAddr = cursor
	return inst, nil
}

func decodeVariableOperands(inst *Instruction, readByte func() (uint8, error), readWord func() (uint16, error), number uint8) error {
	typeByte, err := readByte()
	if err != nil {
		return err
	}
	extendedTypeByte := uint8(0)
	maxVariables := 4

	if (number == 12 || number == 26) && inst.Count == VAR {
		extendedTypeByte, err = readByte()
		if err != nil {
			return err
		}
		maxVariables = 8
	}

	for ix := 0; ix < maxVariables; ix++ {
		var operandType OperandType
		if ix < 4 {
			operandType = OperandType((typeByte >> (2 * (3 - ix))) & 0b11)
		} else {
			operandType = OperandType((extendedTypeByte >> (2 * (7 - ix))) & 0b11)
		}

		if operandType == Omitted {
			break
		}

		switch operandType {
		case SmallConstant, Variable:
			b, err := readByte()
			if err != nil {
				return err
			}
			inst.Operands = append(inst.Operands, Operand{Type: operandType, Value: uint16(b)})
		case LargeConstant:
			w, err := readWord()
			if err != nil {
				return err
			}
			inst.Operands = append(inst.Operands, Operand{Type: operandType, Value: w})
		}
	}

	return nil
}

type key struct {
	count  Count
	number uint8
}
