package zmachine

import (
	"encoding/binary"
	"testing"
)

// buildCallReturnStory hand-assembles a minimal v3 story image whose main
// routine calls a one-argument routine (which doubles its argument and
// returns it) and stores the result in a global variable, then quits. It
// exercises decode, call/return store-target propagation, and variable
// read/write without needing an external story file.
func buildCallReturnStory(t *testing.T) []uint8 {
	t.Helper()

	const (
		dictionaryBase     = 64
		globalVariableBase = 76
		mainProgramAddr    = 96
		routineAddr        = 104 // even, so packed address is exact
	)

	mem := make([]uint8, 256)
	mem[0] = 3 // version 3
	binary.BigEndian.PutUint16(mem[0x08:0x0a], dictionaryBase)
	binary.BigEndian.PutUint16(mem[0x0c:0x0e], globalVariableBase)
	binary.BigEndian.PutUint16(mem[0x06:0x08], mainProgramAddr) // first instruction
	binary.BigEndian.PutUint16(mem[0x0e:0x10], mainProgramAddr) // static base: header, dictionary and globals are dynamic

	// Empty dictionary: zero separators, 4-byte entries, zero entries.
	mem[dictionaryBase] = 0
	mem[dictionaryBase+1] = 4
	binary.BigEndian.PutUint16(mem[dictionaryBase+2:dictionaryBase+4], 0)

	// Main program: call(routineAddr/2, 20) -> G00 ; quit
	packed := uint16(routineAddr / 2)
	prog := []uint8{
		0xE0, 0x1F, // VAR call (VAR/0), operand types: large, small, omit, omit
		uint8(packed >> 8), uint8(packed), // routine address (packed)
		20,  // argument
		16,  // store result in variable 16 (global 0)
		0xBA, // quit (0OP/10, short form, operand omitted)
	}
	copy(mem[mainProgramAddr:], prog)

	// Routine: 1 local, default 0. add local1,local1 -> local1; ret local1.
	routine := []uint8{
		0x01, 0x00, 0x00, // 1 local, default value 0
		0x74, 0x01, 0x01, 0x01, // add (2OP/20, long form, both vars) L01 L01 -> L01
		0xAB, 0x01, // ret (1OP/11, short form, var operand) L01
	}
	copy(mem[routineAddr:], routine)

	return mem
}

func TestCallReturnStoresResultInCallerVariable(t *testing.T) {
	storyBytes := buildCallReturnStory(t)

	outputChannel := make(chan any, 16)
	inputChannel := make(chan InputResponse)
	saveRestoreChannel := make(chan SaveRestoreResponse)

	z, err := LoadRom(storyBytes, inputChannel, saveRestoreChannel, outputChannel)
	if err != nil {
		t.Fatalf("LoadRom: %v", err)
	}

	for {
		cont, err := z.Step()
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if !cont {
			break
		}
	}

	result, err := z.Core.ReadWord(uint32(z.Core.GlobalVariableBase))
	if err != nil {
		t.Fatalf("ReadWord: %v", err)
	}
	if result != 40 {
		t.Errorf("expected G00 == 40 (20 doubled), got %d", result)
	}

	if depth := z.callStack.depth(); depth != 1 {
		t.Errorf("expected call stack back to depth 1 (main frame only) after return, got %d", depth)
	}
}
