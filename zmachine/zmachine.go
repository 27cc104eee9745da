// Package zmachine implements the executor: the giant opcode dispatch that
// turns decoded opcode.Instructions into memory/object-tree/text effects,
// the call stack, and the host-facing channel protocol (text out, input
// requests, screen-model updates, save/restore requests).
package zmachine

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/zcodeworks/zgo/dictionary"
	"github.com/zcodeworks/zgo/opcode"
	"github.com/zcodeworks/zgo/zcore"
	"github.com/zcodeworks/zgo/zobject"
	"github.com/zcodeworks/zgo/zstring"
)

// StatusBar is the v1-3 "score/turns" status line, recomputed before every
// sread.
type StatusBar struct {
	PlaceName   string
	Score       int
	Moves       int
	IsTimeBased bool
}

// Quit, Restart are sent on the output channel when the story issues quit
// or restart; the host is responsible for actually restarting (reloading
// the ROM and replacing the channels), per the channel protocol in
// SPEC_FULL.md §5.
type Quit bool
type Restart bool

type EraseWindowRequest int
type EraseLineRequest struct{}

// SoundEffectRequest mirrors the sound_effect opcode's operands directly;
// hosts that can't play sounds are expected to at least beep for 1/2.
type SoundEffectRequest struct {
	SoundNumber uint16
	Effect      uint16
	Routine     uint16
}

// StateChangeRequest tells the host what kind of wait the engine is about
// to block on next; WaitForInput carries no payload of its own because the
// terminator set rides along on the InputRequest sent just before it.
type StateChangeRequest int

const (
	WaitForInput     StateChangeRequest = iota
	WaitForCharacter StateChangeRequest = iota
	Running          StateChangeRequest = iota
)

// InputRequest precedes a WaitForInput state change with the set of
// characters (besides newline) that should terminate line input.
type InputRequest struct {
	ValidTerminators []uint8
}

// InputResponse is the host's reply to InputRequest/WaitForCharacter: either
// a line of text (sread) or a single terminating key code (read_char, or a
// function-key terminator for sread).
type InputResponse struct {
	Text           string
	TerminatingKey uint8
}

// RuntimeError is fatal: the engine hit something the Z-machine spec calls
// undefined behaviour that this interpreter has decided not to paper over.
// Warning is not: it's logged and execution continues.
type RuntimeError string
type Warning string

type MemoryStreamData struct {
	baseAddress uint32
	ptr         uint32
}

type Streams struct {
	Screen           bool
	Transcript       bool
	Memory           bool
	MemoryStreamData []MemoryStreamData
	CommandScript    bool
}

// ZMachine is one running story: its memory, call stack, and the channel
// pair connecting it to a host. Run() drives it to completion; Step()
// drives it one instruction at a time for headless callers.
type ZMachine struct {
	callStack          CallStack
	Core               *zcore.Core
	dictionary         *dictionary.Dictionary
	screenModel        ScreenModel
	streams            Streams
	rng                *rand.Rand
	Alphabets          *zstring.Alphabets
	outputChannel      chan<- any
	inputChannel       <-chan InputResponse
	saveRestoreChannel <-chan SaveRestoreResponse
	UndoStates         InMemorySaveStateCache

	currentInstructionPC uint32
	warned               map[string]bool
	restarted            bool
}

// LoadRom parses storyFile and sets up the initial call frame at the
// header's program start. inputChannel/saveRestoreChannel carry host
// replies in; outputChannel carries engine events out.
func LoadRom(storyFile []uint8, inputChannel <-chan InputResponse, saveRestoreChannel <-chan SaveRestoreResponse, outputChannel chan<- any) (*ZMachine, error) {
	core, err := zcore.LoadCore(storyFile)
	if err != nil {
		return nil, err
	}

	machine := &ZMachine{
		Core:               core,
		inputChannel:       inputChannel,
		saveRestoreChannel: saveRestoreChannel,
		outputChannel:      outputChannel,
		streams:            Streams{Screen: true},
		rng:                rand.New(rand.NewSource(time.Now().UnixNano())),
		warned:             make(map[string]bool),
	}

	machine.Alphabets = zstring.LoadAlphabets(core.Version, core.Raw(), core.AlphabetTableBase)

	dict, err := dictionary.ParseDictionary(core, uint32(core.DictionaryBase), machine.Alphabets)
	if err != nil {
		return nil, fmt.Errorf("zmachine: parsing dictionary: %w", err)
	}
	machine.dictionary = dict

	core.SetDefaultColors(9, 2) // header default colour numbers: background=white(9), foreground=black(2)
	machine.screenModel = newScreenModel(Black, White)

	if core.Version == 6 {
		pa := core.UnpackRoutine(uint32(core.FirstInstruction))
		localCount, err := core.ReadByte(pa)
		if err != nil {
			return nil, err
		}
		machine.callStack.push(CallStackFrame{
			pc:     pa + 1,
			locals: make([]uint16, localCount),
		})
	} else {
		machine.callStack.push(CallStackFrame{
			pc:     uint32(core.FirstInstruction),
			locals: make([]uint16, 0),
		})
	}

	return machine, nil
}

func (z *ZMachine) warnOnce(key string, format string, args ...any) {
	if z.warned[key] {
		return
	}
	z.warned[key] = true
	z.outputChannel <- Warning(fmt.Sprintf(format, args...))
}

func (z *ZMachine) readVariable(variable uint8, indirect bool) uint16 {
	frame, err := z.callStack.peek()
	if err != nil {
		panic(err)
	}

	switch {
	case variable == 0:
		// The seven opcodes with indirect variable references (inc, dec,
		// inc_chk, dec_chk, load, store, pull) read/write the stack top in
		// place instead of popping/pushing it.
		if indirect {
			return frame.peekValue(z)
		}
		return frame.pop(z)
	case variable < 16:
		if int(variable-1) >= len(frame.locals) {
			panic(fmt.Sprintf("zmachine: read of non-existent local L%02x at pc 0x%x", variable, z.currentInstructionPC))
		}
		return frame.locals[variable-1]
	default:
		v, err := z.Core.ReadWord(uint32(z.Core.GlobalVariableBase) + 2*uint32(variable-16))
		if err != nil {
			panic(err)
		}
		return v
	}
}

func (z *ZMachine) writeVariable(variable uint8, value uint16, indirect bool) {
	frame, err := z.callStack.peek()
	if err != nil {
		panic(err)
	}

	switch {
	case variable == 0:
		if indirect {
			_ = frame.pop(z)
		}
		frame.push(value)
	case variable < 16:
		if int(variable-1) >= len(frame.locals) {
			panic(fmt.Sprintf("zmachine: write of non-existent local L%02x at pc 0x%x", variable, z.currentInstructionPC))
		}
		frame.locals[variable-1] = value
	default:
		if err := z.Core.WriteWord(uint32(z.Core.GlobalVariableBase)+2*uint32(variable-16), value); err != nil {
			panic(err)
		}
	}
}

func (z *ZMachine) operandValue(op opcode.Operand) uint16 {
	switch op.Type {
	case opcode.LargeConstant, opcode.SmallConstant:
		return op.Value
	case opcode.Variable:
		return z.readVariable(uint8(op.Value), false)
	default:
		return 0
	}
}

func (z *ZMachine) operandValues(inst opcode.Instruction) []uint16 {
	values := make([]uint16, len(inst.Operands))
	for i, op := range inst.Operands {
		values[i] = z.operandValue(op)
	}
	return values
}

// textReader satisfies opcode.TextReader: it returns the decoded text and
// the address immediately after the Z-string.
func (z *ZMachine) textReader(addr uint32) (string, uint32, error) {
	text, n, err := zstring.Decode(z.Core.Raw(), addr, z.Core.Version, z.Alphabets, z.Core.AbbreviationTableBase)
	return text, addr + n, err
}

func (z *ZMachine) getObject(id uint16) zobject.Object {
	obj, err := zobject.GetObject(id, z.Core, z.Alphabets)
	if err != nil {
		panic(err)
	}
	return obj
}

func (z *ZMachine) call(inst opcode.Instruction, args []uint16, routineType RoutineType) {
	routineAddress := z.Core.UnpackRoutine(uint32(args[0]))

	if routineAddress == 0 {
		// Calling address 0 always "returns" false without a real call.
		if routineType == function && inst.Info.Stores {
			z.writeVariable(inst.Store, 0, false)
		}
		return
	}

	localVariableCount, err := z.Core.ReadByte(routineAddress)
	if err != nil {
		panic(err)
	}
	routineAddress++

	locals := make([]uint16, localVariableCount)
	for i := 0; i < int(localVariableCount); i++ {
		if i+1 < len(args) {
			locals[i] = args[i+1]
		} else if z.Core.Version < 5 {
			v, err := z.Core.ReadWord(routineAddress)
			if err != nil {
				panic(err)
			}
			locals[i] = v
		}
		if z.Core.Version < 5 {
			routineAddress += 2
		}
	}

	z.callStack.push(CallStackFrame{
		pc:              routineAddress,
		locals:          locals,
		routineStack:    make([]uint16, 0),
		routineType:     routineType,
		numValuesPassed: len(args) - 1,
		storesResult:    routineType == function && inst.Info.Stores,
		resultTarget:    inst.Store,
	})
}

// handleBranch resolves inst's branch per spec: on the return-shortcut
// offsets (0 or 1) it returns false/true from the current routine instead
// of jumping.
func (z *ZMachine) handleBranch(inst opcode.Instruction, result bool) {
	if !inst.Branch.Present {
		return
	}
	if result != inst.Branch.OnTrue {
		return
	}

	if inst.Branch.IsReturn {
		z.retValue(uint16(inst.Branch.Offset))
		return
	}

	frame, err := z.callStack.peek()
	if err != nil {
		panic(err)
	}
	frame.pc = uint32(int32(inst.NextAddr) + int32(inst.Branch.Offset) - 2)
}

func (z *ZMachine) retValue(val uint16) {
	oldFrame, err := z.callStack.pop()
	if err != nil {
		panic(err)
	}

	if oldFrame.storesResult {
		z.writeVariable(oldFrame.resultTarget, val, false)
	}
}

type word struct {
	bytes             []uint8
	startingLocation  uint32
	dictionaryAddress uint16
}

func tokeniseSingleWord(bytes []uint8, wordStartPtr uint32, dict *dictionary.Dictionary, core *zcore.Core, alphabets *zstring.Alphabets) word {
	runes := []rune(string(bytes))
	zstr := zstring.Encode(runes, core.Version, alphabets)

	return word{
		bytes:             bytes,
		startingLocation:  wordStartPtr,
		dictionaryAddress: dict.Find(zstr),
	}
}

// Tokenise implements the tokenise opcode (and sread's implicit call to
// it): split the text buffer at baddr1 on spaces and dictionary separators,
// look each token up in dict, and write the parse buffer at baddr2.
func (z *ZMachine) Tokenise(baddr1 uint32, baddr2 uint32, dict *dictionary.Dictionary, leaveWordsBlank bool) error {
	words := make([]word, 0)
	startingLocation := baddr1 + 1
	chrCount := uint32(0)
	if z.Core.Version >= 5 {
		b, err := z.Core.ReadByte(startingLocation)
		if err != nil {
			return err
		}
		chrCount = uint32(b)
		startingLocation++
	}
	currentLocation := startingLocation

	for {
		chr, err := z.Core.ReadByte(currentLocation)
		if err != nil {
			return err
		}

		if (z.Core.Version < 5 && chr == 0) || (z.Core.Version >= 5 && currentLocation-(baddr1+2) >= chrCount) {
			text, err := z.Core.ReadBytes(startingLocation, currentLocation-startingLocation)
			if err != nil {
				return err
			}
			words = append(words, tokeniseSingleWord(text, startingLocation, dict, z.Core, z.Alphabets))
			break
		}

		if chr == ' ' {
			text, err := z.Core.ReadBytes(startingLocation, currentLocation-startingLocation)
			if err != nil {
				return err
			}
			words = append(words, tokeniseSingleWord(text, startingLocation, dict, z.Core, z.Alphabets))
			startingLocation = currentLocation + 1
		} else {
			for _, separator := range dict.Header.InputCodes {
				if chr == separator {
					text, err := z.Core.ReadBytes(startingLocation, currentLocation-startingLocation)
					if err != nil {
						return err
					}
					words = append(words, tokeniseSingleWord(text, startingLocation, dict, z.Core, z.Alphabets))
					sep, err := z.Core.ReadBytes(currentLocation, 1)
					if err != nil {
						return err
					}
					words = append(words, tokeniseSingleWord(sep, startingLocation, dict, z.Core, z.Alphabets))
					startingLocation = currentLocation + 1
					break
				}
			}
		}

		currentLocation++
	}

	maxWords, err := z.Core.ReadByte(baddr2)
	if err != nil {
		return err
	}
	if maxWords < uint8(len(words)) {
		words = words[:maxWords]
	}

	parseBufferPtr := baddr2 + 1
	if err := z.Core.WriteByte(parseBufferPtr, uint8(len(words))); err != nil {
		return err
	}
	parseBufferPtr++
	if leaveWordsBlank {
		return nil
	}
	for _, w := range words {
		if err := z.Core.WriteWord(parseBufferPtr, w.dictionaryAddress); err != nil {
			return err
		}
		if err := z.Core.WriteByte(parseBufferPtr+2, uint8(len(w.bytes))); err != nil {
			return err
		}
		if err := z.Core.WriteByte(parseBufferPtr+3, uint8(w.startingLocation-baddr1)); err != nil {
			return err
		}
		parseBufferPtr += 4
	}
	return nil
}

// RemoveObject detaches objId from the tree, per the remove_obj opcode.
func (z *ZMachine) RemoveObject(objId uint16) {
	object := z.getObject(objId)
	if object.Parent != 0 {
		oldParent := z.getObject(object.Parent)

		if oldParent.Child == object.Id {
			must(oldParent.SetChild(object.Sibling, z.Core))
		} else {
			currObjId := oldParent.Child
			for currObjId != 0 {
				curr := z.getObject(currObjId)
				if curr.Sibling == object.Id {
					must(curr.SetSibling(object.Sibling, z.Core))
					break
				}
				currObjId = curr.Sibling
			}
		}

		must(object.SetParent(0, z.Core))
	}

	must(object.SetSibling(0, z.Core))
}

// MoveObject implements insert_obj: detach objId then attach it as newParent's
// first child.
func (z *ZMachine) MoveObject(objId uint16, newParent uint16) {
	object := z.getObject(objId)

	z.RemoveObject(object.Id)
	destination := z.getObject(newParent)

	must(object.SetSibling(destination.Child, z.Core))
	must(object.SetParent(destination.Id, z.Core))
	must(destination.SetChild(object.Id, z.Core))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func (z *ZMachine) appendText(s string) {
	if z.streams.Memory {
		current := &z.streams.MemoryStreamData[len(z.streams.MemoryStreamData)-1]
		for _, r := range s {
			must(z.Core.WriteByte(current.ptr, uint8(r)))
			current.ptr++
		}
		// 7.1.2.2: while stream 3 is selected, no other stream receives text.
		return
	}

	if z.streams.Screen {
		z.outputChannel <- s

		if !z.screenModel.LowerWindowActive {
			lines := strings.Split(s, "\n")
			z.screenModel.UpperWindowCursorY += len(lines) - 1
			if len(lines) > 1 {
				z.screenModel.UpperWindowCursorX = len(lines[len(lines)-1])
			} else {
				z.screenModel.UpperWindowCursorX += len(lines[0])
			}
			z.outputChannel <- z.screenModel
		}
	}

	if z.streams.Transcript {
		z.warnOnce("transcript_stream", "transcript output stream is not supported")
	}
	if z.streams.CommandScript {
		z.warnOnce("command_script_stream", "command-script output stream is not supported")
	}
}

func (z *ZMachine) validTerminators() []uint8 {
	terminators := []uint8{'\n'}
	if z.Core.Version < 5 || z.Core.TerminatingCharTableBase == 0 {
		return terminators
	}

	ptr := uint32(z.Core.TerminatingCharTableBase)
	for {
		b, err := z.Core.ReadByte(ptr)
		if err != nil || b == 0 {
			break
		}
		if (b >= 129 && b <= 154) || (b >= 252 && b <= 254) {
			terminators = append(terminators, b)
		} else if b == 255 {
			terminators = []uint8{'\n', 129, 130, 131, 132, 133, 134, 135, 136, 137, 138, 139, 140, 141, 142, 143, 144, 145, 146, 147, 148, 149, 150, 151, 152, 153, 154, 252, 253, 254}
			break
		}
		ptr++
	}
	return terminators
}

// read implements sread/aread: the parser-input opcode.
func (z *ZMachine) read(inst opcode.Instruction, args []uint16) error {
	if z.Core.Version <= 3 {
		location := z.getObject(z.readVariable(16, false))
		z.outputChannel <- StatusBar{
			PlaceName:   location.Name,
			Score:       int(int16(z.readVariable(17, false))),
			Moves:       int(z.readVariable(18, false)),
			IsTimeBased: z.Core.StatusBarTimeBased,
		}
	}

	terminators := z.validTerminators()
	z.outputChannel <- InputRequest{ValidTerminators: terminators}
	z.outputChannel <- StateChangeRequest(WaitForInput)
	resp := <-z.inputChannel

	textBufferPtr := args[0]
	parseBufferPtr := uint16(0)
	if len(args) > 1 {
		parseBufferPtr = args[1]
	}

	rawTextBytes := []byte(strings.ToLower(resp.Text))

	bufferSize, err := z.Core.ReadByte(uint32(textBufferPtr))
	if err != nil {
		return err
	}
	writePtr := uint32(textBufferPtr) + 1

	if z.Core.Version >= 5 {
		existing, err := z.Core.ReadByte(writePtr)
		if err != nil {
			return err
		}
		writePtr += 1 + uint32(existing)
	}

	ix := 0
	for ix < int(bufferSize) && ix < len(rawTextBytes) {
		chr := rawTextBytes[ix]
		if (chr >= 32 && chr <= 126) || (chr >= 155 && chr <= 251) {
			if err := z.Core.WriteByte(writePtr+uint32(ix), chr); err != nil {
				return err
			}
		} else if err := z.Core.WriteByte(writePtr+uint32(ix), ' '); err != nil {
			return err
		}
		ix++
	}
	if err := z.Core.WriteByte(writePtr+uint32(ix), 0); err != nil {
		return err
	}

	if z.Core.Version >= 5 {
		if err := z.Core.WriteByte(uint32(textBufferPtr)+1, uint8(ix)); err != nil {
			return err
		}
	}

	if parseBufferPtr != 0 {
		if err := z.Tokenise(uint32(textBufferPtr), uint32(parseBufferPtr), z.dictionary, false); err != nil {
			return err
		}
	}

	if inst.Info.Stores {
		terminatingKey := resp.TerminatingKey
		if terminatingKey == 0 {
			terminatingKey = '\n'
		}
		z.writeVariable(inst.Store, uint16(terminatingKey), false)
	}
	return nil
}

// Run drives the machine to completion, emitting an initial screen model
// and a terminal Quit, Restart or RuntimeError on the output channel.
func (z *ZMachine) Run() {
	z.outputChannel <- z.screenModel

	for {
		cont, err := z.Step()
		if err != nil {
			z.outputChannel <- RuntimeError(err.Error())
			return
		}
		if !cont {
			break
		}
	}

	if z.restarted {
		z.outputChannel <- Restart(true)
		return
	}
	z.outputChannel <- Quit(true)
}

// Step executes exactly one instruction, returning false when the story has
// issued quit or restart. Any internal invariant violation (the teacher's code used
// panics for these — empty stacks, bad local indices, division by zero) is
// recovered here and turned into a plain error so callers never see a
// panic.
func (z *ZMachine) Step() (cont bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("zmachine: %v", r)
			}
			cont = false
		}
	}()

	frame, perr := z.callStack.peek()
	if perr != nil {
		return false, perr
	}

	z.currentInstructionPC = frame.pc
	inst, derr := opcode.Decode(z.Core, frame.pc, z.Core.Version, z.textReader)
	if derr != nil {
		return false, derr
	}
	frame.pc = inst.NextAddr

	return z.execute(inst)
}
