package zmachine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/zcodeworks/zgo/dictionary"
	"github.com/zcodeworks/zgo/opcode"
	"github.com/zcodeworks/zgo/zobject"
	"github.com/zcodeworks/zgo/zstring"
	"github.com/zcodeworks/zgo/ztable"
)

// execute dispatches a fully-decoded instruction, returning false when the
// story has issued quit or restart. Run distinguishes the two by checking
// z.restarted once the loop stops.
func (z *ZMachine) execute(inst opcode.Instruction) (bool, error) {
	args := z.operandValues(inst)
	frame, err := z.callStack.peek()
	if err != nil {
		return false, err
	}

	switch inst.Count {
	case opcode.OP0:
		switch inst.Info.Mnemonic {
		case "rtrue":
			z.retValue(1)
		case "rfalse":
			z.retValue(0)
		case "print":
			z.appendText(inst.Text)
		case "print_ret":
			z.appendText(inst.Text)
			z.appendText("\n")
			z.retValue(1)
		case "nop":
			// does nothing, by definition
		case "save":
			z.doSave(inst, nil)
		case "restore":
			z.doRestore(inst, nil)
		case "restart":
			z.restarted = true
			return false, nil
		case "ret_popped":
			z.retValue(frame.pop(z))
		case "pop":
			frame.pop(z)
		case "catch":
			z.writeVariable(inst.Store, uint16(z.callStack.depth()), false)
		case "quit":
			return false, nil
		case "new_line":
			z.appendText("\n")
		case "show_status":
			z.showStatus()
		case "verify":
			z.handleBranch(inst, z.verify())
		case "piracy":
			// Interpreters are asked to be gullible and unconditionally branch.
			z.handleBranch(inst, true)
		default:
			return false, unknownOpcode(inst)
		}

	case opcode.OP1:
		switch inst.Info.Mnemonic {
		case "jz":
			z.handleBranch(inst, args[0] == 0)
		case "get_sibling":
			sibling := z.getObject(args[0]).Sibling
			z.writeVariable(inst.Store, sibling, false)
			z.handleBranch(inst, sibling != 0)
		case "get_child":
			child := z.getObject(args[0]).Child
			z.writeVariable(inst.Store, child, false)
			z.handleBranch(inst, child != 0)
		case "get_parent":
			z.writeVariable(inst.Store, z.getObject(args[0]).Parent, false)
		case "get_prop_len":
			length, err := zobject.GetPropertyLength(z.Core, uint32(args[0]))
			if err != nil {
				return false, err
			}
			z.writeVariable(inst.Store, length, false)
		case "inc":
			v := uint8(args[0])
			z.writeVariable(v, z.readVariable(v, true)+1, true)
		case "dec":
			v := uint8(args[0])
			z.writeVariable(v, z.readVariable(v, true)-1, true)
		case "print_addr":
			text, _, err := z.textReader(uint32(args[0]))
			if err != nil {
				return false, err
			}
			z.appendText(text)
		case "call_1s":
			z.call(inst, args, function)
		case "remove_obj":
			z.RemoveObject(args[0])
		case "print_obj":
			z.appendText(z.getObject(args[0]).Name)
		case "ret":
			z.retValue(args[0])
		case "jump":
			offset := int16(args[0])
			frame.pc = uint32(int32(inst.NextAddr) + int32(offset) - 2)
		case "print_paddr":
			addr := z.Core.UnpackString(uint32(args[0]))
			text, _, err := z.textReader(addr)
			if err != nil {
				return false, err
			}
			z.appendText(text)
		case "load":
			z.writeVariable(inst.Store, z.readVariable(uint8(args[0]), true), false)
		case "not":
			z.writeVariable(inst.Store, ^args[0], false)
		case "call_1n":
			z.call(inst, args, procedure)
		default:
			return false, unknownOpcode(inst)
		}

	case opcode.OP2:
		switch inst.Info.Mnemonic {
		case "je":
			branch := false
			for _, b := range args[1:] {
				if args[0] == b {
					branch = true
				}
			}
			z.handleBranch(inst, branch)
		case "jl":
			z.handleBranch(inst, int16(args[0]) < int16(args[1]))
		case "jg":
			z.handleBranch(inst, int16(args[0]) > int16(args[1]))
		case "dec_chk":
			v := uint8(args[0])
			newValue := int16(z.readVariable(v, true)) - 1
			z.writeVariable(v, uint16(newValue), true)
			z.handleBranch(inst, newValue < int16(args[1]))
		case "inc_chk":
			v := uint8(args[0])
			newValue := int16(z.readVariable(v, true)) + 1
			z.writeVariable(v, uint16(newValue), true)
			z.handleBranch(inst, newValue > int16(args[1]))
		case "jin":
			z.handleBranch(inst, z.getObject(args[0]).Parent == args[1])
		case "test":
			z.handleBranch(inst, args[0]&args[1] == args[1])
		case "or":
			z.writeVariable(inst.Store, args[0]|args[1], false)
		case "and":
			z.writeVariable(inst.Store, args[0]&args[1], false)
		case "test_attr":
			obj := z.getObject(args[0])
			z.handleBranch(inst, obj.TestAttribute(args[1]))
		case "set_attr":
			obj := z.getObject(args[0])
			must(obj.SetAttribute(args[1], z.Core))
		case "clear_attr":
			obj := z.getObject(args[0])
			must(obj.ClearAttribute(args[1], z.Core))
		case "store":
			z.writeVariable(uint8(args[0]), args[1], true)
		case "insert_obj":
			z.MoveObject(args[0], args[1])
		case "loadw":
			v, err := z.Core.ReadWord(uint32(args[0] + 2*args[1]))
			if err != nil {
				return false, err
			}
			z.writeVariable(inst.Store, v, false)
		case "loadb":
			v, err := z.Core.ReadByte(uint32(args[0] + args[1]))
			if err != nil {
				return false, err
			}
			z.writeVariable(inst.Store, uint16(v), false)
		case "get_prop":
			v, err := z.getProp(args[0], uint8(args[1]))
			if err != nil {
				return false, err
			}
			z.writeVariable(inst.Store, v, false)
		case "get_prop_addr":
			obj := z.getObject(args[0])
			prop, err := obj.GetProperty(uint8(args[1]), z.Core)
			if err != nil {
				return false, err
			}
			z.writeVariable(inst.Store, uint16(prop.DataAddress), false)
		case "get_next_prop":
			obj := z.getObject(args[0])
			next, err := obj.GetNextProperty(uint8(args[1]), z.Core)
			if err != nil {
				return false, err
			}
			z.writeVariable(inst.Store, uint16(next), false)
		case "add":
			z.writeVariable(inst.Store, args[0]+args[1], false)
		case "sub":
			z.writeVariable(inst.Store, args[0]-args[1], false)
		case "mul":
			z.writeVariable(inst.Store, args[0]*args[1], false)
		case "div":
			denominator := int16(args[1])
			if denominator == 0 {
				return false, fmt.Errorf("zmachine: division by zero at 0x%x", inst.Addr)
			}
			z.writeVariable(inst.Store, uint16(int16(args[0])/denominator), false)
		case "mod":
			denominator := int16(args[1])
			if denominator == 0 {
				return false, fmt.Errorf("zmachine: modulo by zero at 0x%x", inst.Addr)
			}
			z.writeVariable(inst.Store, uint16(int16(args[0])%denominator), false)
		case "call_2s":
			z.call(inst, args, function)
		case "call_2n":
			z.call(inst, args, procedure)
		case "set_colour":
			z.warnOnce("set_colour", "set_colour is not supported by this screen model")
		case "throw":
			z.doThrow(args)
		default:
			return false, unknownOpcode(inst)
		}

	case opcode.VAR:
		switch inst.Info.Mnemonic {
		case "call":
			z.call(inst, args, function)
		case "storew":
			if err := z.Core.WriteWord(uint32(args[0]+2*args[1]), args[2]); err != nil {
				return false, err
			}
		case "storeb":
			if err := z.Core.WriteByte(uint32(args[0]+args[1]), uint8(args[2])); err != nil {
				return false, err
			}
		case "put_prop":
			obj := z.getObject(args[0])
			if err := obj.SetProperty(uint8(args[1]), args[2], z.Core); err != nil {
				return false, err
			}
		case "sread":
			if err := z.read(inst, args); err != nil {
				return false, err
			}
		case "print_char":
			if args[0] != 0 {
				z.appendText(string(rune(args[0])))
			}
		case "print_num":
			z.appendText(strconv.Itoa(int(int16(args[0]))))
		case "random":
			z.writeVariable(inst.Store, z.random(int16(args[0])), false)
		case "push":
			frame.push(args[0])
		case "pull":
			z.writeVariable(uint8(args[0]), frame.pop(z), true)
		case "split_window":
			z.screenModel.UpperWindowHeight = int(args[0])
			z.outputChannel <- z.screenModel
		case "set_window":
			z.screenModel.LowerWindowActive = args[0] == 0
			z.outputChannel <- z.screenModel
		case "call_vs2":
			z.call(inst, args, function)
		case "erase_window":
			window := int16(args[0])
			if window == 1 || window == -1 {
				z.screenModel.LowerWindowActive = true
				z.screenModel.UpperWindowHeight = 0
				z.outputChannel <- z.screenModel
			}
			z.outputChannel <- EraseWindowRequest(window)
		case "erase_line":
			z.outputChannel <- EraseLineRequest{}
		case "set_cursor":
			if !z.screenModel.LowerWindowActive {
				z.screenModel.UpperWindowCursorY = int(args[0])
				z.screenModel.UpperWindowCursorX = int(args[1])
				z.outputChannel <- z.screenModel
			}
		case "get_cursor":
			addr := uint32(args[0])
			if err := z.Core.WriteWord(addr, uint16(z.screenModel.UpperWindowCursorY)); err != nil {
				return false, err
			}
			if err := z.Core.WriteWord(addr+2, uint16(z.screenModel.UpperWindowCursorX)); err != nil {
				return false, err
			}
		case "set_text_style":
			mask := TextStyle(args[0])
			if z.screenModel.LowerWindowActive {
				z.screenModel.LowerWindowTextStyle = mask
			} else {
				z.screenModel.UpperWindowTextStyle = mask
			}
			z.outputChannel <- z.screenModel
		case "buffer_mode":
			// Line-wrapping is the host's problem; this interpreter doesn't
			// reformat output itself.
		case "output_stream":
			z.setOutputStream(int16(args[0]), args)
		case "input_stream":
			z.warnOnce("input_stream", "switching input streams is not supported")
		case "sound_effect":
			req := SoundEffectRequest{SoundNumber: args[0]}
			if len(args) > 1 {
				req.Effect = args[1]
			}
			if len(args) > 2 {
				req.Routine = args[2]
			}
			z.outputChannel <- req
		case "read_char":
			z.outputChannel <- StateChangeRequest(WaitForCharacter)
			resp := <-z.inputChannel
			z.writeVariable(inst.Store, uint16(resp.TerminatingKey), false)
		case "scan_table":
			form := uint16(0x82)
			if len(args) == 4 {
				form = args[3]
			}
			result, err := ztable.ScanTable(z.Core, args[0], uint32(args[1]), args[2], form)
			if err != nil {
				return false, err
			}
			z.writeVariable(inst.Store, uint16(result), false)
			z.handleBranch(inst, result != 0)
		case "call_vn":
			z.call(inst, args, procedure)
		case "call_vn2":
			z.call(inst, args, procedure)
		case "tokenise":
			dict := z.dictionary
			flag := false
			if len(args) > 2 && args[2] != 0 {
				parsed, err := dictionary.ParseDictionary(z.Core, uint32(args[2]), z.Alphabets)
				if err != nil {
					return false, err
				}
				dict = parsed
				if len(args) == 4 {
					flag = args[3] != 0
				}
			}
			if err := z.Tokenise(uint32(args[0]), uint32(args[1]), dict, flag); err != nil {
				return false, err
			}
		case "encode_text":
			if err := z.encodeText(args); err != nil {
				return false, err
			}
		case "copy_table":
			if err := ztable.CopyTable(z.Core, args[0], args[1], int16(args[2])); err != nil {
				return false, err
			}
		case "print_table":
			width, height, skip := args[1], uint16(1), uint16(0)
			if len(args) > 2 {
				height = args[2]
			}
			if len(args) > 3 {
				skip = args[3]
			}
			text, err := ztable.PrintTable(z.Core, uint32(args[0]), width, height, skip)
			if err != nil {
				return false, err
			}
			z.appendText(text)
		case "check_arg_count":
			z.handleBranch(inst, args[0] <= uint16(frame.numValuesPassed))
		case "not":
			z.writeVariable(inst.Store, ^args[0], false)
		default:
			return false, unknownOpcode(inst)
		}

	case opcode.EXT:
		switch inst.Info.Mnemonic {
		case "save":
			z.doSave(inst, args)
		case "restore":
			z.doRestore(inst, args)
		case "log_shift":
			places := int16(args[1])
			var result uint16
			if places >= 0 {
				result = args[0] << uint16(places)
			} else {
				result = args[0] >> uint16(-places)
			}
			z.writeVariable(inst.Store, result, false)
		case "art_shift":
			num := int16(args[0])
			places := int16(args[1])
			var result uint16
			if places >= 0 {
				result = uint16(num << uint16(places))
			} else {
				result = uint16(num >> uint16(-places))
			}
			z.writeVariable(inst.Store, result, false)
		case "set_font":
			z.setFont(inst, args)
		case "save_undo":
			z.writeVariable(inst.Store, 2, false) // baked in for a later restore_undo
			z.saveUndo()
			z.writeVariable(inst.Store, 1, false)
		case "restore_undo":
			result := z.restoreUndo()
			if result == 0 {
				z.writeVariable(inst.Store, 0, false)
			}
			// On success the call stack (and the baked-in store write above)
			// has already been replaced wholesale by the saved snapshot.
		case "print_unicode":
			z.appendText(string(rune(args[0])))
		case "check_unicode":
			result := uint16(0)
			if args[0] != 0 {
				result = 0b11
			}
			z.writeVariable(inst.Store, result, false)
		case "set_true_colour":
			z.warnOnce("set_true_colour", "set_true_colour is not supported by this screen model")
		default:
			return false, unknownOpcode(inst)
		}

	default:
		return false, unknownOpcode(inst)
	}

	return true, nil
}

// ErrUnimplemented is returned for an opcode this engine does not know or
// does not implement for the story's version.
var ErrUnimplemented = errors.New("zmachine: unimplemented opcode")

func unknownOpcode(inst opcode.Instruction) error {
	return fmt.Errorf("%w: number %d (count %v) at 0x%x", ErrUnimplemented, inst.Number, inst.Count, inst.Addr)
}

func (z *ZMachine) showStatus() {
	location := z.getObject(z.readVariable(16, false))
	z.outputChannel <- StatusBar{
		PlaceName:   location.Name,
		Score:       int(int16(z.readVariable(17, false))),
		Moves:       int(z.readVariable(18, false)),
		IsTimeBased: z.Core.StatusBarTimeBased,
	}
}

// verify sums the story file from byte 0x40 onward and compares it against
// the header's stored checksum.
func (z *ZMachine) verify() bool {
	actual := uint16(0)
	length := z.Core.FileLength()
	for addr := uint32(0x40); addr < length; addr++ {
		b, err := z.Core.ReadByte(addr)
		if err != nil {
			break
		}
		actual += uint16(b)
	}
	return actual == z.Core.FileChecksum
}

func (z *ZMachine) getProp(objId uint16, propId uint8) (uint16, error) {
	obj := z.getObject(objId)
	prop, err := obj.GetProperty(propId, z.Core)
	if err != nil {
		return 0, err
	}
	switch len(prop.Data) {
	case 1:
		return uint16(prop.Data[0]), nil
	case 2:
		return binary.BigEndian.Uint16(prop.Data), nil
	default:
		return 0, fmt.Errorf("zmachine: get_prop on object %d property %d has length %d, want 1 or 2", objId, propId, len(prop.Data))
	}
}

func (z *ZMachine) random(n int16) uint16 {
	switch {
	case n < 0:
		z.rng.Seed(int64(n))
		return 0
	case n == 0:
		z.rng.Seed(time.Now().UnixNano())
		return 0
	default:
		return uint16(z.rng.Int31n(int32(n))) + 1
	}
}

func (z *ZMachine) setOutputStream(stream int16, args []uint16) {
	switch stream {
	case 1, -1:
		z.streams.Screen = stream > 0
	case 2, -2:
		z.streams.Transcript = stream > 0
	case 3:
		if len(args) > 1 {
			base := uint32(args[1])
			z.streams.Memory = true
			z.streams.MemoryStreamData = append(z.streams.MemoryStreamData, MemoryStreamData{
				baseAddress: base,
				ptr:         base + 2, // skip the size word, filled in on close
			})
		}
	case -3:
		if z.streams.Memory {
			current := z.streams.MemoryStreamData[len(z.streams.MemoryStreamData)-1]
			must(z.Core.WriteWord(current.baseAddress, uint16(current.ptr-current.baseAddress-2)))
			z.streams.MemoryStreamData = z.streams.MemoryStreamData[:len(z.streams.MemoryStreamData)-1]
			if len(z.streams.MemoryStreamData) == 0 {
				z.streams.Memory = false
			}
		}
	case 4, -4:
		z.streams.CommandScript = stream > 0
	}
}

func (z *ZMachine) setFont(inst opcode.Instruction, args []uint16) {
	requested := Font(args[0])
	previous := z.screenModel.CurrentFont
	switch requested {
	case FontNormal, FontPicture, FontCharGraphs, FontFixedPitch:
		z.screenModel.CurrentFont = requested
		z.outputChannel <- z.screenModel
		z.writeVariable(inst.Store, uint16(previous), false)
	default:
		z.writeVariable(inst.Store, 0, false)
	}
}

func (z *ZMachine) encodeText(args []uint16) error {
	textBuf, length, from, codedBuf := uint32(args[0]), args[1], args[2], uint32(args[3])

	raw, err := z.Core.ReadBytes(textBuf+uint32(from), uint32(length))
	if err != nil {
		return err
	}
	zstr := zstring.Encode([]rune(string(raw)), z.Core.Version, z.Alphabets)
	for i, b := range zstr {
		if err := z.Core.WriteByte(codedBuf+uint32(i), b); err != nil {
			return err
		}
	}
	return nil
}

// doThrow unwinds the call stack down to targetDepth (as reported by a
// prior catch) then returns value from that frame, per the throw opcode.
func (z *ZMachine) doThrow(args []uint16) {
	value := args[0]
	targetDepth := int(args[1])
	for z.callStack.depth() > targetDepth {
		if _, err := z.callStack.pop(); err != nil {
			panic(err)
		}
	}
	z.retValue(value)
}

// doSave requests the host persist the current state. args is empty for the
// v1-4 0OP form and carries the optional (address, length, name) operands
// for the v5+ auxiliary EXT form. The host captures the snapshot while
// handling the request, so before sending it this instruction's outcome is
// applied as a later restore must see it (V1-3: the branch is taken; V4+:
// the store variable holds 2). Once the host replies, the real save result
// (branch on success, or store 1/0) is applied.
func (z *ZMachine) doSave(inst opcode.Instruction, args []uint16) {
	req := Save{}
	if len(args) >= 3 {
		req.Address = uint32(args[0])
		req.NumBytes = uint32(args[1])
		req.Filename = z.readSaveFilename(uint32(args[2]))
	}
	req.Prompt = req.Filename == ""

	frame, err := z.callStack.peek()
	if err != nil {
		panic(err)
	}
	savedPC := frame.pc

	if z.Core.Version <= 3 {
		z.handleBranch(inst, true)
	} else if inst.Info.Stores {
		z.writeVariable(inst.Store, 2, false)
	}

	z.outputChannel <- req
	resp, _ := (<-z.saveRestoreChannel).(SaveResponse)

	frame.pc = savedPC
	if z.Core.Version <= 3 {
		z.handleBranch(inst, resp.Success)
		return
	}
	if inst.Info.Stores {
		result := uint16(0)
		if resp.Success {
			result = 1
		}
		z.writeVariable(inst.Store, result, false)
	}
}

func (z *ZMachine) doRestore(inst opcode.Instruction, args []uint16) {
	req := Restore{}
	if len(args) >= 3 {
		req.Address = uint32(args[0])
		req.NumBytes = uint32(args[1])
		req.Filename = z.readSaveFilename(uint32(args[2]))
	}
	req.Prompt = req.Filename == ""

	z.outputChannel <- req
	resp, _ := (<-z.saveRestoreChannel).(RestoreResponse)

	if resp.Success && len(resp.Data) > 0 && z.ImportSaveState(resp.Data) {
		// The whole call stack was just replaced with the saved one, which
		// already has success baked in at the point that save was taken.
		return
	}

	if z.Core.Version <= 3 {
		z.handleBranch(inst, false)
		return
	}
	if inst.Info.Stores {
		z.writeVariable(inst.Store, 0, false)
	}
}
