package zmachine

import "fmt"

// RoutineType distinguishes a routine that returns a value (function) from
// one that doesn't (procedure) — call_1n/call_2n/call_vn/call_vn2 (v5+)
// discard the result and don't execute the trailing store byte.
type RoutineType int

const (
	function RoutineType = iota
	procedure
)

// CallStackFrame is one routine activation: its locals, its evaluation
// stack, and where to resume the caller.
type CallStackFrame struct {
	pc              uint32
	routineStack    []uint16
	locals          []uint16
	routineType     RoutineType
	numValuesPassed int
	framePointer    uint32

	// storesResult/resultTarget record where the call instruction that
	// created this frame wants its return value written, since the
	// instruction itself (and its store byte) has already been decoded and
	// is gone by the time the callee returns.
	storesResult bool
	resultTarget uint8
}

func (f *CallStackFrame) push(i uint16) {
	f.routineStack = append(f.routineStack, i)
}

func (f *CallStackFrame) pop(z *ZMachine) uint16 {
	if len(f.routineStack) == 0 {
		z.warnOnce("stack_underflow_pop", "pop from empty routine stack (pc 0x%x)", z.currentInstructionPC)
		return 0
	}
	i := f.routineStack[len(f.routineStack)-1]
	f.routineStack = f.routineStack[:len(f.routineStack)-1]
	return i
}

func (f *CallStackFrame) peekValue(z *ZMachine) uint16 {
	if len(f.routineStack) == 0 {
		z.warnOnce("stack_underflow_peek", "peek on empty routine stack (pc 0x%x)", z.currentInstructionPC)
		return 0
	}
	return f.routineStack[len(f.routineStack)-1]
}

// CallStack is the stack of routine activations; frame 0 is the implicit
// "main" routine set up at load time and is never popped.
type CallStack struct {
	frames []CallStackFrame
}

func (s *CallStack) push(frame CallStackFrame) {
	s.frames = append(s.frames, frame)
}

func (s *CallStack) pop() (CallStackFrame, error) {
	if len(s.frames) == 0 {
		return CallStackFrame{}, fmt.Errorf("zmachine: return with empty call stack")
	}
	stackSize := len(s.frames)
	frame := s.frames[stackSize-1]
	s.frames = s.frames[:stackSize-1]

	return frame, nil
}

func (s *CallStack) peek() (*CallStackFrame, error) {
	if len(s.frames) == 0 {
		return nil, fmt.Errorf("zmachine: empty call stack")
	}
	return &s.frames[len(s.frames)-1], nil
}

func (s *CallStack) depth() int {
	return len(s.frames)
}

// copy deep-copies the stack for save/undo snapshots.
func (s *CallStack) copy() CallStack {
	callStack := CallStack{
		frames: make([]CallStackFrame, len(s.frames)),
	}

	for fx, frame := range s.frames {
		copiedFrame := CallStackFrame{
			pc:              frame.pc,
			routineType:     frame.routineType,
			numValuesPassed: frame.numValuesPassed,
			framePointer:    frame.framePointer,
			storesResult:    frame.storesResult,
			resultTarget:    frame.resultTarget,
			routineStack:    make([]uint16, len(frame.routineStack)),
			locals:          make([]uint16, len(frame.locals)),
		}

		copy(copiedFrame.routineStack, frame.routineStack)
		copy(copiedFrame.locals, frame.locals)

		callStack.frames[fx] = copiedFrame
	}

	return callStack
}
