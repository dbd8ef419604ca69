package codegen

import (
	"fmt"
	"strconv"

	"hackvm/pkg/vm"
)

const (
	// StackBase is the address SP is initialised to by the bootstrap code.
	StackBase = 256
	// MaxConstant is the largest value an A-instruction can load.
	MaxConstant = 0x7FFF

	tempBase    = 5
	tempSize    = 8
	pointerSize = 2
)

// directReach is how far above a base pointer a cell can be addressed with
// A=M+1 / A=A+1 chains without touching D.
const directReach = 3

// operand is a resolved segment reference.
type operand struct {
	seg   vm.Segment
	index int
	sym   string // fixed cell: static, temp, pointer
	base  string // base register: LCL, ARG, THIS, THAT
}

var baseRegisters = map[vm.Segment]string{
	vm.SegLocal:    "LCL",
	vm.SegArgument: "ARG",
	vm.SegThis:     "THIS",
	vm.SegThat:     "THAT",
}

// resolve validates a push/pop target against the addressing table.
func (s *State) resolve(cmd vm.Command) (operand, error) {
	o := operand{seg: cmd.Segment, index: cmd.Index}

	if cmd.Index < 0 {
		return o, fmt.Errorf("%w: negative index %d in '%s'", vm.ErrIndexOutOfRange, cmd.Index, cmd)
	}
	if cmd.Index > MaxConstant {
		return o, fmt.Errorf("%w: index %d in '%s' exceeds %d", vm.ErrIndexOutOfRange, cmd.Index, cmd, MaxConstant)
	}

	switch cmd.Segment {
	case vm.SegConstant:
		if cmd.Kind == vm.Pop {
			return o, fmt.Errorf("%w: cannot pop to the constant segment", vm.ErrInvalidCommand)
		}
	case vm.SegLocal, vm.SegArgument, vm.SegThis, vm.SegThat:
		o.base = baseRegisters[cmd.Segment]
	case vm.SegPointer:
		if cmd.Index >= pointerSize {
			return o, fmt.Errorf("%w: pointer index %d not in 0..1", vm.ErrIndexOutOfRange, cmd.Index)
		}
		o.sym = "THIS"
		if cmd.Index == 1 {
			o.sym = "THAT"
		}
	case vm.SegTemp:
		if cmd.Index >= tempSize {
			return o, fmt.Errorf("%w: temp index %d not in 0..7", vm.ErrIndexOutOfRange, cmd.Index)
		}
		o.sym = "R" + strconv.Itoa(tempBase+cmd.Index)
	case vm.SegStatic:
		o.sym = s.Module + "." + strconv.Itoa(cmd.Index)
	default:
		return o, fmt.Errorf("%w: unknown segment in '%s'", vm.ErrInvalidCommand, cmd)
	}

	return o, nil
}

// checkCount validates the count operand of function and call. A call also
// loads nArgs+5 into A, so its limit is lower.
func checkCount(cmd vm.Command) error {
	if cmd.Name == "" || cmd.N < 0 {
		return fmt.Errorf("%w: '%s'", vm.ErrInvalidCommand, cmd)
	}
	limit := MaxConstant
	if cmd.Kind == vm.Call {
		limit -= 5
	}
	if cmd.N > limit {
		return fmt.Errorf("%w: count %d in '%s' exceeds %d", vm.ErrIndexOutOfRange, cmd.N, cmd, limit)
	}
	return nil
}

// direct reports whether the operand's cell (or value, for constants) can be
// reached without clobbering D.
func (o operand) direct() bool {
	if o.base != "" {
		return o.index <= directReach
	}
	return true
}

// loadD emits D = value of o.
func (b *asmBuf) loadD(o operand) {
	switch {
	case o.seg == vm.SegConstant:
		switch o.index {
		case 0:
			b.line("D=0")
		case 1:
			b.line("D=1")
		default:
			b.line("@%d", o.index)
			b.line("D=A")
		}
	case o.sym != "":
		b.at(o.sym)
		b.line("D=M")
	case o.index <= directReach:
		b.addr(o)
		b.line("D=M")
	default:
		b.line("@%d", o.index)
		b.line("D=A")
		b.at(o.base)
		b.line("A=D+M")
		b.line("D=M")
	}
}

// addr emits A = address of o's cell. Only valid for direct, non-constant operands.
func (b *asmBuf) addr(o operand) {
	if o.sym != "" {
		b.at(o.sym)
		return
	}
	b.at(o.base)
	if o.index == 0 {
		b.line("A=M")
		return
	}
	b.line("A=M+1")
	for i := 1; i < o.index; i++ {
		b.line("A=A+1")
	}
}

// storeAddrR13 emits R13 = address of o's cell for indirect operands.
func (b *asmBuf) storeAddrR13(o operand) {
	b.line("@%d", o.index)
	b.line("D=A")
	b.at(o.base)
	b.line("D=D+M")
	b.line("@R13")
	b.line("M=D")
}
