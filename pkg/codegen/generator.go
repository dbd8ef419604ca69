// Package codegen translates VM commands into Hack assembly.
//
// Generator emits the straightforward translation of one command at a time.
// Optimizer wraps it with a peephole pattern table and replaces the long
// comparison and call/return sequences with shared subroutines.
package codegen

import (
	"fmt"

	"hackvm/pkg/vm"
)

// Backend is the interface the translator drives. Step translates the
// command at cursor, possibly together with the ones after it, and reports
// how many commands it consumed.
type Backend interface {
	Step(cmds []vm.Command, cursor int) (consumed int, lines []string, err error)
	Bootstrap(entry string) ([]string, error)
	State() *State
}

// New returns an Optimizer when optimize is set, a Generator otherwise.
func New(st *State, optimize bool) Backend {
	if optimize {
		return NewOptimizer(st)
	}
	return NewGenerator(st)
}

// unrollLocals is the largest local count initialised without a loop.
const unrollLocals = 8

const bootstrapGuard = "BOOTSTRAP_GUARD_LOOP"

// Generator emits the plain translation of each command.
type Generator struct {
	st *State
}

func NewGenerator(st *State) *Generator {
	return &Generator{st: st}
}

func (g *Generator) State() *State { return g.st }

// Generate translates a single command.
func (g *Generator) Generate(cmd vm.Command) ([]string, error) {
	var b asmBuf
	if err := g.emit(&b, cmd); err != nil {
		return nil, err
	}
	return b, nil
}

func (g *Generator) Step(cmds []vm.Command, cursor int) (int, []string, error) {
	if cursor < 0 || cursor >= len(cmds) {
		return 0, nil, fmt.Errorf("%w: cursor %d outside %d commands", vm.ErrInvalidCommand, cursor, len(cmds))
	}
	lines, err := g.Generate(cmds[cursor])
	if err != nil {
		return 0, nil, err
	}
	return 1, lines, nil
}

// Bootstrap sets SP to StackBase, calls entry and parks the CPU on a guard loop.
func (g *Generator) Bootstrap(entry string) ([]string, error) {
	var b asmBuf
	if err := bootstrap(&b, entry, func() { g.call(&b, entry, 0) }); err != nil {
		return nil, err
	}
	return b, nil
}

func bootstrap(b *asmBuf, entry string, call func()) error {
	if entry == "" {
		return fmt.Errorf("%w: bootstrap needs an entry function", vm.ErrInvalidCommand)
	}
	b.line("@%d", StackBase)
	b.line("D=A")
	b.line("@SP")
	b.line("M=D")
	call()
	b.label(bootstrapGuard)
	b.jump(bootstrapGuard)
	return nil
}

func (g *Generator) emit(b *asmBuf, cmd vm.Command) error {
	switch cmd.Kind {
	case vm.Arithmetic:
		return g.arithmetic(b, cmd.Op)
	case vm.Push:
		o, err := g.st.resolve(cmd)
		if err != nil {
			return err
		}
		b.loadD(o)
		b.pushD()
	case vm.Pop:
		o, err := g.st.resolve(cmd)
		if err != nil {
			return err
		}
		g.pop(b, o)
	case vm.Label:
		if cmd.Name == "" {
			return fmt.Errorf("%w: label without a name", vm.ErrInvalidCommand)
		}
		b.label(g.st.Scope.Symbol(cmd.Name))
	case vm.Goto:
		if cmd.Name == "" {
			return fmt.Errorf("%w: goto without a label", vm.ErrInvalidCommand)
		}
		b.jump(g.st.Scope.Symbol(cmd.Name))
	case vm.IfGoto:
		if cmd.Name == "" {
			return fmt.Errorf("%w: if-goto without a label", vm.ErrInvalidCommand)
		}
		b.popD()
		b.at(g.st.Scope.Symbol(cmd.Name))
		b.line("D;JNE")
	case vm.Function:
		if err := checkCount(cmd); err != nil {
			return err
		}
		g.function(b, cmd.Name, cmd.N)
	case vm.Call:
		if err := checkCount(cmd); err != nil {
			return err
		}
		g.call(b, cmd.Name, cmd.N)
	case vm.Return:
		if !g.st.InFunction() {
			return fmt.Errorf("%w: return outside of a function in module %s", vm.ErrUnbalancedControl, g.st.Module)
		}
		returnBody(b)
	default:
		return fmt.Errorf("%w: '%s'", vm.ErrInvalidCommand, cmd)
	}
	return nil
}

// binaryComps holds the in-place comps for "x op y" with y in D and x in M.
var binaryComps = map[vm.Op]string{
	vm.OpAdd: "D+M",
	vm.OpSub: "M-D",
	vm.OpAnd: "D&M",
	vm.OpOr:  "D|M",
}

// jumps and inverted jumps for the comparisons, applied to x-y.
var (
	compareJumps = map[vm.Op]string{vm.OpEq: "JEQ", vm.OpGt: "JGT", vm.OpLt: "JLT"}
	invertJumps  = map[vm.Op]string{vm.OpEq: "JNE", vm.OpGt: "JLE", vm.OpLt: "JGE"}
)

func (g *Generator) arithmetic(b *asmBuf, op vm.Op) error {
	switch op {
	case vm.OpAdd, vm.OpSub, vm.OpAnd, vm.OpOr:
		b.popD()
		b.line("A=A-1")
		b.line("M=%s", binaryComps[op])
	case vm.OpNeg:
		b.top()
		b.line("M=-M")
	case vm.OpNot:
		b.top()
		b.line("M=!M")
	case vm.OpEq, vm.OpGt, vm.OpLt:
		g.compare(b, op)
	default:
		return fmt.Errorf("%w: unknown operation %s", vm.ErrInvalidCommand, op)
	}
	return nil
}

// subtractTop leaves D = x-y with SP decremented once and A at x's cell.
func subtractTop(b *asmBuf) {
	b.popD()
	b.line("A=A-1")
	b.line("D=M-D")
}

func (g *Generator) compare(b *asmBuf, op vm.Op) {
	n := g.st.nextLabel()
	name := compareName(op)
	onTrue := fmt.Sprintf("%s_TRUE_%s_%d", name, g.st.Module, n)
	end := fmt.Sprintf("%s_END_%s_%d", name, g.st.Module, n)

	subtractTop(b)
	b.at(onTrue)
	b.line("D;%s", compareJumps[op])
	b.line("D=0")
	b.jump(end)
	b.label(onTrue)
	b.line("D=-1")
	b.label(end)
	b.top()
	b.line("M=D")
}

func compareName(op vm.Op) string {
	switch op {
	case vm.OpEq:
		return "EQ"
	case vm.OpGt:
		return "GT"
	}
	return "LT"
}

func (g *Generator) pop(b *asmBuf, o operand) {
	if o.direct() {
		b.popD()
		b.addr(o)
		b.line("M=D")
		return
	}
	b.storeAddrR13(o)
	b.popD()
	b.line("@R13")
	b.line("A=M")
	b.line("M=D")
}

func (g *Generator) function(b *asmBuf, name string, nLocals int) {
	g.st.EnterFunction(name)
	b.label(name)

	switch {
	case nLocals == 0:
	case nLocals <= unrollLocals:
		b.line("@SP")
		b.line("A=M")
		for i := 0; i < nLocals; i++ {
			if i > 0 {
				b.line("A=A+1")
			}
			b.line("M=0")
		}
		b.line("D=A+1")
		b.line("@SP")
		b.line("M=D")
	default:
		loop := name + "_INIT_LOCALS_LOOP"
		b.line("@%d", nLocals)
		b.line("D=A")
		b.label(loop)
		b.line("@SP")
		b.line("AM=M+1")
		b.line("A=A-1")
		b.line("M=0")
		b.line("D=D-1")
		b.at(loop)
		b.line("D;JGT")
	}
}

func (g *Generator) returnLabel(callee string) string {
	return fmt.Sprintf("%s_RETURN_%d", callee, g.st.nextCall())
}

var savedRegisters = [...]string{"LCL", "ARG", "THIS", "THAT"}

func (g *Generator) call(b *asmBuf, callee string, nArgs int) {
	ret := g.returnLabel(callee)

	b.at(ret)
	b.line("D=A")
	b.pushD()
	for _, reg := range savedRegisters {
		b.at(reg)
		b.line("D=M")
		b.pushD()
	}

	// ARG = SP - nArgs - 5
	b.line("@SP")
	b.line("D=M")
	b.line("@%d", nArgs+5)
	b.line("D=D-A")
	b.line("@ARG")
	b.line("M=D")
	// LCL = SP
	b.line("@SP")
	b.line("D=M")
	b.line("@LCL")
	b.line("M=D")

	b.jump(callee)
	b.label(ret)
}

// returnBody restores the caller's frame. R13 holds the frame pointer and
// R14 the return address, which is read before *ARG is overwritten since
// the two coincide when the callee took no arguments.
func returnBody(b *asmBuf) {
	b.line("@LCL")
	b.line("D=M")
	b.line("@R13")
	b.line("M=D")
	b.line("@5")
	b.line("A=D-A")
	b.line("D=M")
	b.line("@R14")
	b.line("M=D")

	b.popD()
	b.line("@ARG")
	b.line("A=M")
	b.line("M=D")
	b.line("D=A+1")
	b.line("@SP")
	b.line("M=D")

	for _, reg := range [...]string{"THAT", "THIS", "ARG", "LCL"} {
		b.line("@R13")
		b.line("AM=M-1")
		b.line("D=M")
		b.at(reg)
		b.line("M=D")
	}

	b.line("@R14")
	b.line("A=M")
	b.line("0;JMP")
}
