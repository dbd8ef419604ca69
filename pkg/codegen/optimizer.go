package codegen

import (
	"fmt"

	"hackvm/pkg/vm"
)

// Push runs at least this long are fused; runs longer than pushRunUnroll
// become a counted loop.
const (
	pushRunMin    = 3
	pushRunUnroll = 16
)

// pattern is one peephole rule. match inspects the window starting at the
// cursor and returns how many commands it covers, 0 for no match. fuse emits
// the replacement for exactly those commands.
type pattern struct {
	name  string
	arity int
	match func(w []vm.Command) int
	fuse  func(o *Optimizer, b *asmBuf, w []vm.Command) error
}

// patterns is ordered longest and most specific first; the first match wins.
var patterns = []pattern{
	{"compare-not-if-goto", 3, matchCompareNotIf, (*Optimizer).fuseCompareNotIf},
	{"push-push-binary", 3, matchPushPushBinary, (*Optimizer).fusePushPushBinary},
	{"push-constant-run", pushRunMin, matchPushRun, (*Optimizer).fusePushRun},
	{"compare-if-goto", 2, matchCompareIf, (*Optimizer).fuseCompareIf},
	{"push-constant-binary", 2, matchPushConstantBinary, (*Optimizer).fusePushConstantBinary},
	{"push-constant-unary", 2, matchPushConstantUnary, (*Optimizer).fusePushConstantUnary},
	{"push-binary", 2, matchPushBinary, (*Optimizer).fusePushBinary},
	{"push-pop", 2, matchPushPop, (*Optimizer).fusePushPop},
	{"not-if-goto", 2, matchNotIf, (*Optimizer).fuseNotIf},
}

// Optimizer is a Backend that fuses common command idioms and emits the
// comparison and call/return sequences once as shared subroutines.
type Optimizer struct {
	gen      *Generator
	st       *State
	patterns []pattern
}

func NewOptimizer(st *State) *Optimizer {
	return &Optimizer{gen: NewGenerator(st), st: st, patterns: patterns}
}

func (o *Optimizer) State() *State { return o.st }

// Step matches the pattern table at cursor. Without a match it translates
// exactly one command.
func (o *Optimizer) Step(cmds []vm.Command, cursor int) (int, []string, error) {
	if cursor < 0 || cursor >= len(cmds) {
		return 0, nil, fmt.Errorf("%w: cursor %d outside %d commands", vm.ErrInvalidCommand, cursor, len(cmds))
	}
	w := cmds[cursor:]

	var b asmBuf
	if p, n, ok := o.match(w); ok {
		if err := p.fuse(o, &b, w[:n]); err != nil {
			return 0, nil, err
		}
		return n, b, nil
	}

	if err := o.single(&b, w[0]); err != nil {
		return 0, nil, err
	}
	return 1, b, nil
}

// match returns the first pattern that applies to w and how many commands it covers.
func (o *Optimizer) match(w []vm.Command) (pattern, int, bool) {
	for _, p := range o.patterns {
		if len(w) < p.arity {
			continue
		}
		if n := p.match(w); n > 0 {
			return p, n, true
		}
	}
	return pattern{}, 0, false
}

func (o *Optimizer) Bootstrap(entry string) ([]string, error) {
	var b asmBuf
	if err := bootstrap(&b, entry, func() { o.sharedCall(&b, entry, 0) }); err != nil {
		return nil, err
	}
	return b, nil
}

func (o *Optimizer) single(b *asmBuf, cmd vm.Command) error {
	switch {
	case cmd.Kind == vm.Arithmetic && cmd.Op.IsComparison():
		o.sharedCompare(b, cmd.Op)
	case cmd.Kind == vm.Call:
		if err := checkCount(cmd); err != nil {
			return err
		}
		o.sharedCall(b, cmd.Name, cmd.N)
	case cmd.Kind == vm.Return:
		if !o.st.InFunction() {
			return fmt.Errorf("%w: return outside of a function in module %s", vm.ErrUnbalancedControl, o.st.Module)
		}
		o.sharedReturn(b)
	default:
		return o.gen.emit(b, cmd)
	}
	return nil
}

func isPushConstant(c vm.Command) bool {
	return c.Kind == vm.Push && c.Segment == vm.SegConstant
}

// isInPlaceBinary reports add, sub, and, or: the binary ops that are not comparisons.
func isInPlaceBinary(c vm.Command) bool {
	return c.Kind == vm.Arithmetic && c.Op.IsBinary() && !c.Op.IsComparison()
}

func isCompare(c vm.Command) bool {
	return c.Kind == vm.Arithmetic && c.Op.IsComparison()
}

func matchCompareNotIf(w []vm.Command) int {
	if isCompare(w[0]) && w[1].Is(vm.OpNot) && w[2].Kind == vm.IfGoto {
		return 3
	}
	return 0
}

func matchPushPushBinary(w []vm.Command) int {
	if w[0].Kind == vm.Push && w[1].Kind == vm.Push && isInPlaceBinary(w[2]) {
		return 3
	}
	return 0
}

func matchPushRun(w []vm.Command) int {
	if !isPushConstant(w[0]) {
		return 0
	}
	k := 1
	for k < len(w) && isPushConstant(w[k]) && w[k].Index == w[0].Index {
		k++
	}
	if k < pushRunMin {
		return 0
	}
	return k
}

func matchCompareIf(w []vm.Command) int {
	if isCompare(w[0]) && w[1].Kind == vm.IfGoto {
		return 2
	}
	return 0
}

func matchPushConstantBinary(w []vm.Command) int {
	if isPushConstant(w[0]) && isInPlaceBinary(w[1]) {
		return 2
	}
	return 0
}

func matchPushConstantUnary(w []vm.Command) int {
	if isPushConstant(w[0]) && (w[1].Is(vm.OpNeg) || w[1].Is(vm.OpNot)) {
		return 2
	}
	return 0
}

func matchPushBinary(w []vm.Command) int {
	if w[0].Kind == vm.Push && isInPlaceBinary(w[1]) {
		return 2
	}
	return 0
}

func matchPushPop(w []vm.Command) int {
	if w[0].Kind == vm.Push && w[1].Kind == vm.Pop {
		return 2
	}
	return 0
}

func matchNotIf(w []vm.Command) int {
	if w[0].Is(vm.OpNot) && w[1].Kind == vm.IfGoto {
		return 2
	}
	return 0
}

func (o *Optimizer) branchTarget(c vm.Command) (string, error) {
	if c.Name == "" {
		return "", fmt.Errorf("%w: if-goto without a label", vm.ErrInvalidCommand)
	}
	return o.st.Scope.Symbol(c.Name), nil
}

// compareBranch pops both operands and jumps on the comparison directly,
// never materialising the boolean.
func (o *Optimizer) compareBranch(b *asmBuf, op vm.Op, target vm.Command, jumps map[vm.Op]string) error {
	sym, err := o.branchTarget(target)
	if err != nil {
		return err
	}
	subtractTop(b)
	b.line("@SP")
	b.line("M=M-1")
	b.at(sym)
	b.line("D;%s", jumps[op])
	return nil
}

func (o *Optimizer) fuseCompareNotIf(b *asmBuf, w []vm.Command) error {
	return o.compareBranch(b, w[0].Op, w[2], invertJumps)
}

func (o *Optimizer) fuseCompareIf(b *asmBuf, w []vm.Command) error {
	return o.compareBranch(b, w[0].Op, w[1], compareJumps)
}

// Comp templates for D = x op y. dOpReg has x in D and y in the register;
// regOpD has y in D and x in the register.
var (
	dOpReg = map[vm.Op]string{vm.OpAdd: "D=D+%s", vm.OpSub: "D=D-%s", vm.OpAnd: "D=D&%s", vm.OpOr: "D=D|%s"}
	regOpD = map[vm.Op]string{vm.OpAdd: "D=D+%s", vm.OpSub: "D=%s-D", vm.OpAnd: "D=D&%s", vm.OpOr: "D=D|%s"}
)

// expose makes a direct operand's value available as A (constants) or M and
// returns which one to read. D is preserved.
func (b *asmBuf) expose(o operand) string {
	if o.seg == vm.SegConstant {
		b.line("@%d", o.index)
		return "A"
	}
	b.addr(o)
	return "M"
}

func (o *Optimizer) fusePushPushBinary(b *asmBuf, w []vm.Command) error {
	x, err := o.st.resolve(w[0])
	if err != nil {
		return err
	}
	y, err := o.st.resolve(w[1])
	if err != nil {
		return err
	}
	op := w[2].Op

	switch {
	case y.direct():
		b.loadD(x)
		b.line(dOpReg[op], b.expose(y))
	case x.direct():
		b.loadD(y)
		b.line(regOpD[op], b.expose(x))
	default:
		b.loadD(x)
		b.line("@R13")
		b.line("M=D")
		b.loadD(y)
		b.line("@R13")
		b.line(regOpD[op], "M")
	}
	b.pushD()
	return nil
}

func (o *Optimizer) fusePushRun(b *asmBuf, w []vm.Command) error {
	c, err := o.st.resolve(w[0])
	if err != nil {
		return err
	}
	k := len(w)

	if k > pushRunUnroll {
		loop := fmt.Sprintf("PUSH_RUN_%s_%d", o.st.Module, o.st.nextLabel())
		b.line("@%d", k)
		b.line("D=A")
		b.line("@R13")
		b.line("M=D")
		b.label(loop)
		b.loadD(c)
		b.pushD()
		b.line("@R13")
		b.line("MD=M-1")
		b.at(loop)
		b.line("D;JGT")
		return nil
	}

	value := "D"
	switch c.index {
	case 0:
		value = "0"
	case 1:
		value = "1"
	default:
		b.line("@%d", c.index)
		b.line("D=A")
	}
	b.line("@SP")
	b.line("A=M")
	for i := 0; i < k; i++ {
		if i > 0 {
			b.line("A=A+1")
		}
		b.line("M=%s", value)
	}
	b.line("D=A+1")
	b.line("@SP")
	b.line("M=D")
	return nil
}

func (o *Optimizer) fusePushConstantBinary(b *asmBuf, w []vm.Command) error {
	c, err := o.st.resolve(w[0])
	if err != nil {
		return err
	}
	op := w[1].Op

	switch {
	case c.index == 0 && op != vm.OpAnd:
		// x+0, x-0 and x|0 leave the stack untouched
		return nil
	case c.index == 0:
		b.top()
		b.line("M=0")
	case c.index == 1 && op == vm.OpAdd:
		b.top()
		b.line("M=M+1")
	case c.index == 1 && op == vm.OpSub:
		b.top()
		b.line("M=M-1")
	default:
		b.line("@%d", c.index)
		b.line("D=A")
		b.top()
		b.line("M=%s", binaryComps[op])
	}
	return nil
}

func (o *Optimizer) fusePushConstantUnary(b *asmBuf, w []vm.Command) error {
	c, err := o.st.resolve(w[0])
	if err != nil {
		return err
	}

	if w[1].Is(vm.OpNeg) {
		switch c.index {
		case 0:
			b.line("D=0")
		case 1:
			b.line("D=-1")
		default:
			b.line("@%d", c.index)
			b.line("D=-A")
		}
	} else {
		if c.index == 0 {
			b.line("D=-1")
		} else {
			b.line("@%d", c.index)
			b.line("D=!A")
		}
	}
	b.pushD()
	return nil
}

func (o *Optimizer) fusePushBinary(b *asmBuf, w []vm.Command) error {
	x, err := o.st.resolve(w[0])
	if err != nil {
		return err
	}
	b.loadD(x)
	b.top()
	b.line("M=%s", binaryComps[w[1].Op])
	return nil
}

func (o *Optimizer) fusePushPop(b *asmBuf, w []vm.Command) error {
	src, err := o.st.resolve(w[0])
	if err != nil {
		return err
	}
	dst, err := o.st.resolve(w[1])
	if err != nil {
		return err
	}

	if !dst.direct() {
		b.storeAddrR13(dst)
		b.loadD(src)
		b.line("@R13")
		b.line("A=M")
		b.line("M=D")
		return nil
	}

	if src.seg == vm.SegConstant && src.index <= 1 {
		b.addr(dst)
		b.line("M=%d", src.index)
		return nil
	}
	b.loadD(src)
	b.addr(dst)
	b.line("M=D")
	return nil
}

// fuseNotIf jumps when the popped value is not -1, which is when its
// complement is non-zero.
func (o *Optimizer) fuseNotIf(b *asmBuf, w []vm.Command) error {
	sym, err := o.branchTarget(w[1])
	if err != nil {
		return err
	}
	b.line("@SP")
	b.line("AM=M-1")
	b.line("D=M+1")
	b.at(sym)
	b.line("D;JNE")
	return nil
}

var compareRoutines = map[vm.Op]Routine{vm.OpEq: RoutineEq, vm.OpGt: RoutineGt, vm.OpLt: RoutineLt}

// sharedCompare passes the resume address in D; the routine keeps it in R15.
func (o *Optimizer) sharedCompare(b *asmBuf, op vm.Op) {
	r := compareRoutines[op]
	ret := fmt.Sprintf("%s_RETURN_%s_%d", compareName(op), o.st.Module, o.st.nextLabel())

	b.at(ret)
	b.line("D=A")
	if o.st.firstUse(r) {
		onTrue := r.Label() + "_TRUE"
		b.label(r.Label())
		b.line("@R15")
		b.line("M=D")
		subtractTop(b)
		b.line("M=-1")
		b.at(onTrue)
		b.line("D;%s", compareJumps[op])
		b.top()
		b.line("M=0")
		b.label(onTrue)
		b.line("@R15")
		b.line("A=M")
		b.line("0;JMP")
	} else {
		b.jump(r.Label())
	}
	b.label(ret)
}

// sharedCall passes the callee in R13, the argument count in R14 and the
// return address in D.
func (o *Optimizer) sharedCall(b *asmBuf, callee string, nArgs int) {
	ret := o.gen.returnLabel(callee)

	b.at(callee)
	b.line("D=A")
	b.line("@R13")
	b.line("M=D")
	switch nArgs {
	case 0, 1:
		b.line("@R14")
		b.line("M=%d", nArgs)
	default:
		b.line("@%d", nArgs)
		b.line("D=A")
		b.line("@R14")
		b.line("M=D")
	}
	b.at(ret)
	b.line("D=A")

	if o.st.firstUse(RoutineCall) {
		b.label(RoutineCall.Label())
		b.pushD()
		for _, reg := range savedRegisters {
			b.at(reg)
			b.line("D=M")
			b.pushD()
		}
		// ARG = SP - (R14 + 5)
		b.line("@R14")
		b.line("D=M")
		b.line("@5")
		b.line("D=D+A")
		b.line("@SP")
		b.line("D=M-D")
		b.line("@ARG")
		b.line("M=D")
		b.line("@SP")
		b.line("D=M")
		b.line("@LCL")
		b.line("M=D")
		b.line("@R13")
		b.line("A=M")
		b.line("0;JMP")
	} else {
		b.jump(RoutineCall.Label())
	}
	b.label(ret)
}

func (o *Optimizer) sharedReturn(b *asmBuf) {
	if o.st.firstUse(RoutineReturn) {
		b.label(RoutineReturn.Label())
		returnBody(b)
		return
	}
	b.jump(RoutineReturn.Label())
}
