// Package vm defines the stack-machine command vocabulary consumed by the
// code generator, plus a parser for the textual .vm format.
//
// Pipeline: .vm text → Parse → []Command → codegen → Hack assembly text
package vm

import "fmt"

// Kind identifies the variant of a Command.
type Kind int

const (
	Arithmetic Kind = iota // add, sub, neg, eq, gt, lt, and, or, not
	Push                   // push segment index
	Pop                    // pop segment index
	Label                  // label name
	Goto                   // goto name
	IfGoto                 // if-goto name
	Function               // function name nLocals
	Call                   // call name nArgs
	Return                 // return
)

var kindNames = [...]string{
	Arithmetic: "arithmetic",
	Push:       "push",
	Pop:        "pop",
	Label:      "label",
	Goto:       "goto",
	IfGoto:     "if-goto",
	Function:   "function",
	Call:       "call",
	Return:     "return",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Op is an arithmetic/logical operation.
type Op int

const (
	OpNone Op = iota
	OpAdd
	OpSub
	OpNeg
	OpEq
	OpGt
	OpLt
	OpAnd
	OpOr
	OpNot
)

var opNames = map[Op]string{
	OpAdd: "add",
	OpSub: "sub",
	OpNeg: "neg",
	OpEq:  "eq",
	OpGt:  "gt",
	OpLt:  "lt",
	OpAnd: "and",
	OpOr:  "or",
	OpNot: "not",
}

var opsByName = map[string]Op{
	"add": OpAdd,
	"sub": OpSub,
	"neg": OpNeg,
	"eq":  OpEq,
	"gt":  OpGt,
	"lt":  OpLt,
	"and": OpAnd,
	"or":  OpOr,
	"not": OpNot,
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// IsBinary reports whether o pops two operands and pushes one result.
func (o Op) IsBinary() bool {
	switch o {
	case OpAdd, OpSub, OpAnd, OpOr, OpEq, OpGt, OpLt:
		return true
	}
	return false
}

// IsComparison reports whether o is eq, gt or lt.
func (o Op) IsComparison() bool {
	return o == OpEq || o == OpGt || o == OpLt
}

// Segment is a named memory segment.
type Segment int

const (
	SegNone Segment = iota
	SegConstant
	SegLocal
	SegArgument
	SegThis
	SegThat
	SegPointer
	SegTemp
	SegStatic
)

var segmentNames = map[Segment]string{
	SegConstant: "constant",
	SegLocal:    "local",
	SegArgument: "argument",
	SegThis:     "this",
	SegThat:     "that",
	SegPointer:  "pointer",
	SegTemp:     "temp",
	SegStatic:   "static",
}

var segmentsByName = map[string]Segment{
	"constant": SegConstant,
	"local":    SegLocal,
	"argument": SegArgument,
	"this":     SegThis,
	"that":     SegThat,
	"pointer":  SegPointer,
	"temp":     SegTemp,
	"static":   SegStatic,
}

func (s Segment) String() string {
	if name, ok := segmentNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Segment(%d)", int(s))
}

// Command is one VM instruction. Only the fields relevant to Kind are set.
type Command struct {
	Kind    Kind
	Op      Op      // Arithmetic
	Segment Segment // Push, Pop
	Index   int     // Push, Pop
	Name    string  // Label, Goto, IfGoto, Function, Call
	N       int     // Function: nLocals, Call: nArgs
	Line    int     // 1-based source line, 0 when built in code
}

func NewArithmetic(op Op) Command              { return Command{Kind: Arithmetic, Op: op} }
func NewPush(seg Segment, index int) Command   { return Command{Kind: Push, Segment: seg, Index: index} }
func NewPop(seg Segment, index int) Command    { return Command{Kind: Pop, Segment: seg, Index: index} }
func NewLabel(name string) Command             { return Command{Kind: Label, Name: name} }
func NewGoto(name string) Command              { return Command{Kind: Goto, Name: name} }
func NewIfGoto(name string) Command            { return Command{Kind: IfGoto, Name: name} }
func NewFunction(name string, nLocals int) Command {
	return Command{Kind: Function, Name: name, N: nLocals}
}
func NewCall(name string, nArgs int) Command { return Command{Kind: Call, Name: name, N: nArgs} }
func NewReturn() Command                     { return Command{Kind: Return} }

// At returns a copy of c tagged with a source line.
func (c Command) At(line int) Command {
	c.Line = line
	return c
}

// Is reports whether c is an arithmetic command with the given op.
func (c Command) Is(op Op) bool {
	return c.Kind == Arithmetic && c.Op == op
}

// String renders c in canonical .vm syntax.
func (c Command) String() string {
	switch c.Kind {
	case Arithmetic:
		return c.Op.String()
	case Push, Pop:
		return fmt.Sprintf("%s %s %d", c.Kind, c.Segment, c.Index)
	case Label, Goto, IfGoto:
		return fmt.Sprintf("%s %s", c.Kind, c.Name)
	case Function, Call:
		return fmt.Sprintf("%s %s %d", c.Kind, c.Name, c.N)
	case Return:
		return "return"
	}
	return fmt.Sprintf("<invalid command kind %d>", int(c.Kind))
}

// Module is one translation unit, normally one .vm file.
type Module struct {
	Name     string
	Commands []Command
}
