package codegen

import "fmt"

// asmBuf collects Hack assembly lines for one translated command or idiom.
type asmBuf []string

func (b *asmBuf) line(format string, args ...any) {
	*b = append(*b, fmt.Sprintf(format, args...))
}

// at emits an A-instruction loading a symbol.
func (b *asmBuf) at(sym string) {
	*b = append(*b, "@"+sym)
}

func (b *asmBuf) label(sym string) {
	*b = append(*b, "("+sym+")")
}

// pushD emits *SP = D; SP++.
func (b *asmBuf) pushD() {
	b.line("@SP")
	b.line("AM=M+1")
	b.line("A=A-1")
	b.line("M=D")
}

// popD emits SP--; D = *SP. A is left pointing at the popped cell.
func (b *asmBuf) popD() {
	b.line("@SP")
	b.line("AM=M-1")
	b.line("D=M")
}

// top emits A = SP-1, addressing the current top of stack.
func (b *asmBuf) top() {
	b.line("@SP")
	b.line("A=M-1")
}

// jump emits an unconditional jump to sym.
func (b *asmBuf) jump(sym string) {
	b.at(sym)
	b.line("0;JMP")
}
