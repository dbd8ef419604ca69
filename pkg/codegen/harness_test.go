package codegen

import (
	"fmt"
	"strings"
	"testing"

	"hackvm/pkg/asm"
	"hackvm/pkg/cpu"
	"hackvm/pkg/vm"
)

// Segment bases used when running module-level code without a bootstrap.
const (
	testLCL  = 1000
	testARG  = 1100
	testTHIS = 1200
	testTHAT = 1300
)

// harness accumulates translated modules into one program and runs it.
type harness struct {
	t     *testing.T
	b     Backend
	lines []string
	halts int
}

func newHarness(t *testing.T, optimize bool) *harness {
	t.Helper()
	return &harness{t: t, b: New(NewState(), optimize)}
}

// emit appends raw assembly ahead of the translated code.
func (h *harness) emit(lines ...string) {
	h.lines = append(h.lines, lines...)
}

func (h *harness) module(name string, cmds []vm.Command) {
	h.t.Helper()
	lines, err := translate(h.b, name, cmds)
	if err != nil {
		h.t.Fatalf("translate %s: %v", name, err)
	}
	h.lines = append(h.lines, lines...)
}

func (h *harness) source(name, src string) {
	h.t.Helper()
	h.module(name, vm.MustParse(name, src).Commands)
}

// halt parks the CPU so Run returns.
func (h *harness) halt() {
	l := fmt.Sprintf("TEST_HALT_%d", h.halts)
	h.halts++
	h.lines = append(h.lines, "("+l+")", "@"+l, "0;JMP")
}

func (h *harness) run() *cpu.CPU {
	h.t.Helper()
	return runProgram(h.t, h.lines)
}

func translate(b Backend, name string, cmds []vm.Command) ([]string, error) {
	b.State().EnterModule(name)
	var out []string
	for cursor := 0; cursor < len(cmds); {
		n, lines, err := b.Step(cmds, cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, lines...)
		cursor += n
	}
	return out, nil
}

func runProgram(t *testing.T, lines []string) *cpu.CPU {
	t.Helper()
	words, _, err := asm.Assemble(strings.Join(lines, "\n"))
	if err != nil {
		t.Fatalf("assemble: %v\n%s", err, strings.Join(lines, "\n"))
	}

	c := cpu.NewCPU()
	if err := c.Load(words); err != nil {
		t.Fatalf("load: %v", err)
	}
	c.RAM[0] = StackBase
	c.RAM[1] = testLCL
	c.RAM[2] = testARG
	c.RAM[3] = testTHIS
	c.RAM[4] = testTHAT
	for i := 0; i < 16; i++ {
		c.RAM[testLCL+i] = uint16(100 + i)
		c.RAM[testARG+i] = uint16(200 + i)
		c.RAM[testTHIS+i] = uint16(300 + i)
		c.RAM[testTHAT+i] = uint16(400 + i)
	}

	if err := c.Run(2_000_000); err != nil {
		t.Fatalf("run: %v", err)
	}
	return c
}

// stack returns the live stack contents, bottom first.
func stack(c *cpu.CPU) []int16 {
	var out []int16
	for a := StackBase; a < int(c.RAM[0]); a++ {
		out = append(out, int16(c.RAM[a]))
	}
	return out
}

func bothBackends(t *testing.T, fn func(t *testing.T, optimize bool)) {
	t.Run("plain", func(t *testing.T) { fn(t, false) })
	t.Run("optimized", func(t *testing.T) { fn(t, true) })
}
