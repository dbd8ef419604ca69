package codegen

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"hackvm/pkg/vm"
)

func TestGenerateLines(t *testing.T) {
	tests := []struct {
		name string
		cmd  vm.Command
		want []string
	}{
		{"push constant", vm.NewPush(vm.SegConstant, 7), []string{"@7", "D=A", "@SP", "AM=M+1", "A=A-1", "M=D"}},
		{"push constant 0", vm.NewPush(vm.SegConstant, 0), []string{"D=0", "@SP", "AM=M+1", "A=A-1", "M=D"}},
		{"push local 0", vm.NewPush(vm.SegLocal, 0), []string{"@LCL", "A=M", "D=M", "@SP", "AM=M+1", "A=A-1", "M=D"}},
		{"push argument 2", vm.NewPush(vm.SegArgument, 2), []string{"@ARG", "A=M+1", "A=A+1", "D=M", "@SP", "AM=M+1", "A=A-1", "M=D"}},
		{"push that 9", vm.NewPush(vm.SegThat, 9), []string{"@9", "D=A", "@THAT", "A=D+M", "D=M", "@SP", "AM=M+1", "A=A-1", "M=D"}},
		{"push temp 3", vm.NewPush(vm.SegTemp, 3), []string{"@R8", "D=M", "@SP", "AM=M+1", "A=A-1", "M=D"}},
		{"push pointer 1", vm.NewPush(vm.SegPointer, 1), []string{"@THAT", "D=M", "@SP", "AM=M+1", "A=A-1", "M=D"}},
		{"push static 4", vm.NewPush(vm.SegStatic, 4), []string{"@Main.4", "D=M", "@SP", "AM=M+1", "A=A-1", "M=D"}},
		{"pop static 1", vm.NewPop(vm.SegStatic, 1), []string{"@SP", "AM=M-1", "D=M", "@Main.1", "M=D"}},
		{"pop this 7", vm.NewPop(vm.SegThis, 7), []string{"@7", "D=A", "@THIS", "D=D+M", "@R13", "M=D", "@SP", "AM=M-1", "D=M", "@R13", "A=M", "M=D"}},
		{"add", vm.NewArithmetic(vm.OpAdd), []string{"@SP", "AM=M-1", "D=M", "A=A-1", "M=D+M"}},
		{"sub", vm.NewArithmetic(vm.OpSub), []string{"@SP", "AM=M-1", "D=M", "A=A-1", "M=M-D"}},
		{"not", vm.NewArithmetic(vm.OpNot), []string{"@SP", "A=M-1", "M=!M"}},
		{"label", vm.NewLabel("LOOP"), []string{"(Main$LOOP)"}},
		{"goto", vm.NewGoto("LOOP"), []string{"@Main$LOOP", "0;JMP"}},
		{"if-goto", vm.NewIfGoto("LOOP"), []string{"@SP", "AM=M-1", "D=M", "@Main$LOOP", "D;JNE"}},
	}

	for _, tc := range tests {
		st := NewState()
		st.EnterModule("Main")
		got, err := NewGenerator(st).Generate(tc.cmd)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s:\n got  %q\n want %q", tc.name, got, tc.want)
		}
	}
}

func TestLabelScope(t *testing.T) {
	st := NewState()
	st.EnterModule("Main")
	g := NewGenerator(st)

	if _, err := g.Generate(vm.NewFunction("Main.loop", 0)); err != nil {
		t.Fatal(err)
	}
	got, _ := g.Generate(vm.NewLabel("TOP"))
	if got[0] != "(Main.loop$TOP)" {
		t.Errorf("label in function = %q; want (Main.loop$TOP)", got[0])
	}

	// The scope stays with the function after a return.
	if _, err := g.Generate(vm.NewReturn()); err != nil {
		t.Fatal(err)
	}
	got, _ = g.Generate(vm.NewGoto("TOP"))
	if got[0] != "@Main.loop$TOP" {
		t.Errorf("goto after return = %q; want @Main.loop$TOP", got[0])
	}

	st.EnterModule("Other")
	got, _ = g.Generate(vm.NewLabel("TOP"))
	if got[0] != "(Other$TOP)" {
		t.Errorf("label after module reset = %q; want (Other$TOP)", got[0])
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name string
		cmds []vm.Command
		want error
	}{
		{"pop constant", []vm.Command{vm.NewPop(vm.SegConstant, 0)}, vm.ErrInvalidCommand},
		{"pointer 2", []vm.Command{vm.NewPush(vm.SegPointer, 2)}, vm.ErrIndexOutOfRange},
		{"temp 8", []vm.Command{vm.NewPop(vm.SegTemp, 8)}, vm.ErrIndexOutOfRange},
		{"constant too wide", []vm.Command{vm.NewPush(vm.SegConstant, 32768)}, vm.ErrIndexOutOfRange},
		{"negative index", []vm.Command{vm.NewPush(vm.SegLocal, -1)}, vm.ErrIndexOutOfRange},
		{"unknown segment", []vm.Command{vm.NewPush(vm.SegNone, 0)}, vm.ErrInvalidCommand},
		{"unknown op", []vm.Command{vm.NewArithmetic(vm.OpNone)}, vm.ErrInvalidCommand},
		{"return outside function", []vm.Command{vm.NewReturn()}, vm.ErrUnbalancedControl},
		{"empty label", []vm.Command{vm.NewLabel("")}, vm.ErrInvalidCommand},
		{"local too wide", []vm.Command{vm.NewPush(vm.SegLocal, 40000)}, vm.ErrIndexOutOfRange},
		{"argument too wide", []vm.Command{vm.NewPush(vm.SegConstant, 1), vm.NewPop(vm.SegArgument, 40000)}, vm.ErrIndexOutOfRange},
		{"that too wide", []vm.Command{vm.NewPush(vm.SegThat, MaxConstant + 1)}, vm.ErrIndexOutOfRange},
		{"static too wide", []vm.Command{vm.NewPop(vm.SegStatic, 40000)}, vm.ErrIndexOutOfRange},
		{"too many locals", []vm.Command{vm.NewFunction("Main.f", 40000)}, vm.ErrIndexOutOfRange},
		{"too many args", []vm.Command{vm.NewCall("Main.f", 40000)}, vm.ErrIndexOutOfRange},
		{"args plus frame too wide", []vm.Command{vm.NewCall("Main.f", MaxConstant - 4)}, vm.ErrIndexOutOfRange},
		// the optimizer must report the same errors from inside fused patterns
		{"fused push-pop constant", []vm.Command{vm.NewPush(vm.SegLocal, 0), vm.NewPop(vm.SegConstant, 1)}, vm.ErrInvalidCommand},
		{"fused push-push-add pointer", []vm.Command{vm.NewPush(vm.SegConstant, 1), vm.NewPush(vm.SegPointer, 5), vm.NewArithmetic(vm.OpAdd)}, vm.ErrIndexOutOfRange},
		{"fused push-pop temp", []vm.Command{vm.NewPush(vm.SegConstant, 1), vm.NewPop(vm.SegTemp, 9)}, vm.ErrIndexOutOfRange},
	}

	for _, tc := range tests {
		for _, optimize := range []bool{false, true} {
			_, err := translate(New(NewState(), optimize), "Main", tc.cmds)
			if !errors.Is(err, tc.want) {
				t.Errorf("%s (optimize=%v): error = %v; want %v", tc.name, optimize, err, tc.want)
			}
		}
	}
}

func TestComparisonLabelsUnique(t *testing.T) {
	for _, op := range []vm.Op{vm.OpEq, vm.OpGt, vm.OpLt} {
		st := NewState()
		st.EnterModule("Main")
		g := NewGenerator(st)

		const m = 5
		seen := make(map[string]bool)
		for i := 0; i < m; i++ {
			lines, err := g.Generate(vm.NewArithmetic(op))
			if err != nil {
				t.Fatal(err)
			}
			var labels []string
			for _, l := range lines {
				if strings.HasPrefix(l, "(") {
					labels = append(labels, l)
				}
			}
			if len(labels) != 2 {
				t.Fatalf("%s: expected a label pair, got %q", op, labels)
			}
			for _, l := range labels {
				if seen[l] {
					t.Errorf("%s: label %s reused", op, l)
				}
				seen[l] = true
			}
		}
		if len(seen) != 2*m {
			t.Errorf("%s: %d distinct labels; want %d", op, len(seen), 2*m)
		}
		if st.Labels != m {
			t.Errorf("%s: label counter = %d; want %d", op, st.Labels, m)
		}
	}
}

func TestCallCounterIsGlobal(t *testing.T) {
	st := NewState()
	g := NewGenerator(st)

	st.EnterModule("A")
	a, _ := g.Generate(vm.NewCall("Math.max", 2))
	st.EnterModule("B")
	b, _ := g.Generate(vm.NewCall("Math.max", 2))

	if a[len(a)-1] == b[len(b)-1] {
		t.Errorf("return labels collide across modules: %s", a[len(a)-1])
	}
	if st.Calls != 2 {
		t.Errorf("call counter = %d; want 2", st.Calls)
	}
}

func TestArithmeticExecution(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []int16
	}{
		{"add", "push constant 2\npush constant 3\nadd", []int16{5}},
		{"sub order", "push constant 10\npush constant 3\nsub", []int16{7}},
		{"neg", "push constant 4\nneg", []int16{-4}},
		{"and", "push constant 12\npush constant 10\nand", []int16{8}},
		{"or", "push constant 12\npush constant 10\nor", []int16{14}},
		{"not", "push constant 0\nnot", []int16{-1}},
		{"eq true", "push constant 7\npush constant 7\neq", []int16{-1}},
		{"eq false", "push constant 7\npush constant 8\neq", []int16{0}},
		{"gt", "push constant 9\npush constant 8\ngt\npush constant 8\npush constant 9\ngt", []int16{-1, 0}},
		{"lt", "push constant 8\npush constant 9\nlt\npush constant 9\npush constant 9\nlt", []int16{-1, 0}},
		{"lt negative", "push constant 1\nneg\npush constant 1\nlt", []int16{-1}},
		{"segments", "push local 1\npush argument 5\npush this 0\npush that 3", []int16{101, 205, 300, 403}},
		{"pointer reads base", "push pointer 0\npush pointer 1", []int16{testTHIS, testTHAT}},
	}

	for _, tc := range tests {
		bothBackends(t, func(t *testing.T, optimize bool) {
			h := newHarness(t, optimize)
			h.source("Main", tc.src)
			h.halt()
			c := h.run()
			if got := stack(c); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("%s: stack = %v; want %v", tc.name, got, tc.want)
			}
		})
	}
}

func TestPushPopRoundTrip(t *testing.T) {
	bothBackends(t, func(t *testing.T, optimize bool) {
		h := newHarness(t, optimize)
		h.source("Main", `
			push constant 42
			pop local 3
			push local 3
			push constant 17
			pop static 2
			push static 2
			push constant 9
			pop temp 7
			push temp 7
			push constant 5
			pop that 12
			push that 12
		`)
		h.halt()
		c := h.run()

		if got, want := stack(c), []int16{42, 17, 9, 5}; !reflect.DeepEqual(got, want) {
			t.Errorf("stack = %v; want %v", got, want)
		}
		if c.RAM[testLCL+3] != 42 || c.RAM[12] != 9 || c.RAM[testTHAT+12] != 5 {
			t.Errorf("segment cells not written: local3=%d temp7=%d that12=%d", c.RAM[testLCL+3], c.RAM[12], c.RAM[testTHAT+12])
		}
	})
}

func TestControlFlowExecution(t *testing.T) {
	// sum 1..10 with a loop over local 0 (counter) and local 1 (sum)
	bothBackends(t, func(t *testing.T, optimize bool) {
		h := newHarness(t, optimize)
		h.source("Main", `
			push constant 10
			pop local 0
			push constant 0
			pop local 1
			label LOOP
			push local 0
			push constant 0
			eq
			if-goto DONE
			push local 1
			push local 0
			add
			pop local 1
			push local 0
			push constant 1
			sub
			pop local 0
			goto LOOP
			label DONE
			push local 1
		`)
		h.halt()
		c := h.run()
		if got, want := stack(c), []int16{55}; !reflect.DeepEqual(got, want) {
			t.Errorf("stack = %v; want %v", got, want)
		}
	})
}

func TestCallReturnStackInvariant(t *testing.T) {
	bothBackends(t, func(t *testing.T, optimize bool) {
		h := newHarness(t, optimize)
		h.source("Main", `
			push constant 99
			push constant 10
			push constant 20
			call Math.add2 2
		`)
		h.halt()
		h.source("Math", `
			function Math.add2 3
			push argument 0
			push argument 1
			add
			pop local 2
			push local 2
			push local 0
			add
			return
		`)
		c := h.run()

		// SP before the call was 259; after return it is 259 - 2 + 1.
		if c.RAM[0] != 258 {
			t.Errorf("SP = %d; want 258", c.RAM[0])
		}
		if got, want := stack(c), []int16{99, 30}; !reflect.DeepEqual(got, want) {
			t.Errorf("stack = %v; want %v", got, want)
		}
		for i, want := range []uint16{testLCL, testARG, testTHIS, testTHAT} {
			if c.RAM[i+1] != want {
				t.Errorf("RAM[%d] = %d after return; want %d", i+1, c.RAM[i+1], want)
			}
		}
	})
}

func TestFunctionLocalsInitialised(t *testing.T) {
	for _, n := range []int{0, 1, unrollLocals, unrollLocals + 1, 20} {
		bothBackends(t, func(t *testing.T, optimize bool) {
			h := newHarness(t, optimize)
			h.source("Main", "call Main.f 0")
			h.halt()

			lines, err := translate(h.b, "Main", []vm.Command{vm.NewFunction("Main.f", n)})
			if err != nil {
				t.Fatal(err)
			}
			h.emit(lines...)
			h.halt()

			c := h.run()
			// return address + 4 saved registers + n zeroed locals
			if want := uint16(StackBase + 5 + n); c.RAM[0] != want {
				t.Errorf("n=%d: SP = %d; want %d", n, c.RAM[0], want)
			}
			for i := 0; i < n; i++ {
				if v := c.RAM[StackBase+5+i]; v != 0 {
					t.Errorf("n=%d: local %d = %d; want 0", n, i, v)
				}
			}
		})
	}
}

func TestBootstrap(t *testing.T) {
	bothBackends(t, func(t *testing.T, optimize bool) {
		b := New(NewState(), optimize)
		boot, err := b.Bootstrap("Sys.init")
		if err != nil {
			t.Fatal(err)
		}
		if boot[0] != "@256" || boot[3] != "M=D" {
			t.Errorf("bootstrap does not start by setting SP: %q", boot[:4])
		}
		if boot[len(boot)-3] != "("+bootstrapGuard+")" {
			t.Errorf("bootstrap does not end with the guard loop: %q", boot[len(boot)-3:])
		}

		if _, err := b.Bootstrap(""); !errors.Is(err, vm.ErrInvalidCommand) {
			t.Errorf("empty entry: error = %v; want ErrInvalidCommand", err)
		}
	})
}
