package main

import (
	"testing"

	"hackvm/pkg/cpu"
	"hackvm/pkg/translator"
	"hackvm/pkg/vm"
)

func TestTranslatorAndCPU(t *testing.T) {
	// 1. Define VM source: fib(0..10) written through THAT into RAM[3000..].
	mainSource := `
function Main.main 1
push constant 0
pop local 0
label LOOP
push local 0
push constant 11
lt
not
if-goto END
push constant 3000
push local 0
add
pop pointer 1
push local 0
call Main.fib 1
pop that 0
push local 0
push constant 1
add
pop local 0
goto LOOP
label END
push constant 3000
pop pointer 1
push that 10
return

function Main.fib 0
push argument 0
push constant 2
lt
if-goto BASE
push argument 0
push constant 1
sub
call Main.fib 1
push argument 0
push constant 2
sub
call Main.fib 1
add
return
label BASE
push argument 0
return
`
	sysSource := `
function Sys.init 0
call Main.main 0
pop static 0
label HALT
goto HALT
`
	want := []int16{0, 1, 1, 2, 3, 5, 8, 13, 21, 34, 55}

	var machines []*cpu.CPU
	for _, optimize := range []bool{false, true} {
		// 2. Parse
		sources := []vm.Source{
			vm.ModuleSource{Module: vm.MustParse("Main", mainSource)},
			vm.ModuleSource{Module: vm.MustParse("Sys", sysSource)},
		}

		// 3. Translate and assemble
		cfg := translator.DefaultConfig()
		cfg.Optimize = optimize
		prog, err := translator.Compile(cfg, sources)
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		t.Logf("optimize=%t: %d assembly lines, %d words", optimize, len(prog.Lines), len(prog.Words))

		// 4. Instantiate CPU and load code
		m := cpu.NewCPU()
		if err := m.Load(prog.Words); err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		// 5. Run until the program parks in Sys.init
		if err := m.Run(10_000_000); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		// 6. Assertions
		for i, w := range want {
			if got := int16(m.RAM[3000+i]); got != w {
				t.Errorf("optimize=%t: fib(%d) = %d; want %d", optimize, i, got, w)
			}
		}
		if m.RAM[16] != 55 {
			t.Errorf("optimize=%t: Sys.0 = %d; want 55", optimize, m.RAM[16])
		}
		// Stack fully unwound back to Sys.init's frame.
		if m.RAM[0] != 261 {
			t.Errorf("optimize=%t: SP = %d; want 261", optimize, m.RAM[0])
		}
		machines = append(machines, m)
	}

	if [11]uint16(machines[0].RAM[3000:3011]) != [11]uint16(machines[1].RAM[3000:3011]) {
		t.Errorf("backends disagree")
	}
}
