package main

import (
	"testing"

	"github.com/hajimehoshi/ebiten/v2"

	"hackvm/pkg/codegen"
	"hackvm/pkg/cpu"
	"hackvm/pkg/translator"
	"hackvm/pkg/vm"
)

func TestKeyCode(t *testing.T) {
	tests := []struct {
		name    string
		pressed []ebiten.Key
		typed   []rune
		prev    uint16
		want    uint16
	}{
		{"nothing held", nil, nil, 65, 0},
		{"typed letter", []ebiten.Key{ebiten.KeyA}, []rune{'a'}, 0, 'a'},
		{"letter still held", []ebiten.Key{ebiten.KeyA}, nil, 'a', 'a'},
		{"enter", []ebiten.Key{ebiten.KeyEnter}, nil, 0, 128},
		{"arrow wins over letter", []ebiten.Key{ebiten.KeyA, ebiten.KeyArrowUp}, []rune{'a'}, 0, 131},
		{"special released", []ebiten.Key{ebiten.KeyShiftLeft}, nil, 128, 0},
		{"shifted symbol", []ebiten.Key{ebiten.KeyShiftLeft, ebiten.KeyDigit1}, []rune{'!'}, 0, '!'},
		{"control char ignored", []ebiten.Key{ebiten.KeyTab}, []rune{'\t'}, 0, 0},
	}
	for _, tc := range tests {
		if got := keyCode(tc.pressed, tc.typed, tc.prev); got != tc.want {
			t.Errorf("%s: keyCode = %d; want %d", tc.name, got, tc.want)
		}
	}
}

func TestGameRunsProgram(t *testing.T) {
	// Set temp 0 to -1, then park.
	src := `
		push constant 0
		not
		pop temp 0
		label WAIT
		goto WAIT
	`
	prog, err := translator.Compile(translator.Config{Optimize: true},
		[]vm.Source{vm.ModuleSource{Module: vm.MustParse("Main", src)}})
	if err != nil {
		t.Fatal(err)
	}

	m := cpu.NewCPU()
	if err := m.Load(prog.Words); err != nil {
		t.Fatal(err)
	}
	m.RAM[0] = codegen.StackBase

	g := &Game{vm: m, stepsPerTic: 1000}
	for i := 0; i < 5; i++ {
		g.tick()
	}
	if !m.Halted {
		t.Errorf("program did not park")
	}
	if m.RAM[5] != 0xFFFF {
		t.Errorf("temp 0 = %#x; want 0xffff", m.RAM[5])
	}
	if w, h := g.Layout(0, 0); w != cpu.ScreenWidth || h != cpu.ScreenHeight {
		t.Errorf("Layout = %dx%d", w, h)
	}
}
