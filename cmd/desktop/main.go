package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"hackvm/pkg/codegen"
	"hackvm/pkg/cpu"
	"hackvm/pkg/translator"
	"hackvm/pkg/utils"
)

// Hack keyboard codes for keys without a printable character.
var specialKeys = map[ebiten.Key]uint16{
	ebiten.KeyEnter:      128,
	ebiten.KeyBackspace:  129,
	ebiten.KeyArrowLeft:  130,
	ebiten.KeyArrowUp:    131,
	ebiten.KeyArrowRight: 132,
	ebiten.KeyArrowDown:  133,
	ebiten.KeyHome:       134,
	ebiten.KeyEnd:        135,
	ebiten.KeyPageUp:     136,
	ebiten.KeyPageDown:   137,
	ebiten.KeyInsert:     138,
	ebiten.KeyDelete:     139,
	ebiten.KeyEscape:     140,
	ebiten.KeyF1:         141,
	ebiten.KeyF2:         142,
	ebiten.KeyF3:         143,
	ebiten.KeyF4:         144,
	ebiten.KeyF5:         145,
	ebiten.KeyF6:         146,
	ebiten.KeyF7:         147,
	ebiten.KeyF8:         148,
	ebiten.KeyF9:         149,
	ebiten.KeyF10:        150,
	ebiten.KeyF11:        151,
	ebiten.KeyF12:        152,
}

// keyCode returns the value the keyboard register holds this frame. The
// register keeps the last typed character for as long as any key is down.
func keyCode(pressed []ebiten.Key, typed []rune, prev uint16) uint16 {
	if len(pressed) == 0 {
		return 0
	}
	for _, k := range pressed {
		if code, ok := specialKeys[k]; ok {
			return code
		}
	}
	if n := len(typed); n > 0 && typed[n-1] >= ' ' && typed[n-1] < 127 {
		return uint16(typed[n-1])
	}
	if prev >= 128 {
		// A special key was released while another key stays down.
		return 0
	}
	return prev
}

type Game struct {
	vm          *cpu.CPU
	screenImg   *ebiten.Image // reused 512×256 canvas
	stepsPerTic int
	key         uint16
	pressed     []ebiten.Key
	typed       []rune
	showStatus  bool
}

func (g *Game) Update() error {
	g.pressed = inpututil.AppendPressedKeys(g.pressed[:0])
	g.typed = ebiten.AppendInputChars(g.typed[:0])
	g.key = keyCode(g.pressed, g.typed, g.key)
	g.vm.SetKey(g.key)

	if inpututil.IsKeyJustPressed(ebiten.KeyF12) && ebiten.IsKeyPressed(ebiten.KeyControl) {
		g.showStatus = !g.showStatus
	}

	g.tick()
	return nil
}

// tick runs one frame's worth of instructions.
func (g *Game) tick() {
	for i := 0; i < g.stepsPerTic; i++ {
		// Break early once the program parks itself.
		if g.vm.Halted {
			break
		}
		g.vm.Step()
	}
}

func (g *Game) Draw(screen *ebiten.Image) {
	if g.screenImg == nil {
		g.screenImg = ebiten.NewImage(cpu.ScreenWidth, cpu.ScreenHeight)
	}
	g.screenImg.WritePixels(g.vm.FramebufferRGBA())
	screen.DrawImage(g.screenImg, nil)

	if g.showStatus {
		msg := fmt.Sprintf("PC=%d SP=%d KBD=%d cycles=%d", g.vm.PC, g.vm.RAM[0], g.key, g.vm.Cycles)
		if g.vm.Halted {
			msg += " halted"
		}
		ebitenutil.DebugPrintAt(screen, msg, 4, cpu.ScreenHeight-16)
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return cpu.ScreenWidth, cpu.ScreenHeight
}

func main() {
	showAsm := flag.Bool("show-asm", false, "print the generated assembly")
	optimize := flag.Bool("O", true, "enable the peephole optimizer")
	entry := flag.String("entry", translator.DefaultEntry, "entry function")
	scale := flag.Int("scale", 2, "window scale")
	speed := flag.Int("speed", 100_000, "instructions per frame")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatalf("usage: desktop [flags] <file.vm|dir>")
	}
	fullPath, _, err := utils.GetPathInfo(flag.Arg(0))
	if err != nil {
		log.Fatalf("Bad path: %v", err)
	}

	cfg := translator.Config{Bootstrap: true, Optimize: *optimize, EntryFunction: *entry}
	prog, err := translator.CompilePath(cfg, fullPath)
	if err != nil {
		log.Fatalf("Build failed: %v", err)
	}
	if *showAsm {
		print("Generated Assembly:\n", prog.Asm(), "\n")
	}

	vm := cpu.NewCPU()
	if err := vm.Load(prog.Words); err != nil {
		log.Fatalf("Load failed: %v", err)
	}
	vm.RAM[0] = codegen.StackBase

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(cpu.ScreenWidth**scale, cpu.ScreenHeight**scale)
	ebiten.SetWindowTitle("Hack VM - " + flag.Arg(0))

	game := &Game{vm: vm, stepsPerTic: *speed}
	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}
