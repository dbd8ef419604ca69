package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"hackvm/pkg/codegen"
	"hackvm/pkg/cpu"
	"hackvm/pkg/translator"
	"hackvm/pkg/utils"
)

func main() {
	showAsm := flag.Bool("show-asm", false, "print the generated assembly")
	optimize := flag.Bool("O", false, "enable the peephole optimizer")
	entry := flag.String("entry", translator.DefaultEntry, "entry function")
	cycles := flag.Uint64("cycles", 50_000_000, "cycle limit, 0 for none")
	screenshot := flag.String("screenshot", "", "save the screen as PNG when the run ends")
	scale := flag.Int("scale", 2, "screenshot scale factor")
	snapshot := flag.String("snapshot", "", "hibernate the machine to this file when the run ends")
	restore := flag.String("restore", "", "resume a hibernated machine instead of translating")
	flag.Parse()

	m := cpu.NewCPU()
	if *restore != "" {
		if err := m.RestoreFromFile(*restore); err != nil {
			log.Fatalf("Failed to restore %s: %v", *restore, err)
		}
		fmt.Printf("Resuming %s at PC=%d after %d cycles\n", *restore, m.PC, m.Cycles)
	} else {
		if flag.NArg() < 1 {
			log.Fatalf("usage: console [flags] <file.vm|dir>")
		}
		prog, err := build(flag.Arg(0), *entry, *optimize)
		if err != nil {
			log.Fatalf("Build failed: %v", err)
		}
		if *showAsm {
			print("Generated Assembly:\n", prog.Asm(), "\n")
		}
		if err := m.Load(prog.Words); err != nil {
			log.Fatalf("Load failed: %v", err)
		}
		// Without a bootstrap nothing else sets SP.
		m.RAM[0] = codegen.StackBase
	}

	// The limit counts from where a restored machine left off.
	var limit uint64
	if *cycles > 0 {
		limit = m.Cycles + *cycles
	}
	runErr := m.Run(limit)

	sp := int(m.RAM[0])
	fmt.Printf("PC=%d A=%d D=%d cycles=%d halted=%t\n", m.PC, m.A, int16(m.D), m.Cycles, m.Halted)
	fmt.Printf("SP=%d LCL=%d ARG=%d THIS=%d THAT=%d\n", sp, m.RAM[1], m.RAM[2], m.RAM[3], m.RAM[4])
	if sp >= codegen.StackBase && sp < int(cpu.ScreenBase) {
		var stack []string
		for a := codegen.StackBase; a < sp; a++ {
			stack = append(stack, fmt.Sprint(int16(m.RAM[a])))
		}
		fmt.Printf("stack: [%s]\n", strings.Join(stack, " "))
	}

	if *screenshot != "" {
		if err := m.SaveScreenshot(*screenshot, *scale); err != nil {
			log.Fatalf("Screenshot failed: %v", err)
		}
		fmt.Println("Screenshot saved to", *screenshot)
	}
	if *snapshot != "" {
		if err := m.HibernateToFile(*snapshot); err != nil {
			log.Fatalf("Snapshot failed: %v", err)
		}
		fmt.Println("Snapshot saved to", *snapshot)
	}
	if runErr != nil {
		log.Fatalf("Run stopped: %v", runErr)
	}
}

// build translates and assembles a .vm file or directory.
func build(filename, entry string, optimize bool) (*translator.Program, error) {
	fullPath, baseDir, err := utils.GetPathInfo(filename)
	if err != nil {
		return nil, err
	}
	print("Translating:", fullPath, "\n")
	print("Base directory:", baseDir, "\n")

	cfg := translator.Config{Bootstrap: true, Optimize: optimize, EntryFunction: entry}
	prog, err := translator.CompilePath(cfg, fullPath)
	if prog != nil && prog.Report != nil {
		prog.Report.Print(os.Stdout)
	}
	if err != nil {
		return nil, err
	}
	return prog, nil
}
