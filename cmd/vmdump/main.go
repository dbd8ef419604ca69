package main

import (
	"fmt"
	"os"

	"hackvm/pkg/callgraph"
	"hackvm/pkg/codegen"
	"hackvm/pkg/translator"
	"hackvm/pkg/vm"
)

const testSource = `function Main.main 0
push constant 2
push constant 3
add
return
`

func main() {
	var sources []vm.Source
	if len(os.Args) > 1 {
		var err error
		sources, err = vm.Discover(os.Args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
	} else {
		sources = []vm.Source{vm.ModuleSource{Module: vm.MustParse("Main", testSource)}}
	}
	entry := translator.DefaultEntry
	if len(os.Args) > 2 {
		entry = os.Args[2]
	}

	// Parse
	var mods []vm.Module
	for _, src := range sources {
		cmds, err := src.Commands()
		if err != nil {
			fmt.Fprintln(os.Stderr, "parse error:", err)
			os.Exit(1)
		}
		mods = append(mods, vm.Module{Name: src.Name(), Commands: cmds})
	}

	for _, mod := range mods {
		fmt.Printf("Module %s (%d commands)\n", mod.Name, len(mod.Commands))
		for _, cmd := range mod.Commands {
			fmt.Printf("  %4d  %s\n", cmd.Line, cmd)
		}
		fmt.Println()
	}

	// Call graph
	g := callgraph.Build(mods)
	res := g.Reachable([]string{entry})
	fmt.Printf("Reachable from %s\n", entry)
	for _, name := range res.Order {
		fmt.Println(" ", name)
	}
	if dead := g.Dead(res); len(dead) > 0 {
		fmt.Println("Unreachable")
		for _, name := range dead {
			fmt.Println(" ", name)
		}
	}
	for _, w := range res.Warnings {
		fmt.Println("warning:", w)
	}
	fmt.Println()

	// Code generation, plain and optimized
	for _, optimize := range []bool{false, true} {
		st := codegen.NewState()
		b := codegen.New(st, optimize)
		total := 0
		if optimize {
			fmt.Println("Generated Assembly (optimized)")
		}
		for _, mod := range mods {
			st.EnterModule(mod.Name)
			for cursor := 0; cursor < len(mod.Commands); {
				n, lines, err := b.Step(mod.Commands, cursor)
				if err != nil {
					fmt.Fprintf(os.Stderr, "codegen error in %s: %v\n", mod.Name, err)
					os.Exit(1)
				}
				if optimize {
					fmt.Printf("; %s", mod.Commands[cursor])
					if n > 1 {
						fmt.Printf(" (+%d fused)", n-1)
					}
					fmt.Println()
					for _, l := range lines {
						fmt.Println("   ", l)
					}
				}
				total += len(lines)
				cursor += n
			}
		}
		if optimize {
			fmt.Printf("Optimized: %d lines\n", total)
		} else {
			fmt.Printf("Plain: %d lines\n", total)
		}
	}
}
