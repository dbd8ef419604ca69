package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"hackvm/pkg/asm"
	"hackvm/pkg/codegen"
	"hackvm/pkg/cpu"
	"hackvm/pkg/translator"
	"hackvm/pkg/utils"
	"hackvm/pkg/vm"
)

func main() {
	inPath := flag.String("in", "", "input .vm file or directory of .vm files")
	outPath := flag.String("out", "", "output assembly path (default: Prog.asm next to the input)")
	configPath := flag.String("config", "", "YAML translator config")
	bootstrap := flag.Bool("bootstrap", true, "emit SP initialisation and a call to the entry function")
	optimize := flag.Bool("O", false, "enable the peephole optimizer")
	prune := flag.Bool("prune", false, "leave out functions unreachable from the entry function")
	entry := flag.String("entry", translator.DefaultEntry, "entry function")
	writeHack := flag.Bool("hack", false, "also assemble the output into a .hack file")
	runProgram := flag.Bool("run", false, "run the assembled program on the Hack CPU")
	cycles := flag.Uint64("cycles", 10_000_000, "cycle limit for -run")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -in <file.vm|dir>")
		flag.Usage()
		os.Exit(2)
	}

	cfg := translator.DefaultConfig()
	if *configPath != "" {
		loaded, err := translator.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	// Flags given on the command line win over the config file.
	bootstrapSet := *configPath != ""
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bootstrap":
			cfg.Bootstrap = *bootstrap
			bootstrapSet = true
		case "O":
			cfg.Optimize = *optimize
		case "prune":
			cfg.PruneDeadFunctions = *prune
		case "entry":
			cfg.EntryFunction = *entry
		}
	})

	sources, err := vm.Discover(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read input %q: %v\n", *inPath, err)
		os.Exit(1)
	}

	cfg = forSources(cfg, len(sources), bootstrapSet)

	output := *outPath
	if output == "" {
		output, err = utils.OutputPath(*inPath, ".asm")
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}

	rep, lines, err := translate(cfg, sources, output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "translation failed: %v\n", err)
		os.Exit(1)
	}
	rep.Print(os.Stdout)
	fmt.Printf("wrote %s\n", output)

	if *writeHack || *runProgram {
		words, _, err := asm.Assemble(strings.Join(lines, "\n"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "assembly failed: %v\n", err)
			os.Exit(1)
		}
		if *writeHack {
			hackPath := utils.ReplaceExt(output, ".hack")
			if err := os.WriteFile(hackPath, []byte(asm.FormatHack(words)), 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "failed to write %q: %v\n", hackPath, err)
				os.Exit(1)
			}
			fmt.Printf("assembled %d words -> %s\n", len(words), hackPath)
		}
		if *runProgram {
			if err := run(words, *cycles); err != nil {
				fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
				os.Exit(1)
			}
		}
	}

	if !rep.OK() {
		os.Exit(1)
	}
}

// forSources turns the bootstrap off for a single module, as
// translator.CompilePath does, unless it was asked for explicitly.
func forSources(cfg translator.Config, n int, bootstrapSet bool) translator.Config {
	if n == 1 && !bootstrapSet {
		cfg.Bootstrap = false
	}
	return cfg
}

// translate writes the program to output and also returns its lines.
func translate(cfg translator.Config, sources []vm.Source, output string) (*translator.Report, []string, error) {
	f, err := os.Create(output)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var opts []translator.Option
	if term.IsTerminal(int(os.Stderr.Fd())) && len(sources) > 1 {
		bar := progressbar.NewOptions(len(sources),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("translating"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		opts = append(opts, translator.WithModuleHook(func(module string, _ error) {
			bar.Describe(module)
			_ = bar.Add(1)
		}))
	}

	sink := &teeSink{w: translator.NewWriterSink(f)}
	rep, err := translator.New(cfg, opts...).Translate(sources, sink)
	if err != nil {
		return nil, nil, err
	}
	if err := sink.w.Flush(); err != nil {
		return nil, nil, err
	}
	return rep, sink.c.Lines, nil
}

// teeSink writes to disk and keeps a copy for assembling.
type teeSink struct {
	w *translator.WriterSink
	c translator.Collector
}

func (s *teeSink) BeginModule(name string) error {
	if err := s.w.BeginModule(name); err != nil {
		return err
	}
	return s.c.BeginModule(name)
}

func (s *teeSink) Emit(lines []string) error {
	if err := s.w.Emit(lines); err != nil {
		return err
	}
	return s.c.Emit(lines)
}

func run(words []uint16, cycles uint64) error {
	c := cpu.NewCPU()
	if err := c.Load(words); err != nil {
		return err
	}
	// The bootstrap sets SP again when there is one.
	c.RAM[0] = codegen.StackBase
	err := c.Run(cycles)

	sp := int(c.RAM[0])
	fmt.Printf("run complete: PC=%d A=%d D=%d cycles=%d halted=%t\n", c.PC, c.A, int16(c.D), c.Cycles, c.Halted)
	fmt.Printf("SP=%d LCL=%d ARG=%d THIS=%d THAT=%d\n", sp, c.RAM[1], c.RAM[2], c.RAM[3], c.RAM[4])
	if sp > codegen.StackBase && sp < int(cpu.ScreenBase) {
		fmt.Printf("stack top: %d\n", int16(c.RAM[sp-1]))
	}
	return err
}
