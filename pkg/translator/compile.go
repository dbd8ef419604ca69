package translator

import (
	"fmt"
	"strings"

	"hackvm/pkg/asm"
	"hackvm/pkg/vm"
)

// Program is a translated and assembled VM program.
type Program struct {
	Lines []string
	Words []uint16
	// SourceMap maps ROM addresses to lines of the assembly.
	SourceMap map[uint16]int
	Report    *Report
}

// Asm returns the assembly text.
func (p *Program) Asm() string {
	return strings.Join(p.Lines, "\n")
}

// Compile translates sources and assembles the result. Unlike Translate it
// fails when any module fails, since a partial program cannot run.
func Compile(cfg Config, sources []vm.Source, opts ...Option) (*Program, error) {
	var out Collector
	rep, err := New(cfg, opts...).Translate(sources, &out)
	if err != nil {
		return nil, err
	}
	if !rep.OK() {
		f := rep.Failures[0]
		return &Program{Report: rep}, fmt.Errorf("%d module(s) failed, first %s: %w", len(rep.Failures), f.Module, f.Err)
	}

	words, sourceMap, err := asm.Assemble(strings.Join(out.Lines, "\n"))
	if err != nil {
		return &Program{Lines: out.Lines, Report: rep}, fmt.Errorf("assembly failed: %w", err)
	}
	return &Program{Lines: out.Lines, Words: words, SourceMap: sourceMap, Report: rep}, nil
}

// CompilePath discovers the .vm sources at path and compiles them. A
// directory with more than one module is bootstrapped into cfg's entry
// function; a single module runs from its first instruction.
func CompilePath(cfg Config, path string, opts ...Option) (*Program, error) {
	sources, err := vm.Discover(path)
	if err != nil {
		return nil, err
	}
	if len(sources) == 1 {
		cfg.Bootstrap = false
	}
	return Compile(cfg, sources, opts...)
}
