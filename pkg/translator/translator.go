// Package translator drives a whole VM program through code generation:
// it loads every module, prunes unreachable functions, emits the bootstrap
// and translates module by module, isolating failures to the module that
// caused them.
package translator

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"hackvm/pkg/callgraph"
	"hackvm/pkg/codegen"
	"hackvm/pkg/vm"
)

// Failure records a module that produced no output.
type Failure struct {
	Module string
	Kind   string
	Err    error
}

// Report summarises one translation run.
type Report struct {
	// Translated counts modules whose output reached the sink.
	Translated int
	Modules    []string
	// Skipped lists pruned functions, each once, in source order.
	Skipped  []string
	Failures []Failure
	// Warnings holds findings that did not stop translation.
	Warnings []error
	// Lines counts emitted assembly lines, bootstrap included.
	Lines int
}

// OK reports whether every module translated.
func (r *Report) OK() bool {
	return len(r.Failures) == 0
}

// Print writes a human-readable summary.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Translated %d module(s), %d line(s) of assembly\n", r.Translated, r.Lines)
	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, "Skipped %d unreachable function(s): %s\n", len(r.Skipped), strings.Join(r.Skipped, ", "))
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "warning: %v\n", warn)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "FAILED %s [%s]: %v\n", f.Module, f.Kind, f.Err)
	}
}

// Option configures a Translator.
type Option func(*Translator)

func WithLogger(l *slog.Logger) Option {
	return func(t *Translator) { t.logger = l }
}

// WithModuleHook registers fn to run after each module, with the module's
// error or nil.
func WithModuleHook(fn func(module string, err error)) Option {
	return func(t *Translator) { t.onModule = fn }
}

type Translator struct {
	cfg      Config
	logger   *slog.Logger
	onModule func(string, error)
}

func New(cfg Config, opts ...Option) *Translator {
	t := &Translator{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// loaded is the pre-scanned command stream of one source.
type loaded struct {
	mod vm.Module
	err error
}

// load reads every source concurrently. A failing source only marks its own slot.
func (t *Translator) load(sources []vm.Source) []loaded {
	slots := make([]loaded, len(sources))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			if err := vm.CheckModuleName(src.Name()); err != nil {
				slots[i] = loaded{mod: vm.Module{Name: src.Name()}, err: err}
				return nil
			}
			cmds, err := src.Commands()
			slots[i] = loaded{mod: vm.Module{Name: src.Name(), Commands: cmds}, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return slots
}

// Translate emits the program made of sources into sink. Errors confined to
// one module are recorded in the report and translation moves on; the
// returned error is reserved for failures that leave the output unusable.
func (t *Translator) Translate(sources []vm.Source, sink Sink) (*Report, error) {
	if err := t.cfg.Validate(); err != nil {
		return nil, err
	}
	rep := &Report{}
	slots := t.load(sources)

	var mods []vm.Module
	for _, s := range slots {
		if s.err == nil {
			mods = append(mods, s.mod)
		}
	}

	var reach callgraph.Result
	switch {
	case t.cfg.PruneDeadFunctions:
		reach = callgraph.Reachable(mods, t.cfg.Roots())
		rep.Warnings = append(rep.Warnings, reach.Warnings...)
	case t.cfg.Bootstrap:
		g := callgraph.Build(mods)
		for _, root := range t.cfg.Roots() {
			if _, ok := g.Owner[root]; !ok {
				rep.Warnings = append(rep.Warnings, fmt.Errorf("%w: entry point %s is not declared by any module", vm.ErrUnresolvedCallTarget, root))
			}
		}
	}
	for _, w := range rep.Warnings {
		t.logger.Warn("unresolved call target", "err", w)
	}

	st := codegen.NewState()
	backend := codegen.New(st, t.cfg.Optimize)

	if t.cfg.Bootstrap {
		lines, err := backend.Bootstrap(t.cfg.EntryFunction)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		if err := sink.Emit(lines); err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		rep.Lines += len(lines)
	}

	for _, s := range slots {
		name := s.mod.Name
		err := s.err
		if err == nil {
			t.logger.Debug("translating module", "module", name, "commands", len(s.mod.Commands))

			// Shared counters and routine flags roll back with the module's output.
			saved := *st
			var lines, skipped []string
			lines, skipped, err = t.module(backend, s.mod, reach)
			if err != nil {
				*st = saved
			} else {
				if err := sink.BeginModule(name); err != nil {
					return nil, fmt.Errorf("module %s: %w", name, err)
				}
				if err := sink.Emit(lines); err != nil {
					return nil, fmt.Errorf("module %s: %w", name, err)
				}
				rep.Translated++
				rep.Modules = append(rep.Modules, name)
				rep.Skipped = append(rep.Skipped, skipped...)
				rep.Lines += len(lines)
				t.logger.Debug("translated module", "module", name, "lines", len(lines), "skipped", len(skipped))
			}
		}
		if err != nil {
			t.logger.Error("module failed", "module", name, "kind", vm.KindOf(err), "err", err)
			rep.Failures = append(rep.Failures, Failure{Module: name, Kind: vm.KindOf(err), Err: err})
		}
		if t.onModule != nil {
			t.onModule(name, err)
		}
	}
	return rep, nil
}

// module translates one module, skipping the bodies of functions outside
// reach when pruning is on.
func (t *Translator) module(backend codegen.Backend, mod vm.Module, reach callgraph.Result) (lines, skipped []string, err error) {
	backend.State().EnterModule(mod.Name)
	cmds := mod.Commands

	for cursor := 0; cursor < len(cmds); {
		cmd := cmds[cursor]
		if t.cfg.PruneDeadFunctions && cmd.Kind == vm.Function && !reach.Contains(cmd.Name) {
			skipped = append(skipped, cmd.Name)
			cursor = bodyEnd(cmds, cursor)
			continue
		}

		n, out, err := backend.Step(cmds, cursor)
		if err != nil {
			if cmd.Line > 0 {
				return nil, nil, fmt.Errorf("%s line %d: %w", mod.Name, cmd.Line, err)
			}
			return nil, nil, fmt.Errorf("%s: %w", mod.Name, err)
		}
		lines = append(lines, out...)
		cursor += n
	}
	return lines, skipped, nil
}

// bodyEnd returns the index of the first command after the function body
// starting at start: the next Function command or the end of the module.
func bodyEnd(cmds []vm.Command, start int) int {
	for i := start + 1; i < len(cmds); i++ {
		if cmds[i].Kind == vm.Function {
			return i
		}
	}
	return len(cmds)
}
