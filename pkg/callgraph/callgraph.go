// Package callgraph computes which functions a program can reach from its
// entry points, so the translator can leave dead bodies out of the output.
package callgraph

import (
	"fmt"
	"sort"

	"hackvm/pkg/vm"
)

// Graph is the call relation of a set of modules. A function body runs from
// its Function command up to the next Function command or the end of the
// module; commands before the first Function are module-level code.
type Graph struct {
	// Owner maps each declared function to the module declaring it.
	Owner map[string]string
	// Calls lists the callees of each declared function in source order.
	Calls map[string][]string
	// TopLevel lists callees invoked from module-level code.
	TopLevel []string
	// Declared is every function in declaration order.
	Declared []string
}

// Result is the outcome of a reachability query.
type Result struct {
	Reachable map[string]bool
	// Order is the order in which names were first reached.
	Order []string
	// Warnings holds one ErrUnresolvedCallTarget per unresolved name.
	Warnings []error
}

// Contains reports whether name is reachable.
func (r Result) Contains(name string) bool {
	return r.Reachable[name]
}

// Names returns the reachable names sorted.
func (r Result) Names() []string {
	names := make([]string, 0, len(r.Reachable))
	for n := range r.Reachable {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build scans every module once and records its call edges.
func Build(modules []vm.Module) *Graph {
	g := &Graph{
		Owner: make(map[string]string),
		Calls: make(map[string][]string),
	}
	for _, mod := range modules {
		current := ""
		for _, cmd := range mod.Commands {
			switch cmd.Kind {
			case vm.Function:
				current = cmd.Name
				if _, seen := g.Owner[current]; !seen {
					g.Owner[current] = mod.Name
					g.Declared = append(g.Declared, current)
				}
			case vm.Call:
				if current == "" {
					g.TopLevel = append(g.TopLevel, cmd.Name)
				} else {
					g.Calls[current] = append(g.Calls[current], cmd.Name)
				}
			}
		}
	}
	return g
}

// Reachable is shorthand for Build(modules).Reachable(roots).
func Reachable(modules []vm.Module, roots []string) Result {
	return Build(modules).Reachable(roots)
}

// Reachable returns the closure of roots under the call relation. Calls made
// from module-level code are treated as extra roots. A name no module
// declares is reported as a warning and still counted as reachable, since
// the code that would call it cannot be proven dead.
func (g *Graph) Reachable(roots []string) Result {
	res := Result{Reachable: make(map[string]bool)}

	type item struct {
		name, caller string
	}
	var work []item
	for _, r := range roots {
		work = append(work, item{name: r})
	}
	for _, c := range g.TopLevel {
		work = append(work, item{name: c, caller: "module-level code"})
	}

	// Pop from the front so names are reached breadth first.
	for len(work) > 0 {
		it := work[0]
		work = work[1:]
		if res.Reachable[it.name] {
			continue
		}
		res.Reachable[it.name] = true
		res.Order = append(res.Order, it.name)

		if _, ok := g.Owner[it.name]; !ok {
			if it.caller == "" {
				res.Warnings = append(res.Warnings, fmt.Errorf("%w: entry point %s is not declared by any module", vm.ErrUnresolvedCallTarget, it.name))
			} else {
				res.Warnings = append(res.Warnings, fmt.Errorf("%w: %s called from %s is not declared by any module", vm.ErrUnresolvedCallTarget, it.name, it.caller))
			}
			continue
		}
		for _, callee := range g.Calls[it.name] {
			if !res.Reachable[callee] {
				work = append(work, item{name: callee, caller: it.name})
			}
		}
	}
	return res
}

// Dead lists the declared functions missing from res, in declaration order.
func (g *Graph) Dead(res Result) []string {
	var dead []string
	for _, name := range g.Declared {
		if !res.Reachable[name] {
			dead = append(dead, name)
		}
	}
	return dead
}
