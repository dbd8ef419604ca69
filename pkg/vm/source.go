package vm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source supplies the full command stream of one module. Commands may be
// called more than once; every call returns the same sequence.
type Source interface {
	Name() string
	Commands() ([]Command, error)
}

// ModuleSource serves an already parsed module.
type ModuleSource struct {
	Module Module
}

func (s ModuleSource) Name() string                 { return s.Module.Name }
func (s ModuleSource) Commands() ([]Command, error) { return s.Module.Commands, nil }

// FileSource reads and parses a .vm file on demand.
type FileSource struct {
	Path string
}

// Name is the file stem, which the generator uses as the static namespace.
func (s FileSource) Name() string {
	return ModuleName(s.Path)
}

func (s FileSource) Commands() ([]Command, error) {
	if err := CheckModuleName(s.Name()); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	mod, err := Parse(s.Name(), string(data))
	if err != nil {
		return nil, err
	}
	return mod.Commands, nil
}

// ModuleName strips directory and extension from path.
func ModuleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// CheckModuleName rejects names that cannot prefix a Hack symbol. The
// module name qualifies statics and comparison labels.
func CheckModuleName(name string) error {
	if !isSymbol(name) {
		return fmt.Errorf("%w: module name '%s' is not a valid symbol", ErrSourceUnavailable, name)
	}
	return nil
}

// Discover returns one FileSource for a .vm file, or one per .vm file in a
// directory, sorted by file name.
func Discover(path string) ([]Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	if !info.IsDir() {
		if filepath.Ext(path) != ".vm" {
			return nil, fmt.Errorf("%w: %s is not a .vm file", ErrSourceUnavailable, path)
		}
		return []Source{FileSource{Path: path}}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".vm" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no .vm files in %s", ErrSourceUnavailable, path)
	}

	sources := make([]Source, 0, len(names))
	for _, n := range names {
		sources = append(sources, FileSource{Path: filepath.Join(path, n)})
	}
	return sources, nil
}
