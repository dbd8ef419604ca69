package vm

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Parse tokenizes .vm source text into a Module named name.
// Blank lines and // comments are ignored. The first malformed line
// aborts parsing with an ErrInvalidCommand.
func Parse(name, src string) (Module, error) {
	mod := Module{Name: name}

	sc := bufio.NewScanner(strings.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(stripComment(sc.Text()))
		if len(fields) == 0 {
			continue
		}
		cmd, err := parseFields(fields, lineNo)
		if err != nil {
			return Module{}, fmt.Errorf("%s: %w", name, err)
		}
		mod.Commands = append(mod.Commands, cmd.At(lineNo))
	}
	if err := sc.Err(); err != nil {
		return Module{}, fmt.Errorf("%s: %w: %v", name, ErrSourceUnavailable, err)
	}

	return mod, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// embedded programs.
func MustParse(name, src string) Module {
	mod, err := Parse(name, src)
	if err != nil {
		panic(err)
	}
	return mod
}

func stripComment(line string) string {
	if idx := strings.Index(line, "//"); idx >= 0 {
		return line[:idx]
	}
	return line
}

func parseFields(fields []string, lineNo int) (Command, error) {
	keyword := fields[0]
	args := fields[1:]

	if op, ok := opsByName[keyword]; ok {
		if len(args) != 0 {
			return Command{}, fmt.Errorf("%w: %s expects 0 operands on line %d", ErrInvalidCommand, keyword, lineNo)
		}
		return NewArithmetic(op), nil
	}

	switch keyword {
	case "push", "pop":
		if len(args) != 2 {
			return Command{}, fmt.Errorf("%w: %s expects 2 operands on line %d", ErrInvalidCommand, keyword, lineNo)
		}
		seg, ok := segmentsByName[args[0]]
		if !ok {
			return Command{}, fmt.Errorf("%w: unknown segment '%s' on line %d", ErrInvalidCommand, args[0], lineNo)
		}
		index, err := parseCount(args[1], lineNo)
		if err != nil {
			return Command{}, err
		}
		if keyword == "push" {
			return NewPush(seg, index), nil
		}
		return NewPop(seg, index), nil

	case "label", "goto", "if-goto":
		if len(args) != 1 {
			return Command{}, fmt.Errorf("%w: %s expects 1 operand on line %d", ErrInvalidCommand, keyword, lineNo)
		}
		if !isSymbol(args[0]) {
			return Command{}, fmt.Errorf("%w: invalid label '%s' on line %d", ErrInvalidCommand, args[0], lineNo)
		}
		switch keyword {
		case "label":
			return NewLabel(args[0]), nil
		case "goto":
			return NewGoto(args[0]), nil
		}
		return NewIfGoto(args[0]), nil

	case "function", "call":
		if len(args) != 2 {
			return Command{}, fmt.Errorf("%w: %s expects 2 operands on line %d", ErrInvalidCommand, keyword, lineNo)
		}
		if !isSymbol(args[0]) {
			return Command{}, fmt.Errorf("%w: invalid function name '%s' on line %d", ErrInvalidCommand, args[0], lineNo)
		}
		n, err := parseCount(args[1], lineNo)
		if err != nil {
			return Command{}, err
		}
		if keyword == "function" {
			return NewFunction(args[0], n), nil
		}
		return NewCall(args[0], n), nil

	case "return":
		if len(args) != 0 {
			return Command{}, fmt.Errorf("%w: return expects 0 operands on line %d", ErrInvalidCommand, lineNo)
		}
		return NewReturn(), nil
	}

	return Command{}, fmt.Errorf("%w: unknown command '%s' on line %d", ErrInvalidCommand, keyword, lineNo)
}

func parseCount(token string, lineNo int) (int, error) {
	n, err := strconv.Atoi(token)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: expected a non-negative integer, got '%s' on line %d", ErrInvalidCommand, token, lineNo)
	}
	return n, nil
}

// isSymbol reports whether s is a legal VM/Hack symbol: letters, digits,
// '_', '.', '$' and ':' not starting with a digit.
func isSymbol(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case unicode.IsLetter(r), r == '_', r == '.', r == '$', r == ':':
		case unicode.IsDigit(r) && i > 0:
		default:
			return false
		}
	}
	return true
}
