package asm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"hackvm/pkg/cpu"
)

// compCodes maps a comp mnemonic to its 7-bit a+cccccc field.
var compCodes = map[string]uint16{
	"0":   0x2A,
	"1":   0x3F,
	"-1":  0x3A,
	"D":   0x0C,
	"A":   0x30,
	"!D":  0x0D,
	"!A":  0x31,
	"-D":  0x0F,
	"-A":  0x33,
	"D+1": 0x1F,
	"A+1": 0x37,
	"D-1": 0x0E,
	"A-1": 0x32,
	"D+A": 0x02,
	"D-A": 0x13,
	"A-D": 0x07,
	"D&A": 0x00,
	"D|A": 0x15,
	"M":   0x70,
	"!M":  0x71,
	"-M":  0x73,
	"M+1": 0x77,
	"M-1": 0x72,
	"D+M": 0x42,
	"D-M": 0x53,
	"M-D": 0x47,
	"D&M": 0x40,
	"D|M": 0x55,
}

// commutedComps lists the alternative operand order accepted for commutative ops.
var commutedComps = map[string]string{
	"A+D": "D+A",
	"M+D": "D+M",
	"A&D": "D&A",
	"M&D": "D&M",
	"A|D": "D|A",
	"M|D": "D|M",
	"1+D": "D+1",
	"1+A": "A+1",
	"1+M": "M+1",
}

var jumpCodes = map[string]uint16{
	"JGT": cpu.JumpGT,
	"JEQ": cpu.JumpEQ,
	"JGE": cpu.JumpGT | cpu.JumpEQ,
	"JLT": cpu.JumpLT,
	"JNE": cpu.JumpLT | cpu.JumpGT,
	"JLE": cpu.JumpLT | cpu.JumpEQ,
	"JMP": cpu.JumpAll,
}

// predefined holds the built-in symbols of the Hack platform.
var predefined = map[string]uint16{
	"SP":     0,
	"LCL":    1,
	"ARG":    2,
	"THIS":   3,
	"THAT":   4,
	"SCREEN": cpu.ScreenBase,
	"KBD":    cpu.KBD,
}

func init() {
	for i := 0; i < 16; i++ {
		predefined["R"+strconv.Itoa(i)] = uint16(i)
	}
}

// VariableBase is the first RAM address handed out to variables.
const VariableBase = 16

const maxValue = 0x7FFF

type Assembler struct {
	labels    map[string]uint16
	variables map[string]uint16
	nextVar   uint16
}

type parsedLine struct {
	lineNo int
	label  string // (LABEL) pseudo-instruction
	symbol string // @symbol or @number
	dest   string
	comp   string
	jump   string
	isA    bool
	isC    bool
}

func NewAssembler() *Assembler {
	return &Assembler{
		labels:    make(map[string]uint16),
		variables: make(map[string]uint16),
		nextVar:   VariableBase,
	}
}

// Assemble translates Hack assembly text into machine words. The source map
// relates each ROM address to the 1-based source line it came from.
func Assemble(code string) ([]uint16, map[uint16]int, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) ([]uint16, map[uint16]int, error) {
	lines := strings.Split(code, "\n")

	parsed, err := a.pass1(lines)
	if err != nil {
		return nil, nil, err
	}

	return a.pass2(parsed)
}

// pass1 parses every line and binds labels to ROM addresses.
func (a *Assembler) pass1(lines []string) ([]parsedLine, error) {
	var address int
	parsed := make([]parsedLine, 0, len(lines))

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return nil, err
		}

		if p.label != "" {
			if _, exists := predefined[p.label]; exists {
				return nil, fmt.Errorf("label '%s' redefines a built-in symbol on line %d", p.label, lineNo)
			}
			if _, exists := a.labels[p.label]; exists {
				return nil, fmt.Errorf("duplicate label '%s' on line %d", p.label, lineNo)
			}
			a.labels[p.label] = uint16(address)
			continue
		}

		if !p.isA && !p.isC {
			continue
		}
		if address >= cpu.ROMSize {
			return nil, fmt.Errorf("program too large near line %d", lineNo)
		}
		address++
		parsed = append(parsed, p)
	}

	return parsed, nil
}

func (a *Assembler) pass2(parsed []parsedLine) ([]uint16, map[uint16]int, error) {
	program := make([]uint16, 0, len(parsed))
	sourceMap := make(map[uint16]int, len(parsed))

	for _, p := range parsed {
		sourceMap[uint16(len(program))] = p.lineNo

		if p.isA {
			val, err := a.resolve(p.symbol, p.lineNo)
			if err != nil {
				return nil, nil, err
			}
			program = append(program, val)
			continue
		}

		word, err := encodeCompute(p)
		if err != nil {
			return nil, nil, err
		}
		program = append(program, word)
	}

	return program, sourceMap, nil
}

// resolve returns the value of an A-instruction operand, allocating a new
// variable for symbols that are neither labels nor built-ins.
func (a *Assembler) resolve(token string, lineNo int) (uint16, error) {
	if token[0] >= '0' && token[0] <= '9' {
		value, err := strconv.ParseUint(token, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid constant '%s' on line %d", token, lineNo)
		}
		if value > maxValue {
			return 0, fmt.Errorf("constant out of range on line %d: %s", lineNo, token)
		}
		return uint16(value), nil
	}

	if addr, ok := predefined[token]; ok {
		return addr, nil
	}
	if addr, ok := a.labels[token]; ok {
		return addr, nil
	}
	if addr, ok := a.variables[token]; ok {
		return addr, nil
	}

	if a.nextVar >= cpu.ScreenBase {
		return 0, fmt.Errorf("out of variable space allocating '%s' on line %d", token, lineNo)
	}
	addr := a.nextVar
	a.variables[token] = addr
	a.nextVar++
	return addr, nil
}

func encodeCompute(p parsedLine) (uint16, error) {
	comp := p.comp
	if alt, ok := commutedComps[comp]; ok {
		comp = alt
	}
	compBits, ok := compCodes[comp]
	if !ok {
		return 0, fmt.Errorf("invalid comp '%s' on line %d", p.comp, p.lineNo)
	}

	var dest uint16
	for _, r := range p.dest {
		var bit uint16
		switch r {
		case 'A':
			bit = cpu.DestA
		case 'D':
			bit = cpu.DestD
		case 'M':
			bit = cpu.DestM
		default:
			return 0, fmt.Errorf("invalid dest '%s' on line %d", p.dest, p.lineNo)
		}
		if dest&bit != 0 {
			return 0, fmt.Errorf("repeated register in dest '%s' on line %d", p.dest, p.lineNo)
		}
		dest |= bit
	}

	var jump uint16
	if p.jump != "" {
		jump, ok = jumpCodes[p.jump]
		if !ok {
			return 0, fmt.Errorf("invalid jump '%s' on line %d", p.jump, p.lineNo)
		}
	}

	return cpu.EncodeCompute(compBits, dest, jump), nil
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := stripComments(raw)
	line = strings.Join(strings.Fields(line), "")
	if line == "" {
		return p, nil
	}

	switch {
	case strings.HasPrefix(line, "("):
		if !strings.HasSuffix(line, ")") {
			return p, fmt.Errorf("unterminated label on line %d", lineNo)
		}
		label := line[1 : len(line)-1]
		if !isIdentifier(label) {
			return p, fmt.Errorf("invalid label '%s' on line %d", label, lineNo)
		}
		p.label = label

	case strings.HasPrefix(line, "@"):
		sym := line[1:]
		if sym == "" {
			return p, fmt.Errorf("missing operand for @ on line %d", lineNo)
		}
		if !isNumber(sym) && !isIdentifier(sym) {
			return p, fmt.Errorf("invalid symbol '%s' on line %d", sym, lineNo)
		}
		p.isA = true
		p.symbol = sym

	default:
		p.isC = true
		rest := line
		if eq := strings.IndexByte(rest, '='); eq >= 0 {
			p.dest = rest[:eq]
			rest = rest[eq+1:]
			if p.dest == "" {
				return p, fmt.Errorf("empty dest on line %d", lineNo)
			}
		}
		if semi := strings.IndexByte(rest, ';'); semi >= 0 {
			p.jump = rest[semi+1:]
			rest = rest[:semi]
			if p.jump == "" {
				return p, fmt.Errorf("empty jump on line %d", lineNo)
			}
		}
		p.comp = rest
		if p.comp == "" {
			return p, fmt.Errorf("missing comp on line %d", lineNo)
		}
	}

	return p, nil
}

func stripComments(line string) string {
	if idx := strings.Index(line, "//"); idx >= 0 {
		return line[:idx]
	}
	return line
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// isIdentifier accepts Hack symbols: letters, digits, '_', '.', '$' and ':'
// not starting with a digit.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 && unicode.IsDigit(r) {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune("_.$:", r) {
			return false
		}
	}

	return true
}

// FormatHack renders words in the .hack text format, one 16-digit binary
// word per line.
func FormatHack(words []uint16) string {
	var sb strings.Builder
	sb.Grow(len(words) * 17)
	for _, w := range words {
		fmt.Fprintf(&sb, "%016b\n", w)
	}
	return sb.String()
}
