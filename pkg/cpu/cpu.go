package cpu

import (
	"errors"
	"fmt"
)

// Memory map.
const (
	ROMSize = 32768
	RAMSize = 32768

	ScreenBase   uint16 = 0x4000
	ScreenWords         = 8192
	ScreenWidth         = 512
	ScreenHeight        = 256
	KBD          uint16 = 0x6000

	addrMask = 0x7FFF
)

// Instruction fields. A C-instruction is 111a cccc ccdd djjj.
const (
	instrC   uint16 = 0x8000
	cPrefix  uint16 = 0xE000
	bitA     uint16 = 0x1000
	compBits        = 6

	DestM uint16 = 0x1
	DestD uint16 = 0x2
	DestA uint16 = 0x4

	JumpGT  uint16 = 0x1
	JumpEQ  uint16 = 0x2
	JumpLT  uint16 = 0x4
	JumpAll uint16 = JumpGT | JumpEQ | JumpLT
)

// ALU control bits, most significant first.
const (
	aluZX uint16 = 1 << 5
	aluNX uint16 = 1 << 4
	aluZY uint16 = 1 << 3
	aluNY uint16 = 1 << 2
	aluF  uint16 = 1 << 1
	aluNO uint16 = 1 << 0
)

var ErrCycleLimit = errors.New("cycle limit reached")

// CPU is a Hack computer: instruction ROM, data RAM with the screen and
// keyboard mapped in, and the A, D and PC registers.
type CPU struct {
	ROM [ROMSize]uint16
	RAM [RAMSize]uint16

	A  uint16
	D  uint16
	PC uint16

	// Halted is set when PC runs off the loaded program or the CPU enters
	// the "(L) @L 0;JMP" idle loop.
	Halted bool
	Cycles uint64

	programLen int
}

func NewCPU() *CPU {
	return &CPU{}
}

// Load copies program into ROM and resets the registers. RAM is left alone.
func (c *CPU) Load(program []uint16) error {
	if len(program) > ROMSize {
		return fmt.Errorf("program of %d words does not fit in %d words of ROM", len(program), ROMSize)
	}
	c.ROM = [ROMSize]uint16{}
	copy(c.ROM[:], program)
	c.programLen = len(program)
	c.Reset()
	return nil
}

func (c *CPU) Reset() {
	c.A, c.D, c.PC = 0, 0, 0
	c.Halted = false
	c.Cycles = 0
}

func (c *CPU) ReadMem(addr uint16) uint16 {
	return c.RAM[addr&addrMask]
}

// WriteMem stores val unless addr is the read-only keyboard register.
func (c *CPU) WriteMem(addr uint16, val uint16) {
	addr &= addrMask
	if addr == KBD {
		return
	}
	c.RAM[addr] = val
}

// SetKey latches the currently pressed key code, 0 for none.
func (c *CPU) SetKey(code uint16) {
	c.RAM[KBD] = code
}

// ALU computes the Hack ALU function selected by the six control bits
// zx nx zy ny f no.
func ALU(x, y, control uint16) uint16 {
	if control&aluZX != 0 {
		x = 0
	}
	if control&aluNX != 0 {
		x = ^x
	}
	if control&aluZY != 0 {
		y = 0
	}
	if control&aluNY != 0 {
		y = ^y
	}

	var out uint16
	if control&aluF != 0 {
		out = x + y
	} else {
		out = x & y
	}
	if control&aluNO != 0 {
		out = ^out
	}
	return out
}

func (c *CPU) Step() {
	if c.Halted {
		return
	}
	if int(c.PC) >= c.programLen {
		c.Halted = true
		return
	}

	instr := c.ROM[c.PC]
	c.Cycles++

	if instr&instrC == 0 {
		c.A = instr
		c.PC++
		return
	}

	// Memory access and jumps use A as it was before this instruction.
	addr := c.A
	y := addr
	if instr&bitA != 0 {
		y = c.ReadMem(addr)
	}
	out := ALU(c.D, y, (instr>>6)&(1<<compBits-1))

	dest := (instr >> 3) & 0x7
	if dest&DestM != 0 {
		c.WriteMem(addr, out)
	}
	if dest&DestA != 0 {
		c.A = out
	}
	if dest&DestD != 0 {
		c.D = out
	}

	jump := instr & 0x7
	if !jumpTaken(jump, int16(out)) {
		c.PC++
		return
	}

	if jump == JumpAll && c.PC > 0 && addr == c.PC-1 && c.ROM[addr] == addr {
		c.Halted = true
	}
	c.PC = addr
}

func jumpTaken(jump uint16, v int16) bool {
	switch {
	case v < 0:
		return jump&JumpLT != 0
	case v == 0:
		return jump&JumpEQ != 0
	}
	return jump&JumpGT != 0
}

// Run steps until the CPU halts. A positive maxCycles bounds the number of
// instructions executed; exceeding it returns ErrCycleLimit.
func (c *CPU) Run(maxCycles uint64) error {
	for !c.Halted {
		if maxCycles > 0 && c.Cycles >= maxCycles {
			return fmt.Errorf("%w after %d instructions at pc %d", ErrCycleLimit, c.Cycles, c.PC)
		}
		c.Step()
	}
	return nil
}

// EncodeCompute builds a C-instruction from a 7-bit a+comp field, dest and jump bits.
func EncodeCompute(comp, dest, jump uint16) uint16 {
	return cPrefix | (comp&0x7F)<<6 | (dest&0x7)<<3 | jump&0x7
}
