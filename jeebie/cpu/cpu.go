package cpu

import (
	"github.com/elimarsh/pocketz80/jeebie/addr"
	"github.com/elimarsh/pocketz80/jeebie/bit"
	"github.com/elimarsh/pocketz80/jeebie/memory"
)

// Flag is one of the 4 possible flags used in the flag register (high part of AF)
type Flag uint8

const (
	zeroFlag      Flag = 0x80
	subFlag       Flag = 0x40
	halfCarryFlag Flag = 0x20
	carryFlag     Flag = 0x10
)

// interruptVectors maps an IE/IF bit index to its dispatch address.
var interruptVectors = [5]uint16{0x40, 0x48, 0x50, 0x58, 0x60}

// CPU is the main struct holding Z80 state
type CPU struct {
	memory *memory.MMU

	a, b, c, d, e, h, l, f uint8
	sp, pc                 uint16

	currentOpcode uint16
	cycles        uint64

	interruptsEnabled bool
	eiPending         bool
	halted            bool
	haltBug           bool
	stopped           bool
}

// New returns a CPU with registers set to their post-boot-ROM values.
func New(mem *memory.MMU) *CPU {
	return &CPU{
		memory: mem,
		a:      0x01,
		f:      0xB0,
		b:      0x00,
		c:      0x13,
		d:      0x00,
		e:      0xD8,
		h:      0x01,
		l:      0x4D,
		sp:     0xFFFE,
		pc:     0x100,
	}
}

// GetPC returns the current value of the program counter.
func (c *CPU) GetPC() uint16 {
	return c.pc
}

// GetSP returns the current value of the stack pointer.
func (c *CPU) GetSP() uint16 {
	return c.sp
}

func (c *CPU) GetA() uint8 { return c.a }
func (c *CPU) GetF() uint8 { return c.f }
func (c *CPU) GetB() uint8 { return c.b }
func (c *CPU) GetC() uint8 { return c.c }
func (c *CPU) GetD() uint8 { return c.d }
func (c *CPU) GetE() uint8 { return c.e }
func (c *CPU) GetH() uint8 { return c.h }
func (c *CPU) GetL() uint8 { return c.l }

// GetIME returns whether the interrupt master enable flag is currently set.
func (c *CPU) GetIME() bool {
	return c.interruptsEnabled
}

// GetCycles returns the total number of cycles executed since the CPU was created.
func (c *CPU) GetCycles() uint64 {
	return c.cycles
}

// GetFlagString renders the flag register as the classic "Z N H C" mnemonic
// string, upper case when the flag is set and lower case otherwise.
func (c *CPU) GetFlagString() string {
	flags := [4]byte{'z', 'n', 'h', 'c'}
	bits := [4]Flag{zeroFlag, subFlag, halfCarryFlag, carryFlag}

	out := make([]byte, 4)
	for i := range flags {
		if c.isSetFlag(bits[i]) {
			out[i] = flags[i] - ('a' - 'A')
		} else {
			out[i] = flags[i]
		}
	}

	return string(out)
}

func (c *CPU) getBC() uint16 { return bit.Combine(c.b, c.c) }
func (c *CPU) setBC(value uint16) {
	c.b = bit.High(value)
	c.c = bit.Low(value)
}

func (c *CPU) getDE() uint16 { return bit.Combine(c.d, c.e) }
func (c *CPU) setDE(value uint16) {
	c.d = bit.High(value)
	c.e = bit.Low(value)
}

func (c *CPU) getHL() uint16 { return bit.Combine(c.h, c.l) }
func (c *CPU) setHL(value uint16) {
	c.h = bit.High(value)
	c.l = bit.Low(value)
}

func (c *CPU) setFlag(flag Flag) {
	c.f |= uint8(flag)
}

func (c *CPU) resetFlag(flag Flag) {
	c.f &^= uint8(flag)
}

func (c *CPU) isSetFlag(flag Flag) bool {
	return c.f&uint8(flag) != 0
}

func (c *CPU) setFlagToCondition(flag Flag, condition bool) {
	if condition {
		c.setFlag(flag)
	} else {
		c.resetFlag(flag)
	}
}

// flagToBit returns 1 if flag is set, 0 otherwise.
func (c *CPU) flagToBit(flag Flag) uint8 {
	if c.isSetFlag(flag) {
		return 1
	}
	return 0
}

// readImmediate reads the byte at pc and advances pc past it.
func (c *CPU) readImmediate() uint8 {
	value := c.memory.Read(c.pc)
	c.pc++
	return value
}

// readSignedImmediate reads a signed byte at pc and advances pc past it.
func (c *CPU) readSignedImmediate() int8 {
	return int8(c.readImmediate())
}

// readImmediateWord reads the little-endian word at pc and advances pc past it.
func (c *CPU) readImmediateWord() uint16 {
	low := c.readImmediate()
	high := c.readImmediate()
	return bit.Combine(high, low)
}

// Decode peeks the opcode at cpu.pc without advancing it, following the 0xCB
// prefix when present, and stores the combined value in cpu.currentOpcode.
func Decode(cpu *CPU) Opcode {
	first := cpu.memory.Read(cpu.pc)

	if first == 0xCB {
		second := cpu.memory.Read(cpu.pc + 1)
		cpu.currentOpcode = 0xCB00 | uint16(second)
	} else {
		cpu.currentOpcode = uint16(first)
	}

	return decode(cpu.currentOpcode)
}

// handleInterrupts checks IE & IF for a pending interrupt. The first return
// value reports whether one is pending regardless of IME; the second reports
// whether it was actually dispatched (pushing PC, jumping to the vector,
// clearing IME and the serviced IF bit, and charging 20 cycles), which only
// happens when interrupts are enabled.
func (c *CPU) handleInterrupts() (pending bool, dispatched bool) {
	ie := c.memory.Read(addr.IE)
	iflag := c.memory.Read(addr.IF)
	fired := ie & iflag & 0x1F

	if fired == 0 {
		return false, false
	}

	if !c.interruptsEnabled {
		return true, false
	}

	var bitIndex uint8
	for bitIndex = 0; bitIndex < 5; bitIndex++ {
		if fired&(1<<bitIndex) != 0 {
			break
		}
	}

	c.interruptsEnabled = false
	c.memory.Write(addr.IF, iflag&^(1<<bitIndex))
	c.pushStack(c.pc)
	c.pc = interruptVectors[bitIndex]
	c.cycles += 20

	return true, true
}

// Tick executes a single step of the fetch-decode-execute loop: it applies
// any pending EI delay, services an interrupt if IME is set, handles HALT
// and the halt bug, and otherwise decodes and runs one instruction. It
// returns the number of cycles consumed by this step.
func (c *CPU) Tick() int {
	imeToApply := c.eiPending
	c.eiPending = false

	startCycles := c.cycles
	pending, dispatched := c.handleInterrupts()
	dispatchCycles := int(c.cycles - startCycles)

	if imeToApply {
		c.interruptsEnabled = true
	}

	if c.halted {
		if !pending {
			return dispatchCycles + 4
		}

		c.halted = false
		// A wake without an actual dispatch (IME was 0 when the interrupt
		// became pending) is the halt-bug condition; a wake that serviced
		// the interrupt is the ordinary HALT-until-interrupt path and must
		// not suppress the next PC increment.
		if !dispatched {
			c.haltBug = true
		}
	}

	opcode := Decode(c)

	if c.haltBug {
		c.haltBug = false
	} else if c.currentOpcode&0xFF00 == 0xCB00 {
		c.pc += 2
	} else {
		c.pc++
	}

	cycles := opcode(c)
	c.cycles += uint64(cycles)

	return dispatchCycles + cycles
}

// Exec executes one instruction, same as Tick. Some callers prefer this name
// for "run a single instruction" rather than "advance by a cycle budget".
func (c *CPU) Exec() int {
	return c.Tick()
}
