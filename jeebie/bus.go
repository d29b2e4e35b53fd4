package jeebie

import (
	"github.com/elimarsh/pocketz80/jeebie/addr"
	"github.com/elimarsh/pocketz80/jeebie/cpu"
	"github.com/elimarsh/pocketz80/jeebie/memory"
	"github.com/elimarsh/pocketz80/jeebie/video"
)

// Bus ties the four subsystems together for the driver loop: it executes one
// CPU instruction and distributes the consumed cycles to the timer, APU and
// PPU in that order, so an interrupt raised by any of them is observed at the
// next instruction boundary.
type Bus struct {
	CPU *cpu.CPU
	MMU *memory.MMU
	GPU *video.GPU
}

func NewBus(c *cpu.CPU, m *memory.MMU, g *video.GPU) *Bus {
	return &Bus{CPU: c, MMU: m, GPU: g}
}

func (b *Bus) Read(address uint16) byte {
	return b.MMU.Read(address)
}

func (b *Bus) Write(address uint16, value byte) {
	b.MMU.Write(address, value)
}

// TickInstruction executes one CPU instruction (including any interrupt
// dispatch cycles) and ticks the timer, APU and PPU with the same cycle
// count. Returns the number of cycles consumed.
func (b *Bus) TickInstruction() int {
	cycles := b.CPU.Exec()

	b.MMU.Tick(cycles)
	b.MMU.APU.Tick(cycles)
	b.GPU.Tick(cycles)

	return cycles
}

func (b *Bus) RequestInterrupt(interrupt addr.Interrupt) {
	b.MMU.RequestInterrupt(interrupt)
}

func (b *Bus) ReadBit(index uint8, address uint16) bool {
	return b.MMU.ReadBit(index, address)
}
