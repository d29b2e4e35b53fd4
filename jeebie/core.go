package jeebie

import (
	"context"
	"crypto/md5"
	"fmt"
	"io/ioutil"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/elimarsh/pocketz80/jeebie/addr"
	"github.com/elimarsh/pocketz80/jeebie/cpu"
	"github.com/elimarsh/pocketz80/jeebie/debug"
	"github.com/elimarsh/pocketz80/jeebie/input"
	"github.com/elimarsh/pocketz80/jeebie/input/action"
	"github.com/elimarsh/pocketz80/jeebie/input/event"
	"github.com/elimarsh/pocketz80/jeebie/memory"
	"github.com/elimarsh/pocketz80/jeebie/timing"
	"github.com/elimarsh/pocketz80/jeebie/video"
)

// DebuggerState represents the current debugger mode
type DebuggerState int

const (
	DebuggerRunning   DebuggerState = iota // Normal execution
	DebuggerPaused                         // Paused, waiting for commands
	DebuggerStep                           // Execute one instruction then pause
	DebuggerStepFrame                      // Execute one frame then pause
)

// cyclesPerFrame is the number of CPU cycles in one 59.7Hz Game Boy frame.
const cyclesPerFrame = timing.CyclesPerFrame

// DMG is the root struct and entry point for running the emulation of a
// Game Boy (DMG model) system: CPU, PPU and memory tied together in a
// single fetch/decode/execute/tick loop.
type DMG struct {
	cpu *cpu.CPU
	gpu *video.GPU
	mem *memory.MMU
	bus *Bus

	input   *input.Manager
	limiter timing.Limiter

	// romPath is the ROM this instance was loaded from, used only to derive
	// a default save-file path; empty when no file was loaded.
	romPath string

	// Debugger state
	debuggerState    DebuggerState
	debuggerMutex    sync.RWMutex
	stepRequested    bool
	frameRequested   bool
	instructionCount uint64
	frameCount       uint64

	// Completion detection, used by headless test harnesses to stop a ROM
	// that has settled into a stable loop (e.g. blargg test ROMs that print
	// a result and spin forever) rather than running for a fixed duration.
	maxFrames     uint64
	minLoopCount  int
	lastFrameHash [16]byte
	loopCount     int
}

func (e *DMG) init(mem *memory.MMU) {
	e.cpu = cpu.New(mem)
	e.gpu = video.NewGpu(mem)
	e.mem = mem
	e.bus = NewBus(e.cpu, mem, e.gpu)
	e.limiter = timing.NewNoOpLimiter()
	e.input = input.NewManager(mem)

	mem.SetTimerSeed(0xABCC)
}

// New creates a new emulator instance with no cartridge loaded.
func New() *DMG {
	e := &DMG{}
	e.init(memory.NewWithCartridge(memory.NewCartridge()))

	return e
}

// NewWithFile creates a new emulator instance and loads the file specified into it.
func NewWithFile(path string) (*DMG, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	slog.Debug("Loaded ROM data", "size", len(data))

	cart, err := memory.NewCartridgeWithData(data)
	if err != nil {
		return nil, fmt.Errorf("loading cartridge from %s: %w", path, err)
	}
	slog.Info("Loaded cartridge", "title", cart.Title(), "mapper", cart.MapperName())

	e := &DMG{}
	e.init(memory.NewWithCartridge(cart))
	e.romPath = path

	return e, nil
}

// runInstruction executes a single CPU instruction and ticks the rest of the
// system (timer/serial, APU, PPU) by the same number of cycles.
func (e *DMG) runInstruction() int {
	cycles := e.bus.TickInstruction()
	e.instructionCount++
	return cycles
}

// RunUntilFrame advances emulation until a full frame has been produced,
// honoring the current debugger state (paused, single-step, step-frame).
func (e *DMG) RunUntilFrame() error {
	e.debuggerMutex.RLock()
	state := e.debuggerState
	e.debuggerMutex.RUnlock()

	switch state {
	case DebuggerPaused:
		return nil

	case DebuggerStep:
		e.debuggerMutex.Lock()
		requested := e.stepRequested
		e.stepRequested = false
		e.debuggerMutex.Unlock()

		if requested {
			oldPC := e.cpu.GetPC()
			e.runInstruction()
			slog.Debug("Step executed", "pc", fmt.Sprintf("0x%04X", oldPC), "new_pc", fmt.Sprintf("0x%04X", e.cpu.GetPC()))
			e.SetDebuggerState(DebuggerPaused)
		}
		return nil

	case DebuggerStepFrame:
		e.debuggerMutex.Lock()
		requested := e.frameRequested
		e.frameRequested = false
		e.debuggerMutex.Unlock()

		if requested {
			e.runFrame()
			e.SetDebuggerState(DebuggerPaused)
		}
		return nil

	default:
		e.runFrame()
		e.limiter.WaitForNextFrame()
		return nil
	}
}

// runFrame runs instructions until at least one frame's worth of cycles has elapsed.
func (e *DMG) runFrame() {
	total := 0
	for total < cyclesPerFrame {
		total += e.runInstruction()
	}

	e.frameCount++
	if e.frameCount%60 == 0 {
		slog.Debug("Frame completed", "frame", e.frameCount, "pc", fmt.Sprintf("0x%04X", e.cpu.GetPC()))
	}
}

// RunFrames runs up to frames whole frames, checking ctx between frames so
// the host can cancel a long batch run. Returns ctx.Err() when cancelled,
// nil when all frames completed. A frames value of 0 runs until ctx is done.
func (e *DMG) RunFrames(ctx context.Context, frames int) error {
	for i := 0; frames == 0 || i < frames; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		e.runFrame()
	}
	return nil
}

// ConfigureCompletionDetection arms RunUntilComplete to stop once either
// maxFrames frames have been produced, or the rendered frame has hashed
// identically for minLoopCount consecutive frames (a test ROM that has
// finished and is now spinning on a result screen). minLoopCount of 0
// disables loop detection and only maxFrames is honored.
func (e *DMG) ConfigureCompletionDetection(maxFrames uint64, minLoopCount int) {
	e.maxFrames = maxFrames
	e.minLoopCount = minLoopCount
	e.loopCount = 0
}

// RunUntilComplete runs whole frames until the completion condition armed by
// ConfigureCompletionDetection is satisfied.
func (e *DMG) RunUntilComplete() error {
	for {
		e.runFrame()

		hash := md5.Sum(e.gpu.GetFrameBuffer().ToGrayscale())
		if e.frameCount > 1 && hash == e.lastFrameHash {
			e.loopCount++
		} else {
			e.loopCount = 0
		}
		e.lastFrameHash = hash

		if e.minLoopCount > 0 && e.loopCount >= e.minLoopCount {
			return nil
		}
		if e.maxFrames > 0 && e.frameCount >= e.maxFrames {
			return nil
		}
	}
}

func (e *DMG) GetCurrentFrame() *video.FrameBuffer {
	return e.gpu.GetFrameBuffer()
}

// HandleAction routes a UI/input action to the joypad (for GB controls) or
// to debugger controls, mirroring the press/release edge as an event.Type.
func (e *DMG) HandleAction(act action.Action, pressed bool) {
	evt := event.Release
	if pressed {
		evt = event.Press
	}

	switch act {
	case action.EmulatorPauseToggle:
		if pressed {
			if e.GetDebuggerState() == DebuggerPaused {
				e.DebuggerResume()
			} else {
				e.DebuggerPause()
			}
		}
	case action.EmulatorStepFrame:
		if pressed {
			e.DebuggerStepFrame()
		}
	case action.EmulatorStepInstruction:
		if pressed {
			e.DebuggerStepInstruction()
		}
	default:
		e.input.Trigger(act, evt)
	}
}

func (e *DMG) HandleKeyPress(key memory.JoypadKey) {
	e.mem.HandleKeyPress(key)
}

func (e *DMG) HandleKeyRelease(key memory.JoypadKey) {
	e.mem.HandleKeyRelease(key)
}

// ExtractDebugData snapshots CPU/memory/video state for debug UIs. Returns
// nil when the emulator's components have not been initialized.
func (e *DMG) ExtractDebugData() *debug.CompleteDebugData {
	if e.cpu == nil || e.mem == nil {
		return nil
	}

	lcdc := e.mem.Read(addr.LCDC)
	spriteHeight := 8
	if lcdc&0x04 != 0 {
		spriteHeight = 16
	}

	line := int(e.mem.Read(addr.LY))

	const snapshotSize = 32
	pc := e.cpu.GetPC()
	start := pc
	if start > snapshotSize/2 {
		start -= snapshotSize / 2
	} else {
		start = 0
	}

	bytes := make([]uint8, snapshotSize)
	for i := range bytes {
		bytes[i] = e.mem.Read(start + uint16(i))
	}

	return &debug.CompleteDebugData{
		OAM:  debug.ExtractOAMDataFromReader(e.mem, line, spriteHeight),
		VRAM: debug.ExtractVRAMDataFromReader(e.mem),
		CPU: &debug.CPUState{
			A:      e.cpu.GetA(),
			F:      e.cpu.GetF(),
			B:      e.cpu.GetB(),
			C:      e.cpu.GetC(),
			D:      e.cpu.GetD(),
			E:      e.cpu.GetE(),
			H:      e.cpu.GetH(),
			L:      e.cpu.GetL(),
			SP:     e.cpu.GetSP(),
			PC:     pc,
			IME:    e.cpu.GetIME(),
			Cycles: e.cpu.GetCycles(),
		},
		Memory: &debug.MemorySnapshot{
			StartAddr: start,
			Bytes:     bytes,
		},
		DebuggerState:   debug.DebuggerState(e.GetDebuggerState()),
		InterruptEnable: e.mem.Read(addr.IE),
		InterruptFlags:  e.mem.Read(addr.IF),
	}
}

// SetFrameLimiter swaps the pacing strategy used between frames (e.g. a real
// time limiter for interactive play, a no-op limiter for headless/batch runs).
func (e *DMG) SetFrameLimiter(limiter timing.Limiter) {
	if limiter == nil {
		e.limiter = timing.NewNoOpLimiter()
	} else {
		e.limiter = limiter
	}
}

// ResetFrameTiming resets the current limiter's internal pacing state.
func (e *DMG) ResetFrameTiming() {
	e.limiter.Reset()
}

func (e *DMG) GetCPU() *cpu.CPU {
	return e.cpu
}

// Debugger control methods
func (e *DMG) SetDebuggerState(state DebuggerState) {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.debuggerState = state
	slog.Debug("Debugger state changed", "state", state)
}

func (e *DMG) GetDebuggerState() DebuggerState {
	e.debuggerMutex.RLock()
	defer e.debuggerMutex.RUnlock()
	return e.debuggerState
}

func (e *DMG) DebuggerPause() {
	e.SetDebuggerState(DebuggerPaused)
	slog.Info("Emulator paused")
}

func (e *DMG) DebuggerResume() {
	e.SetDebuggerState(DebuggerRunning)
	slog.Info("Emulator resumed")
}

func (e *DMG) DebuggerStepInstruction() {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.stepRequested = true
	e.debuggerState = DebuggerStep
	slog.Info("Step instruction requested")
}

func (e *DMG) DebuggerStepFrame() {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.frameRequested = true
	e.debuggerState = DebuggerStepFrame
	slog.Info("Step frame requested")
}

func (e *DMG) GetInstructionCount() uint64 {
	return e.instructionCount
}

func (e *DMG) GetFrameCount() uint64 {
	return e.frameCount
}

// SavePath returns the default battery-save path for the currently loaded
// ROM (same directory and name, ".sav" extension), or "" if no ROM file was loaded.
func (e *DMG) SavePath() string {
	if e.romPath == "" {
		return ""
	}
	ext := filepath.Ext(e.romPath)
	return strings.TrimSuffix(e.romPath, ext) + ".sav"
}

// LoadSave reads a battery-save file into the cartridge's external RAM. A
// missing file is not an error: external RAM remains zero-filled, matching
// the "save load failure" case in the core's error taxonomy.
func (e *DMG) LoadSave(path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("no save file found, starting with empty cartridge RAM", "path", path)
			return nil
		}
		slog.Warn("failed to load save file, cartridge RAM remains zero-filled", "path", path, "error", err)
		return nil
	}
	e.mem.LoadCartridgeRAM(data)
	e.mem.ClearCartridgeRAMDirty()
	slog.Info("loaded save file", "path", path, "size", len(data))
	return nil
}

// FlushSaveIfDirty writes the cartridge's external RAM to path if it has
// been written to since the last flush. Write failures are logged and the
// dirty flag is left set so a later call retries.
func (e *DMG) FlushSaveIfDirty(path string) error {
	if !e.mem.CartridgeRAMDirty() {
		return nil
	}

	ram := e.mem.CartridgeRAM()
	if len(ram) == 0 {
		return nil
	}

	if err := ioutil.WriteFile(path, ram, 0o644); err != nil {
		slog.Error("failed to write save file, will retry on next flush", "path", path, "error", err)
		return fmt.Errorf("writing save file %s: %w", path, err)
	}

	e.mem.ClearCartridgeRAMDirty()
	slog.Info("wrote save file", "path", path, "size", len(ram))
	return nil
}

func (e *DMG) GetMMU() *memory.MMU {
	return e.mem
}
