package video

import (
	"fmt"
	"log/slog"

	"github.com/elimarsh/pocketz80/jeebie/addr"
	"github.com/elimarsh/pocketz80/jeebie/bit"
)

// GpuMode represents the PPU's current rendering stage.
// These values match the STAT register bits 1-0.
type GpuMode int

const (
	// hblankMode (Mode 0): Horizontal blank period, CPU can access VRAM/OAM
	hblankMode GpuMode = 0
	// vblankMode (Mode 1): Vertical blank period, CPU can access VRAM/OAM
	vblankMode GpuMode = 1
	// oamReadMode (Mode 2): PPU is reading OAM, CPU cannot access OAM
	oamReadMode GpuMode = 2
	// vramReadMode (Mode 3): PPU is reading VRAM, CPU cannot access VRAM/OAM
	vramReadMode GpuMode = 3
)

const (
	hblankCycles       = 204
	oamScanlineCycles  = 80
	vramScanlineCycles = 172
	scanlineCycles     = oamScanlineCycles + vramScanlineCycles + hblankCycles
	framesCycles       = 70224
)

// Bus is the slice of memory-mapped I/O the PPU needs: register and VRAM/OAM
// reads for rasterization, STAT/LY writes, and interrupt requests on mode
// and LYC transitions. Passing this narrower interface instead of the full
// MMU keeps the renderer's dependency surface limited to what it actually
// touches.
type Bus interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
	ReadBit(index uint8, address uint16) bool
	RequestInterrupt(interrupt addr.Interrupt)
}

// GPU drives the scanline state machine and rasterizes each line into a
// FrameBuffer. Background/window decoding lives in this file; sprite
// selection and priority resolution are delegated to scanlineOAM so the
// two don't duplicate the same pixel-ownership bookkeeping.
type GPU struct {
	bus           Bus
	framebuffer   *FrameBuffer
	oam           scanlineOAM
	bgPixelBuffer []byte // background/window color index per pixel, consulted for sprite BG-priority

	mode                 GpuMode // current PPU mode (matches STAT bits 1-0)
	lcdOff               bool    // LCD disabled via LCDC bit 7; state machine is parked
	line                 int     // current scanline (LY register, 0-153)
	cycles               int     // cycle counter for current mode
	modeCounterAux       int     // auxiliary counter for VBlank timing
	vBlankLine           int     // which VBlank line we're on (0-9)
	pixelCounter         int     // pixel counter within scanline
	tileCycleCounter     int     // cycle counter for tile fetching
	isScanLineTransfered bool    // whether current scanline has been rendered
	windowLine           int     // internal window line counter (0-143)
}

func NewGpu(bus Bus) *GPU {
	fb := NewFrameBuffer()
	gpu := &GPU{
		framebuffer:   fb,
		bus:           bus,
		mode:          vblankMode,
		bgPixelBuffer: make([]byte, FramebufferSize),

		line: 144,
	}

	lcdc := bus.Read(addr.LCDC)
	bgp := bus.Read(addr.BGP)
	slog.Debug("GPU initialized", "LCDC", fmt.Sprintf("0x%02X", lcdc), "LCD_enabled", (lcdc&0x80) != 0, "BGP", fmt.Sprintf("0x%02X", bgp))

	return gpu
}

func (g *GPU) GetFrameBuffer() *FrameBuffer {
	return g.framebuffer
}

// Tick advances the scanline state machine by the given number of cycles,
// transitioning between OAM scan, pixel transfer, H-blank and V-blank and
// raising the interrupts each transition implies.
//
// While LCDC bit 7 is clear the LCD is off: LY is forced to 0, the STAT
// mode bits are cleared, the internal counters reset, and no rendering or
// interrupts happen. Re-enabling resumes from mode 2 of scanline 0.
func (g *GPU) Tick(cycles int) {
	if g.readLCDCVariable(lcdDisplayEnable) == 0 {
		if !g.lcdOff {
			g.lcdOff = true
			g.cycles = 0
			g.modeCounterAux = 0
			g.vBlankLine = 0
			g.windowLine = 0
			g.mode = hblankMode
			g.line = 0
			// LY and the STAT mode bits read back as 0, but no STAT/LYC
			// interrupt fires from the forced transition.
			g.bus.Write(addr.LY, 0)
			g.bus.Write(addr.STAT, g.bus.Read(addr.STAT)&0xFC)
		}
		return
	}

	if g.lcdOff {
		g.lcdOff = false
		g.setMode(oamReadMode)
	}

	g.cycles += cycles

	switch g.mode {
	case hblankMode:
		g.tickHBlank()
	case vblankMode:
		g.tickVBlank(cycles)
	case oamReadMode:
		g.tickOAMScan()
	case vramReadMode:
		g.tickPixelTransfer()
	}

	if g.cycles >= framesCycles {
		g.cycles -= framesCycles
	}
}

func (g *GPU) tickHBlank() {
	if g.cycles < hblankCycles {
		return
	}
	g.cycles -= hblankCycles
	g.setMode(oamReadMode)
	g.setLY(g.line + 1)

	if g.line == 144 {
		g.setMode(vblankMode)
		g.vBlankLine = 0
		g.modeCounterAux = g.cycles
		g.windowLine = 0

		g.bus.RequestInterrupt(addr.VBlankInterrupt)
		if g.bus.ReadBit(statVblankIrq, addr.STAT) {
			g.bus.RequestInterrupt(addr.LCDSTATInterrupt)
		}
	} else if g.bus.ReadBit(statOamIrq, addr.STAT) {
		g.bus.RequestInterrupt(addr.LCDSTATInterrupt)
	}
}

func (g *GPU) tickVBlank(cycles int) {
	g.modeCounterAux += cycles

	if g.modeCounterAux >= scanlineCycles {
		g.modeCounterAux -= scanlineCycles
		g.vBlankLine++

		if g.vBlankLine <= 9 {
			g.setLY(g.line + 1)
		}
	}

	if g.cycles >= 4104 && g.modeCounterAux >= 4 && g.line == 153 {
		g.setLY(0)
	}

	if g.cycles >= 4560 {
		g.cycles -= 4560
		g.setMode(oamReadMode)
		if g.bus.ReadBit(statOamIrq, addr.STAT) {
			g.bus.RequestInterrupt(addr.LCDSTATInterrupt)
		}
	}
}

func (g *GPU) tickOAMScan() {
	if g.cycles < oamScanlineCycles {
		return
	}
	g.cycles -= oamScanlineCycles
	g.setMode(vramReadMode)
	g.isScanLineTransfered = false
}

func (g *GPU) tickPixelTransfer() {
	if !g.isScanLineTransfered {
		if g.readLCDCVariable(lcdDisplayEnable) == 1 {
			g.drawScanline()
		}
		g.isScanLineTransfered = true
	}

	if g.cycles >= vramScanlineCycles {
		g.pixelCounter = 0
		g.cycles -= vramScanlineCycles
		g.tileCycleCounter = 0
		g.setMode(hblankMode)

		if g.bus.ReadBit(statHblankIrq, addr.STAT) {
			g.bus.RequestInterrupt(addr.LCDSTATInterrupt)
		}
	}
}

// drawScanline rasterizes the current line: background first, then window
// where it overlaps, then sprites on top (subject to BG-priority).
func (g *GPU) drawScanline() {
	if g.readLCDCVariable(lcdDisplayEnable) != 1 {
		lineWidth := g.line * FramebufferWidth
		for i := 0; i < FramebufferWidth; i++ {
			g.framebuffer.buffer[lineWidth+i] = uint32(WhiteColor)
		}
		return
	}

	g.drawBackground()
	g.drawWindow()
	g.drawSprites()
}

func (g *GPU) drawBackground() {
	lineWidth := g.line * FramebufferWidth

	if g.readLCDCVariable(bgDisplay) != 1 {
		// background disabled: every pixel shows color 0 of BGP
		color0 := g.bus.Read(addr.BGP) & 0x03
		displayColor := uint32(ByteToColor(color0))

		for i := range FramebufferWidth {
			g.framebuffer.buffer[lineWidth+i] = displayColor
			g.bgPixelBuffer[lineWidth+i] = 0
		}
		return
	}

	tilesAddr, tileMapAddr := g.bgWindowAddressing(bgWindowTileDataSelect, bgTileMapDisplaySelect)
	useSignedTileSet := g.readLCDCVariable(bgWindowTileDataSelect) == 0

	scrollX := g.bus.Read(addr.SCX)
	scrollY := g.bus.Read(addr.SCY)
	mapLine := (g.line + int(scrollY)) & 0xFF // wraps at 256
	mapRow32 := (mapLine / 8) * 32
	tileRowOffset := (mapLine % 8) * 2

	palette := g.bus.Read(addr.BGP)

	for screenX := 0; screenX < FramebufferWidth; screenX++ {
		mapX := (screenX + int(scrollX)) & 0xFF
		mapTileIndex := mapRow32 + mapX/8
		tileNumber := g.bus.Read(tileMapAddr + uint16(mapTileIndex))
		tileAddr := tileDataAddr(tilesAddr, tileNumber, useSignedTileSet, tileRowOffset)

		low := g.bus.Read(tileAddr)
		high := g.bus.Read(tileAddr + 1)
		colorIndex := decodePixel(low, high, uint8(mapX%8))

		position := lineWidth + screenX
		color := (palette >> (colorIndex * 2)) & 0x03
		g.framebuffer.buffer[position] = uint32(ByteToColor(color))
		g.bgPixelBuffer[position] = color
	}
}

func (g *GPU) drawWindow() {
	if g.windowLine > 143 || g.readLCDCVariable(windowDisplayEnable) != 1 {
		return
	}

	wxByte := g.bus.Read(addr.WX) - 7 // byte subtraction wraps when WX < 7, matching hardware's off-screen-window behavior
	wy := g.bus.Read(addr.WY)
	if wxByte > 159 || wy > 143 || int(wy) > g.line {
		return
	}
	wx := int(wxByte)

	if g.line < 5 {
		slog.Debug("Window rendering", "line", g.line, "windowLine", g.windowLine, "wx", wx, "wy", wy)
	}

	tilesAddr, tileMapAddr := g.bgWindowAddressing(bgWindowTileDataSelect, windowTileMapSelect)
	useSignedTileSet := g.readLCDCVariable(bgWindowTileDataSelect) == 0

	row32 := (g.windowLine / 8) * 32
	tileRowOffset := (g.windowLine % 8) * 2
	lineWidth := g.line * FramebufferWidth
	palette := g.bus.Read(addr.BGP)

	firstVisibleTile := 0
	lastTile := (FramebufferWidth - wx + 7) / 8
	if lastTile > 32 {
		lastTile = 32
	}

	for tileX := firstVisibleTile; tileX < lastTile; tileX++ {
		tileNumber := g.bus.Read(tileMapAddr + uint16(row32+tileX))
		tileAddr := tileDataAddr(tilesAddr, tileNumber, useSignedTileSet, tileRowOffset)

		low := g.bus.Read(tileAddr)
		high := g.bus.Read(tileAddr + 1)
		baseX := tileX*8 + wx

		for px := 0; px < 8; px++ {
			bufferX := baseX + px
			if bufferX < wx || bufferX >= FramebufferWidth {
				continue
			}

			position := lineWidth + bufferX
			if position >= len(g.framebuffer.buffer) {
				continue
			}

			colorIndex := decodePixel(low, high, uint8(px))
			color := (palette >> (colorIndex * 2)) & 0x03
			g.framebuffer.buffer[position] = uint32(ByteToColor(color))
			g.bgPixelBuffer[position] = color
		}
	}
	g.windowLine++
}

// bgWindowAddressing resolves the tile-data and tile-map base addresses
// shared by background and window rendering, which only differ in which
// LCDC bit selects the tile map.
func (g *GPU) bgWindowAddressing(dataSelect, mapSelect lcdcFlag) (tilesAddr, tileMapAddr uint16) {
	tilesAddr = addr.TileData0 // unsigned mode
	if g.readLCDCVariable(dataSelect) == 0 {
		tilesAddr = addr.TileData2 // signed mode
	}

	tileMapAddr = addr.TileMap1
	if g.readLCDCVariable(mapSelect) == 0 {
		tileMapAddr = addr.TileMap0
	}

	return tilesAddr, tileMapAddr
}

// tileDataAddr resolves the VRAM address of a tile row, honoring whichever
// of the two LCDC-selected addressing modes is active.
func tileDataAddr(base uint16, tileNumber uint8, signed bool, rowOffset int) uint16 {
	if signed {
		offset := int(int8(tileNumber)) * 16
		return uint16(int(base) + offset + rowOffset)
	}
	return base + uint16(int(tileNumber)*16+rowOffset)
}

// decodePixel combines the low/high bit planes of a tile row into a 2-bit
// color index for the pixel at column x (0 = leftmost).
func decodePixel(low, high byte, x uint8) byte {
	bitIndex := 7 - x
	var pixel byte
	if bit.IsSet(bitIndex, low) {
		pixel |= 1
	}
	if bit.IsSet(bitIndex, high) {
		pixel |= 2
	}
	return pixel
}

// drawSprites renders the scanline's sprites on top of the background and
// window. Sprite-to-sprite overlap is resolved by g.oam.scanLine, which
// claims pixel ownership with signed screen coordinates so sprites that
// straddle the left or top edge of the screen still resolve correctly.
func (g *GPU) drawSprites() {
	if g.readLCDCVariable(spriteDisplayEnable) != 1 {
		return
	}

	lineWidth := g.line * FramebufferWidth
	objPalette0 := g.bus.Read(addr.OBP0)
	objPalette1 := g.bus.Read(addr.OBP1)

	for _, entry := range g.oam.scanLine(g.bus, g.line) {
		tileMask := 0xFF
		if entry.height == 16 {
			tileMask = 0xFE
		}

		rowInSprite := g.line - entry.y
		if entry.flipY {
			rowInSprite = entry.height - 1 - rowInSprite
		}

		tileNumber := int(entry.tile) & tileMask
		rowOffset := rowInSprite * 2
		if entry.height == 16 && rowInSprite >= 8 {
			tileNumber++
			rowOffset = (rowInSprite - 8) * 2
		}

		tileAddr := addr.TileData0 + uint16(tileNumber*16+rowOffset)
		low := g.bus.Read(tileAddr)
		high := g.bus.Read(tileAddr + 1)

		palette := objPalette0
		if entry.paletteOBP1 {
			palette = objPalette1
		}

		for px := 0; px < 8; px++ {
			bufferX := entry.x + px
			if bufferX < 0 || bufferX >= FramebufferWidth {
				continue
			}
			if !g.oam.priority.ownsPixel(bufferX, entry.oamIndex) {
				continue
			}

			pixelCol := px
			if entry.flipX {
				pixelCol = 7 - px
			}

			colorIndex := decodePixel(low, high, uint8(pixelCol))
			if colorIndex == 0 {
				continue // transparent
			}

			position := lineWidth + bufferX
			if entry.behindBG && g.bgPixelBuffer[position] != 0 {
				continue
			}

			color := (palette >> (colorIndex * 2)) & 0x03
			g.framebuffer.buffer[position] = uint32(ByteToColor(color))
		}
	}
}

// LCD Stat (Status) Register bit values
// Bit 7 - unused
// Bit 6 - Interrupt based on LYC to LY comparison (based on bit 2)
// Bit 5 - Interrupt when Mode 10 (oamReadMode)
// Bit 4 - Interrupt when Mode 01 (vblankMode)
// Bit 3 - Interrupt when Mode 00 (hblankMode)
// Bit 2 - condition for triggering LYC/LY (0=LYC != LY, 1=LYC == LY)
// Bit 1,0 - represents the current GPU mode
type statFlag uint8

const (
	statLycIrq       statFlag = 6
	statOamIrq                = 5
	statVblankIrq             = 4
	statHblankIrq             = 3
	statLycCondition          = 2
)

// LCDC (LCD Control) Register bit values
// Bit 7 - LCD Display Enable (0=Off, 1=On)
// Bit 6 - Window Tile Map Display Select (0=9800-9BFF, 1=9C00-9FFF)
// Bit 5 - Window Display Enable (0=Off, 1=On)
// Bit 4 - BG & Window Tile Data Select (0=8800-97FF, 1=8000-8FFF)
// Bit 3 - BG Tile Map Display Select (0=9800-9BFF, 1=9C00-9FFF)
// Bit 2 - OBJ (Sprite) Size (0=8x8, 1=8x16)
// Bit 1 - OBJ (Sprite) Display Enable (0=Off, 1=On)
// Bit 0 - BG Display (0=Off, 1=On)
type lcdcFlag uint8

const (
	lcdDisplayEnable       lcdcFlag = 7
	windowTileMapSelect             = 6
	windowDisplayEnable             = 5
	bgWindowTileDataSelect          = 4
	bgTileMapDisplaySelect          = 3
	spriteSize                      = 2
	spriteDisplayEnable             = 1
	bgDisplay                       = 0
)

func (g *GPU) readLCDCVariable(flag lcdcFlag) byte {
	if bit.IsSet(uint8(flag), g.bus.Read(addr.LCDC)) {
		return 1
	}
	return 0
}

func (g *GPU) compareLYToLYC() {
	ly := g.bus.Read(addr.LY)
	lyc := g.bus.Read(addr.LYC)
	stat := g.bus.Read(addr.STAT)

	if ly == lyc {
		stat = bit.Set(statLycCondition, stat)
		if bit.IsSet(uint8(statLycIrq), stat) {
			g.bus.RequestInterrupt(addr.LCDSTATInterrupt)
		}
	} else {
		stat = bit.Reset(statLycCondition, stat)
	}

	g.bus.Write(addr.STAT, stat)
}

// setMode sets the two bits (1,0) in the STAT register according to the
// selected GPU mode.
func (g *GPU) setMode(mode GpuMode) {
	g.mode = mode
	stat := g.bus.Read(addr.STAT)
	stat = stat&0xFC | byte(g.mode)
	g.bus.Write(addr.STAT, stat)
}

// setLY updates the current scanline (LY register) and re-evaluates the
// LY/LYC coincidence flag.
func (g *GPU) setLY(line int) {
	g.line = line
	g.bus.Write(addr.LY, byte(g.line))
	g.compareLYToLYC()
}
