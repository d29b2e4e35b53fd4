package video

import (
	"github.com/elimarsh/pocketz80/jeebie/addr"
	"github.com/elimarsh/pocketz80/jeebie/bit"
)

// spriteEntry describes one sprite selected for the current scanline.
// Coordinates are kept signed (unlike the raw OAM bytes they're derived
// from) so sprites straddling the left or top edge of the screen still
// compare correctly during priority resolution.
type spriteEntry struct {
	oamIndex    int
	y, x        int
	tile        uint8
	height      int
	flipX       bool
	flipY       bool
	paletteOBP1 bool
	behindBG    bool
}

// pixelOwners tracks, per screen column, which sprite (by OAM index) has
// won that pixel so far. Game Boy sprite-to-sprite priority favors the
// lower X coordinate, and the lower OAM index on a tie.
type pixelOwners struct {
	owner [FramebufferWidth]int
	ownerX [FramebufferWidth]int
}

func (p *pixelOwners) clear() {
	for i := range p.owner {
		p.owner[i] = -1
	}
}

func (p *pixelOwners) claim(column, oamIndex, spriteX int) {
	if column < 0 || column >= FramebufferWidth {
		return
	}

	current := p.owner[column]
	if current == -1 || spriteX < p.ownerX[column] || (spriteX == p.ownerX[column] && oamIndex < current) {
		p.owner[column] = oamIndex
		p.ownerX[column] = spriteX
	}
}

func (p *pixelOwners) ownsPixel(column, oamIndex int) bool {
	if column < 0 || column >= FramebufferWidth {
		return false
	}
	return p.owner[column] == oamIndex
}

// scanlineOAM selects the sprites visible on a scanline (up to the
// 10-sprite hardware limit) and resolves their per-pixel priority ahead of
// rendering, so the renderer only has to ask "does this sprite own this
// pixel" rather than re-deriving overlap rules itself.
type scanlineOAM struct {
	priority pixelOwners
}

// scanLine scans OAM in index order, selecting every sprite whose Y range
// covers the scanline (off-screen-in-X sprites still count toward the
// 10-sprite limit, matching hardware), then claims pixel ownership for
// each in the same pass.
func (s *scanlineOAM) scanLine(bus Bus, line int) []spriteEntry {
	height := 8
	if bit.IsSet(2, bus.Read(addr.LCDC)) {
		height = 16
	}

	s.priority.clear()

	var entries []spriteEntry
	for i := 0; i < 40; i++ {
		base := addr.OAMStart + uint16(i*4)
		y := int(bus.Read(base)) - 16
		if y > line || y+height <= line {
			continue
		}

		x := int(bus.Read(base+1)) - 8
		flags := bus.Read(base + 3)

		entry := spriteEntry{
			oamIndex:    i,
			y:           y,
			x:           x,
			tile:        bus.Read(base + 2),
			height:      height,
			flipX:       bit.IsSet(5, flags),
			flipY:       bit.IsSet(6, flags),
			paletteOBP1: bit.IsSet(4, flags),
			behindBG:    bit.IsSet(7, flags),
		}
		entries = append(entries, entry)

		for px := 0; px < 8; px++ {
			s.priority.claim(x+px, i, x)
		}

		if len(entries) >= 10 {
			break
		}
	}

	return entries
}
