package memory

import (
	"fmt"
	"log/slog"

	"github.com/elimarsh/pocketz80/jeebie/util"
)

const titleLength = 11

const (
	entryPointAddress       = 0x100
	logoAddress             = 0x104
	titleAddress            = 0x134
	manufacturerCodeAddress = 0x13F
	cgbFlagAddress          = 0x143
	newLicenseCodeAddress   = 0x144
	sgbFlagAddress          = 0x146
	cartridgeTypeAddress    = 0x147
	romSizeAddress          = 0x148
	ramSizeAddress          = 0x149
	destinationCodeAddress  = 0x14A
	oldLicenseCodeAddress   = 0x14B
	versionNumberAddress    = 0x14C
	headerChecksumAddress   = 0x14D
	globalChecksumAddress   = 0x14E
)

// minROMSize is the smallest ROM image the core accepts: one fixed bank plus
// one switchable bank, covering the full 0x0000-0x7FFF ROM address space.
const minROMSize = 0x8000

// mbcKind identifies which mapper chip a cartridge header selects.
type mbcKind uint8

const (
	NoMBCType mbcKind = iota
	MBC1Type
	MBC1MultiType
	MBC2Type
	MBC3Type
	MBC5Type
	MBCUnknownType
)

func (k mbcKind) String() string {
	switch k {
	case NoMBCType:
		return "NoMBC"
	case MBC1Type:
		return "MBC1"
	case MBC1MultiType:
		return "MBC1 (multicart)"
	case MBC2Type:
		return "MBC2"
	case MBC3Type:
		return "MBC3"
	case MBC5Type:
		return "MBC5"
	default:
		return "Unknown"
	}
}

type Cartridge struct {
	data           []byte
	title          string
	headerChecksum uint16
	globalChecksum uint16
	version        uint8
	cartType       uint8
	romSize        uint8
	ramSize        uint8

	mbcType      mbcKind
	hasBattery   bool
	hasRTC       bool
	hasRumble    bool
	ramBankCount uint8
}

// NewCartridge creates an empty cartridge, useful only for debugging purposes.
func NewCartridge() *Cartridge {
	return &Cartridge{
		data:    make([]byte, 0x10000),
		mbcType: NoMBCType,
	}
}

// NewCartridgeWithData initializes a new Cartridge from a slice of bytes,
// parsing the header (title, checksums, mapper type and RAM size) found at
// the documented offsets. It returns an error only when the image is too
// small to contain the full fixed+switchable ROM address space; an
// unrecognized mapper byte degrades to no-bank behavior rather than failing.
func NewCartridgeWithData(bytes []byte) (*Cartridge, error) {
	if len(bytes) < minROMSize {
		return nil, fmt.Errorf("rom image too small: got %d bytes, want at least %d", len(bytes), minROMSize)
	}

	titleBytes := bytes[titleAddress : titleAddress+titleLength]

	cart := &Cartridge{
		data:           make([]byte, len(bytes)),
		title:          cleanGameboyTitle(titleBytes),
		headerChecksum: util.CombineBytes(bytes[headerChecksumAddress+1], bytes[headerChecksumAddress]),
		globalChecksum: util.CombineBytes(bytes[globalChecksumAddress+1], bytes[globalChecksumAddress]),
		version:        bytes[versionNumberAddress],
		cartType:       bytes[cartridgeTypeAddress],
		romSize:        bytes[romSizeAddress],
		ramSize:        bytes[ramSizeAddress],
	}

	copy(cart.data, bytes)

	cart.mbcType, cart.hasBattery, cart.hasRTC, cart.hasRumble = classifyCartType(cart.cartType)
	cart.ramBankCount = ramBankCountFromHeader(cart.ramSize)

	if cart.mbcType == MBCUnknownType {
		slog.Warn("unrecognized cartridge type, falling back to no-bank behavior", "cartType", fmt.Sprintf("0x%02X", cart.cartType), "title", cart.title)
	}

	return cart, nil
}

// classifyCartType maps the raw header byte at 0x0147 to a mapper kind plus
// the battery/RTC/rumble feature flags that ride along with specific values.
func classifyCartType(cartType uint8) (kind mbcKind, hasBattery, hasRTC, hasRumble bool) {
	switch cartType {
	case 0x00, 0x08, 0x09:
		return NoMBCType, false, false, false
	case 0x01, 0x02:
		return MBC1Type, false, false, false
	case 0x03:
		return MBC1Type, true, false, false
	case 0x05:
		return MBC2Type, false, false, false
	case 0x06:
		return MBC2Type, true, false, false
	case 0x0F, 0x10:
		return MBC3Type, true, true, false
	case 0x11, 0x12:
		return MBC3Type, false, false, false
	case 0x13:
		return MBC3Type, true, false, false
	case 0x19, 0x1A:
		return MBC5Type, false, false, false
	case 0x1B:
		return MBC5Type, true, false, false
	case 0x1C, 0x1D:
		return MBC5Type, false, false, true
	case 0x1E:
		return MBC5Type, true, false, true
	default:
		return MBCUnknownType, false, false, false
	}
}

// ramBankCountFromHeader converts the header's RAM size code (0x0149) to a
// count of 8KB banks. Code 0x01 (2KB) predates the bank system and is
// rounded up to a single bank.
func ramBankCountFromHeader(code uint8) uint8 {
	switch code {
	case 0x00:
		return 0
	case 0x01, 0x02:
		return 1
	case 0x03:
		return 4
	case 0x04:
		return 16
	case 0x05:
		return 8
	default:
		return 0
	}
}

// ReadByte reads a byte at the specified address. Does not check bounds, so the caller must make sure the
// address is valid for the cartridge.
func (c Cartridge) ReadByte(addr uint16) uint8 {
	return c.data[addr]
}

// WriteByte attempts a write to the specified address. Writing to a cartridge has sense if the cartridge
// has extra RAM or for some special operations, like switching ROM banks.
func (c Cartridge) WriteByte(addr uint16, value uint8) uint8 {
	return c.data[addr]
}

// Title returns the cartridge's cleaned-up title string from the header.
func (c Cartridge) Title() string {
	return c.title
}

// MapperName returns a human-readable name of the detected mapper, for logging.
func (c Cartridge) MapperName() string {
	return c.mbcType.String()
}
