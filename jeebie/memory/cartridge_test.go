package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeHeaderROM(cartType, ramSize uint8) []byte {
	rom := make([]byte, minROMSize)
	copy(rom[titleAddress:titleAddress+titleLength], []byte("TESTGAME"))
	rom[cartridgeTypeAddress] = cartType
	rom[romSizeAddress] = 0
	rom[ramSizeAddress] = ramSize
	return rom
}

func TestNewCartridgeWithData_TooSmall(t *testing.T) {
	_, err := NewCartridgeWithData(make([]byte, 0x100))
	require.Error(t, err)
}

func TestNewCartridgeWithData_MapperClassification(t *testing.T) {
	tests := []struct {
		name         string
		cartType     uint8
		ramSize      uint8
		wantMapper   mbcKind
		wantBattery  bool
		wantRTC      bool
		wantRumble   bool
		wantRAMBanks uint8
	}{
		{"ROM only", 0x00, 0x00, NoMBCType, false, false, false, 0},
		{"MBC1", 0x01, 0x00, MBC1Type, false, false, false, 0},
		{"MBC1+RAM+BATTERY", 0x03, 0x03, MBC1Type, true, false, false, 4},
		{"MBC2", 0x05, 0x00, MBC2Type, false, false, false, 0},
		{"MBC2+BATTERY", 0x06, 0x00, MBC2Type, true, false, false, 0},
		{"MBC3+TIMER+BATTERY", 0x0F, 0x00, MBC3Type, true, true, false, 0},
		{"MBC3+RAM+BATTERY", 0x13, 0x02, MBC3Type, true, false, false, 1},
		{"MBC5", 0x19, 0x00, MBC5Type, false, false, false, 0},
		{"MBC5+RUMBLE+RAM+BATTERY", 0x1E, 0x04, MBC5Type, true, false, true, 16},
		{"Unknown", 0xFE, 0x00, MBCUnknownType, false, false, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cart, err := NewCartridgeWithData(makeHeaderROM(tt.cartType, tt.ramSize))
			require.NoError(t, err)
			assert.Equal(t, tt.wantMapper, cart.mbcType)
			assert.Equal(t, tt.wantBattery, cart.hasBattery)
			assert.Equal(t, tt.wantRTC, cart.hasRTC)
			assert.Equal(t, tt.wantRumble, cart.hasRumble)
			assert.Equal(t, tt.wantRAMBanks, cart.ramBankCount)
		})
	}
}

func TestNewCartridgeWithData_UnknownMapperDegradesToNoBank(t *testing.T) {
	data := makeHeaderROM(0xFE, 0x00)
	cart, err := NewCartridgeWithData(data)
	require.NoError(t, err)

	mmu := NewWithCartridge(cart)
	// ROM bank always reads bank 1 effectively through NoMBC (direct mapping), external RAM unavailable.
	assert.Equal(t, uint8(0xFF), mmu.Read(0xA000))
}

func TestNewCartridgeWithData_Title(t *testing.T) {
	cart, err := NewCartridgeWithData(makeHeaderROM(0x00, 0x00))
	require.NoError(t, err)
	assert.Equal(t, "TESTGAME", cart.Title())
}
