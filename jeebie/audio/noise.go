package audio

import "github.com/elimarsh/pocketz80/jeebie/bit"

// noiseDividers maps NR43's 3-bit divider code to its divisor, per Pan Docs.
var noiseDividers = [8]int{8, 16, 32, 48, 64, 80, 96, 112}

// noisePeriodCycles converts CH4's divider/shift pair into the number of
// T-cycles between LFSR shifts.
func noisePeriodCycles(ch *Channel) int {
	div := noiseDividers[ch.divider&0x7]
	period := div << ch.shift
	if period <= 0 {
		return 0
	}
	return period
}

// stepNoise advances CH4's LFSR by the given number of T-cycles and returns
// its current raw amplitude level.
func stepNoise(ch *Channel, cycles int) int64 {
	period := noisePeriodCycles(ch)
	if period == 0 {
		return 0
	}
	if ch.lfsr == 0 {
		ch.lfsr = 0x7FFF
	}
	if ch.noiseTimer <= 0 {
		ch.noiseTimer = period
	}

	ch.noiseTimer -= cycles
	for ch.noiseTimer <= 0 {
		ch.noiseTimer += period
		feedback := (ch.lfsr & 1) ^ ((ch.lfsr >> 1) & 1)
		ch.lfsr = (ch.lfsr >> 1) | (feedback << 14)
		if ch.use7bitLFSR {
			ch.lfsr = (ch.lfsr &^ (1 << 6)) | (feedback << 6)
		}
	}

	if ch.volume == 0 {
		return 0
	}
	level := int64(ch.volume)
	if bit.IsSet(0, uint8(ch.lfsr)) {
		// Per Pan Docs: Noise output bit is inverted before it hits the DAC
		return -level
	}
	return level
}
