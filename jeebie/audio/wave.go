package audio

// wavePeriodCycles converts CH3's 11-bit frequency value into the number of
// T-cycles between sample-index advances. CH3 advances twice as fast as the
// square channels for the same frequency value.
func wavePeriodCycles(ch *Channel) int {
	period := 2048 - int(ch.freq&0x7FF)
	if period <= 0 {
		return 0
	}
	return period * 2
}

// readWaveSample fetches the nibble at byteIndex from wave RAM, caching the
// containing byte on ch so a CPU read during playback sees the same value
// the generator is currently using.
func readWaveSample(waveRAM *[waveRAMSize]uint8, ch *Channel, byteIndex uint8) uint8 {
	byteIdx := byteIndex >> 1
	value := waveRAM[byteIdx]
	ch.waveSample = value
	if byteIndex&1 == 0 {
		return value >> 4
	}
	return value & 0x0F
}

// stepWave advances CH3's sample cursor by the given number of T-cycles and
// returns its current raw amplitude level. byteIndex is CH3's own playback
// cursor (addressable separately from the rest of Channel because a CPU
// write during playback needs to target it directly, see WriteRegister).
func stepWave(ch *Channel, waveRAM *[waveRAMSize]uint8, byteIndex *uint8, cycles int) int64 {
	period := wavePeriodCycles(ch)
	if period == 0 {
		return 0
	}
	if ch.freqTimer <= 0 {
		ch.freqTimer = period
	}

	ch.freqTimer -= cycles
	for ch.freqTimer <= 0 {
		ch.freqTimer += period
		*byteIndex = (*byteIndex + 1) & 0x1F
	}

	sample := int64(readWaveSample(waveRAM, ch, *byteIndex)) - 8
	switch ch.volume & 0b11 {
	case 0:
		return 0
	case 1:
		return sample
	case 2:
		return sample / 2
	case 3:
		return sample / 4
	default:
		return sample
	}
}
