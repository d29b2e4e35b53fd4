package audio

// dutyPatterns holds the 8-step high/low pattern for each of the 4 duty
// cycle settings shared by the two square channels.
var dutyPatterns = [4][8]int64{
	{0, 1, 0, 0, 0, 0, 0, 0},
	{0, 1, 1, 0, 0, 0, 0, 0},
	{0, 1, 1, 1, 1, 0, 0, 0},
	{1, 0, 0, 1, 1, 1, 1, 1},
}

// squarePeriodCycles converts a channel's 11-bit frequency value into the
// number of T-cycles between duty-step advances.
func squarePeriodCycles(ch *Channel) int {
	period := 2048 - int(ch.freq&0x7FF)
	if period <= 0 {
		return 0
	}
	return period * 4
}

// stepSquare advances a square channel's duty step by the given number of
// T-cycles and returns its current raw amplitude level. It only touches the
// channel passed to it: square generation needs no APU-wide state.
func stepSquare(ch *Channel, cycles int) int64 {
	period := squarePeriodCycles(ch)
	if period == 0 {
		return 0
	}
	if ch.freqTimer <= 0 {
		ch.freqTimer = period
	}

	ch.freqTimer -= cycles
	for ch.freqTimer <= 0 {
		ch.freqTimer += period
		ch.dutyStep = (ch.dutyStep + 1) & 0x7
	}

	pattern := dutyPatterns[ch.duty&0x3][ch.dutyStep]
	if ch.volume == 0 {
		return 0
	}
	level := int64(ch.volume)
	if pattern == 0 {
		// Per Pan Docs: if the duty cycle is 0, the output is 0
		// so we mirror the level to have a DC-free signal.
		return -level
	}
	return level
}
