package audio

import "github.com/elimarsh/pocketz80/jeebie/bit"

// mapChannel1 derives CH1 (square + sweep) state from NR10-NR14.
func (a *APU) mapChannel1() {
	ch := &a.channels[0]

	// NR10 - Channel 1 Sweep Control
	// 7: - | 6-4: Period | 3: Direction | 2-0: Shift
	prevSweepDown := ch.sweepDown
	ch.sweepPeriod = bit.ExtractBits(a.NR10, 6, 4)
	ch.sweepDown = bit.IsSet(3, a.NR10)
	ch.sweepStep = bit.ExtractBits(a.NR10, 2, 0)
	if !ch.sweepDown && prevSweepDown && ch.sweepNegUsed && (ch.sweepPeriod > 0 || ch.sweepStep > 0) {
		// Per Pan Docs: Switching sweep from subtract to add
		// after a subtract calc disables CH1 immediately.
		ch.enabled = false
	}

	// NR11 - Channel 1 Length Timer & Duty Cycle
	// 7-6: Duty | 5-0: Length Timer (0-63, actual = 64-value)
	ch.duty = bit.ExtractBits(a.NR11, 7, 6)
	ch.timer = bit.ExtractBits(a.NR11, 5, 0)

	// NR12 - Channel 1 Volume & Envelope
	// 7-4: Initial Volume | 3: Direction | 2-0: Period
	ch.volume = bit.ExtractBits(a.NR12, 7, 4)
	ch.envelopeUp = bit.IsSet(3, a.NR12)
	ch.envelopePace = bit.ExtractBits(a.NR12, 2, 0)

	// DAC for a channel is enabled if initial volume > 0 or envelope is increasing (i.e. bits 7-3 are not all zero)
	ch.dacEnabled = (ch.volume > 0) || ch.envelopeUp

	// frequency = 131072/(2048-value) Hz
	// NR13 - 7-0: low bits of freq for Channel 1
	// NR14 - 2-0: upper 3 bits of freq for Channel 1
	ch.freq = bit.Combine(a.NR14&0b111, a.NR13)

	// NR14 - Channel 1 Frequency High & Control
	// 7: Trigger | 6: Length Enable | 5-3: - | 2-0: Upper 3 bits of freq
	prevLenEnable := ch.lengthEnable
	lengthBefore := ch.lengthCounter
	triggered := bit.IsSet(7, a.NR14)
	ch.lengthEnable = bit.IsSet(6, a.NR14)
	ch.trigger = triggered
	if ch.trigger {
		if ch.dacEnabled {
			ch.enabled = true
		}
		ch.envelopeLatched = false
		if ch.envelopePace == 0 {
			ch.envelopeCounter = 8
		} else {
			ch.envelopeCounter = ch.envelopePace
		}
		ch.dutyStep = 0
		ch.freqTimer = squarePeriodCycles(ch)
		// On trigger, reset sweep timer and shadow frequency
		ch.sweepEnabled = ch.sweepPeriod > 0 || ch.sweepStep > 0
		ch.sweepTimer = ch.sweepPeriod
		if ch.sweepTimer == 0 {
			ch.sweepTimer = 8
		}
		ch.shadowFreq = ch.freq
		ch.sweepNegUsed = false

		// Dummy calculation to immediately disable channel if overflow
		if ch.sweepStep != 0 {
			if ch.sweepDown {
				ch.sweepNegUsed = true
			}
			if _, overflow := ch.calculateSweepFrequency(); overflow {
				ch.enabled = false
			}
		}

		// reset the bit, since it's write-only this effectively gets triggered only on a write from 0 to 1
		a.NR14 = bit.Reset(7, a.NR14)
		ch.trigger = false
	}
	a.handleLengthEnableTransition(prevLenEnable, lengthBefore, triggered, 64, 0)
}

// mapChannel2 derives CH2 (square) state from NR21-NR24.
func (a *APU) mapChannel2() {
	ch := &a.channels[1]

	// NR21 - Channel 2 Length Timer & Duty Cycle
	// 7-6: Duty | 5-0: Length Timer (0-63, actual = 64-value)
	ch.duty = bit.ExtractBits(a.NR21, 7, 6)
	ch.timer = bit.ExtractBits(a.NR21, 5, 0)

	// NR22 - Channel 2 Volume & Envelope
	// 7-4: Initial Volume | 3: Direction | 2-0: Period
	ch.volume = bit.ExtractBits(a.NR22, 7, 4)
	ch.envelopeUp = bit.IsSet(3, a.NR22)
	ch.envelopePace = bit.ExtractBits(a.NR22, 2, 0)

	// DAC for a channel is enabled if initial volume > 0 or envelope is increasing
	ch.dacEnabled = (ch.volume > 0) || ch.envelopeUp

	// frequency = 131072/(2048-value) Hz
	// NR23 - 7-0: low bits of freq for Channel 2
	// NR24 - 2-0: upper 3 bits of freq for Channel 2
	ch.freq = bit.Combine(a.NR24&0b111, a.NR23)

	// NR24 - Channel 2 Frequency High & Control
	// 7: Trigger | 6: Length Enable | 5-3: - | 2-0: Upper 3 bits of freq
	prevLenEnable := ch.lengthEnable
	lengthBefore := ch.lengthCounter
	triggered := bit.IsSet(7, a.NR24)
	ch.lengthEnable = bit.IsSet(6, a.NR24)
	ch.trigger = triggered
	if ch.trigger {
		if ch.dacEnabled {
			ch.enabled = true
		}
		ch.envelopeLatched = false
		if ch.envelopePace == 0 {
			ch.envelopeCounter = 8
		} else {
			ch.envelopeCounter = ch.envelopePace
		}
		ch.dutyStep = 0
		ch.freqTimer = squarePeriodCycles(ch)
		// reset the bit, since it's write-only this effectively gets triggered only on a write from 0 to 1
		a.NR24 = bit.Reset(7, a.NR24)
		ch.trigger = false
	}
	a.handleLengthEnableTransition(prevLenEnable, lengthBefore, triggered, 64, 1)
}

// mapChannel3 derives CH3 (wave) state from NR30-NR34.
func (a *APU) mapChannel3() {
	ch := &a.channels[2]

	// NR30 - Channel 3 DAC Enable - this is set differently from other channels
	// 7: DAC Enable | 6-0: - (read as 1)
	ch.dacEnabled = bit.IsSet(7, a.NR30)

	// NR31 - Channel 3 Length Timer (write-only)
	// 7-0: Length Timer (0-255, actual = 256-value)
	ch.timer = a.NR31

	// NR32 - Channel 3 Output Level
	// 7: - | 6-5: Output Level | 4-0: -
	// Level: 00=mute, 01=100%, 10=50%, 11=25%
	ch.volume = bit.ExtractBits(a.NR32, 6, 5)

	// frequency = 65536/(2048-value) Hz (twice as fast as square channels)
	// NR33 - 7-0: Lower 8 bits of frequency
	// NR34 - 2-0: Upper 3 bits of frequency
	ch.freq = bit.Combine(a.NR34&0b111, a.NR33)

	// NR34 - Channel 3 Frequency High & Control
	// 7: Trigger | 6: Length Enable | 5-3: - | 2-0: Upper 3 bits of freq
	prevLenEnable := ch.lengthEnable
	lengthBefore := ch.lengthCounter
	triggered := bit.IsSet(7, a.NR34)
	ch.lengthEnable = bit.IsSet(6, a.NR34)
	ch.trigger = triggered
	if ch.trigger {
		if ch.dacEnabled {
			ch.enabled = true
		}
		ch.freqTimer = wavePeriodCycles(ch)
		a.ch3CurrentByteIndex = 0
		ch.waveSample = a.waveRAM[0]
		// reset the bit, since it's write-only this effectively gets triggered only on a write from 0 to 1
		a.NR34 = bit.Reset(7, a.NR34)
		ch.trigger = false
	}
	a.handleLengthEnableTransition(prevLenEnable, lengthBefore, triggered, 256, 2)
}

// mapChannel4 derives CH4 (noise) state from NR41-NR44.
func (a *APU) mapChannel4() {
	ch := &a.channels[3]

	// NR41 - Channel 4 Length Timer (write-only)
	// 7-6: - | 5-0: Length Timer (0-63, actual = 64-value)
	ch.timer = bit.ExtractBits(a.NR41, 5, 0)

	// NR42 - Channel 4 Volume & Envelope
	// 7-4: Initial Volume | 3: Direction | 2-0: Period
	ch.volume = bit.ExtractBits(a.NR42, 7, 4)
	ch.envelopeUp = bit.IsSet(3, a.NR42)
	ch.envelopePace = bit.ExtractBits(a.NR42, 2, 0)

	// NR43 - Channel 4 Frequency & Randomness
	// 7-4: Clock Shift | 3: LFSR Width | 2-0: Clock Divider
	// frequency = 524288 / r / 2^(s+1) where r=divider, s=shift
	ch.shift = bit.ExtractBits(a.NR43, 7, 4)
	ch.use7bitLFSR = bit.IsSet(3, a.NR43)
	ch.divider = bit.ExtractBits(a.NR43, 2, 0)

	// DAC for a channel is enabled if initial volume > 0 or envelope is increasing
	ch.dacEnabled = (ch.volume > 0) || ch.envelopeUp

	// NR44 - Channel 4 Control
	// 7: Trigger | 6: Length Enable | 5-0: -
	prevLenEnable := ch.lengthEnable
	lengthBefore := ch.lengthCounter
	triggered := bit.IsSet(7, a.NR44)
	ch.lengthEnable = bit.IsSet(6, a.NR44)
	ch.trigger = triggered
	if ch.trigger {
		if ch.dacEnabled {
			ch.enabled = true
		}
		ch.envelopeLatched = false
		if ch.envelopePace == 0 {
			ch.envelopeCounter = 8
		} else {
			ch.envelopeCounter = ch.envelopePace
		}
		ch.lfsr = 0x7FFF
		ch.noiseTimer = noisePeriodCycles(ch)
		// reset the bit, since it's write-only this effectively gets triggered only on a write from 0 to 1
		a.NR44 = bit.Reset(7, a.NR44)
		ch.trigger = false
	}
	a.handleLengthEnableTransition(prevLenEnable, lengthBefore, triggered, 64, 3)
}
