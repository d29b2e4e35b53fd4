package audio

// maxQueuedSamples bounds the interleaved stereo sample backlog so a stalled
// host audio consumer can't grow pcmBuffer without limit; roughly 1 second
// of audio at a typical 48kHz host rate.
const maxQueuedSamples = 48000 * 2

// mixScale keeps the sum of all four channels (each in [-1, 1] after the
// per-channel /15 normalization) inside [-1, 1].
const mixScale = 0.25

// tickGenerators advances every enabled channel's waveform generator by
// cycles T-cycles, mixes the resulting levels into the accumulators per
// NR51 panning, and flushes a host sample once enough cycles have
// accumulated.
//
//	1. Add CPU cycles to each channel's timer and reload when the period elapses.
//	2. Update the duty/wave/LFSR position to produce the next raw amplitude for that channel.
//	3. Gate the amplitude by the channel's DAC/envelope state to get the audible level.
//	4. Mix the level into left/right accumulators according to NR51 so GetSamples can downsample later.
func (a *APU) tickGenerators(cycles int) {
	if cycles <= 0 {
		return
	}

	var leftLevel, rightLevel int64
	for i := range 4 {
		ch := &a.channels[i]
		if !ch.enabled || !ch.dacEnabled || ch.muted {
			continue
		}

		var level int64
		switch i {
		case 0, 1:
			level = stepSquare(ch, cycles)
		case 2:
			level = stepWave(ch, &a.waveRAM, &a.ch3CurrentByteIndex, cycles)
		case 3:
			level = stepNoise(ch, cycles)
		}
		if level == 0 {
			continue
		}

		if ch.left {
			leftLevel += level
		}
		if ch.right {
			rightLevel += level
		}
	}
	// VIN pin is optional, it feeds each mixer lane
	if a.vinLeft {
		leftLevel += int64(a.vinSample)
	}
	if a.vinRight {
		rightLevel += int64(a.vinSample)
	}

	a.mixLeftAcc += leftLevel * int64(cycles)
	a.mixRightAcc += rightLevel * int64(cycles)
	a.mixAccumCycles += cycles
	a.flushMix(cycles)
}

func (a *APU) flushMix(cycles int) {
	if a.hostSampleRate <= 0 || a.pcmCyclesPerSample == 0 {
		return
	}

	a.pcmCycleAcc += float64(cycles)
	if a.pcmCycleAcc < a.pcmCyclesPerSample {
		return
	}
	a.pcmCycleAcc -= a.pcmCyclesPerSample

	left, right := a.exportMixedSample()

	a.pcmMu.Lock()
	if len(a.pcmBuffer)-a.pcmCursor < maxQueuedSamples {
		a.pcmBuffer = append(a.pcmBuffer, left, right)
	}
	a.pcmMu.Unlock()
}

func (a *APU) exportMixedSample() (float32, float32) {
	if a.mixAccumCycles == 0 {
		return 0, 0
	}

	leftAvg := float64(a.mixLeftAcc) / float64(a.mixAccumCycles)
	rightAvg := float64(a.mixRightAcc) / float64(a.mixAccumCycles)

	left, right := scaleToSample(leftAvg, a.volLeft), scaleToSample(rightAvg, a.volRight)

	a.mixLeftAcc = 0
	a.mixRightAcc = 0
	a.mixAccumCycles = 0

	return left, right
}

func scaleToSample(avg float64, masterVol uint8) float32 {
	gain := float64(masterVol+1) / 8.0
	value := avg / 15.0 * gain * mixScale
	if value > 1 {
		value = 1
	} else if value < -1 {
		value = -1
	}
	return float32(value)
}
