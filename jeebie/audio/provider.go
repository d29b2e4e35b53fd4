package audio

type Provider interface {
	// GetSamples retrieves interleaved stereo float32 samples for playback
	GetSamples(count int) []float32

	// Audio debugging controls

	ToggleChannel(channel int)
	SoloChannel(channel int)
	GetChannelStatus() (ch1, ch2, ch3, ch4 bool)
}

var _ Provider = (*APU)(nil)
