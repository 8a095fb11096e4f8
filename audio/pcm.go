package audio

import "time"

// The platform delivers opus frames that decode to this PCM layout.
const (
	SourceSampleRate = 48000
	SourceChannels   = 2

	TargetSampleRate = 16000
	TargetChannels   = 1

	bytesPerSample = 2

	// FrameSamples is samples per channel in one 20ms frame.
	FrameSamples = SourceSampleRate / 50
)

// SourceBytesPerSecond is the captured-PCM data rate before conversion.
const SourceBytesPerSecond = SourceSampleRate * SourceChannels * bytesPerSample

// Duration maps a captured byte count to wall time. The mapping is exact for
// the fixed source layout, which is what makes duration estimates on
// utterances deterministic.
func Duration(n int) time.Duration {
	return time.Duration(n) * time.Second / SourceBytesPerSecond
}

// BytesFromPCM flattens decoded int16 samples into little-endian bytes, the
// layout the converter's stdin expects.
func BytesFromPCM(samples []int16) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}
