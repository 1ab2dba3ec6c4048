package audio

// The two supported rates have an exact 3:1 ratio, so conversion is plain
// decimation one way and sample repetition the other. No anti-alias filter
// is applied; for speech-bandwidth audio this is adequate and keeps both
// functions allocation-per-call only, stateless, and safe for concurrent use.

// decimation is the fixed rate ratio between ChannelFormat and BackendFormat.
const decimation = 3

// Downsample converts 48 kHz stereo PCM to 16 kHz mono PCM.
//
// Each stereo pair is averaged to one mono sample (integer floor division),
// then every third mono sample is kept. A trailing incomplete sample or
// stereo pair is truncated rather than rejected. Empty input yields empty
// output.
func Downsample(pcm []byte) []byte {
	pairs := len(pcm) / (SampleBytes * 2)
	out := make([]byte, 0, (pairs/decimation+1)*SampleBytes)

	mono := 0
	for i := 0; i < pairs; i++ {
		if mono%decimation == 0 {
			l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
			r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
			// Shift, not / 2: the average must floor on negative odd sums.
			avg := (l + r) >> 1
			out = append(out, byte(avg), byte(avg>>8))
		}
		mono++
	}
	return out
}

// Upsample converts 16 kHz mono PCM to 48 kHz stereo PCM.
//
// Each mono sample is repeated three times for the rate and twice more for
// the channel pair, yielding exactly six output samples per input sample.
// Blocky but intelligible; deliberately simple rather than interpolated.
// A trailing incomplete sample is truncated. Empty input yields empty output.
func Upsample(pcm []byte) []byte {
	samples := len(pcm) / SampleBytes
	out := make([]byte, samples*decimation*2*SampleBytes)

	for i := 0; i < samples; i++ {
		lo, hi := pcm[i*2], pcm[i*2+1]
		base := i * decimation * 2 * SampleBytes
		for j := 0; j < decimation*2; j++ {
			out[base+j*2] = lo
			out[base+j*2+1] = hi
		}
	}
	return out
}

// DownsampleFrame converts a 48 kHz stereo frame to a 16 kHz mono frame,
// preserving the timestamp.
func DownsampleFrame(frame AudioFrame) AudioFrame {
	return AudioFrame{
		Data:       Downsample(frame.Data),
		SampleRate: BackendFormat.SampleRate,
		Channels:   BackendFormat.Channels,
		Timestamp:  frame.Timestamp,
	}
}

// UpsampleFrame converts a 16 kHz mono frame to a 48 kHz stereo frame,
// preserving the timestamp.
func UpsampleFrame(frame AudioFrame) AudioFrame {
	return AudioFrame{
		Data:       Upsample(frame.Data),
		SampleRate: ChannelFormat.SampleRate,
		Channels:   ChannelFormat.Channels,
		Timestamp:  frame.Timestamp,
	}
}
