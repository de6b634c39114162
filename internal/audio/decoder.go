package audio

const (
	SampleRate      = 48000
	Channels        = 2
	BytesPerSample  = 2
	FrameSizeMs     = 20
	SamplesPerFrame = SampleRate * FrameSizeMs * Channels / 1000
)

// BytesPerMs is the raw s16le byte rate at the capture format.
const BytesPerMs = SampleRate * Channels * BytesPerSample / 1000

type Decoder interface {
	// Decode decodes one opus packet into pcm and returns the number of
	// samples per channel written.
	Decode(opusPacket []byte, pcm []int16) (int, error)
	Close()
}

type DecoderFactory func() (Decoder, error)
