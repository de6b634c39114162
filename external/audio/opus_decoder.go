//go:build opus

package audio

import (
	"github.com/hraban/opus"
	audiopkg "github.com/pinebranchlab/soundbooth/internal/audio"
)

type opusDecoder struct {
	dec *opus.Decoder
}

func NewOpusDecoder() (audiopkg.Decoder, error) {
	dec, err := opus.NewDecoder(audiopkg.SampleRate, audiopkg.Channels)
	if err != nil {
		return nil, err
	}
	return &opusDecoder{dec: dec}, nil
}

func (d *opusDecoder) Decode(opusPacket []byte, pcm []int16) (int, error) {
	return d.dec.Decode(opusPacket, pcm)
}

func (d *opusDecoder) Close() {}
