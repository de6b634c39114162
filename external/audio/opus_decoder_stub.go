//go:build !opus

package audio

import audiopkg "github.com/pinebranchlab/soundbooth/internal/audio"

type noopDecoder struct{}

func NewOpusDecoder() (audiopkg.Decoder, error) {
	return &noopDecoder{}, nil
}

func (d *noopDecoder) Decode(_ []byte, _ []int16) (int, error) {
	return 0, nil
}

func (d *noopDecoder) Close() {}
