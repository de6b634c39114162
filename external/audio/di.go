package audio

import (
	audiopkg "github.com/pinebranchlab/soundbooth/internal/audio"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.ProvideValue(injector, audiopkg.DecoderFactory(NewOpusDecoder))
}
