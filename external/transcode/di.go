package transcode

import (
	transcodepkg "github.com/pinebranchlab/soundbooth/internal/transcode"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (transcodepkg.Transcoder, error) {
		return NewFFmpegTranscoder(), nil
	})
}
