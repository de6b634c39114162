package transcode

import (
	"context"
	"time"
)

// Transcoder is the external transcoding process: it loudness-normalizes,
// resamples and compresses a raw s16le capture into the final artifact.
type Transcoder interface {
	Transcode(ctx context.Context, rawPath, finalPath string) (fileSizeBytes int64, err error)
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}
