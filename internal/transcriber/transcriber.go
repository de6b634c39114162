package transcriber

import "context"

type Result struct {
	Text       string
	Confidence float64
	Model      string
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (*Result, error)
}
