package transcriber

import (
	"context"
	"log/slog"
	"time"

	"github.com/pinebranchlab/soundbooth/internal/repository"
)

const workerBatchSize = 4

// Store is the slice of the repository the worker drains chunks through.
type Store interface {
	repository.ChunkRepository
	repository.TranscriptionRepository
}

// Worker drains saved chunks through the transcriber, independent of the
// capture path. A chunk failure marks that one chunk and moves on.
type Worker struct {
	repo        Store
	transcriber Transcriber
	language    string
	interval    time.Duration
}

func NewWorker(repo Store, t Transcriber, language string, interval time.Duration) *Worker {
	return &Worker{
		repo:        repo,
		transcriber: t,
		language:    language,
		interval:    interval,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	slog.Info("transcription worker started", "interval", w.interval, "language", w.language)
	for {
		select {
		case <-ctx.Done():
			slog.Info("transcription worker stopped")
			return
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

func (w *Worker) drainOnce(ctx context.Context) {
	chunks, err := w.repo.ListChunksByStatus(ctx, repository.ChunkStatusSaved, workerBatchSize)
	if err != nil {
		slog.Error("failed to list saved chunks", "error", err)
		return
	}
	for _, chunk := range chunks {
		if ctx.Err() != nil {
			return
		}
		w.transcribeChunk(ctx, chunk)
	}
}

func (w *Worker) transcribeChunk(ctx context.Context, chunk repository.Chunk) {
	if err := w.repo.UpdateChunkStatus(ctx, chunk.ID, repository.ChunkStatusTranscribing); err != nil {
		slog.Error("failed to mark chunk transcribing", "error", err, "chunk_id", chunk.ID)
		return
	}

	result, err := w.transcriber.Transcribe(ctx, chunk.Filename, w.language)
	if err != nil {
		slog.Error("transcription failed", "error", err, "chunk_id", chunk.ID)
		if err := w.repo.UpdateChunkStatus(ctx, chunk.ID, repository.ChunkStatusError); err != nil {
			slog.Error("failed to mark chunk errored", "error", err, "chunk_id", chunk.ID)
		}
		return
	}

	if err := w.repo.InsertTranscription(ctx, repository.InsertTranscriptionInput{
		ChunkID:       chunk.ID,
		Text:          result.Text,
		Confidence:    result.Confidence,
		Model:         result.Model,
		ProcessedAtMs: time.Now().UnixMilli(),
	}); err != nil {
		slog.Error("failed to persist transcription", "error", err, "chunk_id", chunk.ID)
		if err := w.repo.UpdateChunkStatus(ctx, chunk.ID, repository.ChunkStatusError); err != nil {
			slog.Error("failed to mark chunk errored", "error", err, "chunk_id", chunk.ID)
		}
		return
	}
	if err := w.repo.UpdateChunkStatus(ctx, chunk.ID, repository.ChunkStatusTranscribed); err != nil {
		slog.Error("failed to mark chunk transcribed", "error", err, "chunk_id", chunk.ID)
		return
	}
	slog.Info("chunk transcribed", "chunk_id", chunk.ID, "model", result.Model)
}
