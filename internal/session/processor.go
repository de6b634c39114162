package session

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pinebranchlab/soundbooth/internal/repository"
)

const finalFileExt = ".final.ogg"

// processChunk turns one validated raw capture into a persisted chunk, or
// into nothing. Every failure path here is absorbed: files are cleaned up and
// the error is logged, never returned to the capture goroutine's caller.
func (o *Orchestrator) processChunk(as *activeSession, rawPath string, sp speaker) {
	finalPath := strings.TrimSuffix(rawPath, rawFileExt) + finalFileExt
	ctx := context.Background()

	size, err := o.transcoder.Transcode(ctx, rawPath, finalPath)
	if err != nil {
		slog.Error("transcode failed", "error", err, "session_id", as.sessionID, "speaker_id", sp.userID)
		removeFiles(rawPath, finalPath)
		return
	}
	duration, err := o.transcoder.ProbeDuration(ctx, finalPath)
	if err != nil {
		slog.Error("duration probe failed", "error", err, "session_id", as.sessionID, "speaker_id", sp.userID)
		removeFiles(rawPath, finalPath)
		return
	}

	// The raw intermediate never outlives processing.
	_ = os.Remove(rawPath)

	minChunk := time.Duration(o.cfg.MinChunkMs) * time.Millisecond
	if duration < minChunk {
		slog.Debug("discarding short chunk", "session_id", as.sessionID, "speaker_id", sp.userID, "duration_ms", duration.Milliseconds())
		_ = os.Remove(finalPath)
		return
	}

	chunk, err := o.repo.InsertChunk(ctx, repository.InsertChunkInput{
		SessionID:          as.sessionID,
		SpeakerID:          sp.userID,
		SpeakerName:        sp.userName,
		SpeakerDisplayName: sp.displayName,
		Filename:           finalPath,
		DurationMs:         duration.Milliseconds(),
		FileSizeBytes:      size,
	})
	if err != nil {
		slog.Error("failed to persist chunk", "error", err, "session_id", as.sessionID, "speaker_id", sp.userID)
		return
	}

	as.mu.Lock()
	as.chunkCount++
	as.mu.Unlock()
	if err := o.repo.IncrementSessionChunkCount(ctx, as.sessionID); err != nil {
		slog.Error("failed to increment session chunk count", "error", err, "session_id", as.sessionID)
	}
	slog.Info("chunk saved", "session_id", as.sessionID, "chunk_id", chunk.ID, "speaker_id", sp.userID, "duration_ms", chunk.DurationMs, "bytes", chunk.FileSizeBytes)
}

func removeFiles(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		_ = os.Remove(p)
	}
}
