package session

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pinebranchlab/soundbooth/internal/audio"
	"github.com/pinebranchlab/soundbooth/internal/discord"
)

const rawFileExt = ".raw"

// handleSpeakingStart captures exactly one speaking burst for one user. It
// runs in its own goroutine so a slow capture or transcode never delays the
// speaking-start dispatcher or another speaker.
func (o *Orchestrator) handleSpeakingStart(as *activeSession, userID string) {
	as.mu.Lock()
	sp, consented := as.consented[userID]
	if !consented {
		// No consent, no capture, no trace of the attempt.
		as.mu.Unlock()
		return
	}
	if _, inFlight := as.capturing[userID]; inFlight {
		// One subscription at a time per user keeps a speaker's bursts ordered.
		as.mu.Unlock()
		return
	}
	as.capturing[userID] = struct{}{}
	as.mu.Unlock()
	defer func() {
		as.mu.Lock()
		delete(as.capturing, userID)
		as.mu.Unlock()
	}()

	rawPath, ok := o.captureBurst(as, sp)
	if !ok {
		return
	}
	o.processChunk(as, rawPath, sp)
}

// captureBurst decodes one burst to a raw s16le file and reports whether the
// capture is worth processing.
func (o *Orchestrator) captureBurst(as *activeSession, sp speaker) (string, bool) {
	silenceGap := time.Duration(o.cfg.SilenceTimeoutMs) * time.Millisecond
	burst, err := as.voiceConn().OpenBurst(sp.userID, silenceGap)
	if err != nil {
		slog.Debug("could not open burst subscription", "error", err, "session_id", as.sessionID, "user_id", sp.userID)
		return "", false
	}
	defer func() {
		_ = burst.Close()
	}()

	decoder, err := o.newDecoder()
	if err != nil {
		slog.Error("failed to create audio decoder", "error", err, "session_id", as.sessionID)
		return "", false
	}
	defer decoder.Close()

	sessionDir := filepath.Join(o.cfg.RecordingsDir, as.sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		slog.Error("failed to create session recording dir", "error", err, "session_id", as.sessionID)
		return "", false
	}
	base := fmt.Sprintf("%d_%s_%s_%s", time.Now().UnixMilli(), sp.userID, sanitizeDisplayName(sp.displayName), uuid.NewString()[:8])
	rawPath := filepath.Join(sessionDir, base+rawFileExt)

	f, err := os.Create(rawPath)
	if err != nil {
		slog.Error("failed to create raw capture file", "error", err, "session_id", as.sessionID)
		return "", false
	}

	rawBytes, err := o.decodeBurstToFile(burst, decoder, f)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		slog.Error("unexpected stream error during capture", "error", err, "session_id", as.sessionID, "user_id", sp.userID)
		_ = os.Remove(rawPath)
		return "", false
	}

	minBytes := o.cfg.MinBurstMs * audio.BytesPerMs
	if rawBytes < minBytes {
		_ = os.Remove(rawPath)
		return "", false
	}
	return rawPath, true
}

func (o *Orchestrator) decodeBurstToFile(burst discord.BurstReader, decoder audio.Decoder, w io.Writer) (int, error) {
	pcm := make([]int16, audio.SamplesPerFrame)
	frameBuf := make([]byte, audio.SamplesPerFrame*audio.BytesPerSample)
	written := 0
	for {
		frame, err := burst.ReadFrame()
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
		samples, err := decoder.Decode(frame, pcm)
		if err != nil {
			// A corrupt packet is not worth abandoning the burst.
			slog.Debug("dropping undecodable opus packet", "error", err)
			continue
		}
		total := samples * audio.Channels
		if total > len(pcm) {
			total = len(pcm)
		}
		for i := 0; i < total; i++ {
			binary.LittleEndian.PutUint16(frameBuf[i*2:], uint16(pcm[i]))
		}
		n, err := w.Write(frameBuf[:total*2])
		written += n
		if err != nil {
			return written, err
		}
	}
}

func sanitizeDisplayName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "speaker"
	}
	return string(out)
}
