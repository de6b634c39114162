package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pinebranchlab/soundbooth/internal/audio"
	transcodepkg "github.com/pinebranchlab/soundbooth/internal/transcode"
)

const (
	targetSampleRate = 16000
	targetChannels   = 1
	targetBitrate    = "24k"
	stderrTailBytes  = 512
)

type FFmpegTranscoder struct {
	ffmpegPath  string
	ffprobePath string
}

func NewFFmpegTranscoder() transcodepkg.Transcoder {
	return &FFmpegTranscoder{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
	}
}

func (t *FFmpegTranscoder) Transcode(ctx context.Context, rawPath, finalPath string) (int64, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", rawPath,
		"-af", "loudnorm=I=-16:TP=-1.5:LRA=11",
		"-ar", strconv.Itoa(targetSampleRate),
		"-ac", strconv.Itoa(targetChannels),
		"-c:a", "libopus",
		"-b:a", targetBitrate,
		"-y", finalPath,
	}
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffmpeg failed: %w: %s", err, stderrTail(stderr.Bytes()))
	}
	info, err := os.Stat(finalPath)
	if err != nil {
		return 0, fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	return info.Size(), nil
}

func (t *FFmpegTranscoder) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	cmd := exec.CommandContext(ctx, t.ffprobePath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w: %s", err, stderrTail(stderr.Bytes()))
	}
	return parseProbeDuration(stdout.String())
}

func parseProbeDuration(out string) (time.Duration, error) {
	s := strings.TrimSpace(out)
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("ffprobe reported no duration")
	}
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe reported unparsable duration %q: %w", s, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func stderrTail(b []byte) string {
	if len(b) > stderrTailBytes {
		b = b[len(b)-stderrTailBytes:]
	}
	return strings.TrimSpace(string(b))
}
