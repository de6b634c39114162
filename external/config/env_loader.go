package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	internalconfig "github.com/pinebranchlab/soundbooth/internal/config"
)

type envConfig struct {
	Env                        string `env:"ENV" envDefault:"production"`
	DatabaseURL                string `env:"DATABASE_URL,required"`
	DiscordToken               string `env:"DISCORD_TOKEN,required"`
	RecordingsDir              string `env:"RECORDINGS_DIR" envDefault:"./recordings"`
	SilenceTimeoutMs           int    `env:"SILENCE_TIMEOUT_MS" envDefault:"300"`
	MinBurstMs                 int    `env:"MIN_BURST_MS" envDefault:"100"`
	MinChunkMs                 int    `env:"MIN_CHUNK_MS" envDefault:"200"`
	ConnectTimeoutSec          int    `env:"CONNECT_TIMEOUT_SEC" envDefault:"10"`
	RelayPollIntervalMs        int    `env:"RELAY_POLL_INTERVAL_MS" envDefault:"500"`
	TranscribeEnabled          bool   `env:"TRANSCRIBE_ENABLED" envDefault:"false"`
	DefaultTranscribeLanguage  string `env:"DEFAULT_TRANSCRIBE_LANGUAGE" envDefault:"en-US"`
	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"latest_short"`
}

func Load() (*internalconfig.Config, error) {
	// .env is a local development convenience; absence is not an error.
	if os.Getenv("ENV") != "production" {
		_ = godotenv.Load()
	}

	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		DatabaseURL:                raw.DatabaseURL,
		DiscordToken:               raw.DiscordToken,
		RecordingsDir:              raw.RecordingsDir,
		SilenceTimeoutMs:           raw.SilenceTimeoutMs,
		MinBurstMs:                 raw.MinBurstMs,
		MinChunkMs:                 raw.MinChunkMs,
		ConnectTimeoutSec:          raw.ConnectTimeoutSec,
		RelayPollIntervalMs:        raw.RelayPollIntervalMs,
		TranscribeEnabled:          raw.TranscribeEnabled,
		DefaultTranscribeLanguage:  raw.DefaultTranscribeLanguage,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
