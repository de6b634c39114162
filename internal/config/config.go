package config

import "fmt"

type Config struct {
	Env                        string
	DatabaseURL                string
	DiscordToken               string
	RecordingsDir              string
	SilenceTimeoutMs           int
	MinBurstMs                 int
	MinChunkMs                 int
	ConnectTimeoutSec          int
	RelayPollIntervalMs        int
	TranscribeEnabled          bool
	DefaultTranscribeLanguage  string
	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	for _, pos := range c.positiveFieldChecks() {
		if pos.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", pos.name, pos.value)
		}
	}
	if c.TranscribeEnabled {
		if c.GoogleCloudProjectID == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID is required when TRANSCRIBE_ENABLED=true")
		}
		if c.GoogleCloudCredentialsJSON == "" {
			return fmt.Errorf("GOOGLE_CLOUD_CREDENTIALS_JSON is required when TRANSCRIBE_ENABLED=true")
		}
		if c.DefaultTranscribeLanguage == "" {
			return fmt.Errorf("DEFAULT_TRANSCRIBE_LANGUAGE is required when TRANSCRIBE_ENABLED=true")
		}
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "DISCORD_TOKEN", value: c.DiscordToken},
		{name: "RECORDINGS_DIR", value: c.RecordingsDir},
	}
}

type positiveEnvField struct {
	name  string
	value int
}

func (c *Config) positiveFieldChecks() []positiveEnvField {
	return []positiveEnvField{
		{name: "SILENCE_TIMEOUT_MS", value: c.SilenceTimeoutMs},
		{name: "MIN_BURST_MS", value: c.MinBurstMs},
		{name: "MIN_CHUNK_MS", value: c.MinChunkMs},
		{name: "CONNECT_TIMEOUT_SEC", value: c.ConnectTimeoutSec},
		{name: "RELAY_POLL_INTERVAL_MS", value: c.RelayPollIntervalMs},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
