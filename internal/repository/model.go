package repository

import "time"

type SessionStatus string

const (
	SessionStatusRecording SessionStatus = "recording"
	SessionStatusEnded     SessionStatus = "ended"
)

type ChunkStatus string

const (
	ChunkStatusSaved        ChunkStatus = "saved"
	ChunkStatusSynced       ChunkStatus = "synced"
	ChunkStatusTranscribing ChunkStatus = "transcribing"
	ChunkStatusTranscribed  ChunkStatus = "transcribed"
	ChunkStatusError        ChunkStatus = "error"
)

type ConsentType string

const (
	ConsentTypeOneTime   ConsentType = "one_time"
	ConsentTypePermanent ConsentType = "permanent"
)

type Session struct {
	ID               string
	GuildID          string
	ChannelID        string
	ChannelName      string
	StartedAt        time.Time
	EndedAt          *time.Time
	Status           SessionStatus
	ChunkCount       int
	TranscribedCount int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Chunk struct {
	ID                 string
	SessionID          string
	SpeakerID          string
	SpeakerName        string
	SpeakerDisplayName string
	Filename           string
	DurationMs         int64
	FileSizeBytes      int64
	Status             ChunkStatus
	CreatedAt          time.Time
}

type Transcription struct {
	ChunkID       string
	Text          string
	Confidence    float64
	Model         string
	ProcessedAtMs int64
}

type ConsentGrant struct {
	ID        string
	UserID    string
	UserName  string
	Type      ConsentType
	GuildID   *string
	ChannelID *string
	SessionID *string
	IsActive  bool
	CreatedAt time.Time
	RevokedAt *time.Time
}
