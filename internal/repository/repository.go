package repository

import (
	"context"
	"time"
)

type CreateSessionInput struct {
	GuildID     string
	ChannelID   string
	ChannelName string
	StartedAt   time.Time
}

type CompleteSessionInput struct {
	SessionID        string
	EndedAt          time.Time
	ChunkCount       int
	TranscribedCount int
}

type InsertChunkInput struct {
	SessionID          string
	SpeakerID          string
	SpeakerName        string
	SpeakerDisplayName string
	Filename           string
	DurationMs         int64
	FileSizeBytes      int64
}

type InsertConsentGrantInput struct {
	UserID    string
	UserName  string
	Type      ConsentType
	GuildID   string
	ChannelID string
	SessionID string
}

type InsertTranscriptionInput struct {
	ChunkID       string
	Text          string
	Confidence    float64
	Model         string
	ProcessedAtMs int64
}

type SessionRepository interface {
	CreateSession(ctx context.Context, input CreateSessionInput) (*Session, error)
	CompleteSession(ctx context.Context, input CompleteSessionInput) error
	IncrementSessionChunkCount(ctx context.Context, sessionID string) error
}

type ChunkRepository interface {
	InsertChunk(ctx context.Context, input InsertChunkInput) (*Chunk, error)
	CountChunksBySession(ctx context.Context, sessionID string) (int, error)
	CountTranscribedBySession(ctx context.Context, sessionID string) (int, error)
	ListChunksByStatus(ctx context.Context, status ChunkStatus, limit int) ([]Chunk, error)
	UpdateChunkStatus(ctx context.Context, chunkID string, status ChunkStatus) error
}

type TranscriptionRepository interface {
	InsertTranscription(ctx context.Context, input InsertTranscriptionInput) error
	GetTranscriptionByChunkID(ctx context.Context, chunkID string) (*Transcription, error)
}

type ConsentRepository interface {
	InsertConsentGrant(ctx context.Context, input InsertConsentGrantInput) (*ConsentGrant, error)
	HasActivePermanentConsent(ctx context.Context, userID, guildID string) (bool, error)
	RevokeConsentsForUser(ctx context.Context, userID string, revokedAt time.Time) (int, error)
	RevokeOneTimeConsentsForSession(ctx context.Context, sessionID string, revokedAt time.Time) (int, error)
}

type Repository interface {
	SessionRepository
	ChunkRepository
	TranscriptionRepository
	ConsentRepository
}
