package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pinebranchlab/soundbooth/internal/audio"
	"github.com/pinebranchlab/soundbooth/internal/config"
	"github.com/pinebranchlab/soundbooth/internal/discord"
	"github.com/pinebranchlab/soundbooth/internal/repository"
)

type fakeRepository struct {
	mu                  sync.Mutex
	createCount         int
	chunks              []repository.Chunk
	grants              []repository.ConsentGrant
	permanentConsent    map[string]bool
	completeCalls       []repository.CompleteSessionInput
	incrementCalls      int
	revokedUsers        []string
	revokedSessions     []string
	transcriptions      []repository.InsertTranscriptionInput
	chunkStatusUpdates  map[string][]repository.ChunkStatus
	insertChunkErr      error
	hasPermanentErr     error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		permanentConsent:   make(map[string]bool),
		chunkStatusUpdates: make(map[string][]repository.ChunkStatus),
	}
}

func (f *fakeRepository) CreateSession(_ context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCount++
	return &repository.Session{
		ID:          fmt.Sprintf("session-%d", f.createCount),
		GuildID:     input.GuildID,
		ChannelID:   input.ChannelID,
		ChannelName: input.ChannelName,
		StartedAt:   input.StartedAt,
		Status:      repository.SessionStatusRecording,
	}, nil
}

func (f *fakeRepository) CompleteSession(_ context.Context, input repository.CompleteSessionInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls = append(f.completeCalls, input)
	return nil
}

func (f *fakeRepository) IncrementSessionChunkCount(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incrementCalls++
	return nil
}

func (f *fakeRepository) InsertChunk(_ context.Context, input repository.InsertChunkInput) (*repository.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertChunkErr != nil {
		return nil, f.insertChunkErr
	}
	chunk := repository.Chunk{
		ID:                 fmt.Sprintf("chunk-%d", len(f.chunks)+1),
		SessionID:          input.SessionID,
		SpeakerID:          input.SpeakerID,
		SpeakerName:        input.SpeakerName,
		SpeakerDisplayName: input.SpeakerDisplayName,
		Filename:           input.Filename,
		DurationMs:         input.DurationMs,
		FileSizeBytes:      input.FileSizeBytes,
		Status:             repository.ChunkStatusSaved,
		CreatedAt:          time.Now(),
	}
	f.chunks = append(f.chunks, chunk)
	return &chunk, nil
}

func (f *fakeRepository) CountChunksBySession(_ context.Context, sessionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, c := range f.chunks {
		if c.SessionID == sessionID {
			count++
		}
	}
	return count, nil
}

func (f *fakeRepository) CountTranscribedBySession(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func (f *fakeRepository) ListChunksByStatus(_ context.Context, status repository.ChunkStatus, limit int) ([]repository.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []repository.Chunk
	for _, c := range f.chunks {
		if c.Status == status && len(list) < limit {
			list = append(list, c)
		}
	}
	return list, nil
}

func (f *fakeRepository) UpdateChunkStatus(_ context.Context, chunkID string, status repository.ChunkStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunkStatusUpdates[chunkID] = append(f.chunkStatusUpdates[chunkID], status)
	for i := range f.chunks {
		if f.chunks[i].ID == chunkID {
			f.chunks[i].Status = status
		}
	}
	return nil
}

func (f *fakeRepository) InsertTranscription(_ context.Context, input repository.InsertTranscriptionInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcriptions = append(f.transcriptions, input)
	return nil
}

func (f *fakeRepository) GetTranscriptionByChunkID(_ context.Context, _ string) (*repository.Transcription, error) {
	return nil, nil
}

func (f *fakeRepository) InsertConsentGrant(_ context.Context, input repository.InsertConsentGrantInput) (*repository.ConsentGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	grant := repository.ConsentGrant{
		ID:       fmt.Sprintf("grant-%d", len(f.grants)+1),
		UserID:   input.UserID,
		UserName: input.UserName,
		Type:     input.Type,
		IsActive: true,
	}
	if input.GuildID != "" {
		v := input.GuildID
		grant.GuildID = &v
	}
	if input.ChannelID != "" {
		v := input.ChannelID
		grant.ChannelID = &v
	}
	if input.SessionID != "" {
		v := input.SessionID
		grant.SessionID = &v
	}
	f.grants = append(f.grants, grant)
	if input.Type == repository.ConsentTypePermanent {
		f.permanentConsent[input.UserID] = true
	}
	return &grant, nil
}

func (f *fakeRepository) HasActivePermanentConsent(_ context.Context, userID, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hasPermanentErr != nil {
		return false, f.hasPermanentErr
	}
	return f.permanentConsent[userID], nil
}

func (f *fakeRepository) RevokeConsentsForUser(_ context.Context, userID string, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedUsers = append(f.revokedUsers, userID)
	revoked := 0
	for i := range f.grants {
		if f.grants[i].UserID == userID && f.grants[i].IsActive {
			f.grants[i].IsActive = false
			revoked++
		}
	}
	delete(f.permanentConsent, userID)
	return revoked, nil
}

func (f *fakeRepository) RevokeOneTimeConsentsForSession(_ context.Context, sessionID string, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedSessions = append(f.revokedSessions, sessionID)
	revoked := 0
	for i := range f.grants {
		g := &f.grants[i]
		if g.IsActive && g.Type == repository.ConsentTypeOneTime && g.SessionID != nil && *g.SessionID == sessionID {
			g.IsActive = false
			revoked++
		}
	}
	return revoked, nil
}

func (f *fakeRepository) chunkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks)
}

func (f *fakeRepository) chunkAt(i int) repository.Chunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chunks[i]
}

type fakeDiscordClient struct {
	mu             sync.Mutex
	participants   map[string][]discord.VoiceParticipant // keyed by channel id
	channelGuilds  map[string]string
	channelNames   map[string]string
	dmCalls        []string
	dmContents     []string
	sendCalls      []string
	joinErr         error
	connectReadyErr error
	lastConnection  *fakeVoiceConnection
	framesPerBurst  int
}

func newFakeDiscordClient() *fakeDiscordClient {
	return &fakeDiscordClient{
		participants:  make(map[string][]discord.VoiceParticipant),
		channelGuilds: make(map[string]string),
		channelNames:  make(map[string]string),
	}
}

func (f *fakeDiscordClient) Connect(_ context.Context) error { return nil }
func (f *fakeDiscordClient) Close() error                    { return nil }
func (f *fakeDiscordClient) Run() error                      { return nil }
func (f *fakeDiscordClient) GetBotUserID() (string, error)   { return "bot-self", nil }

func (f *fakeDiscordClient) JoinVoiceChannel(_, _ string) (discord.VoiceConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return nil, f.joinErr
	}
	conn := newFakeVoiceConnection(f.framesPerBurst)
	conn.readyErr = f.connectReadyErr
	f.lastConnection = conn
	return conn, nil
}

func (f *fakeDiscordClient) SendChannelMessage(channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls = append(f.sendCalls, content)
	return nil
}

func (f *fakeDiscordClient) SendDirectMessage(userID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dmCalls = append(f.dmCalls, userID)
	f.dmContents = append(f.dmContents, content)
	return nil
}

func (f *fakeDiscordClient) RegisterVoiceStateUpdateHandler(_ func(discord.VoiceStateEvent)) {}
func (f *fakeDiscordClient) RegisterMessageHandler(_ func(discord.MessageEvent))            {}

func (f *fakeDiscordClient) ListVoiceChannelParticipants(_, channelID string) ([]discord.VoiceParticipant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.participants[channelID], nil
}

func (f *fakeDiscordClient) GetChannelName(channelID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name, ok := f.channelNames[channelID]; ok {
		return name, nil
	}
	return channelID, nil
}

func (f *fakeDiscordClient) ResolveGuildIDByChannel(channelID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if guildID, ok := f.channelGuilds[channelID]; ok {
		return guildID, nil
	}
	return "", fmt.Errorf("unknown channel %s", channelID)
}

func (f *fakeDiscordClient) dmCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dmCalls)
}

type fakeVoiceConnection struct {
	mu             sync.Mutex
	framesPerBurst int
	readyErr       error
	disconnected   bool
	speakingFn     func(string)
	disconnectFn   func()
	openBursts     int
}

func newFakeVoiceConnection(framesPerBurst int) *fakeVoiceConnection {
	return &fakeVoiceConnection{framesPerBurst: framesPerBurst}
}

func (f *fakeVoiceConnection) WaitReady(ctx context.Context) error {
	if f.readyErr != nil {
		return f.readyErr
	}
	return nil
}

func (f *fakeVoiceConnection) OnSpeakingStart(handler func(userID string)) {
	f.mu.Lock()
	f.speakingFn = handler
	f.mu.Unlock()
}

func (f *fakeVoiceConnection) OnDisconnect(handler func()) {
	f.mu.Lock()
	f.disconnectFn = handler
	f.mu.Unlock()
}

func (f *fakeVoiceConnection) OpenBurst(_ string, _ time.Duration) (discord.BurstReader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openBursts++
	return &fakeBurstReader{remaining: f.framesPerBurst}, nil
}

func (f *fakeVoiceConnection) Disconnect() error {
	f.mu.Lock()
	f.disconnected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeVoiceConnection) isDisconnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnected
}

type fakeBurstReader struct {
	mu        sync.Mutex
	remaining int
}

func (f *fakeBurstReader) ReadFrame() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remaining <= 0 {
		return nil, io.EOF
	}
	f.remaining--
	return make([]byte, 20), nil
}

func (f *fakeBurstReader) Close() error { return nil }

// fakeDecoder fills one 20ms frame of silence per packet.
type fakeDecoder struct{}

func (f *fakeDecoder) Decode(_ []byte, pcm []int16) (int, error) {
	return audio.SamplesPerFrame / audio.Channels, nil
}

func (f *fakeDecoder) Close() {}

// fakeTranscoder derives the artifact duration from the raw capture size so
// tests exercise realistic durations, unless an override is set.
type fakeTranscoder struct {
	mu               sync.Mutex
	transcodeCalls   int
	probeCalls       int
	transcodeErr     error
	probeErr         error
	durationOverride time.Duration
	lastRawBytes     int
}

func (f *fakeTranscoder) Transcode(_ context.Context, rawPath, finalPath string) (int64, error) {
	f.mu.Lock()
	f.transcodeCalls++
	err := f.transcodeErr
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	raw, readErr := os.ReadFile(rawPath)
	if readErr != nil {
		return 0, readErr
	}
	body := []byte("final-artifact")
	if writeErr := os.WriteFile(finalPath, body, 0o644); writeErr != nil {
		return 0, writeErr
	}
	f.mu.Lock()
	f.lastRawBytes = len(raw)
	f.mu.Unlock()
	return int64(len(body)), nil
}

func (f *fakeTranscoder) ProbeDuration(_ context.Context, _ string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeCalls++
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	if f.durationOverride != 0 {
		return f.durationOverride, nil
	}
	return time.Duration(f.lastRawBytes/audio.BytesPerMs) * time.Millisecond, nil
}

func (f *fakeTranscoder) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transcodeCalls, f.probeCalls
}

func newTestOrchestrator(tmpDir string, repo repository.Repository, dc discord.Client, tc *fakeTranscoder) *Orchestrator {
	cfg := &config.Config{
		Env:                 "test",
		DatabaseURL:         "postgres://test",
		DiscordToken:        "token",
		RecordingsDir:       tmpDir,
		SilenceTimeoutMs:    50,
		MinBurstMs:          100,
		MinChunkMs:          200,
		ConnectTimeoutSec:   1,
		RelayPollIntervalMs: 10,
	}
	o := NewOrchestrator(cfg, repo, dc, tc, func() (audio.Decoder, error) { return &fakeDecoder{}, nil }, NewEnglishReplyClassifier())
	o.SetBotUserID("bot-self")
	return o
}
