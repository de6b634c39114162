package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pinebranchlab/soundbooth/internal/audio"
	"github.com/pinebranchlab/soundbooth/internal/config"
	"github.com/pinebranchlab/soundbooth/internal/discord"
	"github.com/pinebranchlab/soundbooth/internal/repository"
	"github.com/pinebranchlab/soundbooth/internal/transcode"
)

var (
	ErrAlreadyRecording = errors.New("a recording is already active for this guild")
	ErrConnectTimeout   = errors.New("voice connection did not become ready in time")
)

const (
	reconnectAttempts = 2
	reconnectTimeout  = 5 * time.Second
)

type Orchestrator struct {
	cfg        *config.Config
	repo       repository.Repository
	discord    discord.Client
	transcoder transcode.Transcoder
	newDecoder audio.DecoderFactory
	classifier ReplyClassifier

	botUserID string

	mu       sync.Mutex
	sessions map[string]*activeSession
}

type speaker struct {
	userID      string
	userName    string
	displayName string
}

// activeSession is the authoritative runtime state of one recording. It lives
// only while the session is in recording status and is never persisted.
type activeSession struct {
	sessionID   string
	guildID     string
	channelID   string
	channelName string
	startedAt   time.Time
	voice       discord.VoiceConnection
	ready       bool

	mu         sync.Mutex
	chunkCount int
	consented  map[string]speaker
	pending    map[string]speaker
	declined   map[string]speaker
	capturing  map[string]struct{}
}

// voiceConn snapshots the transport handle; the reconnect path may swap it
// while capture goroutines are running.
func (as *activeSession) voiceConn() discord.VoiceConnection {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.voice
}

type JoinResult struct {
	SessionID   string
	ChannelName string
}

type LeaveResult struct {
	SessionID      string
	ChunkCount     int
	ElapsedSeconds int64
}

type StatusEntry struct {
	SessionID      string
	GuildID        string
	ChannelID      string
	ChunkCount     int
	ElapsedSeconds int64
}

func NewOrchestrator(cfg *config.Config, repo repository.Repository, dc discord.Client, tc transcode.Transcoder, newDecoder audio.DecoderFactory, classifier ReplyClassifier) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		repo:       repo,
		discord:    dc,
		transcoder: tc,
		newDecoder: newDecoder,
		classifier: classifier,
		sessions:   make(map[string]*activeSession),
	}
}

func (o *Orchestrator) SetBotUserID(userID string) {
	o.botUserID = userID
}

func (o *Orchestrator) Join(ctx context.Context, guildID, channelID string) (*JoinResult, error) {
	o.mu.Lock()
	if _, exists := o.sessions[guildID]; exists {
		o.mu.Unlock()
		return nil, ErrAlreadyRecording
	}
	// Reserve the guild slot before any slow work so a concurrent join fails
	// fast with ErrAlreadyRecording.
	placeholder := &activeSession{guildID: guildID, channelID: channelID}
	o.sessions[guildID] = placeholder
	o.mu.Unlock()

	as, err := o.startSession(ctx, guildID, channelID)
	if err != nil {
		o.mu.Lock()
		if o.sessions[guildID] == placeholder {
			delete(o.sessions, guildID)
		}
		o.mu.Unlock()
		return nil, err
	}

	o.mu.Lock()
	o.sessions[guildID] = as
	o.mu.Unlock()
	slog.Info("session activated", "session_id", as.sessionID, "guild_id", guildID, "channel_id", channelID)
	return &JoinResult{SessionID: as.sessionID, ChannelName: as.channelName}, nil
}

func (o *Orchestrator) startSession(ctx context.Context, guildID, channelID string) (*activeSession, error) {
	channelName, err := o.discord.GetChannelName(channelID)
	if err != nil {
		channelName = channelID
	}

	created, err := o.repo.CreateSession(ctx, repository.CreateSessionInput{
		GuildID:     guildID,
		ChannelID:   channelID,
		ChannelName: channelName,
		StartedAt:   time.Now(),
	})
	if err != nil {
		slog.Error("failed to create session in repository", "error", err, "guild_id", guildID, "channel_id", channelID)
		return nil, err
	}
	slog.Info("created session", "session_id", created.ID, "guild_id", guildID, "channel_id", channelID)

	voice, err := o.connectVoice(guildID, channelID, time.Duration(o.cfg.ConnectTimeoutSec)*time.Second)
	if err != nil {
		// The session row stays in recording status with no chunks; stale
		// rows are identifiable by ended_at IS NULL.
		return nil, err
	}

	as := &activeSession{
		sessionID:   created.ID,
		guildID:     guildID,
		channelID:   channelID,
		channelName: channelName,
		startedAt:   created.StartedAt,
		voice:       voice,
		ready:       true,
		consented:   make(map[string]speaker),
		pending:     make(map[string]speaker),
		declined:    make(map[string]speaker),
		capturing:   make(map[string]struct{}),
	}

	o.solicitChannelConsent(ctx, as)

	voice.OnSpeakingStart(func(userID string) {
		go o.handleSpeakingStart(as, userID)
	})
	voice.OnDisconnect(func() {
		go o.handleTransportDrop(guildID)
	})
	return as, nil
}

func (o *Orchestrator) connectVoice(guildID, channelID string, timeout time.Duration) (discord.VoiceConnection, error) {
	voice, err := o.discord.JoinVoiceChannel(guildID, channelID)
	if err != nil {
		slog.Error("failed to join voice channel", "error", err, "guild_id", guildID, "channel_id", channelID)
		return nil, fmt.Errorf("%w: %s", ErrConnectTimeout, err)
	}
	readyCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := voice.WaitReady(readyCtx); err != nil {
		_ = voice.Disconnect()
		slog.Error("voice connection never became ready", "error", err, "guild_id", guildID, "channel_id", channelID)
		return nil, ErrConnectTimeout
	}
	slog.Info("joined voice channel", "guild_id", guildID, "channel_id", channelID)
	return voice, nil
}

func (o *Orchestrator) solicitChannelConsent(ctx context.Context, as *activeSession) {
	participants, err := o.discord.ListVoiceChannelParticipants(as.guildID, as.channelID)
	if err != nil {
		slog.Error("failed to list voice channel participants", "error", err, "session_id", as.sessionID)
		return
	}
	for _, p := range participants {
		if p.IsBot || p.UserID == o.botUserID {
			continue
		}
		o.solicitConsent(ctx, as, speaker{userID: p.UserID, userName: p.UserName, displayName: p.DisplayName})
	}
}

func (o *Orchestrator) Leave(guildID string) (*LeaveResult, error) {
	o.mu.Lock()
	as, ok := o.sessions[guildID]
	if !ok || !as.ready {
		o.mu.Unlock()
		return nil, nil
	}
	delete(o.sessions, guildID)
	o.mu.Unlock()
	return o.endSession(as)
}

// LeaveAny ends an arbitrary active session; used by the relay `leave`
// command, which expects at most one session to be active.
func (o *Orchestrator) LeaveAny() (*LeaveResult, error) {
	o.mu.Lock()
	var as *activeSession
	for guildID, candidate := range o.sessions {
		if candidate.ready {
			as = candidate
			delete(o.sessions, guildID)
			break
		}
	}
	o.mu.Unlock()
	if as == nil {
		return nil, nil
	}
	return o.endSession(as)
}

func (o *Orchestrator) endSession(as *activeSession) (*LeaveResult, error) {
	slog.Info("ending session", "session_id", as.sessionID, "guild_id", as.guildID)
	if err := as.voiceConn().Disconnect(); err != nil {
		slog.Error("voice disconnect failed", "error", err, "session_id", as.sessionID)
	}

	ctx := context.Background()
	chunkCount, err := o.repo.CountChunksBySession(ctx, as.sessionID)
	if err != nil {
		slog.Error("failed to count chunks", "error", err, "session_id", as.sessionID)
		as.mu.Lock()
		chunkCount = as.chunkCount
		as.mu.Unlock()
	}
	transcribedCount, err := o.repo.CountTranscribedBySession(ctx, as.sessionID)
	if err != nil {
		slog.Error("failed to count transcribed chunks", "error", err, "session_id", as.sessionID)
		transcribedCount = 0
	}

	endedAt := time.Now()
	if err := o.repo.CompleteSession(ctx, repository.CompleteSessionInput{
		SessionID:        as.sessionID,
		EndedAt:          endedAt,
		ChunkCount:       chunkCount,
		TranscribedCount: transcribedCount,
	}); err != nil {
		slog.Error("failed to complete session", "error", err, "session_id", as.sessionID)
	}

	elapsed := int64(endedAt.Sub(as.startedAt).Seconds())
	slog.Info("session ended", "session_id", as.sessionID, "chunks", chunkCount, "elapsed_seconds", elapsed)
	return &LeaveResult{SessionID: as.sessionID, ChunkCount: chunkCount, ElapsedSeconds: elapsed}, nil
}

// HandleVoiceStateUpdate keeps consent solicitation and the auto-stop rule in
// sync with channel membership.
func (o *Orchestrator) HandleVoiceStateUpdate(event discord.VoiceStateEvent) {
	o.mu.Lock()
	as, ok := o.sessions[event.GuildID]
	if !ok || !as.ready {
		o.mu.Unlock()
		return
	}
	channelID := as.channelID
	o.mu.Unlock()

	if event.AfterChannelID == channelID {
		if event.UserIsBot || event.UserID == o.botUserID {
			return
		}
		o.handleChannelJoin(as, event.UserID)
		return
	}
	if event.BeforeChannelID == channelID || event.BeforeChannelID == "" {
		o.maybeAutoStop(as)
	}
}

func (o *Orchestrator) handleChannelJoin(as *activeSession, userID string) {
	as.mu.Lock()
	_, known := as.consented[userID]
	if !known {
		_, known = as.pending[userID]
	}
	if !known {
		_, known = as.declined[userID]
	}
	as.mu.Unlock()
	if known {
		return
	}

	sp := speaker{userID: userID, userName: userID, displayName: userID}
	participants, err := o.discord.ListVoiceChannelParticipants(as.guildID, as.channelID)
	if err == nil {
		for _, p := range participants {
			if p.UserID == userID {
				sp.userName = p.UserName
				sp.displayName = p.DisplayName
				break
			}
		}
	}
	o.solicitConsent(context.Background(), as, sp)
}

func (o *Orchestrator) maybeAutoStop(as *activeSession) {
	participants, err := o.discord.ListVoiceChannelParticipants(as.guildID, as.channelID)
	if err != nil {
		slog.Error("failed to list participants for auto-stop check", "error", err, "session_id", as.sessionID)
		return
	}
	for _, p := range participants {
		if !p.IsBot && p.UserID != o.botUserID {
			return
		}
	}

	slog.Info("channel is empty; auto-stopping session", "session_id", as.sessionID, "guild_id", as.guildID)
	result, err := o.Leave(as.guildID)
	if err != nil || result == nil {
		return
	}
	// One-time grants die with the session so the next one re-solicits.
	if _, err := o.repo.RevokeOneTimeConsentsForSession(context.Background(), as.sessionID, time.Now()); err != nil {
		slog.Error("failed to revoke one-time consents", "error", err, "session_id", as.sessionID)
	}
}

func (o *Orchestrator) handleTransportDrop(guildID string) {
	o.mu.Lock()
	as, ok := o.sessions[guildID]
	if !ok || !as.ready {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	slog.Warn("voice transport dropped; attempting reconnect", "session_id", as.sessionID, "guild_id", guildID)
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		voice, err := o.connectVoice(guildID, as.channelID, reconnectTimeout)
		if err != nil {
			slog.Warn("reconnect attempt failed", "error", err, "session_id", as.sessionID, "attempt", attempt)
			continue
		}

		o.mu.Lock()
		if o.sessions[guildID] != as {
			// Session was ended while we were reconnecting.
			o.mu.Unlock()
			_ = voice.Disconnect()
			return
		}
		as.mu.Lock()
		as.voice = voice
		as.mu.Unlock()
		o.mu.Unlock()

		voice.OnSpeakingStart(func(userID string) {
			go o.handleSpeakingStart(as, userID)
		})
		voice.OnDisconnect(func() {
			go o.handleTransportDrop(guildID)
		})
		slog.Info("voice transport reconnected", "session_id", as.sessionID, "attempt", attempt)
		return
	}

	slog.Error("reconnect attempts exhausted; ending session", "session_id", as.sessionID, "guild_id", guildID)
	if _, err := o.Leave(guildID); err != nil {
		slog.Error("failed to end session after transport loss", "error", err, "session_id", as.sessionID)
	}
}

func (o *Orchestrator) Status() []StatusEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	entries := make([]StatusEntry, 0, len(o.sessions))
	for _, as := range o.sessions {
		if !as.ready {
			continue
		}
		as.mu.Lock()
		chunkCount := as.chunkCount
		as.mu.Unlock()
		entries = append(entries, StatusEntry{
			SessionID:      as.sessionID,
			GuildID:        as.guildID,
			ChannelID:      as.channelID,
			ChunkCount:     chunkCount,
			ElapsedSeconds: int64(time.Since(as.startedAt).Seconds()),
		})
	}
	return entries
}

// Shutdown force-leaves every guild; called on controlled termination.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	guildIDs := make([]string, 0, len(o.sessions))
	for guildID := range o.sessions {
		guildIDs = append(guildIDs, guildID)
	}
	o.mu.Unlock()
	for _, guildID := range guildIDs {
		if _, err := o.Leave(guildID); err != nil {
			slog.Error("failed to leave session during shutdown", "error", err, "guild_id", guildID)
		}
	}
}

func (o *Orchestrator) isRecording(guildID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	as, ok := o.sessions[guildID]
	return ok && as.ready
}
