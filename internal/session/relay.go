package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pinebranchlab/soundbooth/internal/discord"
	"github.com/pinebranchlab/soundbooth/internal/relay"
)

const errNoActiveRecording = "No active recording"

// RelayAdapter translates the control plane's opaque command strings into
// orchestrator calls. Commands are handled one at a time; a command claimed
// from the mailbox supersedes any stale result.
type RelayAdapter struct {
	orch     *Orchestrator
	discord  discord.Client
	mailbox  relay.Mailbox
	interval time.Duration
}

func NewRelayAdapter(orch *Orchestrator, dc discord.Client, mailbox relay.Mailbox, interval time.Duration) *RelayAdapter {
	return &RelayAdapter{
		orch:     orch,
		discord:  dc,
		mailbox:  mailbox,
		interval: interval,
	}
}

func (a *RelayAdapter) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	slog.Info("relay poll loop started", "interval", a.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("relay poll loop stopped")
			return
		case <-ticker.C:
			a.pollOnce(ctx)
		}
	}
}

func (a *RelayAdapter) pollOnce(ctx context.Context) {
	cmd, err := a.mailbox.Poll(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("relay poll failed", "error", err)
		}
		return
	}
	if cmd == nil {
		return
	}
	slog.Info("relay command received", "command_id", cmd.ID, "command", cmd.Text)
	payload := a.handleCommand(ctx, cmd.Text)
	if err := a.mailbox.PublishResult(ctx, cmd.ID, payload); err != nil {
		slog.Error("failed to publish relay result", "error", err, "command_id", cmd.ID)
	}
}

type joinResultPayload struct {
	Success     bool   `json:"success"`
	SessionID   string `json:"session_id"`
	ChannelName string `json:"channel_name"`
}

type leaveResultPayload struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	Chunks    int    `json:"chunks"`
	Duration  int64  `json:"duration"`
}

type statusResultPayload struct {
	Success  bool             `json:"success"`
	Sessions []statusSnapshot `json:"sessions"`
}

type statusSnapshot struct {
	SessionID      string `json:"session_id"`
	GuildID        string `json:"guild_id"`
	ChannelID      string `json:"channel_id"`
	Chunks         int    `json:"chunks"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
}

type errorResultPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (a *RelayAdapter) handleCommand(ctx context.Context, text string) []byte {
	command, arg, _ := strings.Cut(strings.TrimSpace(text), ":")
	switch command {
	case "join":
		return a.handleJoin(ctx, arg)
	case "leave":
		return a.handleLeave(arg)
	case "status":
		return a.handleStatus()
	default:
		return marshalPayload(errorResultPayload{Error: fmt.Sprintf("Unknown command: %s", command)})
	}
}

func (a *RelayAdapter) handleJoin(ctx context.Context, channelID string) []byte {
	if channelID == "" {
		return marshalPayload(errorResultPayload{Error: "join requires a channel id"})
	}
	guildID, err := a.discord.ResolveGuildIDByChannel(channelID)
	if err != nil {
		return marshalPayload(errorResultPayload{Error: err.Error()})
	}
	result, err := a.orch.Join(ctx, guildID, channelID)
	if err != nil {
		return marshalPayload(errorResultPayload{Error: err.Error()})
	}
	return marshalPayload(joinResultPayload{
		Success:     true,
		SessionID:   result.SessionID,
		ChannelName: result.ChannelName,
	})
}

func (a *RelayAdapter) handleLeave(guildID string) []byte {
	var (
		result *LeaveResult
		err    error
	)
	if guildID == "" {
		result, err = a.orch.LeaveAny()
	} else {
		result, err = a.orch.Leave(guildID)
	}
	if err != nil {
		return marshalPayload(errorResultPayload{Error: err.Error()})
	}
	if result == nil {
		return marshalPayload(errorResultPayload{Error: errNoActiveRecording})
	}
	return marshalPayload(leaveResultPayload{
		Success:   true,
		SessionID: result.SessionID,
		Chunks:    result.ChunkCount,
		Duration:  result.ElapsedSeconds,
	})
}

func (a *RelayAdapter) handleStatus() []byte {
	entries := a.orch.Status()
	snapshots := make([]statusSnapshot, 0, len(entries))
	for _, e := range entries {
		snapshots = append(snapshots, statusSnapshot{
			SessionID:      e.SessionID,
			GuildID:        e.GuildID,
			ChannelID:      e.ChannelID,
			Chunks:         e.ChunkCount,
			ElapsedSeconds: e.ElapsedSeconds,
		})
	}
	return marshalPayload(statusResultPayload{Success: true, Sessions: snapshots})
}

func marshalPayload(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"success":false,"error":"failed to encode result"}`)
	}
	return b
}
