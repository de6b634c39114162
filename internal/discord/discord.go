package discord

import (
	"context"
	"time"
)

type VoiceStateEvent struct {
	GuildID         string
	UserID          string
	UserIsBot       bool
	BeforeChannelID string
	AfterChannelID  string
}

type MessageEvent struct {
	GuildID   string // empty for direct messages
	ChannelID string
	UserID    string
	UserName  string
	Content   string
}

type VoiceParticipant struct {
	UserID      string
	UserName    string
	DisplayName string
	IsBot       bool
}

type Client interface {
	Connect(ctx context.Context) error
	Close() error
	Run() error
	GetBotUserID() (string, error)
	JoinVoiceChannel(guildID, channelID string) (VoiceConnection, error)
	SendChannelMessage(channelID, content string) error
	SendDirectMessage(userID, content string) error
	RegisterVoiceStateUpdateHandler(handler func(VoiceStateEvent))
	RegisterMessageHandler(handler func(MessageEvent))
	ListVoiceChannelParticipants(guildID, channelID string) ([]VoiceParticipant, error)
	GetChannelName(channelID string) (string, error)
	ResolveGuildIDByChannel(channelID string) (string, error)
}

// VoiceConnection is the speaking burst source: one OpenBurst subscription
// covers exactly one speaking burst, delimited by the silence gap.
type VoiceConnection interface {
	WaitReady(ctx context.Context) error
	OnSpeakingStart(handler func(userID string))
	OnDisconnect(handler func())
	OpenBurst(userID string, silenceGap time.Duration) (BurstReader, error)
	Disconnect() error
}

// BurstReader yields the encoded opus frames of one burst. ReadFrame returns
// io.EOF after the silence gap elapses with no frame, or when the owning
// connection is destroyed.
type BurstReader interface {
	ReadFrame() ([]byte, error)
	Close() error
}
