package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/pinebranchlab/soundbooth/internal/discord"
)

type Client struct {
	session   *discordgo.Session
	token     string
	botUserID string
}

func NewClient(token string) discordpkg.Client {
	return &Client{
		token: token,
	}
}

func (c *Client) Connect(ctx context.Context) error {
	_ = ctx
	s, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return err
	}
	c.session = s
	s.Identify.Intents = discordgo.MakeIntent(
		discordgo.IntentsGuildVoiceStates |
			discordgo.IntentsGuildMessages |
			discordgo.IntentsDirectMessages |
			discordgo.IntentsMessageContent)
	s.State.TrackVoice = true
	if err := s.Open(); err != nil {
		return err
	}
	userID, err := c.GetBotUserID()
	if err != nil {
		return err
	}
	c.botUserID = userID
	return nil
}

func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func (c *Client) Run() error {
	select {}
}

func (c *Client) GetBotUserID() (string, error) {
	if c.botUserID != "" {
		return c.botUserID, nil
	}
	if c.session == nil {
		return "", fmt.Errorf("discord session is not initialized")
	}
	if c.session.State != nil && c.session.State.User != nil && c.session.State.User.ID != "" {
		c.botUserID = c.session.State.User.ID
		return c.botUserID, nil
	}
	u, err := c.session.User("@me")
	if err != nil {
		return "", err
	}
	c.botUserID = u.ID
	return c.botUserID, nil
}

func (c *Client) JoinVoiceChannel(guildID, channelID string) (discordpkg.VoiceConnection, error) {
	vc, err := c.session.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		return nil, err
	}
	conn := &voiceConnection{
		vc:         vc,
		ssrcToUser: make(map[uint32]string),
		bursts:     make(map[string]*burstReader),
	}
	conn.start()
	return conn, nil
}

func (c *Client) SendChannelMessage(channelID, content string) error {
	_, err := c.session.ChannelMessageSend(channelID, content)
	return err
}

func (c *Client) SendDirectMessage(userID, content string) error {
	ch, err := c.session.UserChannelCreate(userID)
	if err != nil {
		return err
	}
	_, err = c.session.ChannelMessageSend(ch.ID, content)
	return err
}

func (c *Client) RegisterVoiceStateUpdateHandler(handler func(discordpkg.VoiceStateEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		if vs == nil {
			return
		}
		beforeChannelID := ""
		if vs.BeforeUpdate != nil {
			beforeChannelID = vs.BeforeUpdate.ChannelID
		}
		afterChannelID := vs.ChannelID
		if beforeChannelID == afterChannelID && beforeChannelID != "" {
			return
		}
		if vs.GuildID == "" || vs.UserID == "" {
			return
		}
		handler(discordpkg.VoiceStateEvent{
			GuildID:         vs.GuildID,
			UserID:          vs.UserID,
			UserIsBot:       c.resolveUserIsBot(vs.GuildID, vs.UserID, vs.VoiceState),
			BeforeChannelID: beforeChannelID,
			AfterChannelID:  afterChannelID,
		})
	})
}

func (c *Client) RegisterMessageHandler(handler func(discordpkg.MessageEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m == nil || m.Author == nil || m.Author.ID == "" {
			return
		}
		if m.Author.ID == c.botUserID || m.Author.Bot {
			return
		}
		handler(discordpkg.MessageEvent{
			GuildID:   m.GuildID,
			ChannelID: m.ChannelID,
			UserID:    m.Author.ID,
			UserName:  m.Author.Username,
			Content:   m.Content,
		})
	})
}

func (c *Client) ListVoiceChannelParticipants(guildID, channelID string) ([]discordpkg.VoiceParticipant, error) {
	if c.session == nil || c.session.State == nil {
		return nil, nil
	}
	guild, err := c.session.State.Guild(guildID)
	if err != nil || guild == nil {
		return nil, nil
	}
	participants := make([]discordpkg.VoiceParticipant, 0)
	seen := make(map[string]struct{})
	for _, state := range guild.VoiceStates {
		if state == nil || state.ChannelID != channelID || state.UserID == "" {
			continue
		}
		if _, exists := seen[state.UserID]; exists {
			continue
		}
		seen[state.UserID] = struct{}{}
		participants = append(participants, c.resolveParticipant(guildID, state))
	}
	return participants, nil
}

func (c *Client) GetChannelName(channelID string) (string, error) {
	if c.session == nil {
		return channelID, nil
	}
	if c.session.State != nil {
		channel, err := c.session.State.Channel(channelID)
		if err == nil && channel != nil && channel.Name != "" {
			return channel.Name, nil
		}
	}
	channel, err := c.session.Channel(channelID)
	if err != nil || channel == nil || channel.Name == "" {
		return channelID, nil
	}
	return channel.Name, nil
}

func (c *Client) ResolveGuildIDByChannel(channelID string) (string, error) {
	if c.session == nil {
		return "", fmt.Errorf("discord session is not initialized")
	}
	if c.session.State != nil {
		channel, err := c.session.State.Channel(channelID)
		if err == nil && channel != nil && channel.GuildID != "" {
			return channel.GuildID, nil
		}
	}
	channel, err := c.session.Channel(channelID)
	if err != nil {
		return "", err
	}
	if channel == nil || channel.GuildID == "" {
		return "", fmt.Errorf("channel %s has no guild", channelID)
	}
	return channel.GuildID, nil
}

func (c *Client) resolveParticipant(guildID string, state *discordgo.VoiceState) discordpkg.VoiceParticipant {
	p := discordpkg.VoiceParticipant{
		UserID:      state.UserID,
		UserName:    state.UserID,
		DisplayName: state.UserID,
		IsBot:       c.resolveUserIsBot(guildID, state.UserID, state),
	}
	member := c.resolveGuildMember(guildID, state.UserID)
	if member != nil {
		if member.Nick != "" {
			p.DisplayName = member.Nick
		}
		if member.User != nil {
			if member.User.Username != "" {
				p.UserName = member.User.Username
			}
			if p.DisplayName == state.UserID {
				p.DisplayName = preferredDiscordName(member.User.GlobalName, member.User.Username, state.UserID)
			}
		}
	}
	return p
}

func (c *Client) resolveUserIsBot(guildID, userID string, state *discordgo.VoiceState) bool {
	if state != nil && state.Member != nil && state.Member.User != nil {
		return state.Member.User.Bot
	}
	if c.session != nil && c.session.State != nil {
		if c.session.State.User != nil && c.session.State.User.ID == userID {
			return true
		}
		member, err := c.session.State.Member(guildID, userID)
		if err == nil && member != nil && member.User != nil {
			return member.User.Bot
		}
	}
	u, err := c.session.User(userID)
	if err != nil {
		return false
	}
	return u.Bot
}

func (c *Client) resolveGuildMember(guildID, userID string) *discordgo.Member {
	if c.session == nil {
		return nil
	}
	if c.session.State != nil {
		member, err := c.session.State.Member(guildID, userID)
		if err == nil && member != nil {
			return member
		}
	}
	member, err := c.session.GuildMember(guildID, userID)
	if err != nil {
		return nil
	}
	return member
}

func preferredDiscordName(globalName, username, fallback string) string {
	if globalName != "" {
		return globalName
	}
	if username != "" {
		return username
	}
	return fallback
}

const voiceReadyPollInterval = 100 * time.Millisecond

type voiceConnection struct {
	vc *discordgo.VoiceConnection

	mu           sync.Mutex
	ssrcToUser   map[uint32]string
	bursts       map[string]*burstReader
	speakingFn   func(userID string)
	disconnectFn func()
	closed       bool
}

func (v *voiceConnection) start() {
	v.vc.AddHandler(func(vc *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
		if vs == nil || vs.UserID == "" {
			return
		}
		v.mu.Lock()
		if vs.Speaking {
			v.ssrcToUser[uint32(vs.SSRC)] = vs.UserID
		}
		speakingFn := v.speakingFn
		v.mu.Unlock()
		if vs.Speaking && speakingFn != nil {
			speakingFn(vs.UserID)
		}
	})
	go v.receiveLoop()
}

// receiveLoop demuxes incoming opus packets to the per-user burst that is
// currently open; packets for users with no open burst are dropped.
func (v *voiceConnection) receiveLoop() {
	if v.vc.OpusRecv == nil {
		return
	}
	for p := range v.vc.OpusRecv {
		if p == nil || len(p.Opus) == 0 {
			continue
		}
		v.mu.Lock()
		userID := v.ssrcToUser[p.SSRC]
		br := v.bursts[userID]
		v.mu.Unlock()
		if br == nil {
			continue
		}
		br.deliver(p.Opus)
	}

	// OpusRecv closes when the underlying UDP connection dies or is
	// deliberately torn down. Every open burst ends normally either way.
	v.mu.Lock()
	wasClosed := v.closed
	v.closed = true
	disconnectFn := v.disconnectFn
	for userID, br := range v.bursts {
		br.end()
		delete(v.bursts, userID)
	}
	v.mu.Unlock()
	if !wasClosed && disconnectFn != nil {
		disconnectFn()
	}
}

func (v *voiceConnection) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(voiceReadyPollInterval)
	defer ticker.Stop()
	for {
		if v.vc.Ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (v *voiceConnection) OnSpeakingStart(handler func(userID string)) {
	v.mu.Lock()
	v.speakingFn = handler
	v.mu.Unlock()
}

func (v *voiceConnection) OnDisconnect(handler func()) {
	v.mu.Lock()
	v.disconnectFn = handler
	v.mu.Unlock()
}

func (v *voiceConnection) OpenBurst(userID string, silenceGap time.Duration) (discordpkg.BurstReader, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, errors.New("voice connection is closed")
	}
	if _, exists := v.bursts[userID]; exists {
		return nil, fmt.Errorf("burst already open for user %s", userID)
	}
	br := &burstReader{
		conn:       v,
		userID:     userID,
		silenceGap: silenceGap,
		frames:     make(chan []byte, 64),
		done:       make(chan struct{}),
	}
	v.bursts[userID] = br
	return br, nil
}

func (v *voiceConnection) Disconnect() error {
	v.mu.Lock()
	v.closed = true
	for userID, br := range v.bursts {
		br.end()
		delete(v.bursts, userID)
	}
	v.mu.Unlock()
	if v.vc == nil {
		return nil
	}
	return v.vc.Disconnect()
}

func (v *voiceConnection) removeBurst(userID string, br *burstReader) {
	v.mu.Lock()
	if v.bursts[userID] == br {
		delete(v.bursts, userID)
	}
	v.mu.Unlock()
}

type burstReader struct {
	conn       *voiceConnection
	userID     string
	silenceGap time.Duration
	frames     chan []byte

	endOnce sync.Once
	done    chan struct{}
}

func (b *burstReader) deliver(opus []byte) {
	frame := make([]byte, len(opus))
	copy(frame, opus)
	select {
	case b.frames <- frame:
	case <-b.done:
	default:
		// Reader fell behind; dropping the frame beats blocking the demux loop.
	}
}

func (b *burstReader) ReadFrame() ([]byte, error) {
	timer := time.NewTimer(b.silenceGap)
	defer timer.Stop()
	select {
	case frame := <-b.frames:
		return frame, nil
	case <-b.done:
		// Drain frames delivered before the burst ended.
		select {
		case frame := <-b.frames:
			return frame, nil
		default:
			return nil, io.EOF
		}
	case <-timer.C:
		b.Close()
		return nil, io.EOF
	}
}

func (b *burstReader) end() {
	b.endOnce.Do(func() {
		close(b.done)
	})
}

func (b *burstReader) Close() error {
	b.conn.removeBurst(b.userID, b)
	b.end()
	return nil
}
