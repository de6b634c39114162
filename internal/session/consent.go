package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pinebranchlab/soundbooth/internal/discord"
	"github.com/pinebranchlab/soundbooth/internal/repository"
)

type ConsentOutcome int

const (
	OutcomeUnrecognized ConsentOutcome = iota
	OutcomeAffirm
	OutcomeAffirmPermanent
	OutcomeDecline
)

// ReplyClassifier maps a free-text consent reply to an outcome, so wording
// and locale can change without touching the state machine.
type ReplyClassifier interface {
	Classify(text string) ConsentOutcome
}

type EnglishReplyClassifier struct{}

func NewEnglishReplyClassifier() ReplyClassifier {
	return &EnglishReplyClassifier{}
}

func (c *EnglishReplyClassifier) Classify(text string) ConsentOutcome {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "y", "ok", "accept", "agree":
		return OutcomeAffirm
	case "always", "permanent", "permanently":
		return OutcomeAffirmPermanent
	case "no", "n", "decline", "deny":
		return OutcomeDecline
	default:
		return OutcomeUnrecognized
	}
}

func (o *Orchestrator) solicitConsent(ctx context.Context, as *activeSession, sp speaker) {
	hasPermanent, err := o.repo.HasActivePermanentConsent(ctx, sp.userID, as.guildID)
	if err != nil {
		slog.Error("failed to look up permanent consent", "error", err, "session_id", as.sessionID, "user_id", sp.userID)
		hasPermanent = false
	}

	as.mu.Lock()
	if hasPermanent {
		as.consented[sp.userID] = sp
		as.mu.Unlock()
		slog.Info("user holds permanent consent", "session_id", as.sessionID, "user_id", sp.userID)
		return
	}
	as.pending[sp.userID] = sp
	as.mu.Unlock()

	if err := o.discord.SendDirectMessage(sp.userID, consentRequestMessage(as.channelName)); err != nil {
		slog.Error("failed to send consent request", "error", err, "session_id", as.sessionID, "user_id", sp.userID)
	}
}

// HandleMessage routes free-text replies from users with an open consent
// question, and the revoke keyword from anyone.
func (o *Orchestrator) HandleMessage(event discord.MessageEvent) {
	if strings.EqualFold(strings.TrimSpace(event.Content), "revoke") {
		o.RevokeConsent(event.UserID)
		if err := o.discord.SendDirectMessage(event.UserID, messageConsentRevoked); err != nil {
			slog.Error("failed to send revoke acknowledgement", "error", err, "user_id", event.UserID)
		}
		return
	}

	as, sp := o.findConsentSession(event.UserID)
	if as == nil {
		return
	}
	if sp.userName == sp.userID && event.UserName != "" {
		sp.userName = event.UserName
	}
	o.handleConsentReply(as, sp, event.Content)
}

// findConsentSession locates the active session in which the user still owes
// a consent answer (pending, or declined earlier and may change their mind).
func (o *Orchestrator) findConsentSession(userID string) (*activeSession, speaker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, as := range o.sessions {
		if !as.ready {
			continue
		}
		as.mu.Lock()
		sp, ok := as.pending[userID]
		if !ok {
			sp, ok = as.declined[userID]
		}
		as.mu.Unlock()
		if ok {
			return as, sp
		}
	}
	return nil, speaker{}
}

func (o *Orchestrator) handleConsentReply(as *activeSession, sp speaker, text string) {
	ctx := context.Background()
	switch o.classifier.Classify(text) {
	case OutcomeAffirm:
		if _, err := o.repo.InsertConsentGrant(ctx, repository.InsertConsentGrantInput{
			UserID:    sp.userID,
			UserName:  sp.userName,
			Type:      repository.ConsentTypeOneTime,
			GuildID:   as.guildID,
			ChannelID: as.channelID,
			SessionID: as.sessionID,
		}); err != nil {
			slog.Error("failed to persist one-time consent", "error", err, "session_id", as.sessionID, "user_id", sp.userID)
			return
		}
		o.markConsented(as, sp)
		o.sendConsentAck(sp.userID, messageConsentGrantedOnce)
	case OutcomeAffirmPermanent:
		// Permanent grants bind to the guild only and survive this session.
		if _, err := o.repo.InsertConsentGrant(ctx, repository.InsertConsentGrantInput{
			UserID:   sp.userID,
			UserName: sp.userName,
			Type:     repository.ConsentTypePermanent,
			GuildID:  as.guildID,
		}); err != nil {
			slog.Error("failed to persist permanent consent", "error", err, "session_id", as.sessionID, "user_id", sp.userID)
			return
		}
		o.markConsented(as, sp)
		o.sendConsentAck(sp.userID, messageConsentGrantedPermanent)
	case OutcomeDecline:
		as.mu.Lock()
		delete(as.pending, sp.userID)
		as.declined[sp.userID] = sp
		as.mu.Unlock()
		slog.Info("user declined recording consent", "session_id", as.sessionID, "user_id", sp.userID)
		o.sendConsentAck(sp.userID, messageConsentDeclined)
	case OutcomeUnrecognized:
		o.sendConsentAck(sp.userID, consentRequestMessage(as.channelName))
	}
}

func (o *Orchestrator) markConsented(as *activeSession, sp speaker) {
	as.mu.Lock()
	delete(as.pending, sp.userID)
	delete(as.declined, sp.userID)
	as.consented[sp.userID] = sp
	as.mu.Unlock()
	slog.Info("user granted recording consent", "session_id", as.sessionID, "user_id", sp.userID)
}

func (o *Orchestrator) sendConsentAck(userID, content string) {
	if err := o.discord.SendDirectMessage(userID, content); err != nil {
		slog.Error("failed to send consent reply", "error", err, "user_id", userID)
	}
}

// RevokeConsent deactivates every active grant the user holds and drops them
// from the consented set of any running session. Chunks already captured are
// unaffected.
func (o *Orchestrator) RevokeConsent(userID string) {
	revoked, err := o.repo.RevokeConsentsForUser(context.Background(), userID, time.Now())
	if err != nil {
		slog.Error("failed to revoke consents", "error", err, "user_id", userID)
		return
	}
	o.mu.Lock()
	for _, as := range o.sessions {
		if !as.ready {
			continue
		}
		as.mu.Lock()
		if sp, ok := as.consented[userID]; ok {
			delete(as.consented, userID)
			as.declined[userID] = sp
		}
		as.mu.Unlock()
	}
	o.mu.Unlock()
	slog.Info("consent revoked", "user_id", userID, "grants_revoked", revoked)
}
