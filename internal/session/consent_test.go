package session

import (
	"testing"

	"github.com/pinebranchlab/soundbooth/internal/discord"
	"github.com/pinebranchlab/soundbooth/internal/repository"
)

func TestEnglishReplyClassifier(t *testing.T) {
	tests := []struct {
		text string
		want ConsentOutcome
	}{
		{"yes", OutcomeAffirm},
		{"Y", OutcomeAffirm},
		{"  OK  ", OutcomeAffirm},
		{"agree", OutcomeAffirm},
		{"always", OutcomeAffirmPermanent},
		{"Permanently", OutcomeAffirmPermanent},
		{"no", OutcomeDecline},
		{"N", OutcomeDecline},
		{"deny", OutcomeDecline},
		{"maybe", OutcomeUnrecognized},
		{"", OutcomeUnrecognized},
		{"yes please", OutcomeUnrecognized},
	}
	c := NewEnglishReplyClassifier()
	for _, tt := range tests {
		if got := c.Classify(tt.text); got != tt.want {
			t.Errorf("Classify(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func joinWithParticipant(t *testing.T, repo *fakeRepository, dc *fakeDiscordClient, userID string) (*Orchestrator, *activeSession) {
	t.Helper()
	dc.participants["channel-1"] = []discord.VoiceParticipant{
		{UserID: userID, UserName: userID, DisplayName: userID},
	}
	o := newTestOrchestrator(t.TempDir(), repo, dc, &fakeTranscoder{})
	as := mustJoin(t, o, "guild-1", "channel-1")
	return o, as
}

func TestJoinSolicitsConsentFromParticipants(t *testing.T) {
	repo := newFakeRepository()
	dc := newFakeDiscordClient()
	dc.participants["channel-1"] = []discord.VoiceParticipant{
		{UserID: "user-1", UserName: "alice"},
		{UserID: "some-bot", UserName: "helper", IsBot: true},
		{UserID: "bot-self", UserName: "recorder"},
	}
	o := newTestOrchestrator(t.TempDir(), repo, dc, &fakeTranscoder{})
	as := mustJoin(t, o, "guild-1", "channel-1")

	if dc.dmCount() != 1 || dc.dmCalls[0] != "user-1" {
		t.Fatalf("consent DMs sent to %v, want only user-1", dc.dmCalls)
	}
	as.mu.Lock()
	_, pending := as.pending["user-1"]
	as.mu.Unlock()
	if !pending {
		t.Fatal("user-1 should be pending consent")
	}
}

func TestPermanentConsentSkipsSolicitation(t *testing.T) {
	repo := newFakeRepository()
	repo.permanentConsent["user-perm"] = true
	dc := newFakeDiscordClient()
	dc.participants["channel-1"] = []discord.VoiceParticipant{
		{UserID: "user-perm", UserName: "bob"},
		{UserID: "user-new", UserName: "carol"},
	}
	o := newTestOrchestrator(t.TempDir(), repo, dc, &fakeTranscoder{})
	as := mustJoin(t, o, "guild-1", "channel-1")

	as.mu.Lock()
	_, consented := as.consented["user-perm"]
	_, pending := as.pending["user-new"]
	as.mu.Unlock()
	if !consented {
		t.Fatal("permanent grant holder should be consented without a prompt")
	}
	if !pending {
		t.Fatal("user without a grant should be pending")
	}
	if dc.dmCount() != 1 || dc.dmCalls[0] != "user-new" {
		t.Fatalf("consent DMs sent to %v, want only user-new", dc.dmCalls)
	}
}

func TestAffirmReplyGrantsOneTimeConsent(t *testing.T) {
	repo := newFakeRepository()
	dc := newFakeDiscordClient()
	o, as := joinWithParticipant(t, repo, dc, "user-1")

	o.HandleMessage(discord.MessageEvent{UserID: "user-1", UserName: "alice", Content: "yes"})

	as.mu.Lock()
	_, consented := as.consented["user-1"]
	as.mu.Unlock()
	if !consented {
		t.Fatal("user should be consented after affirming")
	}
	if len(repo.grants) != 1 {
		t.Fatalf("grants persisted = %d, want 1", len(repo.grants))
	}
	g := repo.grants[0]
	if g.Type != repository.ConsentTypeOneTime {
		t.Fatalf("grant type = %s, want one_time", g.Type)
	}
	if g.SessionID == nil || *g.SessionID != as.sessionID {
		t.Fatal("one-time grant should be scoped to the session")
	}
	if g.GuildID == nil || g.ChannelID == nil {
		t.Fatal("one-time grant should record guild and channel scope")
	}
}

func TestPermanentReplyGrantsGuildScopedConsent(t *testing.T) {
	repo := newFakeRepository()
	dc := newFakeDiscordClient()
	o, as := joinWithParticipant(t, repo, dc, "user-1")

	o.HandleMessage(discord.MessageEvent{UserID: "user-1", Content: "always"})

	as.mu.Lock()
	_, consented := as.consented["user-1"]
	as.mu.Unlock()
	if !consented {
		t.Fatal("user should be consented after permanent grant")
	}
	if len(repo.grants) != 1 {
		t.Fatalf("grants persisted = %d, want 1", len(repo.grants))
	}
	g := repo.grants[0]
	if g.Type != repository.ConsentTypePermanent {
		t.Fatalf("grant type = %s, want permanent", g.Type)
	}
	if g.GuildID == nil || *g.GuildID != "guild-1" {
		t.Fatal("permanent grant should be scoped to the guild")
	}
	if g.SessionID != nil || g.ChannelID != nil {
		t.Fatal("permanent grant should not carry session or channel scope")
	}
}

func TestDeclineThenAffirm(t *testing.T) {
	repo := newFakeRepository()
	dc := newFakeDiscordClient()
	o, as := joinWithParticipant(t, repo, dc, "user-1")

	o.HandleMessage(discord.MessageEvent{UserID: "user-1", Content: "no"})
	as.mu.Lock()
	_, declined := as.declined["user-1"]
	as.mu.Unlock()
	if !declined {
		t.Fatal("user should be in declined set after refusing")
	}

	// A declined user may still change their mind during the session.
	o.HandleMessage(discord.MessageEvent{UserID: "user-1", Content: "yes"})
	as.mu.Lock()
	_, consented := as.consented["user-1"]
	as.mu.Unlock()
	if !consented {
		t.Fatal("user should be consented after changing their mind")
	}
}

func TestUnrecognizedReplyRepromptsAndStaysPending(t *testing.T) {
	repo := newFakeRepository()
	dc := newFakeDiscordClient()
	o, as := joinWithParticipant(t, repo, dc, "user-1")
	before := dc.dmCount()

	o.HandleMessage(discord.MessageEvent{UserID: "user-1", Content: "what is this"})

	as.mu.Lock()
	_, pending := as.pending["user-1"]
	as.mu.Unlock()
	if !pending {
		t.Fatal("user should remain pending after unrecognized reply")
	}
	if len(repo.grants) != 0 {
		t.Fatal("no grant should be persisted for an unrecognized reply")
	}
	if dc.dmCount() != before+1 {
		t.Fatal("instructions should be re-sent on unrecognized reply")
	}
}

func TestReplyFromStrangerIsIgnored(t *testing.T) {
	repo := newFakeRepository()
	dc := newFakeDiscordClient()
	o, _ := joinWithParticipant(t, repo, dc, "user-1")
	before := dc.dmCount()

	o.HandleMessage(discord.MessageEvent{UserID: "user-outsider", Content: "yes"})

	if len(repo.grants) != 0 {
		t.Fatal("grant persisted for a user with no open consent question")
	}
	if dc.dmCount() != before {
		t.Fatal("no reply should be sent to a user with no open consent question")
	}
}

func TestRevokeKeywordDropsConsent(t *testing.T) {
	repo := newFakeRepository()
	dc := newFakeDiscordClient()
	o, as := joinWithParticipant(t, repo, dc, "user-1")
	o.HandleMessage(discord.MessageEvent{UserID: "user-1", Content: "yes"})

	o.HandleMessage(discord.MessageEvent{UserID: "user-1", Content: "REVOKE"})

	if len(repo.revokedUsers) != 1 || repo.revokedUsers[0] != "user-1" {
		t.Fatalf("revoked users = %v, want [user-1]", repo.revokedUsers)
	}
	as.mu.Lock()
	_, consented := as.consented["user-1"]
	_, declined := as.declined["user-1"]
	as.mu.Unlock()
	if consented {
		t.Fatal("user should no longer be consented after revoking")
	}
	if !declined {
		t.Fatal("revoked user should be treated as declined for the rest of the session")
	}
}

func TestSessionEndRevokesOnlyOneTimeGrants(t *testing.T) {
	repo := newFakeRepository()
	dc := newFakeDiscordClient()
	dc.participants["channel-1"] = []discord.VoiceParticipant{
		{UserID: "user-once", UserName: "alice"},
		{UserID: "user-forever", UserName: "bob"},
	}
	o := newTestOrchestrator(t.TempDir(), repo, dc, &fakeTranscoder{})
	as := mustJoin(t, o, "guild-1", "channel-1")

	o.HandleMessage(discord.MessageEvent{UserID: "user-once", Content: "yes"})
	o.HandleMessage(discord.MessageEvent{UserID: "user-forever", Content: "always"})

	dc.mu.Lock()
	dc.participants["channel-1"] = nil
	dc.mu.Unlock()
	o.HandleVoiceStateUpdate(discord.VoiceStateEvent{
		GuildID:         "guild-1",
		UserID:          "user-once",
		BeforeChannelID: "channel-1",
	})

	if o.isRecording("guild-1") {
		t.Fatal("session should have auto-stopped")
	}
	for _, g := range repo.grants {
		switch {
		case g.Type == repository.ConsentTypeOneTime && g.SessionID != nil && *g.SessionID == as.sessionID:
			if g.IsActive {
				t.Fatal("one-time grant should be revoked when its session ends")
			}
		case g.Type == repository.ConsentTypePermanent:
			if !g.IsActive {
				t.Fatal("permanent grant must survive session end")
			}
		}
	}
}
