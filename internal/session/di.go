package session

import (
	"time"

	"github.com/pinebranchlab/soundbooth/internal/audio"
	"github.com/pinebranchlab/soundbooth/internal/config"
	"github.com/pinebranchlab/soundbooth/internal/discord"
	"github.com/pinebranchlab/soundbooth/internal/relay"
	"github.com/pinebranchlab/soundbooth/internal/repository"
	"github.com/pinebranchlab/soundbooth/internal/transcode"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (ReplyClassifier, error) {
		return NewEnglishReplyClassifier(), nil
	})
	do.Provide(injector, func(i do.Injector) (*Orchestrator, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		dc := do.MustInvoke[discord.Client](i)
		tc := do.MustInvoke[transcode.Transcoder](i)
		newDecoder := do.MustInvoke[audio.DecoderFactory](i)
		classifier := do.MustInvoke[ReplyClassifier](i)
		return NewOrchestrator(cfg, repo, dc, tc, newDecoder, classifier), nil
	})
	do.Provide(injector, func(i do.Injector) (*RelayAdapter, error) {
		cfg := do.MustInvoke[*config.Config](i)
		orch := do.MustInvoke[*Orchestrator](i)
		dc := do.MustInvoke[discord.Client](i)
		mailbox := do.MustInvoke[relay.Mailbox](i)
		return NewRelayAdapter(orch, dc, mailbox, time.Duration(cfg.RelayPollIntervalMs)*time.Millisecond), nil
	})
}
