package relay

import (
	"github.com/jackc/pgx/v5/pgxpool"
	relaypkg "github.com/pinebranchlab/soundbooth/internal/relay"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (relaypkg.Mailbox, error) {
		pool := do.MustInvoke[*pgxpool.Pool](i)
		return NewPostgresMailbox(pool), nil
	})
}
