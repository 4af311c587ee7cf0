package repository

import (
	"context"
	"sync/atomic"
	"time"

	"skolar/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSyncGuard combines a shared primary guard (redis) with the local
// one. The local guard is always taken first, so a pass that started while
// the primary was down still blocks this process after the primary returns.
type FailoverSyncGuard struct {
	primary   domain.SyncGuard
	local     domain.SyncGuard
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverSyncGuard(primary, local domain.SyncGuard, logger *zerolog.Logger) *FailoverSyncGuard {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverSyncGuard{
		primary: primary,
		local:   local,
		logger:  logger,
	}
}

func (g *FailoverSyncGuard) TryAcquire(ctx context.Context) (func(), bool, error) {
	releaseLocal, ok, err := g.local.TryAcquire(ctx)
	if err != nil || !ok {
		return nil, false, err
	}

	down := g.isDown.Load()
	if down && time.Since(time.Unix(0, g.lastCheck.Load())) > recoveryInterval {
		down = false
	}
	if down {
		return releaseLocal, true, nil
	}

	releasePrimary, ok, err := g.primary.TryAcquire(ctx)
	if err != nil {
		g.logger.Error().Err(err).Msg("Primary sync guard failed, holding local guard only")
		g.isDown.Store(true)
		g.lastCheck.Store(time.Now().UnixNano())
		return releaseLocal, true, nil
	}
	if g.isDown.Swap(false) {
		g.logger.Info().Msg("Primary sync guard recovered")
	}
	if !ok {
		// Another process holds the shared lock.
		releaseLocal()
		return nil, false, nil
	}

	return func() {
		releasePrimary()
		releaseLocal()
	}, true, nil
}
