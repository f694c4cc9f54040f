package verify

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often expired tokens are garbage-collected.
const DefaultSweepInterval = 5 * time.Minute

// StartSweeper launches a background goroutine that periodically removes
// expired verification tokens until ctx is cancelled. Sweeping only reclaims
// storage; expiry is enforced at lookup whether or not the sweeper runs.
func (g *Gate) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		slog.Info("Gate.StartSweeper: token sweeper started", "interval", interval)
		for {
			select {
			case <-ctx.Done():
				slog.Info("Gate.StartSweeper: token sweeper stopped")
				return
			case <-ticker.C:
				removed, err := g.store.DeleteExpiredVerificationTokens(g.now())
				if err != nil {
					slog.Error("Gate.StartSweeper: sweep failed", "error", err)
					continue
				}
				if removed > 0 {
					slog.Debug("Gate.StartSweeper: swept expired tokens", "count", removed)
				}
			}
		}
	}()
}
