package journal

import (
	"context"
	"time"
)

// Logger is the logging subset Retain needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Retain prunes entries older than keep once immediately and then every
// interval until ctx is cancelled. keep <= 0 disables pruning.
func Retain(ctx context.Context, repo Repository, keep, interval time.Duration, log Logger) {
	if keep <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}

	prune := func() {
		n, err := repo.Prune(ctx, time.Now().Add(-keep))
		switch {
		case err != nil:
			log.Warn("journal prune failed", "error", err)
		case n > 0:
			log.Info("journal pruned", "deleted", n, "retention", keep.String())
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
