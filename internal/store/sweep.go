package store

import (
	"context"
	"log/slog"
	"time"
)

// StartSweeper runs a background goroutine that periodically removes
// conversations idle beyond the retention window. Fire-and-forget; it
// stops when ctx is done.
func StartSweeper(ctx context.Context, s *Store, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("retention sweeper started", "interval", interval, "retention", s.cfg.Retention)

		for {
			select {
			case <-ticker.C:
				if removed := s.SweepExpired(time.Now()); removed > 0 {
					slog.Info("retention sweep completed", "removed", removed)
				}
			case <-ctx.Done():
				slog.Info("retention sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// SweepExpired removes conversations whose last activity predates the
// retention window and returns how many were removed. It scans a
// snapshot so live sends are never starved by the sweep.
func (s *Store) SweepExpired(now time.Time) int {
	cutoff := now.Add(-s.cfg.Retention)

	s.mu.RLock()
	candidates := make([]*conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		candidates = append(candidates, conv)
	}
	s.mu.RUnlock()

	removed := 0
	for _, conv := range candidates {
		conv.mu.Lock()
		id := conv.data.ID
		expired := conv.data.IdleSince(cutoff)
		conv.mu.Unlock()
		if !expired {
			continue
		}

		// Re-check under the store lock: a send may have landed between
		// the snapshot and now. TryLock on sendMu keeps the sweep from
		// stalling the whole store behind an in-flight send; a busy
		// conversation is by definition not idle.
		s.mu.Lock()
		current, ok := s.conversations[id]
		if ok && current == conv && current.sendMu.TryLock() {
			current.mu.Lock()
			if current.data.IdleSince(cutoff) {
				delete(s.conversations, id)
				removed++
				slog.Info("conversation expired", "conversation_id", id,
					"last_active_at", current.data.LastActiveAt)
			}
			current.mu.Unlock()
			current.sendMu.Unlock()
		}
		s.mu.Unlock()
	}
	return removed
}
