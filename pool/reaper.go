package pool

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// runReaper wakes every CleanupInterval and reclaims idle sessions. It runs
// for the lifetime of the pool and exits only when Shutdown closes
// stopReaper; Shutdown waits on reaperDone so no teardown is left pending
// when the process stops.
func (p *SessionPool) runReaper() {
	defer close(p.reaperDone)

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.reapExpired()
		case <-p.stopReaper:
			return
		}
	}
}

// reapExpired removes every session idle for longer than SessionTimeout.
// Removal happens under the lock; the slow provider teardown happens after
// it is released.
func (p *SessionPool) reapExpired() {
	now := p.now()
	var expired []*PooledSession

	p.mu.Lock()
	for _, bucket := range p.sessions {
		for id, session := range bucket {
			if now.Sub(session.LastUsedAt) > p.config.SessionTimeout {
				delete(bucket, id)
				expired = append(expired, session)
			}
		}
	}
	p.mu.Unlock()

	for _, session := range expired {
		p.logger.Info("reaping idle session",
			zap.String("session_id", session.ID),
			zap.String("language", session.Language),
			zap.Duration("idle", now.Sub(session.LastUsedAt)))
		p.destroy(context.Background(), session)
	}
}
