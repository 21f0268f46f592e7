package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/provider"
)

// ErrPoolClosed is returned by Acquire once Shutdown has begun.
var ErrPoolClosed = errors.New("session pool is shut down")

// destroyTimeout bounds best-effort teardown calls that run without a caller
const destroyTimeout = 30 * time.Second

// Config holds the pool limits, fixed at construction
type Config struct {
	MaxSessionsPerLanguage int
	SessionTimeout         time.Duration
	CleanupInterval        time.Duration
}

// SessionPool owns every live sandbox session. Sessions are partitioned by
// language, matched for reuse by library-set equality, evicted least
// recently used when a language bucket is full, and reaped after
// SessionTimeout of idleness.
//
// The mutex guards only the bookkeeping maps. Provider calls (create,
// install, destroy) always happen outside it: Acquire reserves a capacity
// slot under the lock, creates the environment unlocked, then commits or
// rolls the reservation back under the lock.
type SessionPool struct {
	logger   *zap.Logger
	config   Config
	provider provider.Provider

	mu       sync.Mutex
	sessions map[string]map[string]*PooledSession
	reserved map[string]int
	closed   bool

	stopReaper chan struct{}
	reaperDone chan struct{}

	now func() time.Time
}

// New creates a SessionPool and starts its idle reaper
func New(logger *zap.Logger, cfg Config, prov provider.Provider) (*SessionPool, error) {
	if cfg.MaxSessionsPerLanguage <= 0 {
		return nil, fmt.Errorf("MaxSessionsPerLanguage must be positive, got: %d", cfg.MaxSessionsPerLanguage)
	}
	if cfg.SessionTimeout <= 0 {
		return nil, fmt.Errorf("SessionTimeout must be positive, got: %s", cfg.SessionTimeout)
	}
	if cfg.CleanupInterval <= 0 {
		return nil, fmt.Errorf("CleanupInterval must be positive, got: %s", cfg.CleanupInterval)
	}

	p := &SessionPool{
		logger:     logger,
		config:     cfg,
		provider:   prov,
		sessions:   make(map[string]map[string]*PooledSession),
		reserved:   make(map[string]int),
		stopReaper: make(chan struct{}),
		reaperDone: make(chan struct{}),
		now:        time.Now,
	}

	go p.runReaper()

	return p, nil
}

// Acquire returns a session for the language and library set, creating one
// if no live session matches. A non-empty preferredID is honored when that
// session exists and carries the same library set; if its libraries differ
// it is destroyed so a fresh session can take its place.
func (p *SessionPool) Acquire(ctx context.Context, language string, libraries []string, preferredID string) (*PooledSession, error) {
	var victims []*PooledSession

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	now := p.now()
	bucket := p.sessions[language]

	if preferredID != "" {
		if session, ok := bucket[preferredID]; ok {
			if librariesEqual(session.Libraries, libraries) {
				session.LastUsedAt = now
				p.mu.Unlock()
				return session, nil
			}
			// Library set changed: the old session can never satisfy this
			// caller, drop it now to free its capacity slot.
			delete(bucket, preferredID)
			victims = append(victims, session)
		}
	}

	// Reuse scan. Ties are broken by lowest CreatedAt so repeated calls
	// pick the same session regardless of map iteration order.
	var match *PooledSession
	for _, session := range bucket {
		if librariesEqual(session.Libraries, libraries) {
			if match == nil || session.CreatedAt.Before(match.CreatedAt) {
				match = session
			}
		}
	}
	if match != nil {
		match.LastUsedAt = now
		p.mu.Unlock()
		p.destroyAll(victims)
		return match, nil
	}

	// No match: reserve a capacity slot, evicting the LRU session first if
	// the bucket (live plus in-flight creations) is full.
	if len(bucket)+p.reserved[language] >= p.config.MaxSessionsPerLanguage {
		victim := lruVictim(bucket)
		if victim == nil {
			p.mu.Unlock()
			p.destroyAll(victims)
			return nil, fmt.Errorf("language %s is at capacity and every slot is reserved", language)
		}
		delete(bucket, victim.ID)
		victims = append(victims, victim)
	}
	p.reserved[language]++
	p.mu.Unlock()

	p.destroyAll(victims)

	session, err := p.createSession(ctx, language, libraries)

	p.mu.Lock()
	p.reserved[language]--
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if p.closed {
		p.mu.Unlock()
		p.destroyAll([]*PooledSession{session})
		return nil, ErrPoolClosed
	}
	if p.sessions[language] == nil {
		p.sessions[language] = make(map[string]*PooledSession)
	}
	p.sessions[language][session.ID] = session
	p.mu.Unlock()

	return session, nil
}

// createSession runs the slow provider calls. The caller holds a capacity
// reservation but not the lock.
func (p *SessionPool) createSession(ctx context.Context, language string, libraries []string) (*PooledSession, error) {
	handle, err := p.provider.Create(ctx, language)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if len(libraries) > 0 {
		result, installErr := p.provider.InstallLibraries(ctx, handle, libraries)
		switch {
		case installErr != nil:
			p.logger.Warn("error installing libraries",
				zap.String("language", language),
				zap.Strings("libraries", libraries),
				zap.Error(installErr))
		case result.ExitCode != 0:
			p.logger.Warn("failed to install libraries",
				zap.String("language", language),
				zap.Strings("libraries", libraries),
				zap.Int("exit_code", result.ExitCode),
				zap.String("stderr", result.Stderr))
		}
	}

	now := p.now()
	session := &PooledSession{
		ID:         uuid.NewString(),
		Language:   language,
		Libraries:  libraries,
		Handle:     handle,
		CreatedAt:  now,
		LastUsedAt: now,
	}

	p.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("language", language),
		zap.Strings("libraries", libraries))

	return session, nil
}

// Release refreshes a session's idle clock after an execution completes.
// Releasing a session that has been reaped or evicted in the meantime is a
// logged no-op.
func (p *SessionPool) Release(id, language string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if session, ok := p.sessions[language][id]; ok {
		session.LastUsedAt = p.now()
		return
	}
	p.logger.Debug("release for unknown session",
		zap.String("session_id", id),
		zap.String("language", language))
}

// CloseByID destroys the session with the given id regardless of idle state
// and reports whether it existed
func (p *SessionPool) CloseByID(ctx context.Context, id string) bool {
	var victim *PooledSession

	p.mu.Lock()
	for _, bucket := range p.sessions {
		if session, ok := bucket[id]; ok {
			delete(bucket, id)
			victim = session
			break
		}
	}
	p.mu.Unlock()

	if victim == nil {
		return false
	}
	p.destroy(ctx, victim)
	return true
}

// Stats is a point-in-time snapshot of the pool
type Stats struct {
	TotalSessions      int            `json:"total_sessions"`
	SessionsByLanguage map[string]int `json:"sessions_by_language"`
	Config             StatsConfig    `json:"config"`
}

// StatsConfig echoes the pool limits in the stats snapshot
type StatsConfig struct {
	MaxSessionsPerLanguage int `json:"max_sessions_per_language"`
	SessionTimeoutSec      int `json:"session_timeout"`
	CleanupIntervalSec     int `json:"cleanup_interval"`
}

// Stats returns a snapshot of session counts and the pool configuration
func (p *SessionPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{
		SessionsByLanguage: make(map[string]int, len(p.sessions)),
		Config: StatsConfig{
			MaxSessionsPerLanguage: p.config.MaxSessionsPerLanguage,
			SessionTimeoutSec:      int(p.config.SessionTimeout.Seconds()),
			CleanupIntervalSec:     int(p.config.CleanupInterval.Seconds()),
		},
	}
	for language, bucket := range p.sessions {
		stats.SessionsByLanguage[language] = len(bucket)
		stats.TotalSessions += len(bucket)
	}
	return stats
}

// Shutdown stops the reaper, waits for it, and destroys every live session.
// It is idempotent and safe to call concurrently with in-flight Acquires:
// once it begins, new Acquires fail with ErrPoolClosed and creations that
// were already in flight are destroyed instead of committed.
func (p *SessionPool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stopReaper)
	<-p.reaperDone

	p.mu.Lock()
	var all []*PooledSession
	for _, bucket := range p.sessions {
		for _, session := range bucket {
			all = append(all, session)
		}
	}
	p.sessions = make(map[string]map[string]*PooledSession)
	p.mu.Unlock()

	for _, session := range all {
		p.destroy(ctx, session)
	}

	p.logger.Info("session pool shut down", zap.Int("sessions_destroyed", len(all)))
}

// lruVictim picks the least recently used session in a bucket, breaking
// LastUsedAt ties by lowest CreatedAt. Returns nil for an empty bucket.
func lruVictim(bucket map[string]*PooledSession) *PooledSession {
	var victim *PooledSession
	for _, session := range bucket {
		if victim == nil ||
			session.LastUsedAt.Before(victim.LastUsedAt) ||
			(session.LastUsedAt.Equal(victim.LastUsedAt) && session.CreatedAt.Before(victim.CreatedAt)) {
			victim = session
		}
	}
	return victim
}

// destroy tears down a session's environment. Teardown failures are logged
// and swallowed; by the time destroy runs the session is already gone from
// the bookkeeping maps and no caller is waiting on the result.
func (p *SessionPool) destroy(ctx context.Context, session *PooledSession) {
	destroyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), destroyTimeout)
	defer cancel()

	if err := p.provider.Destroy(destroyCtx, session.Handle); err != nil {
		p.logger.Error("error destroying session",
			zap.String("session_id", session.ID),
			zap.String("language", session.Language),
			zap.Error(err))
		return
	}
	p.logger.Info("session destroyed",
		zap.String("session_id", session.ID),
		zap.String("language", session.Language))
}

func (p *SessionPool) destroyAll(sessions []*PooledSession) {
	for _, session := range sessions {
		p.destroy(context.Background(), session)
	}
}
