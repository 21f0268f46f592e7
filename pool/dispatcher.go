package pool

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/runbox/provider"
)

// ExecuteRequest represents one code execution against the pool
type ExecuteRequest struct {
	Language  string
	Code      string
	Libraries []string
	Timeout   time.Duration
	SessionID string
}

// ExecuteResult represents the outcome of a code execution. A failure of
// the user's program (non-zero exit, provider fault, timeout) is reported
// in the result, never as a Go error; only a failure to obtain a session
// surfaces as an error from Execute.
type ExecuteResult struct {
	Success       bool    `json:"success"`
	Stdout        string  `json:"stdout,omitempty"`
	Stderr        string  `json:"stderr,omitempty"`
	ExitCode      int     `json:"exit_code"`
	Error         string  `json:"error,omitempty"`
	ExecutionTime float64 `json:"execution_time"`
	SessionID     string  `json:"session_id,omitempty"`
}

// DispatcherConfig bounds per-request execution timeouts
type DispatcherConfig struct {
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
}

// Dispatcher runs code against pooled sessions. The slow Run call happens
// outside any pool lock, serialized per session, so a hung user program
// never blocks other pool operations.
type Dispatcher struct {
	logger   *zap.Logger
	config   DispatcherConfig
	pool     *SessionPool
	provider provider.Provider
}

// NewDispatcher creates a Dispatcher bound to a pool and its provider
func NewDispatcher(logger *zap.Logger, cfg DispatcherConfig, p *SessionPool, prov provider.Provider) *Dispatcher {
	return &Dispatcher{
		logger:   logger,
		config:   cfg,
		pool:     p,
		provider: prov,
	}
}

// Execute acquires a session, runs the code with a timeout, and returns the
// session to the pool. The session is released even when the run fails; a
// session whose run timed out is destroyed instead, since the environment
// may be left in an unknown state.
func (d *Dispatcher) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = d.config.DefaultTimeout
	}
	if timeout > d.config.MaxTimeout {
		timeout = d.config.MaxTimeout
	}

	session, err := d.pool.Acquire(ctx, req.Language, req.Libraries, req.SessionID)
	if err != nil {
		return ExecuteResult{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	session.runMu.Lock()
	result, runErr := d.provider.Run(runCtx, session.Handle, req.Code)
	session.runMu.Unlock()
	elapsed := time.Since(start).Seconds()

	if runCtx.Err() == context.DeadlineExceeded {
		d.logger.Warn("execution timed out, destroying session",
			zap.String("session_id", session.ID),
			zap.String("language", session.Language),
			zap.Duration("timeout", timeout))
		d.pool.CloseByID(context.WithoutCancel(ctx), session.ID)
		return ExecuteResult{
			Success:       false,
			Error:         "execution timed out",
			ExitCode:      -1,
			ExecutionTime: elapsed,
			SessionID:     session.ID,
		}, nil
	}

	d.pool.Release(session.ID, session.Language)

	if runErr != nil {
		d.logger.Error("execution failed",
			zap.String("session_id", session.ID),
			zap.String("language", session.Language),
			zap.Error(runErr))
		return ExecuteResult{
			Success:       false,
			Error:         runErr.Error(),
			ExitCode:      -1,
			ExecutionTime: elapsed,
			SessionID:     session.ID,
		}, nil
	}

	d.logger.Info("execution completed",
		zap.String("session_id", session.ID),
		zap.String("language", session.Language),
		zap.Int("exit_code", result.ExitCode),
		zap.Float64("execution_time", elapsed))

	return ExecuteResult{
		Success:       result.ExitCode == 0,
		Stdout:        result.Stdout,
		Stderr:        result.Stderr,
		ExitCode:      result.ExitCode,
		ExecutionTime: elapsed,
		SessionID:     session.ID,
	}, nil
}
