package goRecover

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/goRecover/internal/limiters"
	"github.com/MrEthical07/goRecover/internal/stores"
	"github.com/MrEthical07/goRecover/jwt"
	"github.com/MrEthical07/goRecover/password"
	"github.com/MrEthical07/goRecover/session"
)

// Engine is the embeddable recovery engine. Build one through [Builder.Build]
// and share it; all methods are safe for concurrent use.
type Engine struct {
	config Config

	userProvider UserProvider
	credStore    CredentialStore

	sessionStore *session.Store
	resetStore   *stores.ResetSessionStore
	changeStore  *stores.ChangeSessionStore
	resetLimiter *limiters.ResetLimiter

	passwordHash *password.Hasher
	jwtManager   *jwt.Manager

	audit   *auditDispatcher
	metrics *Metrics
}

// Close flushes and stops the audit dispatcher. The engine must not be used
// after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID, sessionID string,
	eventErr error,
	meta func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if eventErr != nil {
		event.Error = eventErr.Error()
	}
	if meta != nil {
		event.Metadata = meta()
	}

	e.audit.Emit(ctx, event)
}

// validatePasswordPolicy is the engine-level strength gate. Hash parameters
// live in the password package; the accept/reject decision lives here.
func (e *Engine) validatePasswordPolicy(candidate string) error {
	if len(candidate) < e.config.Password.MinLength {
		return fmt.Errorf("%w: minimum %d characters", ErrWeakPassword, e.config.Password.MinLength)
	}
	if limit := e.passwordHash.MaxPasswordBytes(); len(candidate) > limit {
		return fmt.Errorf("%w: maximum %d bytes", ErrWeakPassword, limit)
	}
	return nil
}
