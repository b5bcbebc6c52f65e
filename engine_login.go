package goRecover

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goRecover/session"
)

// AuthResult is the outcome of a successful [Engine.Validate]: the account
// and live session the token resolves to.
type AuthResult struct {
	UserID    string
	Username  string
	SessionID string
}

// Login authenticates a username/password pair, creates a live session, and
// returns a signed token bound to it. Bad credentials fail with
// [ErrInvalidCredentials] regardless of whether the username exists.
func (e *Engine) Login(ctx context.Context, username, pass string) (*LoginResult, error) {
	if e == nil || e.passwordHash == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	if username == "" || pass == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLogin, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"username": username, "reason": "empty_input"}
		})
		return nil, ErrInvalidCredentials
	}

	user, found, err := e.userProvider.GetUserByUsername(ctx, username)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLogin, false, "", "", ErrRecoveryUnavailable, nil)
		return nil, ErrRecoveryUnavailable
	}
	if !found {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLogin, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"username": username, "reason": "user_not_found"}
		})
		return nil, ErrInvalidCredentials
	}

	ok, err := e.passwordHash.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLogin, false, user.UserID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"username": username, "reason": "password_mismatch"}
		})
		return nil, ErrInvalidCredentials
	}

	if needsRehash, err := e.passwordHash.NeedsRehash(user.PasswordHash); err == nil && needsRehash {
		if upgraded, err := e.passwordHash.Hash(pass); err == nil {
			// Best effort; a failed upgrade must not block the login.
			if err := e.userProvider.UpdatePasswordHash(ctx, user.UserID, upgraded); err != nil {
				log.Print("goRecover: password hash upgrade failed")
			}
		}
	}
	pass = ""

	now := time.Now()
	sess := &session.Session{
		SessionID: uuid.NewString(),
		UserID:    user.UserID,
		Username:  user.Username,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(e.config.Session.TTL).Unix(),
	}

	if err := e.sessionStore.Save(ctx, sess, e.config.Session.TTL); err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLogin, false, user.UserID, sess.SessionID, ErrRecoveryUnavailable, func() map[string]string {
			return map[string]string{"reason": "session_save_failed"}
		})
		return nil, ErrRecoveryUnavailable
	}

	token, err := e.jwtManager.Issue(user.UserID, sess.SessionID)
	if err != nil {
		_ = e.sessionStore.Delete(ctx, sess.SessionID)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLogin, false, user.UserID, sess.SessionID, err, func() map[string]string {
			return map[string]string{"reason": "token_issue_failed"}
		})
		return nil, ErrRecoveryUnavailable
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLogin, true, user.UserID, sess.SessionID, nil, func() map[string]string {
		return map[string]string{"username": username}
	})

	return &LoginResult{
		UserID:    user.UserID,
		SessionID: sess.SessionID,
		Token:     token,
	}, nil
}

// Logout destroys one live session. Logging out an absent session succeeds.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	err := e.sessionStore.Delete(ctx, sessionID)
	if err == nil {
		e.metricInc(MetricLogout)
	}
	e.emitAudit(ctx, auditEventLogout, err == nil, "", sessionID, err, nil)
	if err != nil {
		return ErrRecoveryUnavailable
	}
	return nil
}

// LogoutAll destroys every live session for a user.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	err := e.sessionStore.DeleteAllForUser(ctx, userID)
	if err == nil {
		e.metricInc(MetricLogout)
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventLogout, err == nil, userID, "", err, nil)
	if err != nil {
		return ErrRecoveryUnavailable
	}
	return nil
}

// Validate checks a token's signature and claims, then confirms the session
// it names is still alive. Tokens for revoked or expired sessions fail with
// [ErrTokenInvalid]; the token is only as alive as its session.
func (e *Engine) Validate(ctx context.Context, tokenStr string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(tokenStr)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	sess, err := e.sessionStore.Get(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenInvalid
		}
		return nil, ErrRecoveryUnavailable
	}
	if sess.UserID != claims.UID {
		return nil, ErrTokenInvalid
	}

	return &AuthResult{
		UserID:    sess.UserID,
		Username:  sess.Username,
		SessionID: sess.SessionID,
	}, nil
}
