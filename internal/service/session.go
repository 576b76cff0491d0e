package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/milk-back/backend/internal/model"
)

// SessionStore is a single-key store binding session keys to refresh tokens.
// Get returns model.ErrSessionNotFound for missing keys; transport failures
// are wrapped in model.ErrStoreUnavailable.
type SessionStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// CompareAndSwap replaces the value only while it still equals old.
	CompareAndSwap(ctx context.Context, key, old, value string) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// SessionManager owns the session lifecycle on top of a SessionStore.
type SessionManager struct {
	store     SessionStore
	keyPrefix string
	cookie    CookieConfig
}

func NewSessionManager(store SessionStore, keyPrefix string, cookie CookieConfig) *SessionManager {
	return &SessionManager{
		store:     store,
		keyPrefix: keyPrefix,
		cookie:    cookie,
	}
}

func (m *SessionManager) key(id model.SessionID) string {
	return m.keyPrefix + id.String()
}

// ResolveSessionID reads the session cookie; absent or malformed yields false.
func (m *SessionManager) ResolveSessionID(r *http.Request) (model.SessionID, bool) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", false
	}
	id, err := model.ParseSessionID(c.Value)
	if err != nil {
		return "", false
	}
	return id, true
}

// IsValidSession is true iff a record exists and equals candidate exactly.
// The error is non-nil only when the store could not answer.
func (m *SessionManager) IsValidSession(ctx context.Context, id model.SessionID, candidate string) (bool, error) {
	if id.IsZero() || candidate == "" {
		return false, nil
	}

	stored, err := m.store.Get(ctx, m.key(id))
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return false, nil
		}
		return false, storeErr(err)
	}
	if stored == "" {
		return false, nil
	}
	return stored == candidate, nil
}

// BindSession overwrites the value bound to existing, or allocates a new id
// when existing is zero. The returned id goes into the response cookie.
func (m *SessionManager) BindSession(ctx context.Context, refreshToken string, existing model.SessionID) (model.SessionID, error) {
	if refreshToken == "" {
		return "", fmt.Errorf("bind session: empty refresh token")
	}

	id := existing
	if id.IsZero() {
		id = model.NewSessionID()
	}
	if err := m.store.Set(ctx, m.key(id), refreshToken); err != nil {
		return "", storeErr(err)
	}
	return id, nil
}

// RotateSession binds next only while the session still holds previous.
func (m *SessionManager) RotateSession(ctx context.Context, id model.SessionID, previous, next string) error {
	if id.IsZero() {
		return model.ErrSessionNotFound
	}
	if previous == "" || next == "" {
		return model.ErrSessionMismatch
	}
	if err := m.store.CompareAndSwap(ctx, m.key(id), previous, next); err != nil {
		if errors.Is(err, model.ErrSessionNotFound) || errors.Is(err, model.ErrSessionMismatch) {
			return err
		}
		return storeErr(err)
	}
	return nil
}

// RevokeSession deletes the record. The caller must clear the cookie.
func (m *SessionManager) RevokeSession(ctx context.Context, id model.SessionID) error {
	if id.IsZero() {
		return nil
	}
	if err := m.store.Delete(ctx, m.key(id)); err != nil {
		return storeErr(err)
	}
	return nil
}

func (m *SessionManager) Ping(ctx context.Context) error {
	if err := m.store.Ping(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

func (m *SessionManager) SetCookie(w http.ResponseWriter, id model.SessionID) {
	m.cookie.Set(w, SessionCookieName, id.String(), SessionCookieMaxAge)
}

func (m *SessionManager) ClearCookie(w http.ResponseWriter) {
	m.cookie.Clear(w, SessionCookieName)
}

// storeErr makes sure every store failure, including context timeouts, reads as unavailable.
func storeErr(err error) error {
	if errors.Is(err, model.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
}
