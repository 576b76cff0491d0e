package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/milk-back/backend/internal/model"
)

const (
	RefreshResultRotated   = "rotated"
	RefreshResultConflict  = "conflict"
	RefreshResultDiscarded = "discarded"
	RefreshResultFailed    = "failed"
	RefreshResultRejected  = "rejected"
)

// ErrRefreshDiscarded is returned by PostProcess when a pending pair is dropped on purpose.
var ErrRefreshDiscarded = errors.New("pending token pair discarded")

// AuthObserver receives verdicts and refresh outcomes. metrics.Auth implements it.
type AuthObserver interface {
	ObserveVerdict(v model.Verdict)
	ObserveRefresh(result string)
}

// AuthState is the per-request state threaded from PreProcess to PostProcess.
// It must never outlive its request.
type AuthState struct {
	Tokens    model.TokenPair
	HasTokens bool
	SessionID model.SessionID
	Verdict   model.Verdict
	Principal model.Principal
	// Pending holds a freshly minted pair that is persisted only in PostProcess.
	Pending *model.TokenPair
	// Err records an infrastructure failure that prevented a decision.
	Err error

	discarded bool
	done      bool
}

// Identity returns the authenticated identity attached to the request, if any.
func (s *AuthState) Identity() (model.Identity, bool) {
	if s == nil {
		return model.Identity{}, false
	}
	id, ok := s.Principal.(model.Identity)
	return id, ok
}

// Discard drops any pending pair so PostProcess writes nothing.
func (s *AuthState) Discard() {
	if s != nil {
		s.discarded = true
	}
}

// Unavailable reports whether the verdict was forced by a backing store failure.
func (s *AuthState) Unavailable() bool {
	return s != nil && errors.Is(s.Err, model.ErrStoreUnavailable)
}

// AuthInterceptor runs the two-phase authentication state machine. It holds
// only immutable collaborators; all request data lives in AuthState.
type AuthInterceptor struct {
	codec        *TokenCodec
	sessions     *SessionManager
	users        UserRepository
	cookie       CookieConfig
	storeTimeout time.Duration
	observer     AuthObserver
	log          *slog.Logger
}

type InterceptorOption func(*AuthInterceptor)

func WithObserver(o AuthObserver) InterceptorOption {
	return func(a *AuthInterceptor) { a.observer = o }
}

func WithStoreTimeout(d time.Duration) InterceptorOption {
	return func(a *AuthInterceptor) { a.storeTimeout = d }
}

// WithUserRepository makes the refresh path re-read the account. Without it the
// refresh trusts the claims embedded in the refresh token.
func WithUserRepository(users UserRepository) InterceptorOption {
	return func(a *AuthInterceptor) { a.users = users }
}

func NewAuthInterceptor(codec *TokenCodec, sessions *SessionManager, cookie CookieConfig, log *slog.Logger, opts ...InterceptorOption) *AuthInterceptor {
	a := &AuthInterceptor{
		codec:    codec,
		sessions: sessions,
		cookie:   cookie,
		log:      log,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	return a
}

// PreProcess computes the verdict for r and, when the access token has expired
// but the session is intact, mints a pending pair without persisting it.
func (a *AuthInterceptor) PreProcess(ctx context.Context, r *http.Request) *AuthState {
	st := &AuthState{
		Verdict:   model.VerdictUnauthenticated,
		Principal: model.Anonymous{},
	}
	defer func() {
		if a.observer != nil {
			a.observer.ObserveVerdict(st.Verdict)
		}
	}()

	tokens, ok := ReadTokenCookies(r)
	if !ok {
		return st
	}
	st.Tokens = tokens
	st.HasTokens = true

	// an absent access cookie decodes as invalid and takes the refresh path
	accessIdentity, accessErr := a.codec.DecodeAccessToken(tokens.AccessToken)
	refreshIdentity, refreshErr := a.codec.DecodeRefreshToken(tokens.RefreshToken)
	validAccess := accessErr == nil
	validRefresh := refreshErr == nil

	if !validRefresh {
		st.Verdict = model.VerdictRejected
		a.log.DebugContext(ctx, "refresh token rejected", "reason", refreshErr)
		return st
	}

	sid, ok := a.sessions.ResolveSessionID(r)
	if !ok {
		st.Verdict = model.VerdictRejected
		a.log.DebugContext(ctx, "session cookie missing or malformed")
		return st
	}
	st.SessionID = sid

	sctx, cancel := a.storeContext(ctx)
	validSession, err := a.sessions.IsValidSession(sctx, sid, tokens.RefreshToken)
	cancel()
	if err != nil {
		st.Err = err
		a.log.WarnContext(ctx, "session check failed", "error", err)
		return st
	}
	if !validSession {
		st.Verdict = model.VerdictRejected
		a.log.DebugContext(ctx, "session does not match refresh token")
		return st
	}

	if validAccess {
		st.Verdict = model.VerdictAuthenticated
		st.Principal = accessIdentity
		return st
	}

	st.Verdict = model.VerdictNeedsRefresh
	a.mintPending(ctx, st, refreshIdentity)
	return st
}

// ForceRefresh mints a pending pair for an authenticated request that has none.
func (a *AuthInterceptor) ForceRefresh(ctx context.Context, st *AuthState) error {
	if st == nil {
		return ErrUnauthorized
	}
	if st.Pending != nil {
		return nil
	}
	if st.Verdict != model.VerdictAuthenticated {
		return ErrUnauthorized
	}

	refreshIdentity, err := a.codec.DecodeRefreshToken(st.Tokens.RefreshToken)
	if err != nil {
		return ErrUnauthorized
	}
	a.mintPending(ctx, st, refreshIdentity)
	if st.Pending == nil {
		if st.Unavailable() {
			return st.Err
		}
		return ErrUnauthorized
	}
	return nil
}

func (a *AuthInterceptor) mintPending(ctx context.Context, st *AuthState, claims model.Identity) {
	fresh := claims
	if a.users != nil {
		sctx, cancel := a.storeContext(ctx)
		user, err := a.users.FindByID(sctx, claims.ID)
		cancel()
		switch {
		case errors.Is(err, model.ErrUserNotFound):
			a.reject(ctx, st, "account no longer exists")
			return
		case err != nil:
			st.Err = fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
			st.Verdict = model.VerdictUnauthenticated
			st.Principal = model.Anonymous{}
			a.log.WarnContext(ctx, "user lookup failed during refresh", "user_id", claims.ID, "error", err)
			return
		case !user.StateID.CanAuthenticate():
			a.reject(ctx, st, "account state forbids refresh")
			return
		}
		fresh = model.IdentityFromUser(user)
	}

	pair, err := a.codec.GeneratePair(fresh)
	if err != nil {
		st.Verdict = model.VerdictUnauthenticated
		st.Principal = model.Anonymous{}
		st.Err = err
		a.log.ErrorContext(ctx, "failed to mint token pair", "error", err)
		return
	}

	identity, err := a.codec.DecodeAccessToken(pair.AccessToken)
	if err != nil {
		st.Verdict = model.VerdictUnauthenticated
		st.Principal = model.Anonymous{}
		st.Err = err
		return
	}

	st.Pending = &pair
	st.Principal = identity
}

func (a *AuthInterceptor) reject(ctx context.Context, st *AuthState, reason string) {
	st.Verdict = model.VerdictRejected
	st.Principal = model.Anonymous{}
	st.Pending = nil
	if a.observer != nil {
		a.observer.ObserveRefresh(RefreshResultRejected)
	}
	a.log.InfoContext(ctx, "refresh rejected", "reason", reason, "session_id", st.SessionID)
}

// PostProcess persists a pending pair after the handler has produced its
// response and before headers are sent. status is the handler's response code.
// Nothing is written unless the session swap succeeds.
func (a *AuthInterceptor) PostProcess(ctx context.Context, w http.ResponseWriter, st *AuthState, status int) error {
	if st == nil || st.done || st.Pending == nil {
		return nil
	}
	st.done = true

	if st.discarded || status >= http.StatusInternalServerError || ctx.Err() != nil {
		a.observeRefresh(RefreshResultDiscarded)
		return ErrRefreshDiscarded
	}

	sctx, cancel := a.storeContext(ctx)
	err := a.sessions.RotateSession(sctx, st.SessionID, st.Tokens.RefreshToken, st.Pending.RefreshToken)
	cancel()
	if err != nil {
		if errors.Is(err, model.ErrSessionMismatch) || errors.Is(err, model.ErrSessionNotFound) {
			a.observeRefresh(RefreshResultConflict)
			a.log.InfoContext(ctx, "session rotated concurrently, refresh dropped", "session_id", st.SessionID)
		} else {
			a.observeRefresh(RefreshResultFailed)
			a.log.WarnContext(ctx, "failed to persist refreshed session", "session_id", st.SessionID, "error", err)
		}
		return err
	}

	a.SetTokenCookies(w, *st.Pending)
	a.sessions.SetCookie(w, st.SessionID)
	a.observeRefresh(RefreshResultRotated)
	return nil
}

// SetTokenCookies writes both tokens with Max-Age equal to their own lifetime.
func (a *AuthInterceptor) SetTokenCookies(w http.ResponseWriter, pair model.TokenPair) {
	a.cookie.Set(w, AccessCookieName, pair.AccessToken, int(a.codec.AccessTTL().Seconds()))
	a.cookie.Set(w, RefreshCookieName, pair.RefreshToken, int(a.codec.RefreshTTL().Seconds()))
}

func (a *AuthInterceptor) ClearTokenCookies(w http.ResponseWriter) {
	a.cookie.Clear(w, AccessCookieName)
	a.cookie.Clear(w, RefreshCookieName)
}

func (a *AuthInterceptor) observeRefresh(result string) {
	if a.observer != nil {
		a.observer.ObserveRefresh(result)
	}
}

func (a *AuthInterceptor) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.storeTimeout)
}
