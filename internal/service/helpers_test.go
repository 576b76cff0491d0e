package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/milk-back/backend/internal/config"
	"github.com/milk-back/backend/internal/model"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("connection refused")

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		AccessSecret:     "access-secret-for-tests",
		RefreshSecret:    "refresh-secret-for-tests",
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       24 * time.Hour,
		SessionKeyPrefix: "session:",
	}
}

func newTestCodec(t *testing.T) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(testAuthConfig())
	require.NoError(t, err)
	return codec
}

// memStore is an in-memory SessionStore with a switchable outage.
type memStore struct {
	mu   sync.Mutex
	data map[string]string
	down bool
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}}
}

func (s *memStore) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *memStore) value(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return "", errStoreDown
	}
	v, ok := s.data[key]
	if !ok {
		return "", model.ErrSessionNotFound
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errStoreDown
	}
	s.data[key] = value
	return nil
}

func (s *memStore) CompareAndSwap(_ context.Context, key, old, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errStoreDown
	}
	cur, ok := s.data[key]
	if !ok {
		return model.ErrSessionNotFound
	}
	if cur != old {
		return model.ErrSessionMismatch
	}
	s.data[key] = value
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errStoreDown
	}
	delete(s.data, key)
	return nil
}

func (s *memStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errStoreDown
	}
	return nil
}

// fakeUsers implements UserStore over a map.
type fakeUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*model.User
	err    error
}

func newFakeUsers(users ...*model.User) *fakeUsers {
	f := &fakeUsers{byID: map[int64]*model.User{}}
	for _, u := range users {
		f.byID[u.ID] = u
		if u.ID > f.nextID {
			f.nextID = u.ID
		}
	}
	return f
}

func (f *fakeUsers) FindByID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) FindByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byID {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, model.ErrUserNotFound
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, model.ErrUserNotFound
}

func (f *fakeUsers) CreateUser(_ context.Context, user *model.User) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byID {
		if u.Username == user.Username || u.Email == user.Email {
			return nil, model.ErrUserExists
		}
	}
	f.nextID++
	cp := *user
	cp.ID = f.nextID
	f.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeUsers) setState(id int64, state model.UserState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].StateID = state
}

// recordingObserver collects what the interceptor reports.
type recordingObserver struct {
	mu        sync.Mutex
	verdicts  []model.Verdict
	refreshes []string
}

func (o *recordingObserver) ObserveVerdict(v model.Verdict) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verdicts = append(o.verdicts, v)
}

func (o *recordingObserver) ObserveRefresh(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refreshes = append(o.refreshes, result)
}

func (o *recordingObserver) refreshResults() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.refreshes...)
}

func requestWithCookies(cookies ...*http.Cookie) *http.Request {
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func authCookies(pair model.TokenPair, sid model.SessionID) []*http.Cookie {
	out := []*http.Cookie{
		{Name: AccessCookieName, Value: pair.AccessToken},
		{Name: RefreshCookieName, Value: pair.RefreshToken},
	}
	if !sid.IsZero() {
		out = append(out, &http.Cookie{Name: SessionCookieName, Value: sid.String()})
	}
	return out
}
