package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/milk-back/backend/internal/config"
	"github.com/milk-back/backend/internal/model"
	"golang.org/x/crypto/bcrypt"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 64
	minPasswordLength = 8
	maxPasswordLength = 72
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("conflict")
	ErrMisconfigured = errors.New("auth config invalid")
)

// UserRepository is the read side used by the refresh path.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// UserStore is the full user surface needed by sign-up and sign-in.
type UserStore interface {
	UserRepository
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) (*model.User, error)
}

type SignInResult struct {
	Identity  model.Identity
	Tokens    model.TokenPair
	SessionID model.SessionID
}

type AuthService struct {
	users    UserStore
	codec    *TokenCodec
	sessions *SessionManager
	log      *slog.Logger
}

func NewAuthService(users UserStore, codec *TokenCodec, sessions *SessionManager, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{
		users:    users,
		codec:    codec,
		sessions: sessions,
		log:      log,
	}
}

// EnsureAdmin creates the bootstrap administrator when it does not exist yet.
func (s *AuthService) EnsureAdmin(ctx context.Context, cfg config.AdminConfig) error {
	if strings.TrimSpace(cfg.Username) == "" || strings.TrimSpace(cfg.Password) == "" {
		return fmt.Errorf("%w: ADMIN_USERNAME/ADMIN_PASSWORD are required", ErrMisconfigured)
	}

	_, err := s.users.FindByUsername(ctx, cfg.Username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return err
	}

	email := cfg.Email
	if email == "" {
		email = cfg.Username + "@localhost"
	}
	if err := validateCredentials(cfg.Username, cfg.Password); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = s.users.CreateUser(ctx, &model.User{
		Username:     cfg.Username,
		Email:        email,
		PasswordHash: string(hash),
		RoleID:       model.RoleAdmin,
		StateID:      model.StateActive,
	})
	if err != nil && !errors.Is(err, model.ErrUserExists) {
		return err
	}
	s.log.InfoContext(ctx, "admin account ensured", "username", cfg.Username)
	return nil
}

func (s *AuthService) SignUp(ctx context.Context, username, email, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}
	// 형식 검증은 요청 바인딩에서 끝난다
	if email == "" {
		return nil, ErrInvalidInput
	}

	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, model.ErrUserNotFound) {
		return nil, err
	}
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, model.ErrUserNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user, err := s.users.CreateUser(ctx, &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		RoleID:       model.RoleUser,
		StateID:      model.StateNotConfirmed,
	})
	if err != nil {
		if errors.Is(err, model.ErrUserExists) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return user, nil
}

// SignIn verifies the password, mints a token pair and binds it to a new session.
func (s *AuthService) SignIn(ctx context.Context, username, password string) (*SignInResult, error) {
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}

	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrUnauthorized
	}
	if !user.StateID.CanAuthenticate() {
		return nil, ErrForbidden
	}

	identity := model.IdentityFromUser(user)
	tokens, err := s.codec.GeneratePair(identity)
	if err != nil {
		return nil, err
	}

	sessionID, err := s.sessions.BindSession(ctx, tokens.RefreshToken, "")
	if err != nil {
		return nil, err
	}

	return &SignInResult{
		Identity:  identity,
		Tokens:    tokens,
		SessionID: sessionID,
	}, nil
}

// SignOut revokes the session. Cookies are cleared by the caller.
func (s *AuthService) SignOut(ctx context.Context, sessionID model.SessionID) error {
	return s.sessions.RevokeSession(ctx, sessionID)
}

func validateCredentials(username, password string) error {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)

	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return ErrInvalidInput
	}
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return ErrInvalidInput
	}
	return nil
}
