package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/milk-back/backend/internal/config"
	"github.com/milk-back/backend/internal/model"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type tokenClaims struct {
	Username  string `json:"username"`
	RoleID    int    `json:"role_id"`
	StateID   int    `json:"state_id"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies access and refresh tokens. It does no I/O.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenCodec(cfg config.AuthConfig) (*TokenCodec, error) {
	if cfg.AccessSecret == "" {
		return nil, fmt.Errorf("%w: JWT_ACCESS_SECRET_KEY is required", ErrMisconfigured)
	}
	if cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("%w: JWT_REFRESH_SECRET_KEY is required", ErrMisconfigured)
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("%w: access and refresh keys must differ", ErrMisconfigured)
	}
	if cfg.AccessTTL <= 0 {
		return nil, fmt.Errorf("%w: invalid JWT_ACCESS_TTL", ErrMisconfigured)
	}
	if cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%w: invalid JWT_REFRESH_TTL", ErrMisconfigured)
	}

	return &TokenCodec{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}, nil
}

// WithClock returns a copy of the codec reading time from now.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	cp := *c
	cp.now = now
	return &cp
}

func (c *TokenCodec) AccessTTL() time.Duration {
	return c.accessTTL
}

func (c *TokenCodec) RefreshTTL() time.Duration {
	return c.refreshTTL
}

func (c *TokenCodec) GenerateAccessToken(p model.Identity) (string, error) {
	return c.generate(p, tokenTypeAccess, c.accessSecret, c.accessTTL)
}

func (c *TokenCodec) GenerateRefreshToken(p model.Identity) (string, error) {
	return c.generate(p, tokenTypeRefresh, c.refreshSecret, c.refreshTTL)
}

// GeneratePair mints both tokens from the same payload.
func (c *TokenCodec) GeneratePair(p model.Identity) (model.TokenPair, error) {
	access, err := c.GenerateAccessToken(p)
	if err != nil {
		return model.TokenPair{}, err
	}
	refresh, err := c.GenerateRefreshToken(p)
	if err != nil {
		return model.TokenPair{}, err
	}
	return model.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (c *TokenCodec) DecodeAccessToken(token string) (model.Identity, error) {
	return c.decode(token, tokenTypeAccess, c.accessSecret)
}

func (c *TokenCodec) DecodeRefreshToken(token string) (model.Identity, error) {
	return c.decode(token, tokenTypeRefresh, c.refreshSecret)
}

func (c *TokenCodec) IsValidAccessToken(token string) bool {
	_, err := c.DecodeAccessToken(token)
	return err == nil
}

func (c *TokenCodec) IsValidRefreshToken(token string) bool {
	_, err := c.DecodeRefreshToken(token)
	return err == nil
}

func (c *TokenCodec) generate(p model.Identity, typ string, secret []byte, ttl time.Duration) (string, error) {
	now := c.now()
	claims := tokenClaims{
		Username:  p.Username,
		RoleID:    p.RoleID,
		StateID:   p.StateID,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(p.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return signed, nil
}

func (c *TokenCodec) decode(token, typ string, secret []byte) (model.Identity, error) {
	if token == "" {
		return model.Identity{}, model.ErrInvalidSignature
	}

	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Identity{}, model.ErrExpired
		}
		return model.Identity{}, model.ErrInvalidSignature
	}
	if !parsed.Valid || claims.TokenType != typ {
		return model.Identity{}, model.ErrInvalidSignature
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return model.Identity{}, model.ErrInvalidSignature
	}

	return model.Identity{
		ID:       id,
		Username: claims.Username,
		RoleID:   claims.RoleID,
		StateID:  claims.StateID,
	}, nil
}
