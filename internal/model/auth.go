package model

import "time"

type SignUpRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type SignInRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenPair is an access token and a refresh token minted together.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type Role int

const (
	RoleUser      Role = 1
	RoleModerator Role = 2
	RoleAdmin     Role = 3
)

type UserState int

const (
	StateNotConfirmed UserState = 1
	StateActive       UserState = 2
	StateBlocked      UserState = 3
	StateDeleted      UserState = 4
)

// CanAuthenticate reports whether an account in this state may sign in or refresh.
func (s UserState) CanAuthenticate() bool {
	return s == StateNotConfirmed || s == StateActive
}

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	RoleID       Role
	StateID      UserState
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
