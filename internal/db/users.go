package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/milk-back/backend/internal/model"
)

const userColumns = `id, username, email, password_hash, role_id, state_id, created_at, updated_at`

func (db *Postgres) CreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	query := `
		INSERT INTO users (username, email, password_hash, role_id, state_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING ` + userColumns
	created, err := scanUser(db.Pool.QueryRow(ctx, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		int(user.RoleID),
		int(user.StateID),
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.ErrUserExists
		}
		return nil, err
	}
	return created, nil
}

func (db *Postgres) FindByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return notFound(scanUser(db.Pool.QueryRow(ctx, query, id)))
}

// 대소문자 구분 없이 조회
func (db *Postgres) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(username) = LOWER($1)`
	return notFound(scanUser(db.Pool.QueryRow(ctx, query, username)))
}

func (db *Postgres) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return notFound(scanUser(db.Pool.QueryRow(ctx, query, email)))
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		user    model.User
		roleID  int
		stateID int
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&roleID,
		&stateID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.RoleID = model.Role(roleID)
	user.StateID = model.UserState(stateID)
	return &user, nil
}

func notFound(user *model.User, err error) (*model.User, error) {
	if err != nil {
		if IsNoRows(err) {
			return nil, model.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}
