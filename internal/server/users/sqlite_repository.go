package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/studyctl/internal/dbx"
	"github.com/dmitrijs2005/studyctl/internal/server/migrations"
)

// SQLiteRepository stores accounts in the users table.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// OpenDB opens the account database at dsn and applies pending migrations.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open users db: %w", err)
	}
	db.SetMaxOpenConns(1)

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
	if err == nil {
		_, err = provider.Up(ctx)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate users db: %w", err)
	}
	return db, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, user *User) (*User, error) {
	query :=
		`INSERT INTO users (id, login, email, name, salt, verifier, email_verified, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 `

	_, err := r.db.ExecContext(ctx, query,
		user.ID, loginKey(user.Email), user.Email, user.Name,
		user.Salt, user.Verifier, user.EmailVerified, user.CreatedAt.UnixMilli())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return clone(user), nil
}

const selectUser = `SELECT id, email, name, salt, verifier, email_verified, created_at FROM users `

func (r *SQLiteRepository) GetUserByLogin(ctx context.Context, login string) (*User, error) {
	return r.get(ctx, selectUser+`WHERE login = ?`, loginKey(login))
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.get(ctx, selectUser+`WHERE id = ?`, id)
}

func (r *SQLiteRepository) get(ctx context.Context, query string, arg any) (*User, error) {
	var (
		user      User
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.Name, &user.Salt, &user.Verifier, &user.EmailVerified, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &user, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, user *User) error {
	query :=
		`UPDATE users SET name = ?, salt = ?, verifier = ?, email_verified = ?
		 WHERE id = ?
		 `

	res, err := r.db.ExecContext(ctx, query, user.Name, user.Salt, user.Verifier, user.EmailVerified, user.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
