package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/studyctl/internal/client/migrations"
	"github.com/dmitrijs2005/studyctl/internal/dbx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Open opens (or creates) the cache database at dsn and applies pending
// migrations. ":memory:" is fine for tests: the pool is pinned to a single
// connection so every query sees the same in-memory database.
func Open(ctx context.Context, dsn string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return NewSQLiteRepository(db), nil
}

// Migrate brings the cache schema up to date.
func Migrate(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("init cache migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrate cache: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE namespace = ? AND key = ?`, namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache[%s/%s]: %w", namespace, key, err)
	}
	return value, nil
}

const upsertSQL = `
	INSERT INTO cache_entries (namespace, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

func (r *SQLiteRepository) Set(ctx context.Context, namespace, key string, value []byte) error {
	if _, err := r.db.ExecContext(ctx, upsertSQL, namespace, key, value); err != nil {
		return fmt.Errorf("failed to set cache[%s/%s]: %w", namespace, key, err)
	}
	return nil
}

// SetMany writes all values in one transaction: either every key is
// updated or none is.
func (r *SQLiteRepository) SetMany(ctx context.Context, namespace string, values map[string][]byte) error {
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for k, v := range values {
			if _, err := tx.ExecContext(ctx, upsertSQL, namespace, k, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set cache[%s]: %w", namespace, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, namespace string, keys ...string) error {
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM cache_entries WHERE namespace = ? AND key = ?`, namespace, k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete cache[%s]: %w", namespace, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context, namespace string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("failed to clear cache[%s]: %w", namespace, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, namespace string) (map[string][]byte, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM cache_entries WHERE namespace = ?`, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache[%s]: %w", namespace, err)
	}
	defer rows.Close()

	result := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan cache row: %w", err)
		}
		result[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cache rows: %w", err)
	}

	return result, nil
}
