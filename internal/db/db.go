package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/xtrntr/landmarket/internal/auth"
	"github.com/xtrntr/landmarket/internal/marketplace"
	"github.com/xtrntr/landmarket/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	_ marketplace.Store = (*DB)(nil)
	_ auth.UserStore    = (*DB)(nil)
)

// DB wraps a PostgreSQL connection pool. Each method commits on its own; the
// listings, transactions, id_counters and config tables never share a transaction.
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// Ping checks the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type scanner interface {
	Scan(dest ...any) error
}

// CreateUser inserts a new user
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id, username, password_hash, created_at",
		username, passwordHash).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", auth.ErrUsernameTaken, username)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", auth.ErrUserNotFound, username)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// NextID bumps and returns the counter for kind in a single statement
func (db *DB) NextID(ctx context.Context, kind string) (uint64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO id_counters (kind, last_id) VALUES ($1, 1)
		ON CONFLICT (kind) DO UPDATE SET last_id = id_counters.last_id + 1
		RETURNING last_id`, kind).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", kind, err)
	}
	return uint64(id), nil
}

// GetConfig reads one configuration entry
func (db *DB) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.Pool.QueryRow(ctx, "SELECT value FROM config WHERE key = $1", key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get config %s: %w", key, err)
	}
	return value, true, nil
}

// SetConfig writes one configuration entry
func (db *DB) SetConfig(ctx context.Context, key, value string) error {
	_, err := db.Pool.Exec(ctx,
		"INSERT INTO config (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value",
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}
