package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// KeyPrefixLen is how many leading characters of an access key are stored
// in clear for lookup.
const KeyPrefixLen = 8

// KeyStore abstracts DB queries for testability.
type KeyStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*keyRow, error)
}

type keyRow struct {
	ID      string
	KeyHash string
	Label   string
	Revoked bool
}

// sqlKeyStore reads the access_keys table through database/sql and the pgx driver.
type sqlKeyStore struct {
	db *sql.DB
}

func (s *sqlKeyStore) LookupByPrefix(ctx context.Context, prefix string) (*keyRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, key_hash, label, revoked_at IS NOT NULL
		FROM access_keys
		WHERE key_prefix = $1
	`, prefix)

	var r keyRow
	if err := row.Scan(&r.ID, &r.KeyHash, &r.Label, &r.Revoked); err != nil {
		return nil, err
	}
	return &r, nil
}

// PostgresAuthenticator validates access keys against the access_keys table.
type PostgresAuthenticator struct {
	store  KeyStore
	cache  *Cache
	logger *zap.Logger
}

// PostgresAuthConfig configures the PostgresAuthenticator.
type PostgresAuthConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// NewPostgresAuthenticator creates a new PostgresAuthenticator.
func NewPostgresAuthenticator(cfg PostgresAuthConfig) *PostgresAuthenticator {
	return NewPostgresAuthenticatorWithStore(&sqlKeyStore{db: cfg.DB}, cfg.CacheTTL, cfg.Logger)
}

// NewPostgresAuthenticatorWithStore creates an authenticator with a custom store (for testing).
func NewPostgresAuthenticatorWithStore(store KeyStore, cacheTTL time.Duration, logger *zap.Logger) *PostgresAuthenticator {
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresAuthenticator{
		store:  store,
		cache:  NewCache(cacheTTL),
		logger: logger,
	}
}

func (a *PostgresAuthenticator) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	res := a.cache.Get(token)
	if res.Hit {
		if res.NeedsRefresh {
			go a.refreshInBackground(token)
		}
		return res.Principal, nil
	}

	p, err := a.authenticateFromDB(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil, err
		}
		return nil, fmt.Errorf("Authenticate: %w", err)
	}
	a.cache.Set(token, p)
	return p, nil
}

func (a *PostgresAuthenticator) authenticateFromDB(ctx context.Context, token string) (*Principal, error) {
	if len(token) < KeyPrefixLen {
		return nil, ErrUnauthenticated
	}

	row, err := a.store.LookupByPrefix(ctx, token[:KeyPrefixLen])
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("authenticateFromDB: %w", err)
	}
	if row.Revoked {
		return nil, ErrUnauthenticated
	}
	if err := bcrypt.CompareHashAndPassword([]byte(row.KeyHash), []byte(token)); err != nil {
		return nil, ErrUnauthenticated
	}
	return &Principal{Subject: row.ID, Label: row.Label}, nil
}

func (a *PostgresAuthenticator) refreshInBackground(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := a.authenticateFromDB(ctx, token)
	if errors.Is(err, ErrUnauthenticated) {
		a.cache.Delete(token)
		return
	}
	if err != nil {
		a.logger.Warn("background auth refresh failed", zap.Error(err))
		return
	}
	a.cache.Set(token, p)
}
