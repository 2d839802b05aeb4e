// Package store persists users and their provider tokens in SQLite or
// PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"swipify/pkg/store/migrations"
	"swipify/pkg/user"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const userColumns = `id, provider, external_id, display_name, email, avatar_url,
	access_token, refresh_token, token_type, scope, token_expires_at, created_at, updated_at`

// Store implements user.Store on database/sql.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
	log    zerolog.Logger
}

var _ user.Store = (*Store)(nil)

// Open connects to the database for driver and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		db, err = sql.Open("sqlite", dsn)
		if err == nil {
			// a single connection keeps in-memory databases alive and serializes writers
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	return &Store{db: db, driver: driver, now: time.Now, log: zerolog.Nop()}, nil
}

// WithLogger sets the logger migrations report through.
func (s *Store) WithLogger(log zerolog.Logger) *Store {
	s.log = log
	return s
}

// Migrate applies the embedded migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{log: s.log.With().Str("component", "migrate").Logger()})

	dialect := "sqlite3"
	if s.driver == DriverPostgres {
		dialect = "pgx"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}

	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts or updates the user identified by (provider, external id).
// The conflict clause makes concurrent first logins converge on one row.
func (s *Store) Upsert(ctx context.Context, p user.Profile, tok user.TokenSet) (*user.User, error) {
	if p.Provider == "" || p.ExternalID == "" {
		return nil, errors.New("profile requires provider and external id")
	}

	now := s.now().UTC()
	q := s.rebind(`INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, external_id) DO UPDATE SET
			display_name = excluded.display_name,
			email = excluded.email,
			avatar_url = excluded.avatar_url,
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token <> '' THEN excluded.refresh_token ELSE users.refresh_token END,
			token_type = excluded.token_type,
			scope = excluded.scope,
			token_expires_at = excluded.token_expires_at,
			updated_at = excluded.updated_at
		RETURNING ` + userColumns)

	row := s.db.QueryRowContext(ctx, q,
		uuid.NewString(), p.Provider, p.ExternalID, p.DisplayName, p.Email, p.AvatarURL,
		tok.AccessToken, tok.RefreshToken, tok.TokenType, tok.Scope, toMillis(tok.ExpiresAt),
		toMillis(now), toMillis(now),
	)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

func (s *Store) Get(ctx context.Context, id string) (*user.User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetByExternalID looks a user up by provider identity.
func (s *Store) GetByExternalID(ctx context.Context, provider, externalID string) (*user.User, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+userColumns+` FROM users WHERE provider = ? AND external_id = ?`),
		provider, externalID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by external id: %w", err)
	}
	return u, nil
}

// UpdateToken replaces the stored token set. An empty refresh token keeps
// the stored one.
func (s *Store) UpdateToken(ctx context.Context, id string, tok user.TokenSet) error {
	q := s.rebind(`UPDATE users SET
		access_token = ?,
		refresh_token = CASE WHEN ? <> '' THEN ? ELSE refresh_token END,
		token_type = ?,
		scope = ?,
		token_expires_at = ?,
		updated_at = ?
		WHERE id = ?`)

	res, err := s.db.ExecContext(ctx, q,
		tok.AccessToken, tok.RefreshToken, tok.RefreshToken, tok.TokenType, tok.Scope,
		toMillis(tok.ExpiresAt), toMillis(s.now().UTC()), id)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

// Count returns the number of stored users.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*user.User, error) {
	var (
		u                           user.User
		expiresAt, created, updated int64
	)
	err := row.Scan(&u.ID, &u.Provider, &u.ExternalID, &u.DisplayName, &u.Email, &u.AvatarURL,
		&u.Token.AccessToken, &u.Token.RefreshToken, &u.Token.TokenType, &u.Token.Scope,
		&expiresAt, &created, &updated)
	if err != nil {
		return nil, err
	}
	u.Token.ExpiresAt = fromMillis(expiresAt)
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return &u, nil
}

// gooseLogger routes goose output through zerolog instead of the log package.
type gooseLogger struct {
	log zerolog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Fatal().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
