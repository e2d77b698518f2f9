package session

import (
	"context"
	"embed"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilnhq/kiln/pkg/db"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresStore keeps sessions in the kiln_sessions table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore. Call MigratePostgres once at boot.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// MigratePostgres applies the session table migrations.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	return db.Migrate(ctx, pool, db.MigrationSet{
		FS:    migrations,
		Dir:   "migrations",
		Table: "kiln_session_migrations",
	}, log)
}

const upsertSession = `
INSERT INTO kiln_sessions (id, token, user_id, data, ip, user_agent, created_at, last_active_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    token = EXCLUDED.token,
    user_id = EXCLUDED.user_id,
    data = EXCLUDED.data,
    last_active_at = EXCLUDED.last_active_at,
    expires_at = EXCLUDED.expires_at`

func (p *PostgresStore) Create(ctx context.Context, s *Session) error {
	return p.upsert(ctx, s)
}

func (p *PostgresStore) Update(ctx context.Context, s *Session) error {
	return p.upsert(ctx, s)
}

func (p *PostgresStore) upsert(ctx context.Context, s *Session) error {
	values, err := json.Marshal(s.Values)
	if err != nil {
		return errors.Wrap(err, "session: encode values")
	}
	_, err = p.pool.Exec(ctx, upsertSession,
		s.ID, s.Token, s.UserID, values, s.IP, s.UserAgent,
		s.CreatedAt, s.LastActiveAt, s.ExpiresAt)
	return errors.Wrap(err, "session: postgres upsert")
}

func (p *PostgresStore) Get(ctx context.Context, token string) (*Session, error) {
	var (
		r      record
		values []byte
	)
	err := p.pool.QueryRow(ctx, `
SELECT id, token, user_id, data, ip, user_agent, created_at, last_active_at, expires_at
FROM kiln_sessions WHERE token = $1`, token).
		Scan(&r.ID, &r.Token, &r.UserID, &values, &r.IP, &r.UserAgent, &r.CreatedAt, &r.LastActiveAt, &r.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "session: postgres get")
	}
	if err := json.Unmarshal(values, &r.Values); err != nil {
		return nil, errors.Wrap(err, "session: decode values")
	}
	s := r.session()
	if s.IsExpired() {
		return nil, ErrExpired
	}
	return s, nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM kiln_sessions WHERE id = $1`, id)
	return errors.Wrap(err, "session: postgres delete")
}

func (p *PostgresStore) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM kiln_sessions WHERE user_id = $1`, userID)
	return errors.Wrap(err, "session: postgres delete user")
}

// Sweep removes rows that expired before the given time.
func (p *PostgresStore) Sweep(ctx context.Context, before time.Time) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM kiln_sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, errors.Wrap(err, "session: postgres sweep")
	}
	return int(tag.RowsAffected()), nil
}
