package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davidbond17/pingpro/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id            TEXT PRIMARY KEY,
    host          TEXT NOT NULL,
    network_type  TEXT NOT NULL,
    start_time    TIMESTAMPTZ NOT NULL,
    end_time      TIMESTAMPTZ,
    quality_score INTEGER,
    is_background BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS sessions_start_time_idx ON sessions (start_time DESC);
CREATE TABLE IF NOT EXISTS samples (
    session_id   TEXT NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
    seq          INTEGER NOT NULL,
    ts           TIMESTAMPTZ NOT NULL,
    latency_ms   DOUBLE PRECISION,
    succeeded    BOOLEAN NOT NULL,
    host         TEXT NOT NULL,
    network_type TEXT NOT NULL,
    PRIMARY KEY (session_id, seq)
);
`

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL using the supplied connection string.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema creates the session tables when they are missing.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresStore) SaveSession(ctx context.Context, session types.Session) error {
	if err := validate(session); err != nil {
		return err
	}
	const insert = `
INSERT INTO sessions (id, host, network_type, start_time, end_time, quality_score, is_background)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
	host = EXCLUDED.host,
	network_type = EXCLUDED.network_type,
	start_time = EXCLUDED.start_time,
	end_time = EXCLUDED.end_time,
	quality_score = EXCLUDED.quality_score,
	is_background = EXCLUDED.is_background;
`
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insert,
			session.ID,
			session.Host,
			string(session.NetworkType),
			session.StartTime.UTC(),
			session.EndTime,
			session.QualityScore,
			session.IsBackground,
		)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM samples WHERE session_id = $1`, session.ID); err != nil {
			return err
		}
		if len(session.Samples) == 0 {
			return nil
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"samples"},
			[]string{"session_id", "seq", "ts", "latency_ms", "succeeded", "host", "network_type"},
			pgx.CopyFromSlice(len(session.Samples), func(i int) ([]any, error) {
				s := session.Samples[i]
				return []any{session.ID, i, s.Timestamp.UTC(), s.Latency, s.Succeeded, s.Host, string(s.NetworkType)}, nil
			}),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}

const selectSessions = `
SELECT id, host, network_type, start_time, end_time, quality_score, is_background
  FROM sessions
`

func scanSession(row pgx.Row) (types.Session, error) {
	var (
		s       types.Session
		nt      string
		endTime *time.Time
		score   *int32
	)
	if err := row.Scan(&s.ID, &s.Host, &nt, &s.StartTime, &endTime, &score, &s.IsBackground); err != nil {
		return types.Session{}, err
	}
	s.NetworkType = types.NetworkType(nt)
	s.StartTime = s.StartTime.UTC()
	if endTime != nil {
		end := endTime.UTC()
		s.EndTime = &end
	}
	if score != nil {
		v := int(*score)
		s.QualityScore = &v
	}
	return s, nil
}

func (p *PostgresStore) ListSessions(ctx context.Context, limit int) ([]types.Session, error) {
	query := selectSessions + " ORDER BY start_time DESC, id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []types.Session
	index := map[string]int{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		index[s.ID] = len(sessions)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		return sessions, nil
	}

	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	samples, err := p.loadSamples(ctx, ids)
	if err != nil {
		return nil, err
	}
	for id, list := range samples {
		sessions[index[id]].Samples = list
	}
	return sessions, nil
}

func (p *PostgresStore) loadSamples(ctx context.Context, ids []string) (map[string][]types.Sample, error) {
	const query = `
SELECT session_id, ts, latency_ms, succeeded, host, network_type
  FROM samples
 WHERE session_id = ANY($1)
 ORDER BY session_id, seq;
`
	rows, err := p.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("load samples: %w", err)
	}
	defer rows.Close()

	out := map[string][]types.Sample{}
	for rows.Next() {
		var (
			id string
			s  types.Sample
			nt string
		)
		if err := rows.Scan(&id, &s.Timestamp, &s.Latency, &s.Succeeded, &s.Host, &nt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		s.Timestamp = s.Timestamp.UTC()
		s.NetworkType = types.NetworkType(nt)
		out[id] = append(out[id], s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load samples: %w", err)
	}
	return out, nil
}

func (p *PostgresStore) GetSession(ctx context.Context, id string) (types.Session, error) {
	s, err := scanSession(p.pool.QueryRow(ctx, selectSessions+" WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return types.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	samples, err := p.loadSamples(ctx, []string{id})
	if err != nil {
		return types.Session{}, err
	}
	s.Samples = samples[id]
	return s, nil
}

func (p *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (p *PostgresStore) DeleteAll(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("delete all sessions: %w", err)
	}
	return nil
}

func (p *PostgresStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE start_time < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
