package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"KnowledgeSync/internal/domain"
	"KnowledgeSync/internal/ports"
)

const defaultTable = "upload_sessions"

// PostgresStore persists upload sessions into Postgres.
type PostgresStore struct {
	db    *sql.DB
	table string
	psql  sq.StatementBuilderType
}

var _ ports.SessionStore = (*PostgresStore)(nil)

// OpenPostgres opens and pings a lib/pq connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	if table == "" {
		table = defaultTable
	}
	return &PostgresStore{
		db:    db,
		table: table,
		psql:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// EnsureSchema creates the sessions table when missing.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS ` + p.table + ` (
              session_key TEXT PRIMARY KEY,
              completed_count INTEGER NOT NULL DEFAULT 0,
              current_batch_index INTEGER NOT NULL DEFAULT 0,
              fingerprint TEXT NOT NULL DEFAULT '',
              failed_articles JSONB NOT NULL DEFAULT '[]',
              updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
            )`
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	return nil
}

// Load returns the stored session or an empty one for key.
func (p *PostgresStore) Load(ctx context.Context, key string) (domain.UploadSession, error) {
	query, args, err := p.psql.
		Select("completed_count", "current_batch_index", "fingerprint", "failed_articles").
		From(p.table).
		Where(sq.Eq{"session_key": key}).
		ToSql()
	if err != nil {
		return domain.UploadSession{}, fmt.Errorf("build select: %w", err)
	}

	s := domain.UploadSession{Key: key}
	var failed []byte
	err = p.db.QueryRowContext(ctx, query, args...).Scan(&s.CompletedCount, &s.CurrentBatchIndex, &s.Fingerprint, &failed)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return domain.UploadSession{}, fmt.Errorf("query session: %w", err)
	}

	if len(failed) > 0 {
		if err := json.Unmarshal(failed, &s.FailedArticles); err != nil {
			return domain.UploadSession{}, fmt.Errorf("decode failed articles: %w", err)
		}
	}
	return s, nil
}

// Save upserts the session snapshot.
func (p *PostgresStore) Save(ctx context.Context, s domain.UploadSession) error {
	failed := s.FailedArticles
	if failed == nil {
		failed = []domain.FailedArticle{}
	}
	payload, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("encode failed articles: %w", err)
	}

	query, args, err := p.psql.
		Insert(p.table).
		Columns("session_key", "completed_count", "current_batch_index", "fingerprint", "failed_articles").
		Values(s.Key, s.CompletedCount, s.CurrentBatchIndex, s.Fingerprint, payload).
		Suffix(`ON CONFLICT (session_key) DO UPDATE
              SET completed_count = EXCLUDED.completed_count,
                  current_batch_index = EXCLUDED.current_batch_index,
                  fingerprint = EXCLUDED.fingerprint,
                  failed_articles = EXCLUDED.failed_articles,
                  updated_at = NOW()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}
