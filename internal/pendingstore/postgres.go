package pendingstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Rayan-Walnut/wp-cloud/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx, so the
// store works inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists pending deployments in a single table. Put is an
// upsert and Remove is a plain delete, matching the file backend's
// insert-or-overwrite and delete-if-present semantics.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore creates a PostgresStore backed by the given connection.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the pending_deployments table if it does not exist,
// mirroring the file backend's create-empty-on-first-run behavior.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS pending_deployments (
		 session_id TEXT PRIMARY KEY,
		 username   TEXT NOT NULL,
		 domain     TEXT NOT NULL,
		 email      TEXT NOT NULL,
		 created_at TIMESTAMPTZ NOT NULL
		 )`,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeStorageWrite, "failed to create pending_deployments table", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, sessionID string, record types.PendingDeployment) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO pending_deployments (session_id, username, domain, email, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id) DO UPDATE
		 SET username = EXCLUDED.username,
		     domain = EXCLUDED.domain,
		     email = EXCLUDED.email,
		     created_at = EXCLUDED.created_at`,
		sessionID,
		record.Username,
		record.Domain,
		record.Email,
		record.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeStorageWrite, "failed to store pending deployment", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID string) (types.PendingDeployment, bool, error) {
	row := s.db.QueryRow(ctx,
		`SELECT username, domain, email, created_at
		 FROM pending_deployments
		 WHERE session_id = $1`,
		sessionID,
	)

	var record types.PendingDeployment
	err := row.Scan(&record.Username, &record.Domain, &record.Email, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.PendingDeployment{}, false, nil
		}
		return types.PendingDeployment{}, false, types.NewAppError(
			types.ErrCodeStorageRead, "failed to read pending deployment", err)
	}
	return record, true, nil
}

func (s *PostgresStore) Remove(ctx context.Context, sessionID string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM pending_deployments WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeStorageWrite, "failed to remove pending deployment", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) (map[string]types.PendingDeployment, error) {
	rows, err := s.db.Query(ctx,
		`SELECT session_id, username, domain, email, created_at
		 FROM pending_deployments`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeStorageRead, "failed to list pending deployments", err)
	}
	defer rows.Close()

	records := map[string]types.PendingDeployment{}
	for rows.Next() {
		var sessionID string
		var record types.PendingDeployment
		if err := rows.Scan(&sessionID, &record.Username, &record.Domain, &record.Email, &record.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeStorageRead, "failed to scan pending deployment", err)
		}
		records[sessionID] = record
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeStorageRead, "failed to iterate pending deployments", err)
	}
	return records, nil
}
