// Package sqlite provides a SQLite-backed implementation of instance.Store.
//
// WAL mode is enabled on Open so that readers never block writers and vice
// versa: the saga goroutines write while the HTTP status endpoint and the
// timeout monitor read concurrently.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mvaldes/food-ordering-sagas/internal/saga/instance"

	// Register the pure-Go SQLite driver.
	// modernc.org/sqlite is used instead of mattn/go-sqlite3 to avoid CGO
	// requirements, making it easier to build and run in Docker (Alpine).
	_ "modernc.org/sqlite"
)

// schema is the DDL executed once on startup.
const schema = `
CREATE TABLE IF NOT EXISTS saga_instances (
    id               TEXT PRIMARY KEY,
    saga_type        TEXT NOT NULL,
    state            TEXT NOT NULL,

    -- Schema-versioned JSON serialization of the typed saga context.
    context          TEXT,

    -- NULL when the caller supplied no key; uniqueness is enforced by the
    -- partial index below so duplicate creation requests collapse.
    idempotency_key  TEXT,

    created_at       TEXT NOT NULL,
    completed_at     TEXT,
    failure_reason   TEXT NOT NULL DEFAULT '',

    -- W3C trace_id active at saga creation, for joining with traces.
    trace_id         TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_saga_instances_idempotency_key
    ON saga_instances(idempotency_key) WHERE idempotency_key IS NOT NULL;

-- The timeout monitor sweeps by state.
CREATE INDEX IF NOT EXISTS idx_saga_instances_state ON saga_instances(state);

CREATE TABLE IF NOT EXISTS saga_step_executions (
    id               TEXT PRIMARY KEY,
    saga_instance_id TEXT NOT NULL REFERENCES saga_instances(id),
    step_name        TEXT NOT NULL,
    state            TEXT NOT NULL,
    result           TEXT NOT NULL DEFAULT '',
    started_at       TEXT NOT NULL,
    completed_at     TEXT,
    failure_reason   TEXT NOT NULL DEFAULT '',

    -- seq preserves dispatch order within an instance.
    seq              INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_step_executions_instance
    ON saga_step_executions(saga_instance_id, seq);
`

// Store is the SQLite implementation of instance.Store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at the given path and applies
// the schema.
//
//	store, err := sqlite.Open("./data/sagas.db")
func Open(path string) (*Store, error) {
	// The pure-Go driver uses _pragma query parameters to configure connection
	// state. WAL enables concurrent readers. busy_timeout waits for locks
	// instead of failing immediately.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// SQLite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection. Call it with defer in main().
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts the instance row and replaces its step execution rows in one
// transaction, so a reader never observes a half-written transition.
func (s *Store) Save(ctx context.Context, inst *instance.Instance) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin save for %q: %w", inst.ID, err)
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO saga_instances
			(id, saga_type, state, context, idempotency_key, created_at, completed_at, failure_reason, trace_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			context = excluded.context,
			idempotency_key = excluded.idempotency_key,
			completed_at = excluded.completed_at,
			failure_reason = excluded.failure_reason`

	_, err = tx.ExecContext(ctx, upsert,
		inst.ID,
		inst.SagaType,
		string(inst.State),
		nullableString(string(inst.Context)),
		nullableString(inst.IdempotencyKey),
		formatTime(inst.CreatedAt),
		nullableTime(inst.CompletedAt),
		inst.FailureReason,
		inst.TraceID,
	)
	if err != nil {
		if strings.Contains(err.Error(), "idx_saga_instances_idempotency_key") ||
			strings.Contains(err.Error(), "saga_instances.idempotency_key") {
			return instance.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("sqlite: save instance %q: %w", inst.ID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM saga_step_executions WHERE saga_instance_id = ?`, inst.ID); err != nil {
		return fmt.Errorf("sqlite: clear step executions for %q: %w", inst.ID, err)
	}

	const insertExec = `
		INSERT INTO saga_step_executions
			(id, saga_instance_id, step_name, state, result, started_at, completed_at, failure_reason, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for seq, exec := range inst.StepExecutions {
		_, err := tx.ExecContext(ctx, insertExec,
			exec.ID,
			exec.SagaInstanceID,
			exec.StepName,
			string(exec.State),
			exec.Result,
			formatTime(exec.StartedAt),
			nullableTime(exec.CompletedAt),
			exec.FailureReason,
			seq,
		)
		if err != nil {
			return fmt.Errorf("sqlite: save step execution %q/%q: %w", inst.ID, exec.StepName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit save for %q: %w", inst.ID, err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*instance.Instance, error) {
	return s.findOne(ctx, `WHERE id = ?`, id)
}

func (s *Store) FindByIdempotencyKey(ctx context.Context, key string) (*instance.Instance, error) {
	return s.findOne(ctx, `WHERE idempotency_key = ?`, key)
}

func (s *Store) FindByState(ctx context.Context, state instance.State) ([]*instance.Instance, error) {
	rows, err := s.db.QueryContext(ctx, selectInstances+` WHERE state = ?`, string(state))
	if err != nil {
		return nil, fmt.Errorf("sqlite: find by state %q: %w", state, err)
	}
	defer rows.Close()

	var out []*instance.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate by state %q: %w", state, err)
	}

	for _, inst := range out {
		if err := s.loadExecutions(ctx, inst); err != nil {
			return nil, err
		}
	}
	return out, nil
}

const selectInstances = `
	SELECT id, saga_type, state, COALESCE(context, ''), COALESCE(idempotency_key, ''),
	       created_at, COALESCE(completed_at, ''), failure_reason, trace_id
	FROM saga_instances`

func (s *Store) findOne(ctx context.Context, where string, arg any) (*instance.Instance, error) {
	row := s.db.QueryRowContext(ctx, selectInstances+" "+where, arg)
	inst, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, instance.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadExecutions(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(row scanner) (*instance.Instance, error) {
	var inst instance.Instance
	var contextJSON, createdAt, completedAt string
	err := row.Scan(
		&inst.ID,
		&inst.SagaType,
		&inst.State,
		&contextJSON,
		&inst.IdempotencyKey,
		&createdAt,
		&completedAt,
		&inst.FailureReason,
		&inst.TraceID,
	)
	if err != nil {
		return nil, err
	}
	if contextJSON != "" {
		inst.Context = []byte(contextJSON)
	}
	if inst.CreatedAt, err = parseRFC3339(createdAt); err != nil {
		return nil, err
	}
	if completedAt != "" {
		if inst.CompletedAt, err = parseRFC3339(completedAt); err != nil {
			return nil, err
		}
	}
	return &inst, nil
}

func (s *Store) loadExecutions(ctx context.Context, inst *instance.Instance) error {
	const q = `
		SELECT id, saga_instance_id, step_name, state, result,
		       started_at, COALESCE(completed_at, ''), failure_reason
		FROM saga_step_executions
		WHERE saga_instance_id = ?
		ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, q, inst.ID)
	if err != nil {
		return fmt.Errorf("sqlite: load step executions for %q: %w", inst.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var exec instance.StepExecution
		var startedAt, completedAt string
		err := rows.Scan(
			&exec.ID,
			&exec.SagaInstanceID,
			&exec.StepName,
			&exec.State,
			&exec.Result,
			&startedAt,
			&completedAt,
			&exec.FailureReason,
		)
		if err != nil {
			return fmt.Errorf("sqlite: scan step execution for %q: %w", inst.ID, err)
		}
		if exec.StartedAt, err = parseRFC3339(startedAt); err != nil {
			return err
		}
		if completedAt != "" {
			if exec.CompletedAt, err = parseRFC3339(completedAt); err != nil {
				return err
			}
		}
		inst.StepExecutions = append(inst.StepExecutions, exec)
	}
	return rows.Err()
}

// nullableString returns nil for empty strings so SQLite stores NULL instead
// of an empty TEXT, as required by the partial unique index on idempotency_key.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}
