package lifeevent

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lifeline/pkg/domain"
	"lifeline/pkg/platform/sentinel"
	txcontext "lifeline/pkg/platform/tx"
)

// PostgresRecordStore persists life-event envelopes in PostgreSQL.
// Deduplication is a unique constraint on source_event_id, so concurrent
// replicas inserting the same delivery converge on one row.
type PostgresRecordStore struct {
	db    *sql.DB
	clock Clock
}

// PostgresRecordStoreOption configures a PostgresRecordStore.
type PostgresRecordStoreOption func(*PostgresRecordStore)

// WithPostgresRecordClock sets the clock function for testability.
func WithPostgresRecordClock(clock Clock) PostgresRecordStoreOption {
	return func(s *PostgresRecordStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewPostgresRecordStore(db *sql.DB, opts ...PostgresRecordStoreOption) *PostgresRecordStore {
	s := &PostgresRecordStore{
		db:    db,
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresRecordStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresRecordStore) Insert(ctx context.Context, rec Record) (bool, error) {
	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	status := rec.Status
	if status == "" {
		status = RecordReceived
	}

	query := `
		INSERT INTO life_events (
			id, source_event_id, subject_id, category, change_type,
			status, received_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_event_id) DO NOTHING
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		id,
		rec.SourceEventID,
		rec.Subject.String(),
		string(rec.Category),
		string(rec.ChangeType),
		string(status),
		rec.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert life event: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert life event rows affected: %w", err)
	}
	return inserted > 0, nil
}

func (s *PostgresRecordStore) MarkOutcome(ctx context.Context, sourceEventID string, status RecordStatus) error {
	query := `
		UPDATE life_events
		SET status = $2, processed_at = $3
		WHERE source_event_id = $1 AND status = 'RECEIVED'
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, sourceEventID, string(status), s.clock())
	if err != nil {
		return fmt.Errorf("mark life event %s: %w", status, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark life event rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		err := s.execer(ctx).QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM life_events WHERE source_event_id = $1)`, sourceEventID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check life event existence: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresRecordStore) GetBySourceEvent(ctx context.Context, sourceEventID string) (Record, error) {
	query := `
		SELECT id, source_event_id, subject_id, category, change_type,
		       status, received_at, processed_at
		FROM life_events
		WHERE source_event_id = $1
	`
	var (
		rec         Record
		subject     string
		category    string
		changeType  string
		status      string
		processedAt sql.NullTime
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, sourceEventID).Scan(
		&rec.ID, &rec.SourceEventID, &subject, &category, &changeType,
		&status, &rec.ReceivedAt, &processedAt,
	)
	if err == sql.ErrNoRows {
		return Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("query life event: %w", err)
	}

	rec.Subject = domain.PersonID(subject)
	rec.Category = Category(category)
	rec.ChangeType = ChangeType(changeType)
	rec.Status = RecordStatus(status)
	if processedAt.Valid {
		t := processedAt.Time
		rec.ProcessedAt = &t
	}
	return rec, nil
}
