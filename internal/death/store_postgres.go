package death

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lifeline/pkg/domain"
	"lifeline/pkg/platform/sentinel"
	txcontext "lifeline/pkg/platform/tx"
)

// PostgresStore persists death events in PostgreSQL. The one-open-row
// invariant is enforced by a partial unique index on (deceased_id,
// affected_id) over non-terminal statuses, so concurrent replicas upserting
// the same observation converge instead of duplicating.
type PostgresStore struct {
	db    *sql.DB
	clock Clock
}

// PostgresStoreOption configures a PostgresStore.
type PostgresStoreOption func(*PostgresStore)

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(clock Clock) PostgresStoreOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewPostgresStore(db *sql.DB, opts ...PostgresStoreOption) *PostgresStore {
	s := &PostgresStore{
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
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) UpsertObservation(ctx context.Context, ev Event) error {
	id := ev.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := s.clock()

	query := `
		INSERT INTO death_events (
			id, deceased_id, affected_id, relation, date_of_death,
			source_event_id, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, 'NEW', $7, $7)
		ON CONFLICT (deceased_id, affected_id) WHERE status IN ('NEW', 'UPDATED')
		DO UPDATE SET
			relation        = EXCLUDED.relation,
			date_of_death   = EXCLUDED.date_of_death,
			source_event_id = EXCLUDED.source_event_id,
			status          = 'UPDATED',
			updated_at      = EXCLUDED.updated_at
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		id,
		ev.DeceasedID.String(),
		ev.AffectedID.String(),
		string(ev.Relation),
		ev.DateOfDeath,
		ev.SourceEventID,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert death event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReplaceUnresolved(ctx context.Context, parties UnresolvedParties) error {
	children, err := json.Marshal(orEmpty(parties.Children))
	if err != nil {
		return fmt.Errorf("marshal unresolved children: %w", err)
	}
	spouses, err := json.Marshal(orEmpty(parties.Spouses))
	if err != nil {
		return fmt.Errorf("marshal unresolved spouses: %w", err)
	}

	query := `
		INSERT INTO unresolved_affected_parties (deceased_id, children, spouses, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (deceased_id) DO UPDATE SET
			children   = EXCLUDED.children,
			spouses    = EXCLUDED.spouses,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		parties.DeceasedID.String(),
		children,
		spouses,
		s.clock(),
	)
	if err != nil {
		return fmt.Errorf("replace unresolved parties: %w", err)
	}
	return nil
}

func orEmpty(parties []PartialIdentity) []PartialIdentity {
	if parties == nil {
		return []PartialIdentity{}
	}
	return parties
}

func (s *PostgresStore) GetUnresolved(ctx context.Context, deceased domain.PersonID) (UnresolvedParties, error) {
	query := `
		SELECT children, spouses, updated_at
		FROM unresolved_affected_parties
		WHERE deceased_id = $1
	`
	var (
		childrenRaw []byte
		spousesRaw  []byte
		parties     = UnresolvedParties{DeceasedID: deceased}
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, deceased.String()).
		Scan(&childrenRaw, &spousesRaw, &parties.UpdatedAt)
	if err == sql.ErrNoRows {
		return UnresolvedParties{}, sentinel.ErrNotFound
	}
	if err != nil {
		return UnresolvedParties{}, fmt.Errorf("query unresolved parties: %w", err)
	}

	if err := json.Unmarshal(childrenRaw, &parties.Children); err != nil {
		return UnresolvedParties{}, fmt.Errorf("unmarshal unresolved children: %w", err)
	}
	if err := json.Unmarshal(spousesRaw, &parties.Spouses); err != nil {
		return UnresolvedParties{}, fmt.Errorf("unmarshal unresolved spouses: %w", err)
	}
	return parties, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status) ([]Event, error) {
	query := `
		SELECT id, deceased_id, affected_id, relation, date_of_death,
		       source_event_id, status, outcome, case_ref, letter_ref,
		       created_at, updated_at
		FROM death_events
		WHERE status = $1
		ORDER BY updated_at
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("query death events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var (
			ev       Event
			deceased string
			affected string
			relation string
			status   string
			outcome  sql.NullString
			caseRef  sql.NullString
			letter   sql.NullString
		)
		err := rows.Scan(
			&ev.ID, &deceased, &affected, &relation, &ev.DateOfDeath,
			&ev.SourceEventID, &status, &outcome, &caseRef, &letter,
			&ev.CreatedAt, &ev.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan death event: %w", err)
		}
		ev.DeceasedID = domain.PersonID(deceased)
		ev.AffectedID = domain.PersonID(affected)
		ev.Relation = RelationType(relation)
		ev.Status = Status(status)
		if outcome.Valid {
			o := Outcome(outcome.String)
			ev.Outcome = &o
		}
		if caseRef.Valid {
			ev.CaseRef = &caseRef.String
		}
		if letter.Valid {
			ev.LetterRef = &letter.String
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate death events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) MarkStatus(ctx context.Context, id uuid.UUID, status Status, outcome *Outcome, ref *string) error {
	var outcomeStr *string
	if outcome != nil {
		o := string(*outcome)
		outcomeStr = &o
	}

	// Only open rows may transition; the guard in SQL keeps the state
	// machine monotonic under concurrent writers.
	query := `
		UPDATE death_events
		SET status     = $2,
		    outcome    = COALESCE($3, outcome),
		    case_ref   = CASE WHEN $2 = 'DONE' THEN COALESCE($4, case_ref) ELSE case_ref END,
		    updated_at = $5
		WHERE id = $1 AND status IN ('NEW', 'UPDATED')
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, id, string(status), outcomeStr, ref, s.clock())
	if err != nil {
		return fmt.Errorf("mark death event %s: %w", status, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark death event rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		err := s.execer(ctx).QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM death_events WHERE id = $1)`, id,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check death event existence: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) CancelOpen(ctx context.Context, deceased domain.PersonID) (int, error) {
	query := `
		UPDATE death_events
		SET status = 'CANCELLED', outcome = 'CANCELLED', updated_at = $2
		WHERE deceased_id = $1 AND status IN ('NEW', 'UPDATED')
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, deceased.String(), s.clock())
	if err != nil {
		return 0, fmt.Errorf("cancel open death events: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cancel open rows affected: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) SetLetterOutcome(ctx context.Context, affected domain.PersonID, letterRef string, at time.Time) (int, error) {
	query := `
		UPDATE death_events
		SET letter_ref = $2, outcome = 'LETTER', updated_at = $3
		WHERE affected_id = $1 AND status = 'DONE' AND letter_ref IS NULL
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, affected.String(), letterRef, at)
	if err != nil {
		return 0, fmt.Errorf("set letter outcome: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("letter outcome rows affected: %w", err)
	}
	return int(count), nil
}

// WithinTx runs fn inside a single transaction; stores called through the
// returned context join it via the tx context key.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
