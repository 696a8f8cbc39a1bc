// Package pgstore keeps outbox records in the outbox_events table.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/co2market/auth-service/pkg/outbox"
	"github.com/co2market/auth-service/pkg/persistence/postgres"
	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration creates the outbox_events table.
func Migration() postgres.Migration {
	return postgres.Migration{
		Name:  "outbox",
		FS:    migrationsFS,
		Dir:   "migrations",
		Table: "outbox_schema_migrations",
	}
}

const columns = `id, event_id, event_type, routing_key, payload, headers, created_at, published_at, published,
	retry_count, error_message, status, next_attempt_at, locked_until, lock_owner, abandoned_at`

type row struct {
	ID            int64             `db:"id"`
	EventID       string            `db:"event_id"`
	EventType     string            `db:"event_type"`
	RoutingKey    string            `db:"routing_key"`
	Payload       string            `db:"payload"`
	Headers       map[string]string `db:"headers"`
	CreatedAt     time.Time         `db:"created_at"`
	PublishedAt   *time.Time        `db:"published_at"`
	Published     bool              `db:"published"`
	RetryCount    int               `db:"retry_count"`
	ErrorMessage  *string           `db:"error_message"`
	Status        string            `db:"status"`
	NextAttemptAt time.Time         `db:"next_attempt_at"`
	LockedUntil   *time.Time        `db:"locked_until"`
	LockOwner     *string           `db:"lock_owner"`
	AbandonedAt   *time.Time        `db:"abandoned_at"`
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (r row) toEvent() *outbox.Event {
	ev := &outbox.Event{
		ID:            strconv.FormatInt(r.ID, 10),
		EventID:       r.EventID,
		EventType:     r.EventType,
		RoutingKey:    r.RoutingKey,
		Payload:       []byte(r.Payload),
		Headers:       r.Headers,
		CreatedAt:     r.CreatedAt.UTC(),
		PublishedAt:   utc(r.PublishedAt),
		Published:     r.Published,
		RetryCount:    r.RetryCount,
		Status:        outbox.Status(r.Status),
		NextAttemptAt: r.NextAttemptAt.UTC(),
		LockedUntil:   utc(r.LockedUntil),
		AbandonedAt:   utc(r.AbandonedAt),
	}
	if r.ErrorMessage != nil {
		ev.ErrorMessage = *r.ErrorMessage
	}
	if r.LockOwner != nil {
		ev.LockOwner = *r.LockOwner
	}
	return ev
}

type store struct {
	db postgres.DB
}

// New returns an outbox.Store on db.
func New(db postgres.DB) outbox.Store {
	return &store{db: db}
}

func (s *store) Append(ctx context.Context, ev *outbox.Event) error {
	headers := ev.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	status := ev.Status
	if status == "" {
		status = outbox.StatusPending
	}

	var id int64
	err := s.db.Conn(ctx).QueryRow(ctx, `
		INSERT INTO outbox_events (event_id, event_type, routing_key, payload, headers, created_at,
			published, retry_count, status, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		ev.EventID, ev.EventType, ev.RoutingKey, string(ev.Payload), headers, ev.CreatedAt,
		ev.Published, ev.RetryCount, string(status), ev.NextAttemptAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", postgres.TranslateError(err))
	}
	ev.ID = strconv.FormatInt(id, 10)
	return nil
}

func (s *store) Claim(ctx context.Context, req outbox.ClaimRequest) ([]*outbox.Event, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, `
		WITH candidates AS (
			SELECT id FROM outbox_events
			WHERE status = 'PENDING'
			  AND published = FALSE
			  AND retry_count < $1
			  AND next_attempt_at <= $2
			  AND (locked_until IS NULL OR locked_until < $2)
			ORDER BY created_at, id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox_events o
		SET locked_until = $4, lock_owner = $5
		FROM candidates c
		WHERE o.id = c.id
		RETURNING o.*`,
		req.MaxRetries, req.Now, req.Limit, req.LockedUntil(), req.Owner,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}
	events, err := collect(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}
	// UPDATE ... RETURNING does not keep the CTE order.
	slices.SortFunc(events, func(a, b *outbox.Event) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	return events, nil
}

func compareIDs(a, b string) int {
	x, _ := strconv.ParseInt(a, 10, 64)
	y, _ := strconv.ParseInt(b, 10, 64)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func (s *store) ClaimForRedelivery(ctx context.Context, eventID, owner string, now time.Time, lease time.Duration) (*outbox.Event, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, `
		UPDATE outbox_events
		SET locked_until = $3, lock_owner = $2
		WHERE event_id = $1
		  AND published = FALSE
		  AND (locked_until IS NULL OR locked_until < $4)
		RETURNING `+columns,
		eventID, owner, now.Add(lease), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox event for redelivery: %w", err)
	}
	events, err := collect(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox event for redelivery: %w", err)
	}
	if len(events) == 0 {
		if _, err := s.FindByEventID(ctx, eventID); err != nil {
			return nil, err
		}
		return nil, outbox.ErrLeaseLost
	}
	return events[0], nil
}

func (s *store) MarkPublished(ctx context.Context, eventID, owner string, at time.Time) error {
	return s.updateLeased(ctx, `
		UPDATE outbox_events
		SET published = TRUE, published_at = $3, status = 'PUBLISHED', locked_until = NULL, lock_owner = NULL
		WHERE event_id = $1 AND lock_owner = $2 AND published = FALSE`,
		eventID, owner, at,
	)
}

func (s *store) MarkFailed(ctx context.Context, eventID, owner string, f outbox.Failure) error {
	return s.updateLeased(ctx, `
		UPDATE outbox_events
		SET retry_count = retry_count + 1,
		    error_message = $3,
		    next_attempt_at = $4,
		    status = CASE WHEN $5::boolean THEN 'ABANDONED' ELSE status END,
		    abandoned_at = CASE WHEN $5::boolean THEN $6::timestamptz ELSE abandoned_at END,
		    locked_until = NULL,
		    lock_owner = NULL
		WHERE event_id = $1 AND lock_owner = $2 AND published = FALSE`,
		eventID, owner, f.Reason, f.NextAttemptAt, f.Abandon, f.FailedAt,
	)
}

func (s *store) Release(ctx context.Context, eventID, owner, reason string) error {
	return s.updateLeased(ctx, `
		UPDATE outbox_events
		SET error_message = COALESCE(NULLIF($3::text, ''), error_message),
		    locked_until = NULL,
		    lock_owner = NULL
		WHERE event_id = $1 AND lock_owner = $2 AND published = FALSE`,
		eventID, owner, reason,
	)
}

func (s *store) updateLeased(ctx context.Context, sql string, args ...any) error {
	tag, err := s.db.Conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to update outbox event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return outbox.ErrLeaseLost
	}
	return nil
}

func (s *store) AbandonExhausted(ctx context.Context, maxRetries int, at time.Time) (int64, error) {
	tag, err := s.db.Conn(ctx).Exec(ctx, `
		UPDATE outbox_events
		SET status = 'ABANDONED', abandoned_at = $2
		WHERE status = 'PENDING'
		  AND published = FALSE
		  AND retry_count >= $1
		  AND (locked_until IS NULL OR locked_until < $2)`,
		maxRetries, at,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to abandon exhausted outbox events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *store) ListAbandoned(ctx context.Context, limit int) ([]*outbox.Event, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, `
		SELECT `+columns+`
		FROM outbox_events
		WHERE status = 'ABANDONED'
		ORDER BY abandoned_at DESC NULLS LAST, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list abandoned outbox events: %w", err)
	}
	events, err := collect(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list abandoned outbox events: %w", err)
	}
	return events, nil
}

func (s *store) FindByEventID(ctx context.Context, eventID string) (*outbox.Event, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, `SELECT `+columns+` FROM outbox_events WHERE event_id = $1`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to find outbox event: %w", err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[row])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, outbox.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find outbox event: %w", err)
	}
	return r.toEvent(), nil
}

func collect(rows pgx.Rows) ([]*outbox.Event, error) {
	rs, err := pgx.CollectRows(rows, pgx.RowToStructByName[row])
	if err != nil {
		return nil, err
	}
	events := make([]*outbox.Event, 0, len(rs))
	for _, r := range rs {
		events = append(events, r.toEvent())
	}
	return events, nil
}
