// Package postgres implements the Gateway directly against a PostgreSQL
// database carrying the same schema as the hosted backend. Used by
// self-hosted deployments and integration tests. Attendance inserts run
// inside a serialized transaction so the store, not the client, enforces
// the capacity bound and the one-registration-per-user rule.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hallhub/hallhub/internal/gateway"
)

// Store is the pgx-backed Gateway implementation.
type Store struct {
	pool *pgxpool.Pool

	mu       sync.Mutex
	identity *gateway.Identity
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SetIdentity fixes the session user. Direct-database deployments have
// no auth service, so the operator supplies the identity.
func (s *Store) SetIdentity(id *gateway.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
}

// CurrentIdentity returns the configured session user, or nil when none
// is set.
func (s *Store) CurrentIdentity(ctx context.Context) (*gateway.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil, nil
	}
	id := *s.identity
	return &id, nil
}

var opSQL = map[gateway.Op]string{
	gateway.OpEq:  "=",
	gateway.OpNeq: "<>",
	gateway.OpGte: ">=",
	gateway.OpLte: "<=",
}

// Query selects rows matching the filters in the requested order.
func (s *Store) Query(ctx context.Context, collection string, filters []gateway.Filter, order []gateway.Order) ([]gateway.Record, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT * FROM %s", quote(collection))

	var args []any
	for i, f := range filters {
		op, ok := opSQL[f.Op]
		if !ok {
			return nil, fmt.Errorf("unsupported filter op %q", f.Op)
		}
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		args = append(args, f.Value)
		fmt.Fprintf(&sb, "%s %s $%d", quote(f.Field), op, len(args))
	}
	for i, o := range order {
		if i == 0 {
			sb.WriteString(" ORDER BY ")
		} else {
			sb.WriteString(", ")
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, "%s %s", quote(o.Field), dir)
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, wrapUnavailable(fmt.Errorf("query %s: %w", collection, err))
	}
	defer rows.Close()

	var out []gateway.Record
	for rows.Next() {
		rec, err := recordFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s row: %w", collection, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable(fmt.Errorf("query %s: %w", collection, err))
	}
	return out, nil
}

// Insert adds a row and returns the stored representation. Attendance
// rows go through the constrained registration transaction.
func (s *Store) Insert(ctx context.Context, collection string, rec gateway.Record) (gateway.Record, error) {
	if collection == gateway.CollectionAttendance {
		return s.insertAttendance(ctx, rec)
	}

	cols := make([]string, 0, len(rec))
	for col := range rec {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var quoted, placeholders []string
	var args []any
	for i, col := range cols {
		quoted = append(quoted, quote(col))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, rec[col])
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		quote(collection), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapUnavailable(fmt.Errorf("insert %s: %w", collection, err))
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, wrapUnavailable(fmt.Errorf("insert %s: %w", collection, err))
		}
		return nil, fmt.Errorf("insert %s: no row returned", collection)
	}
	created, err := recordFromRow(rows)
	if err != nil {
		return nil, fmt.Errorf("scan inserted %s row: %w", collection, err)
	}
	rows.Close()
	return created, rows.Err()
}

// insertAttendance registers a user for an event under a row lock on the
// event, serializing concurrent attempts from multiple devices:
// lock the event row, reject duplicates, reject over capacity, bump the
// counter, insert the attendance row, commit.
func (s *Store) insertAttendance(ctx context.Context, rec gateway.Record) (_ gateway.Record, err error) {
	userID := rec.String("user")
	eventID := rec.Int64("event")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, wrapUnavailable(fmt.Errorf("begin registration: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var max *int
	var current int
	err = tx.QueryRow(ctx,
		`SELECT "MaximumParticipants", "CurrentParticipants"
		 FROM "Events"
		 WHERE id = $1
		 FOR UPDATE`,
		eventID,
	).Scan(&max, &current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, gateway.NewError(gateway.CodeNotFound, fmt.Sprintf("event %d does not exist", eventID))
		}
		return nil, wrapUnavailable(fmt.Errorf("lock event row: %w", err))
	}

	var dupCount int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM attendance WHERE "user" = $1 AND event = $2`,
		userID, eventID,
	).Scan(&dupCount)
	if err != nil {
		return nil, wrapUnavailable(fmt.Errorf("check duplicate: %w", err))
	}
	if dupCount > 0 {
		return nil, gateway.NewError(gateway.CodeDuplicateRegistration,
			fmt.Sprintf("user %s already registered for event %d", userID, eventID))
	}

	if max != nil && current >= *max {
		return nil, gateway.NewError(gateway.CodeCapacityFull,
			fmt.Sprintf("event %d is at capacity (%d)", eventID, *max))
	}

	_, err = tx.Exec(ctx,
		`UPDATE "Events" SET "CurrentParticipants" = "CurrentParticipants" + 1 WHERE id = $1`,
		eventID,
	)
	if err != nil {
		return nil, wrapUnavailable(fmt.Errorf("increment participant count: %w", err))
	}

	id := uuid.New().String()
	var createdAt time.Time
	err = tx.QueryRow(ctx,
		`INSERT INTO attendance (id, "user", event, created_at)
		 VALUES ($1, $2, $3, now())
		 RETURNING created_at`,
		id, userID, eventID,
	).Scan(&createdAt)
	if err != nil {
		return nil, wrapUnavailable(fmt.Errorf("insert attendance: %w", err))
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, wrapUnavailable(fmt.Errorf("commit registration: %w", err))
	}

	return gateway.Record{
		"id":         id,
		"user":       userID,
		"event":      eventID,
		"created_at": createdAt.UTC().Format(time.RFC3339),
	}, nil
}

// Update patches the row with the given id.
func (s *Store) Update(ctx context.Context, collection string, id any, partial gateway.Record) error {
	cols := make([]string, 0, len(partial))
	for col := range partial {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var sets []string
	var args []any
	for i, col := range cols {
		args = append(args, partial[col])
		sets = append(sets, fmt.Sprintf("%s = $%d", quote(col), i+1))
	}
	args = append(args, id)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		quote(collection), strings.Join(sets, ", "), len(args))

	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return wrapUnavailable(fmt.Errorf("update %s: %w", collection, err))
	}
	if tag.RowsAffected() == 0 {
		return gateway.NewError(gateway.CodeNotFound, fmt.Sprintf("%s: no row with id %v", collection, id))
	}
	return nil
}

// Delete removes the row with the given id. Attendance deletes release
// the event's participant slot in the same transaction, so the counter
// never drifts from the row count.
func (s *Store) Delete(ctx context.Context, collection string, id any) (err error) {
	if collection != gateway.CollectionAttendance {
		tag, err := s.pool.Exec(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE id = $1", quote(collection)), id)
		if err != nil {
			return wrapUnavailable(fmt.Errorf("delete %s: %w", collection, err))
		}
		if tag.RowsAffected() == 0 {
			return gateway.NewError(gateway.CodeNotFound, fmt.Sprintf("%s: no row with id %v", collection, id))
		}
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrapUnavailable(fmt.Errorf("begin cancellation: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var eventID int64
	err = tx.QueryRow(ctx,
		`DELETE FROM attendance WHERE id = $1 RETURNING event`, id).Scan(&eventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return gateway.NewError(gateway.CodeNotFound, fmt.Sprintf("attendance: no row with id %v", id))
		}
		return wrapUnavailable(fmt.Errorf("delete attendance: %w", err))
	}

	_, err = tx.Exec(ctx,
		`UPDATE "Events"
		 SET "CurrentParticipants" = GREATEST("CurrentParticipants" - 1, 0)
		 WHERE id = $1`,
		eventID,
	)
	if err != nil {
		return wrapUnavailable(fmt.Errorf("decrement participant count: %w", err))
	}
	return tx.Commit(ctx)
}

// recordFromRow flattens the current row into a Record, rendering
// date and timestamp columns in the wire formats the catalog expects.
func recordFromRow(rows pgx.Rows) (gateway.Record, error) {
	values, err := rows.Values()
	if err != nil {
		return nil, err
	}
	rec := make(gateway.Record, len(values))
	for i, desc := range rows.FieldDescriptions() {
		rec[desc.Name] = normalizeValue(desc.Name, values[i])
	}
	return rec, nil
}

func normalizeValue(column string, v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	// Date and Deadline are DATE columns; everything else with a time
	// component is a timestamp.
	if column == "Date" || column == "Deadline" {
		return t.Format("2006-01-02")
	}
	return t.UTC().Format(time.RFC3339)
}

func quote(identifier string) string {
	return pgx.Identifier{identifier}.Sanitize()
}

// wrapUnavailable classifies infrastructure failures under the gateway
// error contract while keeping the cause in the message chain.
func wrapUnavailable(err error) error {
	return gateway.NewError(gateway.CodeUnavailable, err.Error())
}
