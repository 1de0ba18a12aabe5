package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"feedwatch/internal/model"
	"feedwatch/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

const subscriptionColumns = `id, destination_id, kind, source_id,
	title_regex, title_case_sensitive,
	content_regex, content_case_sensitive,
	name_regex, name_case_sensitive,
	tripcode_regex, tripcode_case_sensitive,
	filename_regex, filename_case_sensitive,
	thread_subject_regex, thread_subject_case_sensitive,
	min_engagement, root_only, annotation, created_at`

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// AddSubscription inserts sub unless an identical subscription exists or the
// destination is at its quota. It populates ID and CreatedAt on success.
func (s *SQLite) AddSubscription(ctx context.Context, sub *model.Subscription) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	args := subscriptionArgs(sub)

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions
		 WHERE destination_id = ? AND kind = ? AND source_id = ?
		   AND title_regex IS ? AND title_case_sensitive = ?
		   AND content_regex IS ? AND content_case_sensitive = ?
		   AND name_regex IS ? AND name_case_sensitive = ?
		   AND tripcode_regex IS ? AND tripcode_case_sensitive = ?
		   AND filename_regex IS ? AND filename_case_sensitive = ?
		   AND thread_subject_regex IS ? AND thread_subject_case_sensitive = ?
		   AND min_engagement IS ? AND root_only IS ? AND annotation IS ?`,
		args...,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check duplicate: %w", err)
	}
	if exists > 0 {
		return ErrDuplicate
	}

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE destination_id = ?`, sub.DestinationID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("count subscriptions: %w", err)
	}
	if count >= model.MaxSubscriptionsPerDestination {
		return ErrQuotaExceeded
	}

	now := time.Now().UTC().Format(timeLayout)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO subscriptions (destination_id, kind, source_id,
			title_regex, title_case_sensitive,
			content_regex, content_case_sensitive,
			name_regex, name_case_sensitive,
			tripcode_regex, tripcode_case_sensitive,
			filename_regex, filename_case_sensitive,
			thread_subject_regex, thread_subject_case_sensitive,
			min_engagement, root_only, annotation, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append(args, now)...,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	sub.ID = id
	sub.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListSubscriptions returns every subscription across all destinations.
func (s *SQLite) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// ListSubscriptionsFor returns the subscriptions belonging to a destination.
func (s *SQLite) ListSubscriptionsFor(ctx context.Context, destinationID string) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE destination_id = ? ORDER BY id`,
		destinationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// ListSources returns the distinct source identifiers subscribed to for kind.
func (s *SQLite) ListSources(ctx context.Context, kind model.SourceKind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT source_id FROM subscriptions WHERE kind = ? ORDER BY source_id`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sources []string
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// DeleteSubscription removes one subscription owned by destinationID.
func (s *SQLite) DeleteSubscription(ctx context.Context, destinationID string, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE id = ? AND destination_id = ?`, id, destinationID,
	)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSubscriptionsFor removes all subscriptions of a destination and
// reports how many were deleted.
func (s *SQLite) DeleteSubscriptionsFor(ctx context.Context, destinationID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE destination_id = ?`, destinationID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete subscriptions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// IsDelivered checks whether an item was already recorded for a destination.
func (s *SQLite) IsDelivered(ctx context.Context, destinationID, itemID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_ledger WHERE destination_id = ? AND item_id = ?`,
		destinationID, itemID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check delivered: %w", err)
	}
	return count > 0, nil
}

// RecordDelivery inserts a ledger row. The primary key on
// (destination_id, item_id) makes the first insert win.
func (s *SQLite) RecordDelivery(ctx context.Context, destinationID, itemID string) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_ledger (destination_id, item_id, delivered_at) VALUES (?, ?, ?)
		 ON CONFLICT (destination_id, item_id) DO NOTHING`,
		destinationID, itemID, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrAlreadyDelivered
	}
	return nil
}

// CountDeliveries returns the number of ledger rows for a destination.
func (s *SQLite) CountDeliveries(ctx context.Context, destinationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_ledger WHERE destination_id = ?`, destinationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count deliveries: %w", err)
	}
	return count, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func patternArgs(p *model.Pattern) (any, int) {
	if p == nil {
		return nil, 0
	}
	return p.Expr, boolToInt(p.CaseSensitive)
}

// subscriptionArgs returns the tuple that identifies a subscription, in
// column order. Unset fields become NULL.
func subscriptionArgs(sub *model.Subscription) []any {
	args := []any{sub.DestinationID, string(sub.Kind), sub.SourceID}
	for _, p := range []*model.Pattern{sub.Title, sub.Content, sub.Name, sub.Tripcode, sub.Filename, sub.ThreadSubject} {
		expr, cs := patternArgs(p)
		args = append(args, expr, cs)
	}

	var minEngagement, rootOnly, annotation any
	if sub.MinEngagement != nil {
		minEngagement = *sub.MinEngagement
	}
	if sub.RootOnly != nil {
		rootOnly = boolToInt(*sub.RootOnly)
	}
	if sub.Annotation != "" {
		annotation = sub.Annotation
	}
	return append(args, minEngagement, rootOnly, annotation)
}

type scannable interface {
	Scan(dest ...any) error
}

type nullPattern struct {
	expr sql.NullString
	cs   int
}

func (n nullPattern) pattern() *model.Pattern {
	if !n.expr.Valid {
		return nil
	}
	return &model.Pattern{Expr: n.expr.String, CaseSensitive: n.cs == 1}
}

func scanSubscription(row scannable) (model.Subscription, error) {
	var (
		sub                                             model.Subscription
		kind, created                                   string
		title, content, name, trip, file, threadSubject nullPattern
		minEngagement, rootOnly                         sql.NullInt64
		annotation                                      sql.NullString
	)
	err := row.Scan(&sub.ID, &sub.DestinationID, &kind, &sub.SourceID,
		&title.expr, &title.cs,
		&content.expr, &content.cs,
		&name.expr, &name.cs,
		&trip.expr, &trip.cs,
		&file.expr, &file.cs,
		&threadSubject.expr, &threadSubject.cs,
		&minEngagement, &rootOnly, &annotation, &created,
	)
	if err != nil {
		return sub, fmt.Errorf("scan subscription: %w", err)
	}

	sub.Kind = model.SourceKind(kind)
	sub.Title = title.pattern()
	sub.Content = content.pattern()
	sub.Name = name.pattern()
	sub.Tripcode = trip.pattern()
	sub.Filename = file.pattern()
	sub.ThreadSubject = threadSubject.pattern()
	if minEngagement.Valid {
		v := int(minEngagement.Int64)
		sub.MinEngagement = &v
	}
	if rootOnly.Valid {
		v := rootOnly.Int64 == 1
		sub.RootOnly = &v
	}
	sub.Annotation = annotation.String
	sub.CreatedAt, _ = time.Parse(timeLayout, created)
	return sub, nil
}

func scanSubscriptions(rows *sql.Rows) ([]model.Subscription, error) {
	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// IsRejection reports whether err is a user-facing subscription rejection
// rather than a storage failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrDuplicate) || errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrNotFound)
}
