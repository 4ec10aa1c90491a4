// Package store persists follower records in a local SQLite file.
//
// Records are keyed by record_key (source id + subject account). Writing a
// record whose key already exists overwrites its fields in place, so the row
// keeps its id and its position in insertion order. Every read and delete is
// scoped to one subject account.
//
// Errors from this package are StoreIO errors, which callers treat as fatal
// to the process. The exception is a call abandoned because its context
// ended: that returns the context's error.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	errs "followsweep/pkg/errors"
	"followsweep/pkg/models"
)

// Table is the name of the follower table.
const Table = "followerdata"

type options struct {
	busyTimeout int
	now         func() time.Time
}

// Option customises Open.
type Option func(*options)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(o *options) { o.busyTimeout = ms } }

// WithClock overrides the timestamp source for updated_at.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// Store is the follower table. A single Store may be shared by one writer and
// any number of readers.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time

	// serializes writers; WAL lets readers proceed alongside
	writeMu sync.Mutex
}

// Open opens or creates the store at path and migrates it to the latest
// schema version.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	o := options{busyTimeout: 10_000, now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, ioErr(ctx, "store.open", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		path, o.busyTimeout)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ioErr(ctx, "store.open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, ioErr(ctx, "store.open", err)
	}
	if _, err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, ioErr(ctx, "store.migrate", err)
	}

	return &Store{db: db, path: path, now: o.now}, nil
}

// Path returns the file the store was opened from.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errs.Wrap(errs.ErrorTypeStoreIO, "store.close", err)
	}
	return nil
}

const upsertSQL = `INSERT INTO followerdata
	(record_key, source_id, subject_account, profile_url, avatar_url, display_name, handle, bio, searchable_text, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(record_key) DO UPDATE SET
		source_id = excluded.source_id,
		subject_account = excluded.subject_account,
		profile_url = excluded.profile_url,
		avatar_url = excluded.avatar_url,
		display_name = excluded.display_name,
		handle = excluded.handle,
		bio = excluded.bio,
		searchable_text = excluded.searchable_text,
		updated_at = excluded.updated_at`

// UpsertBatch writes records, replacing any row with the same record key.
// Derived fields are recomputed before the write. An empty batch returns
// immediately.
func (s *Store) UpsertBatch(ctx context.Context, records []models.FollowerRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, ioErr(ctx, "store.upsert", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return 0, ioErr(ctx, "store.upsert", err)
	}
	defer stmt.Close()

	now := s.now().Unix()
	for i := range records {
		r := records[i]
		r.Normalize()
		if r.SourceID == "" || r.SubjectAccount == "" {
			return 0, errs.New(errs.ErrorTypeInvalidInput, "store.upsert",
				fmt.Sprintf("record %q has no source id or subject", r.ProfileURL))
		}
		if _, err := stmt.ExecContext(ctx, r.RecordKey, r.SourceID, r.SubjectAccount, r.ProfileURL,
			r.AvatarURL, r.DisplayName, r.Handle, r.Bio, r.SearchableText, now); err != nil {
			return 0, ioErr(ctx, "store.upsert", fmt.Errorf("record %s: %w", r.RecordKey, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, ioErr(ctx, "store.upsert", err)
	}
	return len(records), nil
}

// ListBySubject returns every record of subject in insertion order.
func (s *Store) ListBySubject(ctx context.Context, subject string) ([]models.FollowerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, record_key, source_id, subject_account, profile_url,
		avatar_url, display_name, handle, bio, searchable_text, updated_at
		FROM followerdata WHERE subject_account = ? ORDER BY id`, normalizeSubject(subject))
	if err != nil {
		return nil, ioErr(ctx, "store.list", err)
	}
	defer rows.Close()

	var out []models.FollowerRecord
	for rows.Next() {
		var r models.FollowerRecord
		var updated int64
		if err := rows.Scan(&r.ID, &r.RecordKey, &r.SourceID, &r.SubjectAccount, &r.ProfileURL,
			&r.AvatarURL, &r.DisplayName, &r.Handle, &r.Bio, &r.SearchableText, &updated); err != nil {
			return nil, ioErr(ctx, "store.list", err)
		}
		if updated > 0 {
			r.UpdatedAt = time.Unix(updated, 0).UTC()
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr(ctx, "store.list", err)
	}
	return out, nil
}

// Count returns how many records subject has.
func (s *Store) Count(ctx context.Context, subject string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM followerdata WHERE subject_account = ?`,
		normalizeSubject(subject)).Scan(&n)
	if err != nil {
		return 0, ioErr(ctx, "store.count", err)
	}
	return n, nil
}

// Get returns one record by source id.
func (s *Store) Get(ctx context.Context, subject, sourceID string) (models.FollowerRecord, error) {
	key := models.RecordKey(strings.ToLower(strings.TrimSpace(sourceID)), normalizeSubject(subject))
	var r models.FollowerRecord
	var updated int64
	err := s.db.QueryRowContext(ctx, `SELECT id, record_key, source_id, subject_account, profile_url,
		avatar_url, display_name, handle, bio, searchable_text, updated_at
		FROM followerdata WHERE record_key = ?`, key).Scan(&r.ID, &r.RecordKey, &r.SourceID, &r.SubjectAccount,
		&r.ProfileURL, &r.AvatarURL, &r.DisplayName, &r.Handle, &r.Bio, &r.SearchableText, &updated)
	if err == sql.ErrNoRows {
		return r, errs.New(errs.ErrorTypeNotFound, "store.get", key)
	}
	if err != nil {
		return r, ioErr(ctx, "store.get", err)
	}
	if updated > 0 {
		r.UpdatedAt = time.Unix(updated, 0).UTC()
	}
	return r, nil
}

// DeleteOne removes one record. It returns a NotFound error when subject has
// no record for sourceID.
func (s *Store) DeleteOne(ctx context.Context, subject, sourceID string) error {
	key := models.RecordKey(strings.ToLower(strings.TrimSpace(sourceID)), normalizeSubject(subject))

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM followerdata WHERE record_key = ?`, key)
	if err != nil {
		return ioErr(ctx, "store.delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ioErr(ctx, "store.delete", err)
	}
	if n == 0 {
		return errs.New(errs.ErrorTypeNotFound, "store.delete", key)
	}
	return nil
}

// ClearAll removes every record of subject and returns how many went.
func (s *Store) ClearAll(ctx context.Context, subject string) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM followerdata WHERE subject_account = ?`, normalizeSubject(subject))
	if err != nil {
		return 0, ioErr(ctx, "store.clear", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ioErr(ctx, "store.clear", err)
	}
	return n, nil
}

// Columns returns the table's column names in schema order.
func (s *Store) Columns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info('followerdata') ORDER BY cid`)
	if err != nil {
		return nil, ioErr(ctx, "store.columns", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, ioErr(ctx, "store.columns", err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr(ctx, "store.columns", err)
	}
	return cols, nil
}

// Version returns the applied schema version.
func (s *Store) Version(ctx context.Context) (int, error) {
	v, err := userVersion(ctx, s.db)
	if err != nil {
		return 0, ioErr(ctx, "store.version", err)
	}
	return v, nil
}

// Vacuum rebuilds the database file.
func (s *Store) Vacuum(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return ioErr(ctx, "store.vacuum", err)
	}
	return nil
}

// Rows streams every record of subject as column values in Columns order,
// for export. Values are rendered as strings.
func (s *Store) Rows(ctx context.Context, subject string, fn func(values []string) error) error {
	cols, err := s.Columns(ctx)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("SELECT %s FROM followerdata WHERE subject_account = ? ORDER BY id", strings.Join(cols, ", "))
	rows, err := s.db.QueryContext(ctx, query, normalizeSubject(subject))
	if err != nil {
		return ioErr(ctx, "store.rows", err)
	}
	defer rows.Close()

	raw := make([]sql.NullString, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return ioErr(ctx, "store.rows", err)
		}
		values := make([]string, len(cols))
		for i, v := range raw {
			values[i] = v.String
		}
		if err := fn(values); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return ioErr(ctx, "store.rows", err)
	}
	return nil
}

// ioErr classifies err from a call made under ctx
func ioErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return errs.Wrap(errs.ErrorTypeStoreIO, op, err)
}

func normalizeSubject(subject string) string {
	return strings.ToLower(strings.TrimSpace(subject))
}
