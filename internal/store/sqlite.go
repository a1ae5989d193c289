package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"stagequeue/internal/logging"
	"stagequeue/internal/requests"
)

// SQLite persists requests and settings in a single SQLite database.
type SQLite struct {
	db     *sql.DB
	path   string
	feed   *revisionFeed
	epoch  string
	logger *slog.Logger
	now    func() time.Time

	createMu    sync.Mutex
	lastCreated int64
}

var _ Store = (*SQLite)(nil)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
	settingsKey             = "config"
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *SQLite) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the request database at path.
func Open(path string, logger *slog.Logger) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure database directory: %w", err)
		}
	}

	// busy_timeout rides on the DSN so every pooled connection waits for
	// the write lock instead of failing fast.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLite{
		db:     db,
		path:   path,
		feed:   newRevisionFeed(),
		epoch:  uuid.NewString(),
		logger: logging.NewComponentLogger(logger, "store"),
		now:    time.Now,
	}
	ctx := context.Background()
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(created_at), 0) FROM requests`).Scan(&s.lastCreated); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read latest created_at: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *SQLite) Path() string {
	return s.path
}

// Revision returns the number of committed mutations since Open.
func (s *SQLite) Revision() uint64 {
	return s.feed.current()
}

// Epoch identifies this Open. Revisions restart from zero with each epoch, so
// a revision is only comparable to others from the same epoch.
func (s *SQLite) Epoch() string {
	return s.epoch
}

// WaitRevision blocks until a mutation newer than since commits or ctx ends,
// returning the revision observed.
func (s *SQLite) WaitRevision(ctx context.Context, since uint64) (uint64, error) {
	return s.feed.wait(ctx, since)
}

// nextCreatedAt returns a strictly increasing timestamp so created_at is a
// total order even when two submissions land in the same clock tick.
func (s *SQLite) nextCreatedAt() int64 {
	s.createMu.Lock()
	defer s.createMu.Unlock()
	ts := s.now().UTC().UnixNano()
	if ts <= s.lastCreated {
		ts = s.lastCreated + 1
	}
	s.lastCreated = ts
	return ts
}

// Create inserts a pending request.
func (s *SQLite) Create(ctx context.Context, req requests.Request) (requests.Request, error) {
	req.ID = uuid.NewString()
	req.Status = requests.StatusPending
	created := s.nextCreatedAt()
	req.CreatedAt = time.Unix(0, created).UTC()
	req.UpdatedAt = req.CreatedAt
	if req.BackingTrack != requests.BackingNone {
		req.TechnicalNeeds = ""
	}

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO requests (
            id, singer_name, ig_handle, song, artist, backing_track,
            technical_needs, youtube_url, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		req.SingerName,
		nullableString(req.IGHandle),
		req.Song,
		req.Artist,
		req.BackingTrack,
		nullableString(req.TechnicalNeeds),
		nil,
		req.Status,
		created,
		created,
	)
	if err != nil {
		return requests.Request{}, fmt.Errorf("insert request: %w", err)
	}
	req.YouTubeURL = ""
	s.feed.bump()
	return req, nil
}

// Get fetches a request by id.
func (s *SQLite) Get(ctx context.Context, id string) (requests.Request, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return requests.Request{}, ErrNotFound
	}
	if err != nil {
		return requests.Request{}, fmt.Errorf("get request: %w", err)
	}
	return req, nil
}

// Update applies delta when the request's status satisfies cond.
func (s *SQLite) Update(ctx context.Context, id string, delta Delta, cond Condition) (requests.Request, error) {
	if delta.IsEmpty() {
		return s.Get(ctx, id)
	}

	sets := make([]string, 0, 5)
	args := make([]any, 0, 8)
	if delta.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *delta.Status)
	}
	if delta.Song != nil {
		sets = append(sets, "song = ?")
		args = append(args, *delta.Song)
	}
	if delta.Artist != nil {
		sets = append(sets, "artist = ?")
		args = append(args, *delta.Artist)
	}
	if delta.YouTubeURL != nil {
		sets = append(sets, "youtube_url = ?")
		args = append(args, nullableString(*delta.YouTubeURL))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.now().UTC().UnixNano())

	where, whereArgs := conditionClause(id, cond)
	args = append(args, whereArgs...)

	res, err := s.execWithRetry(ctx, `UPDATE requests SET `+strings.Join(sets, ", ")+where, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return requests.Request{}, ErrPlayingConflict
		}
		return requests.Request{}, fmt.Errorf("update request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return requests.Request{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return requests.Request{}, s.missError(ctx, id)
	}
	s.feed.bump()
	return s.Get(ctx, id)
}

// Promote moves id from queued to playing in one transaction. Any other
// playing request is completed by the first statement, so the pair commits
// together and readers never see two playing rows. When id is not queued the
// transaction rolls back and the current singer keeps playing. demoted lists
// the requests that were completed.
func (s *SQLite) Promote(ctx context.Context, id string) (requests.Request, []string, error) {
	demoteTo, _ := requests.Target(requests.OpDemote)
	playTo, _ := requests.Target(requests.OpPlay)
	demoteWhere, demoteArgs := statusIn(requests.AllowedFrom(requests.OpDemote))
	playWhere, playArgs := statusIn(requests.AllowedFrom(requests.OpPlay))

	var demoted []string
	err := retryOnBusy(ctx, func() error {
		demoted = demoted[:0]
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		now := s.now().UTC().UnixNano()
		rows, err := tx.QueryContext(ctx,
			`UPDATE requests SET status = ?, updated_at = ? WHERE id <> ? AND `+demoteWhere+` RETURNING id`,
			append([]any{demoteTo, now, id}, demoteArgs...)...)
		if err != nil {
			return err
		}
		for rows.Next() {
			var other string
			if err := rows.Scan(&other); err != nil {
				rows.Close()
				return err
			}
			demoted = append(demoted, other)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE requests SET status = ?, updated_at = ? WHERE id = ? AND `+playWhere,
			append([]any{playTo, now, id}, playArgs...)...)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrPlayingConflict
			}
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			var current string
			err := tx.QueryRowContext(ctx, `SELECT status FROM requests WHERE id = ?`, id).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			return &ConditionError{ID: id, Current: requests.Status(current)}
		}
		return tx.Commit()
	})
	if err != nil {
		var condErr *ConditionError
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPlayingConflict) || errors.As(err, &condErr) {
			return requests.Request{}, nil, err
		}
		return requests.Request{}, nil, fmt.Errorf("promote request: %w", err)
	}
	s.feed.bump()
	promoted, err := s.Get(ctx, id)
	if err != nil {
		return requests.Request{}, nil, err
	}
	return promoted, demoted, nil
}

// Delete removes a request when its status satisfies cond.
func (s *SQLite) Delete(ctx context.Context, id string, cond Condition) error {
	where, args := conditionClause(id, cond)
	res, err := s.execWithRetry(ctx, `DELETE FROM requests`+where, args...)
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.missError(ctx, id)
	}
	s.feed.bump()
	return nil
}

// DeleteMany removes ids in one transaction.
func (s *SQLite) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `DELETE FROM requests WHERE id IN (` + makePlaceholders(len(ids)) + `)`

	var deleted int64
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		if deleted, err = res.RowsAffected(); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("delete batch: %w", err)
	}
	if deleted > 0 {
		s.feed.bump()
	}
	return deleted, nil
}

// ListIDs returns the ids matching filter.
func (s *SQLite) ListIDs(ctx context.Context, filter Filter) ([]string, error) {
	query, args := filterQuery("id", filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list request ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Query returns requests matching filter ordered by created_at.
func (s *SQLite) Query(ctx context.Context, filter Filter) ([]requests.Request, error) {
	query, args := filterQuery(requestColumns, filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	out := make([]requests.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Subscribe streams total snapshots of filter.
func (s *SQLite) Subscribe(ctx context.Context, filter Filter) (*Subscription[[]requests.Request], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	load := func(ctx context.Context) ([]requests.Request, error) {
		return s.Query(ctx, filter)
	}
	return NewSubscription(ctx, watch(s.feed, load, s.logLoadError("requests"))), nil
}

// Settings returns the settings singleton, defaulting the theme when absent.
func (s *SQLite) Settings(ctx context.Context) (requests.Settings, error) {
	var (
		theme   string
		updated int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT theme, updated_at FROM settings WHERE key = ?`, settingsKey).Scan(&theme, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return requests.Settings{Theme: requests.ThemeDefault}, nil
	}
	if err != nil {
		return requests.Settings{}, fmt.Errorf("read settings: %w", err)
	}
	parsed, _ := requests.ParseTheme(theme)
	return requests.Settings{Theme: parsed, UpdatedAt: time.Unix(0, updated).UTC()}, nil
}

// SaveSettings upserts the settings singleton.
func (s *SQLite) SaveSettings(ctx context.Context, settings requests.Settings) error {
	theme, _ := requests.ParseTheme(string(settings.Theme))
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO settings (key, theme, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET theme = excluded.theme, updated_at = excluded.updated_at`,
		settingsKey,
		theme,
		s.now().UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	s.feed.bump()
	return nil
}

// SubscribeSettings streams the settings singleton. Request mutations also
// advance the shared revision, so subscribers may see repeated identical
// settings snapshots.
func (s *SQLite) SubscribeSettings(ctx context.Context) (*Subscription[requests.Settings], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewSubscription(ctx, watch(s.feed, s.Settings, s.logLoadError("settings"))), nil
}

func (s *SQLite) logLoadError(feed string) func(error) {
	return func(err error) {
		logging.WarnWithContext(s.logger, "snapshot load failed", "snapshot_load_failed",
			logging.String("feed", feed),
			logging.Error(err),
			logging.String(logging.FieldImpact, "subscribers keep their previous snapshot"),
			logging.String(logging.FieldErrorHint, "check database health with 'stagequeue status'"))
	}
}

// missError distinguishes a missing request from a failed status condition.
func (s *SQLite) missError(ctx context.Context, id string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return &ConditionError{ID: id, Current: current.Status}
}

func statusIn(statuses []requests.Status) (string, []any) {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return `status IN (` + makePlaceholders(len(statuses)) + `)`, args
}

func conditionClause(id string, cond Condition) (string, []any) {
	args := []any{id}
	where := ` WHERE id = ?`
	if len(cond.Statuses) > 0 {
		where += ` AND status IN (` + makePlaceholders(len(cond.Statuses)) + `)`
		for _, status := range cond.Statuses {
			args = append(args, status)
		}
	}
	return where, args
}

func filterQuery(columns string, filter Filter) (string, []any) {
	query := `SELECT ` + columns + ` FROM requests`
	var args []any
	if len(filter.Statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(filter.Statuses)) + `)`
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if filter.Descending {
		query += ` ORDER BY created_at DESC, id DESC`
	} else {
		query += ` ORDER BY created_at, id`
	}
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	return query, args
}

const requestColumns = "id, singer_name, ig_handle, song, artist, backing_track, technical_needs, youtube_url, status, created_at, updated_at"

func scanRequest(scanner interface{ Scan(dest ...any) error }) (requests.Request, error) {
	var (
		req            requests.Request
		igHandle       sql.NullString
		backing        string
		technicalNeeds sql.NullString
		youtubeURL     sql.NullString
		status         string
		created        int64
		updated        int64
	)
	if err := scanner.Scan(
		&req.ID,
		&req.SingerName,
		&igHandle,
		&req.Song,
		&req.Artist,
		&backing,
		&technicalNeeds,
		&youtubeURL,
		&status,
		&created,
		&updated,
	); err != nil {
		return requests.Request{}, err
	}
	req.IGHandle = igHandle.String
	req.BackingTrack = requests.BackingTrack(backing)
	req.TechnicalNeeds = technicalNeeds.String
	req.YouTubeURL = youtubeURL.String
	req.Status = requests.Status(status)
	req.CreatedAt = time.Unix(0, created).UTC()
	req.UpdatedAt = time.Unix(0, updated).UTC()
	return req, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
