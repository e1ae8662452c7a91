// Package sqlite provides SQLite-backed persistence for quest progress state.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/tandemhq/tandem/internal/platform/storage/sqlitemigrate"
	"github.com/tandemhq/tandem/internal/services/quests/storage"
	"github.com/tandemhq/tandem/internal/services/quests/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for quest progress state.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a quests SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	// modernc.org/sqlite only honors pragmas passed as _pragma params.
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// ApplyUnitOfProgress creates or advances one progress row.
//
// The mutation itself is one conditional upsert whose SET expressions read
// only the stored row, so it stays correct under arbitrary interleaving:
// the count accumulates clamped to the target, StartedAt is set on first
// write only, and exactly one writer observes the NULL-to-set transition of
// CompletedAt. The surrounding transaction exists to capture consistent
// before/after images for transition detection, not for mutual exclusion.
func (s *Store) ApplyUnitOfProgress(ctx context.Context, mutation storage.ProgressMutation) (storage.Application, error) {
	if err := ctx.Err(); err != nil {
		return storage.Application{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Application{}, fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeMutation(mutation)
	if err != nil {
		return storage.Application{}, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Application{}, wrapBusy("begin progress write", err)
	}
	rollbackWith := func(cause error) (storage.Application, error) {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return storage.Application{}, fmt.Errorf("%w: rollback progress write: %v", cause, rollbackErr)
		}
		return storage.Application{}, cause
	}

	var before *storage.ProgressRecord
	preImage, err := getRecordQuery(ctx, tx, normalized.RelationshipID, normalized.TemplateID, normalized.PeriodStart)
	switch {
	case err == nil:
		before = &preImage
	case errors.Is(err, storage.ErrNotFound):
		before = nil
	default:
		return rollbackWith(err)
	}

	occurred := toMillis(normalized.OccurredAt)
	now := occurred
	_, err = tx.ExecContext(ctx, `
INSERT INTO quest_progress (
	relationship_id, template_id, period_start, period_end,
	progress_count, target_count, started_at, completed_at,
	completed_by_actor_id, expired_at, created_at, updated_at
) VALUES (
	?, ?, ?, ?,
	MIN(?, ?), ?, ?,
	CASE WHEN ? >= ? THEN ? END,
	CASE WHEN ? >= ? THEN ? ELSE '' END,
	NULL, ?, ?
)
ON CONFLICT(relationship_id, template_id, period_start) DO UPDATE SET
	progress_count = MIN(quest_progress.target_count, quest_progress.progress_count + ?),
	started_at = COALESCE(quest_progress.started_at, ?),
	completed_at = CASE
		WHEN quest_progress.completed_at IS NOT NULL THEN quest_progress.completed_at
		WHEN MIN(quest_progress.target_count, quest_progress.progress_count + ?) >= quest_progress.target_count THEN ?
		ELSE NULL
	END,
	completed_by_actor_id = CASE
		WHEN quest_progress.completed_at IS NOT NULL THEN quest_progress.completed_by_actor_id
		WHEN MIN(quest_progress.target_count, quest_progress.progress_count + ?) >= quest_progress.target_count THEN ?
		ELSE quest_progress.completed_by_actor_id
	END,
	updated_at = ?
WHERE quest_progress.expired_at IS NULL
`,
		normalized.RelationshipID,
		normalized.TemplateID,
		toMillis(normalized.PeriodStart),
		toMillis(normalized.PeriodEnd),
		normalized.Increment, normalized.TargetCount,
		normalized.TargetCount,
		occurred,
		normalized.Increment, normalized.TargetCount, occurred,
		normalized.Increment, normalized.TargetCount, normalized.ActorID,
		now, now,
		normalized.Increment,
		occurred,
		normalized.Increment, occurred,
		normalized.Increment, normalized.ActorID,
		now,
	)
	if err != nil {
		return rollbackWith(wrapBusy("apply unit of progress", err))
	}

	after, err := getRecordQuery(ctx, tx, normalized.RelationshipID, normalized.TemplateID, normalized.PeriodStart)
	if err != nil {
		return rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Application{}, wrapBusy("commit progress write", err)
	}
	return storage.Application{Before: before, After: after}, nil
}

// EnsurePlaceholder inserts a zero-progress, never-started row if absent.
func (s *Store) EnsurePlaceholder(ctx context.Context, relationshipID, templateID string, periodStart, periodEnd time.Time, targetCount int, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	relationshipID = strings.TrimSpace(relationshipID)
	templateID = strings.TrimSpace(templateID)
	if relationshipID == "" {
		return fmt.Errorf("relationship id is required")
	}
	if templateID == "" {
		return fmt.Errorf("template id is required")
	}
	if targetCount <= 0 {
		return fmt.Errorf("target count must be positive")
	}
	if periodStart.IsZero() || periodEnd.IsZero() || !periodEnd.After(periodStart) {
		return fmt.Errorf("period bounds are invalid")
	}

	nowMillis := toMillis(now)
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO quest_progress (
	relationship_id, template_id, period_start, period_end,
	progress_count, target_count, started_at, completed_at,
	completed_by_actor_id, expired_at, created_at, updated_at
) VALUES (?, ?, ?, ?, 0, ?, NULL, NULL, '', NULL, ?, ?)
ON CONFLICT(relationship_id, template_id, period_start) DO NOTHING
`,
		relationshipID,
		templateID,
		toMillis(periodStart),
		toMillis(periodEnd),
		targetCount,
		nowMillis,
		nowMillis,
	)
	if err != nil {
		return wrapBusy("ensure placeholder", err)
	}
	return nil
}

// GetRecord loads one progress row by identity key.
func (s *Store) GetRecord(ctx context.Context, relationshipID, templateID string, periodStart time.Time) (storage.ProgressRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ProgressRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ProgressRecord{}, fmt.Errorf("storage is not configured")
	}
	return getRecordQuery(ctx, s.sqlDB, strings.TrimSpace(relationshipID), strings.TrimSpace(templateID), periodStart)
}

// ListOpenRecords lists a relationship's open rows, oldest period first.
func (s *Store) ListOpenRecords(ctx context.Context, relationshipID string) ([]storage.ProgressRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	relationshipID = strings.TrimSpace(relationshipID)
	if relationshipID == "" {
		return nil, fmt.Errorf("relationship id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT relationship_id, template_id, period_start, period_end, progress_count, target_count,
       started_at, completed_at, completed_by_actor_id, expired_at, created_at, updated_at
FROM quest_progress
WHERE relationship_id = ?
  AND completed_at IS NULL
  AND expired_at IS NULL
ORDER BY period_start ASC, template_id ASC
`, relationshipID)
	if err != nil {
		return nil, wrapBusy("list open records", err)
	}
	defer rows.Close()

	var records []storage.ProgressRecord
	for rows.Next() {
		record, scanErr := scanRecord(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan open record row: %w", scanErr)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate open record rows: %w", err)
	}
	return records, nil
}

// SweepExpired marks the relationship's overdue open rows expired.
func (s *Store) SweepExpired(ctx context.Context, relationshipID string, asOf time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	relationshipID = strings.TrimSpace(relationshipID)
	if relationshipID == "" {
		return fmt.Errorf("relationship id is required")
	}

	asOfMillis := toMillis(asOf)
	_, err := s.sqlDB.ExecContext(ctx, `
UPDATE quest_progress
SET expired_at = ?, updated_at = ?
WHERE relationship_id = ?
  AND completed_at IS NULL
  AND expired_at IS NULL
  AND period_end <= ?
`, asOfMillis, asOfMillis, relationshipID, asOfMillis)
	if err != nil {
		return wrapBusy("sweep expired", err)
	}
	return nil
}

// SweepDueRecords expires overdue open rows across all relationships.
func (s *Store) SweepDueRecords(ctx context.Context, asOf time.Time, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return 0, fmt.Errorf("limit must be greater than zero")
	}

	asOfMillis := toMillis(asOf)
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE quest_progress
SET expired_at = ?, updated_at = ?
WHERE rowid IN (
	SELECT rowid
	FROM quest_progress
	WHERE completed_at IS NULL
	  AND expired_at IS NULL
	  AND period_end <= ?
	ORDER BY period_end ASC
	LIMIT ?
)
`, asOfMillis, asOfMillis, asOfMillis, limit)
	if err != nil {
		return 0, wrapBusy("sweep due records", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep due records rows affected: %w", err)
	}
	return int(affected), nil
}

// ReserveNotificationSend atomically claims one notification send slot.
func (s *Store) ReserveNotificationSend(ctx context.Context, factKey, recipientID string, now time.Time, cooldown time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	factKey = strings.TrimSpace(factKey)
	recipientID = strings.TrimSpace(recipientID)
	if factKey == "" {
		return false, fmt.Errorf("fact key is required")
	}
	if recipientID == "" {
		return false, fmt.Errorf("recipient id is required")
	}
	if cooldown < 0 {
		return false, fmt.Errorf("cooldown must be non-negative")
	}

	nowMillis := toMillis(now)
	cutoff := nowMillis - cooldown.Milliseconds()
	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO notification_cooldowns (fact_key, recipient_id, last_sent_at)
VALUES (?, ?, ?)
ON CONFLICT(fact_key, recipient_id) DO UPDATE SET
	last_sent_at = excluded.last_sent_at
WHERE notification_cooldowns.last_sent_at <= ?
`, factKey, recipientID, nowMillis, cutoff)
	if err != nil {
		return false, wrapBusy("reserve notification send", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve notification send rows affected: %w", err)
	}
	return affected > 0, nil
}

type scanner func(dest ...any) error

type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecordQuery(ctx context.Context, querier sqlQuerier, relationshipID, templateID string, periodStart time.Time) (storage.ProgressRecord, error) {
	row := querier.QueryRowContext(ctx, `
SELECT relationship_id, template_id, period_start, period_end, progress_count, target_count,
       started_at, completed_at, completed_by_actor_id, expired_at, created_at, updated_at
FROM quest_progress
WHERE relationship_id = ? AND template_id = ? AND period_start = ?
`, relationshipID, templateID, toMillis(periodStart))
	record, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ProgressRecord{}, storage.ErrNotFound
		}
		// Reads inside the progress-write transaction hit the same lock the
		// write does; contention must stay retryable for the caller.
		return storage.ProgressRecord{}, wrapBusy("get progress record", err)
	}
	return record, nil
}

func scanRecord(scan scanner) (storage.ProgressRecord, error) {
	var record storage.ProgressRecord
	var periodStart int64
	var periodEnd int64
	var startedAt sql.NullInt64
	var completedAt sql.NullInt64
	var expiredAt sql.NullInt64
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&record.RelationshipID,
		&record.TemplateID,
		&periodStart,
		&periodEnd,
		&record.ProgressCount,
		&record.TargetCount,
		&startedAt,
		&completedAt,
		&record.CompletedByActorID,
		&expiredAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.ProgressRecord{}, err
	}
	record.PeriodStart = fromMillis(periodStart)
	record.PeriodEnd = fromMillis(periodEnd)
	if startedAt.Valid {
		value := fromMillis(startedAt.Int64)
		record.StartedAt = &value
	}
	if completedAt.Valid {
		value := fromMillis(completedAt.Int64)
		record.CompletedAt = &value
	}
	if expiredAt.Valid {
		value := fromMillis(expiredAt.Int64)
		record.ExpiredAt = &value
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func normalizeMutation(mutation storage.ProgressMutation) (storage.ProgressMutation, error) {
	mutation.RelationshipID = strings.TrimSpace(mutation.RelationshipID)
	mutation.TemplateID = strings.TrimSpace(mutation.TemplateID)
	mutation.ActorID = strings.TrimSpace(mutation.ActorID)
	if mutation.RelationshipID == "" {
		return storage.ProgressMutation{}, fmt.Errorf("relationship id is required")
	}
	if mutation.TemplateID == "" {
		return storage.ProgressMutation{}, fmt.Errorf("template id is required")
	}
	if mutation.Increment <= 0 {
		return storage.ProgressMutation{}, fmt.Errorf("increment must be positive")
	}
	if mutation.TargetCount <= 0 {
		return storage.ProgressMutation{}, fmt.Errorf("target count must be positive")
	}
	if mutation.PeriodStart.IsZero() || mutation.PeriodEnd.IsZero() || !mutation.PeriodEnd.After(mutation.PeriodStart) {
		return storage.ProgressMutation{}, fmt.Errorf("period bounds are invalid")
	}
	if mutation.OccurredAt.IsZero() {
		return storage.ProgressMutation{}, fmt.Errorf("occurred_at is required")
	}
	mutation.PeriodStart = mutation.PeriodStart.UTC()
	mutation.PeriodEnd = mutation.PeriodEnd.UTC()
	mutation.OccurredAt = mutation.OccurredAt.UTC()
	return mutation, nil
}

// wrapBusy maps SQLite lock contention to the retryable conflict sentinel.
func wrapBusy(op string, err error) error {
	if err == nil {
		return nil
	}
	value := strings.ToLower(err.Error())
	if strings.Contains(value, "database is locked") || strings.Contains(value, "sqlite_busy") {
		return storage.ErrConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}
