package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store is the recording catalog backed by an embedded SQLite database
// (pure Go driver, no cgo).
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open opens or creates the catalog at path and migrates the schema. The
// parent directory is created when missing so the catalog can live next to
// recordings that do not exist yet.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating catalog directory: %w", err)
		}
	}

	// PRAGMAs ride the DSN so every pooled connection gets them.
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	dsn += "_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 &slogGormLogger{logger: logger},
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	if err := db.AutoMigrate(&Recording{}); err != nil {
		return nil, fmt.Errorf("migrating catalog schema: %w", err)
	}

	logger.Debug("catalog opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Create inserts a new recording row. The id is assigned when unset.
func (s *Store) Create(ctx context.Context, rec *Recording) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("creating recording row: %w", err)
	}
	return nil
}

// Finalize marks a recording finished with its outcome and final size.
func (s *Store) Finalize(ctx context.Context, id ULID, status Status, endedAt time.Time, sizeBytes int64, errMsg string) error {
	updates := map[string]any{
		"status":     status,
		"ended_at":   endedAt,
		"size_bytes": sizeBytes,
		"error":      errMsg,
	}
	res := s.db.WithContext(ctx).Model(&Recording{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("finalizing recording %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("finalizing recording %s: no such row", id)
	}
	return nil
}

// GetByID returns a recording, or nil when it does not exist.
func (s *Store) GetByID(ctx context.Context, id ULID) (*Recording, error) {
	var rec Recording
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting recording %s: %w", id, err)
	}
	return &rec, nil
}

// List returns recordings newest first, at most limit rows (0 = all).
func (s *Store) List(ctx context.Context, limit int) ([]Recording, error) {
	q := s.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []Recording
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}
	return recs, nil
}

// FinishedOldestFirst returns every finished recording, oldest first, for
// the retention sweeper.
func (s *Store) FinishedOldestFirst(ctx context.Context) ([]Recording, error) {
	var recs []Recording
	err := s.db.WithContext(ctx).
		Where("status <> ?", StatusActive).
		Order("started_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("listing finished recordings: %w", err)
	}
	return recs, nil
}

// Delete removes a recording row.
func (s *Store) Delete(ctx context.Context, id ULID) error {
	if err := s.db.WithContext(ctx).Delete(&Recording{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("deleting recording %s: %w", id, err)
	}
	return nil
}

// Count returns the total number of catalogued recordings.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Recording{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting recordings: %w", err)
	}
	return n, nil
}

// RecoverInterrupted finalizes rows left active by a previous run. An
// active row at startup can only be a leftover from a crash or power
// loss; it is closed out as failed with whatever the file on disk shows,
// so the recording becomes visible to listings and retention again.
// Returns the number of rows recovered.
func (s *Store) RecoverInterrupted(ctx context.Context) (int, error) {
	var stale []Recording
	err := s.db.WithContext(ctx).
		Where("status = ?", StatusActive).
		Find(&stale).Error
	if err != nil {
		return 0, fmt.Errorf("listing interrupted recordings: %w", err)
	}

	recovered := 0
	for _, rec := range stale {
		endedAt := time.Now().UTC()
		var size int64
		if st, statErr := os.Stat(rec.Path); statErr == nil {
			size = st.Size()
			endedAt = st.ModTime().UTC()
		}
		if err := s.Finalize(ctx, rec.ID, StatusFailed, endedAt, size, "interrupted by shutdown"); err != nil {
			return recovered, err
		}
		recovered++
		s.logger.Warn("recovered interrupted recording",
			"id", rec.ID, "path", rec.Path, "size_bytes", size)
	}
	return recovered, nil
}

// slogGormLogger routes GORM diagnostics into slog. Query tracing is only
// emitted for errors; the appliance workload is a handful of writes per
// session.
type slogGormLogger struct {
	logger *slog.Logger
}

func (l *slogGormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return l }

func (l *slogGormLogger) Info(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, fmt.Sprintf(msg, args...))
}

func (l *slogGormLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.logger.WarnContext(ctx, fmt.Sprintf(msg, args...))
}

func (l *slogGormLogger) Error(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, fmt.Sprintf(msg, args...))
}

func (l *slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
		return
	}
	sql, rows := fc()
	l.logger.ErrorContext(ctx, "catalog query failed",
		"error", err, "sql", sql, "rows", rows, "elapsed", time.Since(begin))
}
