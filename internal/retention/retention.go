// Package retention prunes finished recordings on a cron schedule so the
// appliance never fills its disk. The active recording is never touched;
// the resource guard handles the emergency case between sweeps.
package retention

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/autorec/autorec/internal/catalog"
	"github.com/autorec/autorec/internal/config"
)

// Sweeper removes recordings that fall outside the retention policy:
// finished recordings older than MaxAge, then oldest-first until the
// catalog holds at most MaxCount recordings. A removal takes the file and
// its catalog row together; a file that resists deletion keeps its row so
// the next sweep retries.
type Sweeper struct {
	store    *catalog.Store
	cfg      config.RetentionConfig
	logger   *slog.Logger
	schedule cron.Schedule

	now        func() time.Time
	removeFile func(string) error

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper validates the cron schedule and builds a sweeper. A nil
// logger falls back to slog.Default.
func NewSweeper(store *catalog.Store, cfg config.RetentionConfig, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parsing retention schedule %q: %w", cfg.Schedule, err)
	}
	return &Sweeper{
		store:      store,
		cfg:        cfg,
		logger:     logger,
		schedule:   schedule,
		now:        time.Now,
		removeFile: os.Remove,
	}, nil
}

// Start begins the background sweep loop. The first sweep runs
// immediately: an appliance coming back from downtime may have a backlog.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return fmt.Errorf("retention sweeper already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("retention sweeper started",
		slog.String("schedule", s.cfg.Schedule),
		slog.Duration("max_age", s.cfg.MaxAge),
		slog.Int("max_count", s.cfg.MaxCount))
	return nil
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.ctx = nil
	s.cancel = nil
	s.mu.Unlock()

	s.logger.Info("retention sweeper stopped")
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	s.Sweep(s.ctx)

	for {
		next := s.schedule.Next(s.now())
		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.Sweep(s.ctx)
		}
	}
}

// Sweep applies the retention policy once and reports how many recordings
// were removed and how many bytes that reclaimed.
func (s *Sweeper) Sweep(ctx context.Context) (removed int, reclaimed int64) {
	finished, err := s.store.FinishedOldestFirst(ctx)
	if err != nil {
		s.logger.Error("listing recordings for retention failed", slog.Any("error", err))
		return 0, 0
	}

	dropped := make(map[catalog.ULID]bool)

	if s.cfg.MaxAge > 0 {
		cutoff := s.now().Add(-s.cfg.MaxAge)
		for _, rec := range finished {
			if endedAt(rec).After(cutoff) {
				continue
			}
			if s.drop(ctx, rec, "older than max age") {
				dropped[rec.ID] = true
				removed++
				reclaimed += rec.SizeBytes
			}
		}
	}

	if s.cfg.MaxCount > 0 {
		total, err := s.store.Count(ctx)
		if err != nil {
			s.logger.Error("counting recordings for retention failed", slog.Any("error", err))
			return removed, reclaimed
		}
		for _, rec := range finished {
			if total <= int64(s.cfg.MaxCount) {
				break
			}
			if dropped[rec.ID] {
				continue
			}
			if s.drop(ctx, rec, "over max count") {
				total--
				removed++
				reclaimed += rec.SizeBytes
			}
		}
	}

	if removed > 0 {
		s.logger.Info("retention sweep finished",
			slog.Int("removed", removed),
			slog.Int64("reclaimed_bytes", reclaimed))
	} else {
		s.logger.Debug("retention sweep found nothing to remove")
	}
	return removed, reclaimed
}

// drop removes one recording's file and row. A missing file is fine (it
// was removed out of band); any other file error leaves the row for the
// next sweep.
func (s *Sweeper) drop(ctx context.Context, rec catalog.Recording, why string) bool {
	if err := s.removeFile(rec.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Error("removing recording file failed",
			slog.String("path", rec.Path), slog.Any("error", err))
		return false
	}
	if err := s.store.Delete(ctx, rec.ID); err != nil {
		s.logger.Error("removing catalog row failed",
			slog.String("id", rec.ID.String()), slog.Any("error", err))
		return false
	}
	s.logger.Info("recording pruned",
		slog.String("path", rec.Path),
		slog.String("reason", why),
		slog.Int64("size_bytes", rec.SizeBytes))
	return true
}

func endedAt(rec catalog.Recording) time.Time {
	if rec.EndedAt != nil {
		return *rec.EndedAt
	}
	return rec.StartedAt
}
