package catalog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(
		filepath.Join(t.TempDir(), "recordings", "catalog.db"),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newRecording(path string, startedAt time.Time) *Recording {
	return &Recording{
		Path:        path,
		Status:      StatusActive,
		StartedAt:   startedAt,
		VideoFormat: "yuyv422 640x480@30.00fps",
		AudioFormat: "s16le 44100Hz 1ch",
	}
}

func TestCreateAssignsIDAndRoundTrips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := newRecording("/recordings/footages_2026-08-21_10-00-00.mp4", time.Now())
	require.NoError(t, store.Create(ctx, rec))
	require.False(t, rec.ID.IsZero())

	got, err := store.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Path, got.Path)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, "yuyv422 640x480@30.00fps", got.VideoFormat)
	assert.Nil(t, got.EndedAt)
}

func TestGetByIDMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetByID(context.Background(), NewULID())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFinalize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := newRecording("/recordings/a.mp4", time.Now().Add(-time.Minute))
	require.NoError(t, store.Create(ctx, rec))

	ended := time.Now()
	require.NoError(t, store.Finalize(ctx, rec.ID, StatusComplete, ended, 1<<20, ""))

	got, err := store.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, int64(1<<20), got.SizeBytes)
	require.NotNil(t, got.EndedAt)
	assert.WithinDuration(t, ended, *got.EndedAt, time.Second)
}

func TestFinalizeFailedKeepsError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := newRecording("/recordings/b.mp4", time.Now())
	require.NoError(t, store.Create(ctx, rec))
	require.NoError(t, store.Finalize(ctx, rec.ID, StatusFailed, time.Now(), 0, "encoder exited: signal: killed"))

	got, err := store.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "encoder exited: signal: killed", got.Error)
}

func TestFinalizeMissingRow(t *testing.T) {
	store := newTestStore(t)

	err := store.Finalize(context.Background(), NewULID(), StatusComplete, time.Now(), 0, "")
	assert.ErrorContains(t, err, "no such row")
}

func TestListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, path := range []string{"old.mp4", "mid.mp4", "new.mp4"} {
		require.NoError(t, store.Create(ctx, newRecording(path, base.Add(time.Duration(i)*time.Minute))))
	}

	recs, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "new.mp4", recs[0].Path)
	assert.Equal(t, "old.mp4", recs[2].Path)

	limited, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "new.mp4", limited[0].Path)
}

func TestFinishedOldestFirstSkipsActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	oldest := newRecording("oldest.mp4", base)
	running := newRecording("running.mp4", base.Add(time.Minute))
	newest := newRecording("newest.mp4", base.Add(2*time.Minute))
	for _, rec := range []*Recording{oldest, running, newest} {
		require.NoError(t, store.Create(ctx, rec))
	}
	require.NoError(t, store.Finalize(ctx, oldest.ID, StatusComplete, base.Add(time.Minute), 10, ""))
	require.NoError(t, store.Finalize(ctx, newest.ID, StatusFailed, base.Add(3*time.Minute), 0, "unplugged"))

	finished, err := store.FinishedOldestFirst(ctx)
	require.NoError(t, err)
	require.Len(t, finished, 2)
	assert.Equal(t, "oldest.mp4", finished[0].Path)
	assert.Equal(t, "newest.mp4", finished[1].Path)
}

func TestDeleteAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := newRecording("gone.mp4", time.Now())
	require.NoError(t, store.Create(ctx, rec))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, store.Delete(ctx, rec.ID))

	got, err := store.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecoverInterrupted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	// An orphaned active row whose file survived the crash.
	orphanPath := filepath.Join(dir, "footages_2026-08-20_23-55-00.mp4")
	require.NoError(t, os.WriteFile(orphanPath, make([]byte, 2048), 0o644))
	orphan := newRecording(orphanPath, time.Now().Add(-time.Hour))
	require.NoError(t, store.Create(ctx, orphan))

	// An orphaned active row whose file is gone too.
	vanished := newRecording(filepath.Join(dir, "missing.mp4"), time.Now().Add(-2*time.Hour))
	require.NoError(t, store.Create(ctx, vanished))

	// A properly finished row that recovery must not touch.
	done := newRecording(filepath.Join(dir, "done.mp4"), time.Now().Add(-3*time.Hour))
	require.NoError(t, store.Create(ctx, done))
	require.NoError(t, store.Finalize(ctx, done.ID, StatusComplete, time.Now(), 512, ""))

	n, err := store.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.GetByID(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, int64(2048), got.SizeBytes)
	assert.Equal(t, "interrupted by shutdown", got.Error)
	require.NotNil(t, got.EndedAt)

	got, err = store.GetByID(ctx, vanished.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Zero(t, got.SizeBytes)

	got, err = store.GetByID(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, int64(512), got.SizeBytes)
	assert.Empty(t, got.Error)

	// A second pass finds nothing left to recover.
	n, err = store.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestULIDJSON(t *testing.T) {
	id := NewULID()
	data, err := id.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"`+id.String()+`"`, string(data))

	var parsed ULID
	require.NoError(t, parsed.UnmarshalJSON(data))
	assert.Equal(t, id, parsed)

	require.NoError(t, parsed.UnmarshalJSON([]byte("null")))
	assert.True(t, parsed.IsZero())
}
