package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	// Verify the database file doesn't exist yet
	_, err := os.Stat(dbPath)
	require.True(t, os.IsNotExist(err), "database file should not exist before creating store")

	s, err := New(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file should exist after creating store")
	assert.Equal(t, dbPath, s.Path())
}

func TestNewStore_RunsMigrations(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"attempts", "attempt_frames", "settings"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q should exist after migrations", table)
	}

	for _, idx := range []string{"idx_attempts_flow_finished", "idx_attempt_frames_attempt_id"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?",
			idx,
		).Scan(&name)
		assert.NoError(t, err, "index %q should exist after migrations", idx)
	}
}

func TestNewStore_MigrationsAreIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(dbPath)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestStore_Close(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	require.NoError(t, s.Close())

	// After closing, DB operations should fail
	_, err = s.DB().Exec("SELECT 1")
	assert.Error(t, err)
}

func TestStore_ForeignKeysEnabled(t *testing.T) {
	s := newTestStore(t)

	var fkEnabled int
	require.NoError(t, s.DB().QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled))
	assert.Equal(t, 1, fkEnabled)
}

func attemptAt(id, flow, outcome string, finished time.Time) *Attempt {
	return &Attempt{
		ID:         id,
		Flow:       flow,
		Outcome:    outcome,
		StartedAt:  finished.Add(-11 * time.Second),
		FinishedAt: finished,
	}
}

func TestAttempts_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	repo := s.Attempts()

	finished := time.Date(2026, 1, 1, 9, 0, 11, 0, time.UTC)
	a := attemptAt("a1", "arm", "success", finished)
	a.ResultText = "No arm drift detected"
	a.Response = json.RawMessage(`{"id":42,"label":"normal"}`)

	frames := []Frame{
		{Filename: "t025.png", ContentType: "image/png", Width: 64, Height: 48, Data: []byte("start")},
		{Filename: "t105.png", ContentType: "image/png", Width: 64, Height: 48, Data: []byte("end")},
	}
	require.NoError(t, repo.Create(a, frames))
	assert.Equal(t, 2, a.Frames)

	got, err := repo.GetByID("a1")
	require.NoError(t, err)
	assert.Equal(t, "arm", got.Flow)
	assert.Equal(t, "success", got.Outcome)
	assert.Equal(t, "No arm drift detected", got.ResultText)
	assert.JSONEq(t, `{"id":42,"label":"normal"}`, string(got.Response))
	assert.Equal(t, 2, got.Frames)
	assert.True(t, got.FinishedAt.Equal(finished))

	f, err := repo.Frame("a1", 1)
	require.NoError(t, err)
	assert.Equal(t, "t105.png", f.Filename)
	assert.Equal(t, []byte("end"), f.Data)

	_, err = repo.Frame("a1", 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttempts_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Attempts().GetByID("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttempts_RejectsUnknownFlow(t *testing.T) {
	s := newTestStore(t)
	err := s.Attempts().Create(attemptAt("x", "speech", "success", time.Now()), nil)
	assert.Error(t, err)
}

func TestAttempts_ListAndLatest(t *testing.T) {
	s := newTestStore(t)
	repo := s.Attempts()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(attemptAt("arm-1", "arm", "failure", base), nil))
	require.NoError(t, repo.Create(attemptAt("face-1", "face", "success", base.Add(time.Minute)), nil))
	require.NoError(t, repo.Create(attemptAt("arm-2", "arm", "success", base.Add(2*time.Minute)), nil))

	all, err := repo.List("", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "arm-2", all[0].ID)
	assert.Equal(t, "arm-1", all[2].ID)

	arms, err := repo.List("arm", 0)
	require.NoError(t, err)
	assert.Len(t, arms, 2)

	limited, err := repo.List("", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	latest, err := repo.Latest("face")
	require.NoError(t, err)
	assert.Equal(t, "face-1", latest.ID)

	s2 := newTestStore(t)
	_, err = s2.Attempts().Latest("arm")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttempts_DeleteCascadesFrames(t *testing.T) {
	s := newTestStore(t)
	repo := s.Attempts()

	a := attemptAt("a1", "face", "success", time.Now())
	require.NoError(t, repo.Create(a, []Frame{{Filename: "frame.jpg", ContentType: "image/jpeg", Data: []byte{1}}}))

	require.NoError(t, repo.Delete("a1"))
	assert.ErrorIs(t, repo.Delete("a1"), ErrNotFound)

	var count int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM attempt_frames").Scan(&count))
	assert.Zero(t, count)
}

func TestAttempts_Prune(t *testing.T) {
	s := newTestStore(t)
	repo := s.Attempts()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, repo.Create(attemptAt(id, "arm", "success", base.Add(time.Duration(i)*time.Minute)), nil))
	}

	n, err := repo.Prune(2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	left, err := repo.List("", 0)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, "d", left[0].ID)
	assert.Equal(t, "c", left[1].ID)
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)
	repo := s.Settings()

	_, err := repo.Get(SettingAccessToken)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Set(SettingAccessToken, "tok-1"))
	require.NoError(t, repo.Set(SettingAccessToken, "tok-2"))

	v, err := repo.Get(SettingAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", v)

	require.NoError(t, repo.Delete(SettingAccessToken))
	require.NoError(t, repo.Delete(SettingAccessToken))
	_, err = repo.Get(SettingAccessToken)
	assert.ErrorIs(t, err, ErrNotFound)
}
