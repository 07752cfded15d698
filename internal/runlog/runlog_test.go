package runlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "delorean.log"))
}

func at(day, hour int) time.Time {
	return time.Date(2024, time.March, day, hour, 0, 0, 0, time.Local)
}

func TestAppend(t *testing.T) {
	t.Run("Creates File With Created Entry", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Append(Entry{Time: at(1, 10), Kind: KindSucceeded}))

		entries, err := store.readAll()
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, KindCreated, entries[0].Kind)
		assert.Equal(t, KindSucceeded, entries[1].Kind)
	})

	t.Run("Appends Without Rewriting", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Append(Entry{Time: at(1, 10), Kind: KindSucceeded}))

		before, err := os.ReadFile(store.path)
		require.NoError(t, err)

		require.NoError(t, store.Append(Entry{Time: at(2, 10), Kind: KindStarted, Trigger: TriggerManual}))

		after, err := os.ReadFile(store.path)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(after), string(before)),
			"append must not rewrite existing content")
	})

	t.Run("Lines Carry Legacy Message", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Append(Entry{
			Time:     at(1, 10),
			Kind:     KindFailed,
			Reason:   ReasonNetwork,
			Failures: 3,
		}))

		content, err := os.ReadFile(store.path)
		require.NoError(t, err)
		assert.Contains(t, string(content), "Backup Failed: Network drive inaccessible (Failure count: 3)")
	})
}

func TestQueries(t *testing.T) {
	store := newTestStore(t)
	seed := []Entry{
		{Time: at(1, 9), Kind: KindStarted, Trigger: TriggerScheduled},
		{Time: at(1, 10), Kind: KindSucceeded},
		{Time: at(2, 9), Kind: KindFailed, Reason: ReasonNetwork, Failures: 1},
		{Time: at(3, 9), Kind: KindFailed, Reason: ReasonNetwork, Failures: 2},
		{Time: at(3, 12), Kind: KindFailed, Reason: ReasonAborted},
	}
	for _, entry := range seed {
		require.NoError(t, store.Append(entry))
	}

	t.Run("LastSuccess", func(t *testing.T) {
		ts, ok := store.LastSuccess()
		require.True(t, ok)
		assert.Equal(t, at(1, 10), ts)
	})

	t.Run("FailuresSinceLastSuccess", func(t *testing.T) {
		// Only network failures count, and the scan stops at the success.
		assert.Equal(t, 2, store.FailuresSinceLastSuccess())
	})

	t.Run("HasAnyAttempt", func(t *testing.T) {
		assert.True(t, store.HasAnyAttempt())

		empty := newTestStore(t)
		assert.False(t, empty.HasAnyAttempt())
	})

	t.Run("SucceededOn", func(t *testing.T) {
		assert.True(t, store.SucceededOn(at(1, 23)))
		assert.False(t, store.SucceededOn(at(2, 10)))
	})

	t.Run("NetworkFailureOn", func(t *testing.T) {
		assert.True(t, store.NetworkFailureOn(at(2, 18)))
		assert.True(t, store.NetworkFailureOn(at(3, 8)))
		assert.False(t, store.NetworkFailureOn(at(4, 9)))
	})

	t.Run("Missing File Reads As Empty", func(t *testing.T) {
		store := newTestStore(t)
		_, ok := store.LastSuccess()
		assert.False(t, ok)
		assert.Equal(t, 0, store.FailuresSinceLastSuccess())
		assert.False(t, store.SucceededOn(at(1, 10)))
	})
}

func TestLegacyCompatibility(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delorean.log")
	legacy := strings.Join([]string{
		"2024-03-01 09:00:00 - Log file created",
		"2024-03-01 09:30:00 - Backup completed successfully",
		"2024-03-02 09:00:00 - Backup Failed: Network drive inaccessible (Failure count: 1)",
		"2024-03-02 11:00:00 - Backup Failed: User aborted",
		"2024-03-02 12:00:00 - Backup Failed: rsync exited with errors",
		"garbage line without a timestamp",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	store := NewStore(path)

	entries, err := store.readAll()
	require.NoError(t, err)
	require.Len(t, entries, 5, "the garbage line is skipped")

	assert.Equal(t, KindCreated, entries[0].Kind)
	assert.Equal(t, KindSucceeded, entries[1].Kind)
	assert.Equal(t, ReasonNetwork, entries[2].Reason)
	assert.Equal(t, 1, entries[2].Failures)
	assert.Equal(t, ReasonAborted, entries[3].Reason)
	assert.Equal(t, ReasonProcess, entries[4].Reason, "unknown failure text classifies as process error")

	ts, ok := store.LastSuccess()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, time.March, 1, 9, 30, 0, 0, time.Local), ts)
	assert.Equal(t, 1, store.FailuresSinceLastSuccess())
	assert.True(t, store.NetworkFailureOn(time.Date(2024, time.March, 2, 0, 0, 0, 0, time.Local)))

	// Appending to a legacy file keeps the old lines intact.
	require.NoError(t, store.Append(Entry{Time: time.Date(2024, time.March, 3, 9, 0, 0, 0, time.Local), Kind: KindSucceeded}))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), legacy))
}

func TestLastSuccessDisplay(t *testing.T) {
	store := newTestStore(t)
	assert.Equal(t, "Last Backup: No backups found", store.LastSuccessDisplay())

	require.NoError(t, store.Append(Entry{
		Time: time.Date(2024, time.March, 1, 15, 4, 0, 0, time.Local),
		Kind: KindSucceeded,
	}))
	assert.Equal(t, "Last Backup: March 1, 3:04 PM", store.LastSuccessDisplay())
}
