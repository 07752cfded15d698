package config

import (
	"os"
	"os/user"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleScript = `#!/bin/bash
# DeLorean backup configuration
scheduledBackupTime="09:00"
rangeStart="08:30"
rangeEnd="19:00"
frequencyCheck="1800"
maxDayAttemptNotification="4"
SOURCES=("$HOME/Documents" "$HOME/Pictures")
EXCLUDES=("*.tmp" ".DS_Store")
DEST="/Volumes/backup/$(whoami)"
LOG_FILE="$HOME/delorean.log"

rsync -a "${SOURCES[@]}" "$DEST"
`

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sync_files.sh")
	require.NoError(t, os.WriteFile(path, []byte(content), 0755))
	return path
}

func TestLoad(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	current, err := user.Current()
	require.NoError(t, err)

	t.Run("Full Script", func(t *testing.T) {
		snap, err := Load(writeScript(t, sampleScript))
		require.NoError(t, err)

		assert.Equal(t, TimeOfDay{Hour: 9, Minute: 0}, snap.ScheduledAt)
		assert.Equal(t, TimeOfDay{Hour: 8, Minute: 30}, snap.WindowStart)
		assert.Equal(t, TimeOfDay{Hour: 19, Minute: 0}, snap.WindowEnd)
		assert.Equal(t, 1800*time.Second, snap.PollInterval)
		assert.Equal(t, 4, snap.OverdueThresholdDays)
		assert.Equal(t, []string{home + "/Documents", home + "/Pictures"}, snap.Sources)
		assert.Equal(t, []string{"*.tmp", ".DS_Store"}, snap.Excludes)
		assert.Equal(t, "/Volumes/backup/"+current.Username, snap.Dest)
		assert.Equal(t, home+"/delorean.log", snap.LogPath)
	})

	t.Run("Defaults", func(t *testing.T) {
		script := `scheduledBackupTime="09:00"
rangeEnd="19:00"
DEST="/Volumes/backup"
`
		snap, err := Load(writeScript(t, script))
		require.NoError(t, err)

		assert.Equal(t, defaultFrequency, snap.PollInterval)
		assert.Equal(t, defaultMaxDays, snap.OverdueThresholdDays)
		// rangeStart falls back to the scheduled time.
		assert.Equal(t, snap.ScheduledAt, snap.WindowStart)
		assert.Equal(t, home+"/delorean.log", snap.LogPath)
	})

	t.Run("Missing Schedule", func(t *testing.T) {
		_, err := Load(writeScript(t, `DEST="/Volumes/backup"`))
		assert.Error(t, err)
	})

	t.Run("Missing Dest", func(t *testing.T) {
		script := `scheduledBackupTime="09:00"
rangeEnd="19:00"
`
		_, err := Load(writeScript(t, script))
		assert.Error(t, err)
	})

	t.Run("Missing Script", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.sh"))
		assert.Error(t, err)
	})

	t.Run("Invalid Exclude Pattern", func(t *testing.T) {
		script := `scheduledBackupTime="09:00"
rangeEnd="19:00"
DEST="/Volumes/backup"
EXCLUDES=("[")
`
		_, err := Load(writeScript(t, script))
		assert.Error(t, err)
	})

	t.Run("Comments And Junk Ignored", func(t *testing.T) {
		script := `#scheduledBackupTime="07:00"
scheduledBackupTime="09:15"
rangeEnd="19:00"
DEST="/Volumes/backup"
echo no assignment here
`
		snap, err := Load(writeScript(t, script))
		require.NoError(t, err)
		assert.Equal(t, TimeOfDay{Hour: 9, Minute: 15}, snap.ScheduledAt)
	})
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:05")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 9, Minute: 5}, tod)
	assert.Equal(t, "09:05", tod.String())

	for _, bad := range []string{"", "9", "24:00", "12:60", "ab:cd"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, "expected error for %q", bad)
	}

	assert.True(t, TimeOfDay{8, 59}.Before(TimeOfDay{9, 0}))
	assert.True(t, TimeOfDay{19, 1}.After(TimeOfDay{19, 0}))
	assert.False(t, TimeOfDay{9, 0}.Before(TimeOfDay{9, 0}))
	assert.False(t, TimeOfDay{9, 0}.After(TimeOfDay{9, 0}))
}

func TestProviderReload(t *testing.T) {
	path := writeScript(t, sampleScript)
	provider := NewProvider(path)

	assert.Nil(t, provider.Current())

	var reloaded []*Snapshot
	provider.OnReload(func(snap *Snapshot) { reloaded = append(reloaded, snap) })

	require.NoError(t, provider.Reload())
	first := provider.Current()
	require.NotNil(t, first)
	require.Len(t, reloaded, 1)

	// A failed reload keeps the previous snapshot in effect.
	require.NoError(t, os.WriteFile(path, []byte("broken"), 0755))
	assert.Error(t, provider.Reload())
	assert.Same(t, first, provider.Current())
	assert.Len(t, reloaded, 1)

	// A successful reload swaps in a new snapshot.
	updated := `scheduledBackupTime="10:00"
rangeEnd="20:00"
DEST="/Volumes/other"
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0755))
	require.NoError(t, provider.Reload())
	second := provider.Current()
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
	assert.Equal(t, "/Volumes/other", second.Dest)
	assert.Len(t, reloaded, 2)
}
