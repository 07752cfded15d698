// Package config loads the backup schedule out of the rsync shell script.
//
// The shell script is the single source of truth for schedule and path
// settings, shared between this application and the rsync logic itself.
// Instead of shelling out to grep, the scraper reads KEY=value assignments
// directly, expanding $HOME and $(whoami) the way the script would.
package config

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// Script variable names recognized by the scraper.
const (
	keyScheduledTime = "scheduledBackupTime"
	keyRangeStart    = "rangeStart"
	keyRangeEnd      = "rangeEnd"
	keyFrequency     = "frequencyCheck"
	keyMaxDays       = "maxDayAttemptNotification"
	keySources       = "SOURCES"
	keyExcludes      = "EXCLUDES"
	keyDest          = "DEST"
	keyLogFile       = "LOG_FILE"
)

const (
	defaultFrequency = 3600 * time.Second
	defaultMaxDays   = 6
)

// TimeOfDay is a wall-clock time with minute resolution, compared ignoring
// the date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("ParseTimeOfDay: invalid time %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("ParseTimeOfDay: invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("ParseTimeOfDay: invalid minute in %q", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// TimeOfDayFrom extracts the wall-clock component of t.
func TimeOfDayFrom(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

func (t TimeOfDay) minutes() int { return t.Hour*60 + t.Minute }

// Before reports whether t is strictly earlier in the day than other.
func (t TimeOfDay) Before(other TimeOfDay) bool { return t.minutes() < other.minutes() }

// After reports whether t is strictly later in the day than other.
func (t TimeOfDay) After(other TimeOfDay) bool { return t.minutes() > other.minutes() }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// Snapshot is one immutable load of the schedule configuration. A reload
// produces a new Snapshot; snapshots are never mutated in place.
//
// WindowStart <= ScheduledAt <= WindowEnd is assumed but not enforced; a
// window violating it simply never triggers a backup.
type Snapshot struct {
	WindowStart TimeOfDay
	ScheduledAt TimeOfDay
	WindowEnd   TimeOfDay

	PollInterval         time.Duration
	OverdueThresholdDays int

	Sources  []string
	Excludes []string
	Dest     string
	LogPath  string

	ScriptPath string
}

// Load scrapes the configuration variables out of the backup script at path.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("Load: error opening script -> %w", err)
	}
	defer f.Close()

	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	snap := &Snapshot{
		PollInterval:         defaultFrequency,
		OverdueThresholdDays: defaultMaxDays,
		ScriptPath:           path,
	}
	if home != "" {
		snap.LogPath = home + "/delorean.log"
	}

	var haveScheduled, haveRangeStart, haveRangeEnd bool

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		value = strings.ReplaceAll(value, `"`, "")
		value = strings.ReplaceAll(value, "$HOME", home)
		value = strings.ReplaceAll(value, "$(whoami)", username)
		value = strings.ReplaceAll(value, "(", "")
		value = strings.ReplaceAll(value, ")", "")

		switch key {
		case keyScheduledTime:
			if tod, err := ParseTimeOfDay(value); err == nil {
				snap.ScheduledAt = tod
				haveScheduled = true
			}
		case keyRangeStart:
			if tod, err := ParseTimeOfDay(value); err == nil {
				snap.WindowStart = tod
				haveRangeStart = true
			}
		case keyRangeEnd:
			if tod, err := ParseTimeOfDay(value); err == nil {
				snap.WindowEnd = tod
				haveRangeEnd = true
			}
		case keyFrequency:
			if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
				snap.PollInterval = time.Duration(secs) * time.Second
			}
		case keyMaxDays:
			if days, err := strconv.Atoi(value); err == nil && days >= 1 {
				snap.OverdueThresholdDays = days
			}
		case keySources:
			snap.Sources = strings.Fields(value)
		case keyExcludes:
			excludes, err := parseExcludes(value)
			if err != nil {
				return nil, err
			}
			snap.Excludes = excludes
		case keyDest:
			snap.Dest = value
		case keyLogFile:
			snap.LogPath = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("Load: error reading script -> %w", err)
	}

	if !haveScheduled || !haveRangeEnd {
		return nil, fmt.Errorf("Load: script %s is missing schedule variables", path)
	}
	if snap.Dest == "" {
		return nil, fmt.Errorf("Load: script %s does not set %s", path, keyDest)
	}
	if snap.LogPath == "" {
		return nil, fmt.Errorf("Load: script %s does not set %s and no home directory is available", path, keyLogFile)
	}
	if !haveRangeStart {
		snap.WindowStart = snap.ScheduledAt
	}

	return snap, nil
}

// parseExcludes validates each pattern so a typo in the script surfaces at
// load time instead of silently changing what rsync skips.
func parseExcludes(value string) ([]string, error) {
	patterns := strings.Fields(value)
	for _, p := range patterns {
		if _, err := glob.Compile(p); err != nil {
			return nil, fmt.Errorf("parseExcludes: invalid exclude pattern %q -> %w", p, err)
		}
	}
	return patterns, nil
}
