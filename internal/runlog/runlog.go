package runlog

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"
)

// Store appends to and queries the run log file. Appends are serialized
// in-process; the at-most-one-concurrent-run rule keeps entry timestamps in
// non-decreasing order without any help from the file itself.
type Store struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Append writes one entry. The file is created on first use, with a Created
// entry recorded ahead of the payload. Errors surface to the caller but must
// never stop a backup attempt; callers log and continue.
func (s *Store) Append(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Time.IsZero() {
		entry.Time = s.now()
	}

	_, statErr := os.Stat(s.path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("Append: error opening log file -> %w", err)
	}
	defer f.Close()

	if isNew {
		created := Entry{Time: entry.Time, Kind: KindCreated}
		if err := writeEntry(f, created); err != nil {
			return err
		}
	}
	if err := writeEntry(f, entry); err != nil {
		return err
	}

	return f.Sync()
}

func writeEntry(f *os.File, entry Entry) error {
	line, err := entry.marshal()
	if err != nil {
		return fmt.Errorf("Append: error encoding entry -> %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("Append: error writing entry -> %w", err)
	}
	return nil
}

// readAll loads every recognizable entry, oldest first. A missing file reads
// as an empty log. Malformed lines are skipped rather than failing the scan.
func (s *Store) readAll() ([]Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("readAll: error opening log file -> %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if entry, ok := parseLine(scanner.Text()); ok {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("readAll: error reading log file -> %w", err)
	}
	return entries, nil
}

// LastSuccess returns the timestamp of the most recent successful backup.
func (s *Store) LastSuccess() (time.Time, bool) {
	entries, err := s.readAll()
	if err != nil {
		return time.Time{}, false
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind == KindSucceeded {
			return entries[i].Time, true
		}
	}
	return time.Time{}, false
}

// FailuresSinceLastSuccess counts network failures recorded after the most
// recent success.
func (s *Store) FailuresSinceLastSuccess() int {
	entries, err := s.readAll()
	if err != nil {
		return 0
	}
	count := 0
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind == KindSucceeded {
			break
		}
		if entries[i].Kind == KindFailed && entries[i].Reason == ReasonNetwork {
			count++
		}
	}
	return count
}

// HasAnyAttempt reports whether the log records any started, succeeded or
// failed entry at all.
func (s *Store) HasAnyAttempt() bool {
	entries, err := s.readAll()
	if err != nil {
		return false
	}
	for _, entry := range entries {
		switch entry.Kind {
		case KindStarted, KindSucceeded, KindFailed:
			return true
		}
	}
	return false
}

// SucceededOn reports whether a successful backup is recorded for day's
// calendar date (local time).
func (s *Store) SucceededOn(day time.Time) bool {
	entries, err := s.readAll()
	if err != nil {
		return false
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind == KindSucceeded && sameDay(entries[i].Time, day) {
			return true
		}
	}
	return false
}

// NetworkFailureOn reports whether a destination-unreachable failure is
// recorded for day's calendar date (local time).
func (s *Store) NetworkFailureOn(day time.Time) bool {
	entries, err := s.readAll()
	if err != nil {
		return false
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Kind == KindFailed && e.Reason == ReasonNetwork && sameDay(e.Time, day) {
			return true
		}
	}
	return false
}

// LastSuccessDisplay renders the menu title for the most recent success.
func (s *Store) LastSuccessDisplay() string {
	ts, ok := s.LastSuccess()
	if !ok {
		return "Last Backup: No backups found"
	}
	return "Last Backup: " + ts.Format("January 2, 3:04 PM")
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
