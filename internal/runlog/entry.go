// Package runlog is the durable record of every backup attempt and outcome.
//
// The log file is strictly append-only and doubles as the source of truth for
// daily status: whether today's backup already succeeded, how many network
// failures accumulated since the last success, and when the last success
// happened. Entries are written as one JSON object per line carrying both the
// typed fields and a rendered human-readable message; plain-text lines from
// older log files are still understood.
package runlog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timestampLayout matches the historical log format.
const timestampLayout = "2006-01-02 15:04:05"

// Kind classifies a log entry.
type Kind string

const (
	KindCreated   Kind = "created"
	KindStarted   Kind = "started"
	KindSucceeded Kind = "succeeded"
	KindFailed    Kind = "failed"
)

// Trigger records what initiated a backup run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// Reason classifies a failed entry.
type Reason string

const (
	// ReasonNetwork means the destination volume was unreachable.
	ReasonNetwork Reason = "network"
	// ReasonAborted means the user cancelled the run.
	ReasonAborted Reason = "aborted"
	// ReasonProcess means the backup process failed to launch or exited
	// with a non-zero status.
	ReasonProcess Reason = "process"
)

// Entry is one run-log record.
type Entry struct {
	Time     time.Time
	Kind     Kind
	Trigger  Trigger
	Reason   Reason
	Failures int
	Detail   string
}

// wireEntry is the serialized form. Message carries the legacy rendering so
// the file stays readable with plain tools.
type wireEntry struct {
	Time     string  `json:"time"`
	Kind     Kind    `json:"kind"`
	Trigger  Trigger `json:"trigger,omitempty"`
	Reason   Reason  `json:"reason,omitempty"`
	Failures int     `json:"failures,omitempty"`
	Detail   string  `json:"detail,omitempty"`
	Message  string  `json:"message"`
}

// Legacy message vocabulary. These exact strings are a wire format: older
// releases (and the rsync script itself) wrote them, and classification of
// old log lines matches against them.
const (
	msgCreated      = "Log file created"
	msgSucceeded    = "Backup completed successfully"
	msgNetworkFail  = "Backup Failed: Network drive inaccessible"
	msgUserAborted  = "Backup Failed: User aborted"
	msgProcessFail  = "Backup Failed: Backup process error"
	msgFailedPrefix = "Backup Failed:"
	msgStarted      = "Backup started"
)

// Message renders the entry in the legacy vocabulary.
func (e Entry) Message() string {
	switch e.Kind {
	case KindCreated:
		return msgCreated
	case KindStarted:
		return fmt.Sprintf("%s (%s)", msgStarted, e.Trigger)
	case KindSucceeded:
		return msgSucceeded
	case KindFailed:
		switch e.Reason {
		case ReasonNetwork:
			if e.Failures > 0 {
				return fmt.Sprintf("%s (Failure count: %d)", msgNetworkFail, e.Failures)
			}
			return msgNetworkFail
		case ReasonAborted:
			return msgUserAborted
		default:
			return msgProcessFail
		}
	}
	return string(e.Kind)
}

func (e Entry) marshal() ([]byte, error) {
	w := wireEntry{
		Time:     e.Time.Format(timestampLayout),
		Kind:     e.Kind,
		Trigger:  e.Trigger,
		Reason:   e.Reason,
		Failures: e.Failures,
		Detail:   e.Detail,
		Message:  e.Message(),
	}
	return json.Marshal(w)
}

// parseLine decodes one log line. JSON lines decode directly; plain-text
// lines from older logs are classified by their message substrings.
func parseLine(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Entry{}, false
	}

	if strings.HasPrefix(line, "{") {
		var w wireEntry
		if err := json.Unmarshal([]byte(line), &w); err != nil {
			return Entry{}, false
		}
		ts, err := time.ParseInLocation(timestampLayout, w.Time, time.Local)
		if err != nil {
			return Entry{}, false
		}
		return Entry{
			Time:     ts,
			Kind:     w.Kind,
			Trigger:  w.Trigger,
			Reason:   w.Reason,
			Failures: w.Failures,
			Detail:   w.Detail,
		}, true
	}

	return parseLegacyLine(line)
}

func parseLegacyLine(line string) (Entry, bool) {
	parts := strings.SplitN(line, " - ", 2)
	if len(parts) != 2 {
		return Entry{}, false
	}
	ts, err := time.ParseInLocation(timestampLayout, parts[0], time.Local)
	if err != nil {
		return Entry{}, false
	}
	msg := parts[1]

	entry := Entry{Time: ts}
	switch {
	case strings.Contains(msg, msgSucceeded):
		entry.Kind = KindSucceeded
	case strings.Contains(msg, msgNetworkFail):
		entry.Kind = KindFailed
		entry.Reason = ReasonNetwork
		entry.Failures = parseFailureCount(msg)
	case strings.Contains(msg, msgUserAborted):
		entry.Kind = KindFailed
		entry.Reason = ReasonAborted
	case strings.Contains(msg, msgFailedPrefix):
		entry.Kind = KindFailed
		entry.Reason = ReasonProcess
	case strings.Contains(msg, msgCreated):
		entry.Kind = KindCreated
	case strings.Contains(msg, msgStarted):
		entry.Kind = KindStarted
		if strings.Contains(msg, string(TriggerManual)) {
			entry.Trigger = TriggerManual
		} else {
			entry.Trigger = TriggerScheduled
		}
	default:
		return Entry{}, false
	}
	return entry, true
}

func parseFailureCount(msg string) int {
	idx := strings.Index(msg, "(Failure count: ")
	if idx < 0 {
		return 0
	}
	rest := msg[idx+len("(Failure count: "):]
	end := strings.Index(rest, ")")
	if end < 0 {
		return 0
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0
	}
	return n
}
