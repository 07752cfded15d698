// Package scheduler decides when backups run. The Evaluator is the decision
// function; the Driver is the polling loop that applies its decisions.
package scheduler

import (
	"time"

	"github.com/emitdm/delorean/internal/config"
	"github.com/emitdm/delorean/internal/runlog"
	"github.com/emitdm/delorean/internal/supervisor"
)

// Action is the outcome of one evaluation.
type Action int

const (
	// ActionIdle means do nothing this tick.
	ActionIdle Action = iota
	// ActionStartBackup means launch a scheduled run now.
	ActionStartBackup
	// ActionRecordFailure means append a destination-unreachable entry.
	ActionRecordFailure
)

// Decision carries the action plus the data needed to apply it.
type Decision struct {
	Action       Action
	Trigger      runlog.Trigger
	FailureCount int
}

// LogQueries is the slice of the run log the evaluator reads.
type LogQueries interface {
	SucceededOn(day time.Time) bool
	NetworkFailureOn(day time.Time) bool
	LastSuccess() (time.Time, bool)
	FailuresSinceLastSuccess() int
}

// Availability is the cached reachability check.
type Availability interface {
	IsReachable() bool
}

// RunStater exposes the supervisor's current state.
type RunStater interface {
	State() supervisor.State
}

// Evaluator decides, for a given instant, whether to start a backup, record
// a network failure, or do nothing. Daily status is derived from the log on
// every call, so a date change resets it with no extra bookkeeping and the
// answers survive restarts.
//
// Evaluate and CheckOverdue are called from the driver's single goroutine;
// the overdue latch needs no locking.
type Evaluator struct {
	cfg   func() *config.Snapshot
	log   LogQueries
	avail Availability
	run   RunStater

	overdueAlertedOn time.Time
}

func NewEvaluator(cfg func() *config.Snapshot, log LogQueries, avail Availability, run RunStater) *Evaluator {
	return &Evaluator{cfg: cfg, log: log, avail: avail, run: run}
}

// Evaluate implements the scheduled-backup decision:
//
//  1. never double-start while a run is in flight
//  2. only inside the [ScheduledAt, WindowEnd] time-of-day window
//  3. at most one successful backup per calendar day
//  4. an unreachable destination is logged once per day, then waited out
//  5. otherwise, start
//
// An empty or missing log means "never backed up": the first in-window tick
// attempts a backup immediately.
func (e *Evaluator) Evaluate(now time.Time) Decision {
	if e.run.State() != supervisor.StateIdle {
		return Decision{Action: ActionIdle}
	}

	cfg := e.cfg()
	if cfg == nil {
		return Decision{Action: ActionIdle}
	}

	tod := config.TimeOfDayFrom(now)
	if tod.Before(cfg.ScheduledAt) || tod.After(cfg.WindowEnd) {
		return Decision{Action: ActionIdle}
	}

	if e.log.SucceededOn(now) {
		return Decision{Action: ActionIdle}
	}

	if !e.avail.IsReachable() {
		if !e.log.NetworkFailureOn(now) {
			return Decision{
				Action:       ActionRecordFailure,
				FailureCount: e.log.FailuresSinceLastSuccess() + 1,
			}
		}
		return Decision{Action: ActionIdle}
	}

	return Decision{Action: ActionStartBackup, Trigger: runlog.TriggerScheduled}
}

// CheckOverdue runs on the same cadence as Evaluate but independently of it.
// It is gated to the wider [WindowStart, WindowEnd] window, fires at most
// once per calendar day, and stays silent on a log with no success at all,
// since a fresh install is not "N days overdue".
func (e *Evaluator) CheckOverdue(now time.Time) (daysSince int, fire bool) {
	cfg := e.cfg()
	if cfg == nil {
		return 0, false
	}

	tod := config.TimeOfDayFrom(now)
	if tod.Before(cfg.WindowStart) || tod.After(cfg.WindowEnd) {
		return 0, false
	}

	if !e.overdueAlertedOn.IsZero() && sameDay(e.overdueAlertedOn, now) {
		return 0, false
	}

	lastSuccess, ok := e.log.LastSuccess()
	if !ok {
		return 0, false
	}

	days := calendarDaysBetween(lastSuccess, now)
	if days < cfg.OverdueThresholdDays {
		return 0, false
	}

	e.overdueAlertedOn = now
	return days, true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func calendarDaysBetween(from, to time.Time) int {
	fromMidnight := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	toMidnight := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location())
	return int(toMidnight.Sub(fromMidnight) / (24 * time.Hour))
}
