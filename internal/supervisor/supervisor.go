// Package supervisor owns the single external backup process slot. It
// enforces the at-most-one-concurrent-run invariant, translates process exit
// into a typed log entry, and guarantees the run state returns to Idle on
// every exit path: success, failure, abort, or launch error.
package supervisor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/emitdm/delorean/internal/notify"
	"github.com/emitdm/delorean/internal/runlog"
	"github.com/emitdm/delorean/internal/syslog"
)

// State of the run slot.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateAborting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateAborting:
		return "aborting"
	}
	return "unknown"
}

var (
	ErrAlreadyRunning         = errors.New("a backup is already in progress")
	ErrNotRunning             = errors.New("no backup is running")
	ErrDestinationUnreachable = errors.New("backup destination is unreachable")
	ErrLaunchFailed           = errors.New("failed to start the backup process")
)

// Handle controls a launched backup process.
type Handle interface {
	// Terminate signals the process (and any helper it spawned) to stop.
	Terminate() error
	// Kill forcibly ends the process after Terminate proved insufficient.
	Kill() error
}

// Launcher starts the external backup process. The exit callback fires
// exactly once, from its own goroutine, when the process ends.
type Launcher interface {
	Launch(trigger runlog.Trigger, onExit func(exitCode int)) (Handle, error)
}

// Prober is the synchronous destination check used by manual starts,
// bypassing any cache.
type Prober interface {
	Probe() bool
}

const abortKillTimeout = 5 * time.Second

// Supervisor serializes all run-state transitions behind one mutex. The
// check-and-set on start is what keeps a scheduled tick and a manual click
// from both spawning a process.
type Supervisor struct {
	mu        sync.Mutex
	state     State
	startedAt time.Time
	trigger   runlog.Trigger
	handle    Handle
	userAbort bool
	killTimer *time.Timer

	launcher Launcher
	log      *runlog.Store
	notifier notify.Notifier
	prober   Prober
	now      func() time.Time

	onStateChange func(State)
}

func New(launcher Launcher, log *runlog.Store, notifier notify.Notifier, prober Prober) *Supervisor {
	return &Supervisor{
		launcher: launcher,
		log:      log,
		notifier: notifier,
		prober:   prober,
		now:      time.Now,
	}
}

// OnStateChange registers a callback fired after every state transition,
// outside the supervisor lock. Used by the tray to update menu items.
func (s *Supervisor) OnStateChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChange = fn
}

// State returns the current run state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartManual begins a user-initiated run. The destination is re-probed
// synchronously first: a manual click deserves a current answer, and no
// process is ever spawned against a volume known to be gone.
func (s *Supervisor) StartManual() error {
	if !s.prober.Probe() {
		s.appendEntry(runlog.Entry{
			Kind:     runlog.KindFailed,
			Reason:   runlog.ReasonNetwork,
			Failures: s.log.FailuresSinceLastSuccess() + 1,
		})
		s.notifier.Notify("Backup Failed", "Network drive inaccessible.")
		return ErrDestinationUnreachable
	}
	return s.start(runlog.TriggerManual)
}

// StartScheduled begins a timer-initiated run.
func (s *Supervisor) StartScheduled() error {
	return s.start(runlog.TriggerScheduled)
}

func (s *Supervisor) start(trigger runlog.Trigger) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.state = StateRunning
	s.trigger = trigger
	s.startedAt = s.now()
	s.userAbort = false

	handle, err := s.launcher.Launch(trigger, s.onProcessExit)
	if err != nil {
		s.state = StateIdle
		s.mu.Unlock()

		s.appendEntry(runlog.Entry{
			Kind:   runlog.KindFailed,
			Reason: runlog.ReasonProcess,
			Detail: err.Error(),
		})
		s.notifier.Notify("Error", "Failed to start the backup process.")
		s.fireStateChange(StateIdle)
		return fmt.Errorf("start: %w -> %v", ErrLaunchFailed, err)
	}
	s.handle = handle
	// Logged before the lock is released so a fast-exiting process cannot
	// record its outcome ahead of the start entry.
	s.appendEntry(runlog.Entry{Kind: runlog.KindStarted, Trigger: trigger})
	s.mu.Unlock()

	s.fireStateChange(StateRunning)
	return nil
}

// Abort cancels the in-flight run. The aborted entry is logged here and the
// user-abort flag suppresses the natural-failure notification that the exit
// callback would otherwise produce. Termination is cooperative with a
// bounded escalation to a hard kill.
func (s *Supervisor) Abort() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.state = StateAborting
	s.userAbort = true
	handle := s.handle
	s.killTimer = time.AfterFunc(abortKillTimeout, s.forceKill)
	s.mu.Unlock()

	s.appendEntry(runlog.Entry{Kind: runlog.KindFailed, Reason: runlog.ReasonAborted})
	s.notifier.Notify("Backup Aborted", "The backup process has been cancelled.")

	if handle != nil {
		if err := handle.Terminate(); err != nil {
			syslog.L.Warn().
				WithMessage("failed to signal backup process").
				WithField("error", err.Error()).
				Write()
		}
	}
	s.fireStateChange(StateAborting)
	return nil
}

func (s *Supervisor) forceKill() {
	s.mu.Lock()
	handle := s.handle
	stillAborting := s.state == StateAborting
	s.mu.Unlock()

	if stillAborting && handle != nil {
		_ = handle.Kill()
	}
}

// onProcessExit is the single completion path for a launched process. It
// always returns the slot to Idle.
func (s *Supervisor) onProcessExit(exitCode int) {
	s.mu.Lock()
	wasAbort := s.userAbort
	s.userAbort = false
	s.state = StateIdle
	s.handle = nil
	if s.killTimer != nil {
		s.killTimer.Stop()
		s.killTimer = nil
	}
	s.mu.Unlock()

	if wasAbort {
		// The abort path already logged and notified.
		s.fireStateChange(StateIdle)
		return
	}

	if exitCode == 0 {
		s.appendEntry(runlog.Entry{Kind: runlog.KindSucceeded})
		s.notifier.Notify("Backup Completed", "Your files have been successfully backed up.")
	} else {
		s.appendEntry(runlog.Entry{
			Kind:   runlog.KindFailed,
			Reason: runlog.ReasonProcess,
			Detail: fmt.Sprintf("exit code %d", exitCode),
		})
		s.notifier.Notify("Backup Failed", "There was an issue with the backup process.")
	}
	s.fireStateChange(StateIdle)
}

// Shutdown terminates any in-flight run without logging a user abort; it is
// called when the application itself exits.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	handle := s.handle
	if handle != nil {
		s.userAbort = true
	}
	s.mu.Unlock()

	if handle != nil {
		_ = handle.Terminate()
		time.Sleep(time.Second)
		_ = handle.Kill()
	}
}

// appendEntry writes to the run log. Log IO failure degrades reporting only;
// it never blocks a state transition.
func (s *Supervisor) appendEntry(entry runlog.Entry) {
	if err := s.log.Append(entry); err != nil {
		syslog.L.Error(err).WithMessage("failed to append run log entry").Write()
	}
}

func (s *Supervisor) fireStateChange(state State) {
	s.mu.Lock()
	fn := s.onStateChange
	s.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}
