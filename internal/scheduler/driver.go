package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emitdm/delorean/internal/config"
	"github.com/emitdm/delorean/internal/notify"
	"github.com/emitdm/delorean/internal/runlog"
	"github.com/emitdm/delorean/internal/supervisor"
	"github.com/emitdm/delorean/internal/syslog"
)

const fallbackPollInterval = 30 * time.Second

// Starter is what the driver asks to launch a scheduled run.
type Starter interface {
	StartScheduled() error
}

// Driver re-evaluates the schedule every poll interval. Polling is the retry
// mechanism: a failed or skipped attempt simply gets re-decided on the next
// tick. All decisions happen on the driver goroutine; starting a run is
// fire-and-forget.
type Driver struct {
	provider *config.Provider
	eval     *Evaluator
	starter  Starter
	log      *runlog.Store
	notifier notify.Notifier
}

func NewDriver(provider *config.Provider, eval *Evaluator, starter Starter, log *runlog.Store, notifier notify.Notifier) *Driver {
	return &Driver{
		provider: provider,
		eval:     eval,
		starter:  starter,
		log:      log,
		notifier: notifier,
	}
}

// Run evaluates once immediately, then on every poll interval until the
// context is cancelled. The interval is re-read from the provider each
// cycle so a config reload takes effect without a restart.
func (d *Driver) Run(ctx context.Context) {
	for {
		d.Tick(time.Now())

		interval := fallbackPollInterval
		if cfg := d.provider.Current(); cfg != nil && cfg.PollInterval > 0 {
			interval = cfg.PollInterval
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// Tick runs one schedule evaluation plus the overdue check.
func (d *Driver) Tick(now time.Time) {
	decision := d.eval.Evaluate(now)
	switch decision.Action {
	case ActionStartBackup:
		go func() {
			err := d.starter.StartScheduled()
			if err != nil && !errors.Is(err, supervisor.ErrAlreadyRunning) {
				syslog.L.Error(err).WithMessage("scheduled backup failed to start").Write()
			}
		}()
	case ActionRecordFailure:
		entry := runlog.Entry{
			Time:     now,
			Kind:     runlog.KindFailed,
			Reason:   runlog.ReasonNetwork,
			Failures: decision.FailureCount,
		}
		if err := d.log.Append(entry); err != nil {
			syslog.L.Error(err).WithMessage("failed to record destination failure").Write()
		}
	}

	if days, fire := d.eval.CheckOverdue(now); fire {
		d.notifier.Notify("Backup Overdue",
			fmt.Sprintf("No successful backup in %d days. Please connect the backup drive.", days))
	}
}
