//go:build darwin || linux

package main

import (
	"context"
	"sync"

	"github.com/kardianos/service"

	"github.com/emitdm/delorean/internal/availability"
	"github.com/emitdm/delorean/internal/config"
	"github.com/emitdm/delorean/internal/notify"
	"github.com/emitdm/delorean/internal/runlog"
	"github.com/emitdm/delorean/internal/scheduler"
	"github.com/emitdm/delorean/internal/supervisor"
	"github.com/emitdm/delorean/internal/syslog"
)

// program wires the config provider, run log, availability checker,
// supervisor and driver together and adapts them to the service lifecycle.
// No component reaches for a global: everything is passed in here.
type program struct {
	svc        service.Service
	scriptPath string

	ctx    context.Context
	cancel context.CancelFunc

	provider *config.Provider
	watcher  *config.Watcher

	coreOnce sync.Once
	store    *runlog.Store
	checker  *availability.Checker
	launcher *supervisor.ScriptLauncher
	sup      *supervisor.Supervisor
	driver   *scheduler.Driver

	stateCh chan supervisor.State
}

func newProgram(scriptPath string) *program {
	return &program{
		scriptPath: scriptPath,
		stateCh:    make(chan supervisor.State, 8),
	}
}

// Start loads the configuration and launches the polling loop. A config
// error disables scheduling but never kills the application: the script
// watcher keeps retrying, so fixing the script recovers without a restart.
func (p *program) Start(_ service.Service) error {
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.provider = config.NewProvider(p.scriptPath)
	p.provider.OnReload(p.applySnapshot)

	if err := p.provider.Reload(); err != nil {
		syslog.L.Error(err).
			WithMessage("config load failed; automatic backups disabled until the script is fixed").
			WithField("script", p.scriptPath).
			Write()
	}

	watcher, err := config.NewWatcher(p.provider)
	if err != nil {
		syslog.L.Warn().
			WithMessage("config watcher unavailable; script changes need a restart").
			WithField("error", err.Error()).
			Write()
	} else {
		p.watcher = watcher
		if err := watcher.Watch(); err != nil {
			syslog.L.Warn().WithMessage("failed to watch config script").WithField("error", err.Error()).Write()
		}
	}

	return nil
}

// applySnapshot reacts to every successful config load. The first one builds
// the core and starts the driver; later ones refresh the destination probe.
// Log and script paths are read from the snapshot captured at build time; a
// change to those requires a restart.
func (p *program) applySnapshot(snap *config.Snapshot) {
	p.coreOnce.Do(func() { p.buildCore(snap) })
	p.checker.SetPath(snap.Dest)
}

func (p *program) buildCore(snap *config.Snapshot) {
	p.store = runlog.NewStore(snap.LogPath)
	p.checker = availability.NewChecker(snap.Dest)
	p.launcher = supervisor.NewScriptLauncher(snap.ScriptPath)

	notifier := notify.NewDesktop()
	p.sup = supervisor.New(p.launcher, p.store, notifier, p.checker)
	p.sup.OnStateChange(func(state supervisor.State) {
		select {
		case p.stateCh <- state:
		default:
		}
	})

	eval := scheduler.NewEvaluator(p.provider.Current, p.store, p.checker, p.sup)
	p.driver = scheduler.NewDriver(p.provider, eval, p.sup, p.store, notifier)

	go p.driver.Run(p.ctx)

	syslog.L.Info().
		WithMessage("scheduler started").
		WithField("window", snap.ScheduledAt.String()+"-"+snap.WindowEnd.String()).
		WithField("poll_interval", snap.PollInterval.String()).
		Write()
}

func (p *program) Stop(_ service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.watcher != nil {
		_ = p.watcher.Close()
	}
	if p.sup != nil {
		p.sup.Shutdown()
	}
	if p.launcher != nil {
		p.launcher.Cleanup()
	}
	return nil
}
