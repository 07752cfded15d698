//go:build darwin || linux

package main

import (
	_ "embed"
	"time"

	"github.com/getlantern/systray"

	"github.com/emitdm/delorean/internal/supervisor"
	"github.com/emitdm/delorean/internal/syslog"
)

//go:embed icon/delorean.png
var icon []byte

const lastBackupRefreshInterval = 30 * time.Second

// onTrayReady builds the menu. Item visibility mirrors the run state:
// Start and the last-backup line while idle, Abort and the progress line
// while a run is in flight.
func (p *program) onTrayReady() {
	systray.SetIcon(icon)
	systray.SetTitle("DeLorean")
	systray.SetTooltip("DeLorean " + Version)

	mProgress := systray.AddMenuItem("Backup in progress…", "A backup is currently running")
	mProgress.Disable()
	mProgress.Hide()

	mLast := systray.AddMenuItem(p.lastBackupTitle(), "Most recent successful backup")
	mLast.Disable()

	systray.AddSeparator()

	mStart := systray.AddMenuItem("Start Backup", "Run a backup now")
	mAbort := systray.AddMenuItem("Abort Backup", "Cancel the running backup")
	mAbort.Hide()

	systray.AddSeparator()

	mQuit := systray.AddMenuItem("Quit DeLorean", "Quit")

	go func() {
		for {
			select {
			case <-p.ctx.Done():
				return
			case <-mStart.ClickedCh:
				p.startManualBackup()
			case <-mAbort.ClickedCh:
				p.abortBackup()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(lastBackupRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				mLast.SetTitle(p.lastBackupTitle())
			case state := <-p.stateCh:
				running := state != supervisor.StateIdle
				if running {
					mStart.Hide()
					mLast.Hide()
					mAbort.Show()
					mProgress.Show()
				} else {
					mAbort.Hide()
					mProgress.Hide()
					mStart.Show()
					mLast.SetTitle(p.lastBackupTitle())
					mLast.Show()
				}
			}
		}
	}()

	go func() {
		select {
		case <-p.ctx.Done():
		case <-mQuit.ClickedCh:
			p.quit()
		}
		systray.Quit()
	}()
}

func (p *program) onTrayExit() {
	_ = p.Stop(p.svc)
}

func (p *program) startManualBackup() {
	if p.sup == nil {
		syslog.L.Warn().WithMessage("manual backup requested with no configuration loaded").Write()
		return
	}
	if err := p.sup.StartManual(); err != nil {
		syslog.L.Warn().WithMessage("manual backup not started").WithField("error", err.Error()).Write()
	}
}

func (p *program) abortBackup() {
	if p.sup == nil {
		return
	}
	if err := p.sup.Abort(); err != nil {
		syslog.L.Warn().WithMessage("abort failed").WithField("error", err.Error()).Write()
	}
}

// quit aborts any in-flight run before exiting so no orphaned rsync keeps
// writing to the destination.
func (p *program) quit() {
	if p.sup != nil && p.sup.State() != supervisor.StateIdle {
		_ = p.sup.Abort()
		time.Sleep(time.Second)
	}
}

func (p *program) lastBackupTitle() string {
	if p.store == nil {
		return "Last Backup: No backups found"
	}
	return p.store.LastSuccessDisplay()
}
