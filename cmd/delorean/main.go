//go:build darwin || linux

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alexflint/go-filemutex"
	"github.com/getlantern/systray"
	"github.com/kardianos/service"

	"github.com/emitdm/delorean/internal/syslog"
)

var Version = "v0.0.0"

func main() {
	scriptPath := flag.String("script", defaultScriptPath(), "path to the rsync backup script")
	flag.Parse()

	svcConfig := &service.Config{
		Name:        "delorean",
		DisplayName: "DeLorean",
		Description: "Scheduled rsync backups from the menu bar.",
	}

	prg := newProgram(*scriptPath)
	s, err := service.New(prg, svcConfig)
	if err != nil {
		fmt.Println("Failed to initialize service:", err)
		return
	}
	prg.svc = s

	if args := flag.Args(); len(args) > 0 {
		cmd := args[0]
		if err := service.Control(s, cmd); err != nil {
			syslog.L.Error(err).WithMessage("service control failed").WithField("command", cmd).Write()
		}
		return
	}

	// Two tray instances would race each other for the run slot and the log.
	instanceMutex, err := filemutex.New(filepath.Join(os.TempDir(), "delorean.lock"))
	if err != nil {
		syslog.L.Error(err).WithMessage("failed to create instance lock").Write()
		return
	}
	if err := instanceMutex.TryLock(); err != nil {
		syslog.L.Warn().WithMessage("another instance is already running").Write()
		return
	}
	defer instanceMutex.Close()

	if !service.Interactive() {
		if err := syslog.L.SetServiceLogger(s); err != nil {
			syslog.L.Warn().WithMessage("service logger unavailable").WithField("error", err.Error()).Write()
		}
		if err := s.Run(); err != nil {
			syslog.L.Error(err).WithMessage("service run failed").Write()
		}
		return
	}

	if err := prg.Start(s); err != nil {
		syslog.L.Error(err).WithMessage("failed to start").Write()
		return
	}
	systray.Run(prg.onTrayReady, prg.onTrayExit)
}

func defaultScriptPath() string {
	if env := os.Getenv("DELOREAN_SCRIPT"); env != "" {
		return env
	}
	execPath, err := os.Executable()
	if err != nil {
		return "sync_files.sh"
	}
	return filepath.Join(filepath.Dir(execPath), "sync_files.sh")
}
