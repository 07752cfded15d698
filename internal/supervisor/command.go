//go:build darwin || linux

package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/emitdm/delorean/internal/runlog"
)

// helperProcessName is the worker the backup script spawns. Terminating the
// script alone can leave an rsync transfer running, so aborts kill it by
// name as well.
const helperProcessName = "rsync"

// ScriptLauncher runs the rsync backup script through /bin/bash, passing the
// trigger kind as the positional argument the script expects. Each run gets
// its own process group so an abort can signal the whole tree.
type ScriptLauncher struct {
	scriptPath    string
	abortFlagPath string
}

func NewScriptLauncher(scriptPath string) *ScriptLauncher {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return &ScriptLauncher{
		scriptPath:    scriptPath,
		abortFlagPath: filepath.Join(home, "delorean_abort.flag"),
	}
}

// Launch starts the script. onExit fires once from a goroutine with the
// process exit code; a process killed by signal reports a non-zero code.
func (l *ScriptLauncher) Launch(trigger runlog.Trigger, onExit func(exitCode int)) (Handle, error) {
	// A stale flag from an earlier abort must not cancel this run.
	_ = os.Remove(l.abortFlagPath)

	arg := "automated"
	if trigger == runlog.TriggerManual {
		arg = "manual"
	}

	cmd := exec.Command("/bin/bash", l.scriptPath, arg)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("Launch: error starting %s -> %w", l.scriptPath, err)
	}

	handle := &processHandle{
		pid:           cmd.Process.Pid,
		abortFlagPath: l.abortFlagPath,
	}

	go func() {
		err := cmd.Wait()
		onExit(exitCodeOf(err))
	}()

	return handle, nil
}

// Cleanup is the shutdown path when no handle is available: drop the abort
// flag and kill any stray helper processes by name.
func (l *ScriptLauncher) Cleanup() {
	touchFile(l.abortFlagPath)
	killHelper()
}

type processHandle struct {
	pid           int
	abortFlagPath string
}

// Terminate asks the run to stop: flag file first so the script's own loop
// can bail out, then the helper by name, then SIGTERM to the process group.
func (h *processHandle) Terminate() error {
	touchFile(h.abortFlagPath)
	killHelper()

	pgid, err := unix.Getpgid(h.pid)
	if err != nil {
		return fmt.Errorf("Terminate: error resolving process group -> %w", err)
	}
	if err := unix.Kill(-pgid, unix.SIGTERM); err != nil {
		return fmt.Errorf("Terminate: error signalling process group -> %w", err)
	}
	return nil
}

// Kill forcibly ends the process group.
func (h *processHandle) Kill() error {
	pgid, err := unix.Getpgid(h.pid)
	if err != nil {
		return fmt.Errorf("Kill: error resolving process group -> %w", err)
	}
	if err := unix.Kill(-pgid, unix.SIGKILL); err != nil {
		return fmt.Errorf("Kill: error killing process group -> %w", err)
	}
	return nil
}

// killHelper terminates rsync workers by name. The process-group signal
// covers the script itself; rsync can detach from the group mid-transfer.
func killHelper() {
	_ = exec.Command("pkill", "-x", helperProcessName).Run()
}

func touchFile(path string) {
	f, err := os.Create(path)
	if err != nil {
		return
	}
	_ = f.Close()
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
	}
	return 1
}
