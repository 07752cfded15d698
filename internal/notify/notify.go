// Package notify delivers user-facing notifications. Delivery is
// fire-and-forget: the core never blocks on, or reads a result from, a
// notification.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"golang.org/x/time/rate"

	"github.com/emitdm/delorean/internal/syslog"
)

// Notifier shows a (title, body) pair to the user.
type Notifier interface {
	Notify(title, body string)
}

// Desktop posts native desktop notifications, rate-limited so a misbehaving
// caller cannot flood the notification center. Dropped notifications still
// reach the application log.
type Desktop struct {
	limiter *rate.Limiter
	post    func(title, body string) error
}

func NewDesktop() *Desktop {
	return &Desktop{
		limiter: rate.NewLimiter(rate.Limit(0.5), 4),
		post:    postNative,
	}
}

// Notify delivers asynchronously and never blocks the caller.
func (d *Desktop) Notify(title, body string) {
	syslog.L.Info().
		WithMessage(title).
		WithField("body", body).
		Write()

	if !d.limiter.Allow() {
		return
	}

	go func() {
		if err := d.post(title, body); err != nil {
			syslog.L.Warn().
				WithMessage("failed to post desktop notification").
				WithField("error", err.Error()).
				Write()
		}
	}()
}

func postNative(title, body string) error {
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s",
			appleScriptString(body), appleScriptString(title))
		return exec.Command("/usr/bin/osascript", "-e", script).Run()
	case "linux":
		return exec.Command("notify-send", title, body).Run()
	default:
		return fmt.Errorf("postNative: no notifier for %s", runtime.GOOS)
	}
}

func appleScriptString(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// LogOnly writes notifications to the application log. Used headless and in
// tests.
type LogOnly struct{}

func (LogOnly) Notify(title, body string) {
	syslog.L.Info().
		WithMessage(title).
		WithField("body", body).
		Write()
}
