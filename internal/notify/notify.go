// Package notify carries operator-facing alerts for escalated requests.
// Delivery is best effort: a lost notification never affects the dialog.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/deskhelp/deskbot/internal/logging"
)

// Channel delivers one operator notification. Implementations log their own
// failures and never return them to the caller.
type Channel interface {
	Notify(text string)
}

// FromConfig picks a channel by name. Unknown modes fall back to the log
// channel so escalations are never silently dropped.
func FromConfig(mode string) Channel {
	switch strings.ToLower(mode) {
	case "desktop":
		return DesktopChannel{}
	case "none":
		return nil
	default:
		return LogChannel{}
	}
}

// LogChannel writes notifications to the application log.
type LogChannel struct{}

func (LogChannel) Notify(text string) {
	logging.Infof("NOTIFY %s", text)
}

// DesktopChannel displays a native OS notification on the machine running
// the bot. Useful for a single-operator service desk.
type DesktopChannel struct{}

func (DesktopChannel) Notify(text string) {
	text = sanitize(text)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf(`display notification %q with title %q`, text, "DeskBot")
		cmd = exec.Command("osascript", "-e", script)
	case "linux":
		cmd = exec.Command("notify-send", "DeskBot", text)
	default:
		logging.Infof("NOTIFY %s", text)
		return
	}

	if err := cmd.Run(); err != nil {
		logging.Warnf("desktop notification failed: %v", err)
	}
}

// sanitize removes characters that could break shell quoting.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\\", "")
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}
