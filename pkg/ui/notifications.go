package ui

import (
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"followsweep/pkg/config"
	"followsweep/pkg/session"
)

// NotificationSender delivers one desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender uses notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender uses osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// WindowsNotificationSender uses a PowerShell toast
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		$xml = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
		$text = $xml.GetElementsByTagName("text")
		$text.Item(0).AppendChild($xml.CreateTextNode(%q)) | Out-Null
		$text.Item(1).AppendChild($xml.CreateTextNode(%q)) | Out-Null
		$toast = [Windows.UI.Notifications.ToastNotification]::new($xml)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("followsweep").Show($toast)
	`, title, message)
	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

// PlatformSender returns the sender for the running OS, or nil
func PlatformSender() NotificationSender {
	switch runtime.GOOS {
	case "linux":
		return &LinuxNotificationSender{}
	case "darwin":
		return &MacOSNotificationSender{}
	case "windows":
		return &WindowsNotificationSender{}
	default:
		return nil
	}
}

// Notifier tells the operator how a collection session ended
type Notifier struct {
	cfg    config.NotificationConfig
	sender NotificationSender
	out    io.Writer
}

// NewNotifier creates a notifier. A nil sender means console only; a nil out
// means Out.
func NewNotifier(cfg config.NotificationConfig, sender NotificationSender, out io.Writer) *Notifier {
	if out == nil {
		out = Out
	}
	if cfg.NotificationType != "" && cfg.NotificationType != "desktop" {
		sender = nil
	}
	return &Notifier{cfg: cfg, sender: sender, out: out}
}

// SessionEnded reports snap. Failures always notify; successes and stops
// follow the on_complete setting.
func (n *Notifier) SessionEnded(snap session.Snapshot) {
	title, message := sessionMessage(snap)
	switch snap.Outcome {
	case "failed":
		n.SendError(title, message)
	default:
		if !n.cfg.Enabled || !n.cfg.OnComplete {
			return
		}
		n.SendSuccess(title, message)
	}
}

func sessionMessage(snap session.Snapshot) (string, string) {
	subject := snap.Subject
	if subject == "" {
		subject = "followers"
	}
	elapsed := snap.FinishedAt.Sub(snap.StartedAt).Round(time.Second)
	switch snap.Outcome {
	case "success":
		return "Collection complete",
			fmt.Sprintf("@%s: %d records written in %s", subject, snap.Written, elapsed)
	case "cancelled":
		msg := fmt.Sprintf("@%s: stopped after %d records", subject, snap.Written)
		if snap.Error != "" {
			msg += " (" + snap.Error + ")"
		}
		return "Collection stopped", msg
	default:
		msg := fmt.Sprintf("@%s: %d records kept", subject, snap.Written)
		if snap.Error != "" {
			msg += ": " + snap.Error
		}
		return "Collection failed", msg
	}
}

// SendSuccess prints and sends a notification
func (n *Notifier) SendSuccess(title, message string) {
	fmt.Fprintf(n.out, "\n%s: %s\n", Green(title), message)
	n.send(title, message)
}

// SendError prints and sends an error notification
func (n *Notifier) SendError(title, message string) {
	fmt.Fprintf(n.out, "\n%s: %s\n", Red(title), Red(message))
	n.send(title, message)
}

func (n *Notifier) send(title, message string) {
	if n.sender == nil {
		return
	}
	// notification failures are not worth surfacing
	_ = n.sender.Send(title, strings.TrimSpace(message))
}
