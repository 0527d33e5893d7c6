package notify

import (
	"fmt"

	"github.com/hochfrequenz/deep-research-orchestrator/internal/domain"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	RunID   string // Optional run reference
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// ForRun builds a notification describing a finished run
func ForRun(run *domain.Run) Notification {
	n := Notification{
		Title: "Research run " + run.RunID,
		RunID: fmt.Sprintf("%s v%d", run.RunID, run.Version),
	}

	switch run.Status {
	case domain.StatusCompleted:
		n.Type = NotifySuccess
		n.Message = fmt.Sprintf("Report ready: %s", run.Topic())
	case domain.StatusInterrupted:
		n.Type = NotifyWarning
		n.Message = fmt.Sprintf("Interrupted; resume %s to continue", run.RunID)
	default:
		n.Type = NotifyError
		n.Message = fmt.Sprintf("Finished with status %s", run.Status)
	}
	return n
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }
