package notify

import (
	"fmt"

	"github.com/ralphlabs/ralph/internal/domain"
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
	Title     string
	Message   string
	Type      NotificationType
	TaskID    string // Optional task reference
	Iteration int    // Optional iteration number
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
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

// IterationFailed builds the notification for a failed iteration
func IterationFailed(rec *domain.IterationRecord) Notification {
	return Notification{
		Title:     fmt.Sprintf("Iteration %d failed", rec.Iteration),
		Message:   fmt.Sprintf("%s did not complete (%d ms)", rec.TaskTitle, rec.DurationMs),
		Type:      NotifyError,
		TaskID:    rec.TaskID,
		Iteration: rec.Iteration,
	}
}

// RunFinished builds the notification for a finished loop run
func RunFinished(state domain.LoopState) Notification {
	typ := NotifySuccess
	title := "Loop completed"
	if state.CompletedTasks < state.TotalTasks {
		typ = NotifyWarning
		title = "Loop stopped"
	}
	return Notification{
		Title: title,
		Message: fmt.Sprintf("%d/%d stories done after %d iterations",
			state.CompletedTasks, state.TotalTasks, state.CurrentIteration),
		Type: typ,
	}
}
