// Package notify delivers run notifications to external channels. Messages
// are dispatched to all registered senders and can be filtered by event type
// so operators receive only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

const (
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "discord").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. It maintains a set
// of allowed event types; Notify only forwards messages whose event type is in
// the allowed set.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice will be forwarded by Notify.
// If events is empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification to all senders only if the event type is in the
// allowed list.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// RunCompleted announces a finished backtest.
func (n *Notifier) RunCompleted(ctx context.Context, run domain.Run) error {
	m := run.Metrics
	msg := fmt.Sprintf(
		"strategy: %s\nsteps: %d (skipped %d)\nreturn: %.2f%%\nmax drawdown: %.2f%%\nsharpe: %.3f\nend value: %.2f",
		run.Strategy, run.Steps, run.Skipped, m.ReturnPct, m.MaxDrawdownPct, m.SharpeRatio, m.EndValue,
	)
	return n.Notify(ctx, EventRunCompleted, "Backtest "+run.ID+" completed", msg)
}

// RunFailed announces a backtest that could not run.
func (n *Notifier) RunFailed(ctx context.Context, req domain.RunRequest, runErr error) error {
	msg := fmt.Sprintf("strategy: %s\nstart: %d\nerror: %v", req.Strategy, req.StartIndex, runErr)
	return n.Notify(ctx, EventRunFailed, "Backtest failed", msg)
}

// dispatch iterates over all senders and sends the notification. Errors from
// individual senders are collected and returned as a combined error; a single
// sender failure does not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
