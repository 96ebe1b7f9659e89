package alert

import (
	"context"
	"errors"
	"io"
	"log"
)

// Notifier delivers one alert to the user.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

type Noop struct{}

func (Noop) Notify(ctx context.Context, alert Alert) error { return nil }

// Multi fans an alert out to several notifiers and joins their errors.
type Multi struct {
	notifiers []Notifier
}

func NewMulti(notifiers ...Notifier) Multi {
	return Multi{notifiers: notifiers}
}

func (m Multi) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m.notifiers {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes alerts to a logger.
type LogNotifier struct {
	Logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) LogNotifier {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return LogNotifier{Logger: logger}
}

func (n LogNotifier) Notify(ctx context.Context, alert Alert) error {
	n.Logger.Printf("alert kind=%s title=%q body=%q", alert.Kind, alert.Title, alert.Body)
	return nil
}
