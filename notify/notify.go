// Package notify delivers followerwatch messages to people: Telegram chats,
// SMS, email, Slack and Discord webhooks, or just the log.
package notify

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// Sender is the interface every notifier in this package implements. It is
// the same as followerwatch.Notifier.
type Sender interface {
	Send(ctx context.Context, message string) error
}

func initHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Multi sends every message to each of its notifiers in turn. A failure of
// one does not stop the others.
type Multi []Sender

// Send implements followerwatch.Notifier. The error combines the failures of
// every notifier that failed.
func (m Multi) Send(ctx context.Context, message string) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Send(ctx, message))
	}
	return err
}

// Log writes messages to a logger instead of delivering them anywhere.
type Log struct {
	log *zap.SugaredLogger
}

// NewLog returns a Log notifier writing to logger.
func NewLog(logger *zap.SugaredLogger) *Log {
	return &Log{log: logger}
}

// Send implements followerwatch.Notifier.
func (l *Log) Send(_ context.Context, message string) error {
	l.log.Infow("notification", "message", message)
	return nil
}
