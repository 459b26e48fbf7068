// Package notify delivers service messages. Only a logging transport exists;
// it stands in for email delivery.
package notify

import (
	"context"
	"log/slog"

	"redgraph/service"
)

type Log struct {
	log *slog.Logger
}

func NewLog(log *slog.Logger) *Log {
	if log == nil {
		log = slog.Default()
	}
	return &Log{log: log.With("component", "notify")}
}

func (l *Log) Notify(ctx context.Context, m service.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.log.InfoContext(ctx, "notification",
		"to", m.To,
		"subject", m.Subject,
		"body", m.Body,
	)
	return nil
}
