package delivery

import (
	"context"

	"pushwatch/pkg/logx"
)

// LogSender writes notifications to the logger instead of a transport.
// Used as a dry-run driver.
type LogSender struct {
	log logx.Logger
}

func NewLogSender(log logx.Logger) *LogSender {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(ctx context.Context, targetID, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info("notification", logx.String("target", targetID), logx.String("title", title), logx.String("body", body))
	return nil
}
