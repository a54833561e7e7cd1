package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"pushwatch/pkg/logx"
)

// startRetention prunes the delivery audit log on a cron schedule.
func (a *App) startRetention(schedule string) error {
	c := cron.New()
	log := a.log.With(logx.String("comp", "retention"))
	_, err := c.AddFunc(schedule, func() { a.prune(a.sup.Context(), log) })
	if err != nil {
		return fmt.Errorf("storage.prune_schedule: %w", err)
	}
	c.Start()
	a.cron = c
	log.Info("audit retention scheduled", logx.String("schedule", schedule), logx.Duration("retention", a.retention))
	return nil
}

func (a *App) prune(ctx context.Context, log logx.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	cutoff := time.Now().Add(-a.retention)
	n, err := a.store.PruneBefore(ctx, cutoff)
	if err != nil {
		log.Warn("audit prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		log.Info("audit entries pruned", logx.Int("removed", n), logx.Time("cutoff", cutoff))
	}
}
