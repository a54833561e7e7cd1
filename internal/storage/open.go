package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pushwatch/pkg/logx"
)

// Store is the minimal persistence API used by the delivery service.
type Store interface {
	AppendDelivery(ctx context.Context, e DeliveryEntry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]DeliveryEntry, error)
	// PruneBefore removes entries older than cutoff and reports how many.
	PruneBefore(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

// Open returns the store named by cfg.Driver, or a nil Store when the
// driver is empty or "none".
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch d := strings.ToLower(strings.TrimSpace(cfg.Driver)); d {
	case "", "none":
		return nil, nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", d)
	}
}
