package delivery

import (
	"context"
	"time"
)

// AllTargets is the reserved target name meaning "every target".
const AllTargets = "all"

// Notification is one rendered batch for one entity.
type Notification struct {
	BatchID string
	Entity  string
	// Targets holds transport ids; nil means all targets.
	Targets []string
	Title   string
	Body    string
}

// All reports whether n goes to every target.
func (n Notification) All() bool { return n.Targets == nil }

// Sender delivers a message to one transport target.
type Sender interface {
	Name() string
	Send(ctx context.Context, targetID, title, body string) error
}

type Config struct {
	Enabled     bool
	Workers     int
	QueueSize   int
	RatePerSec  int
	SendTimeout time.Duration
	// DedupWindow suppresses identical notifications (same targets, title
	// and body) inside the window. 0 disables dedup.
	DedupWindow  time.Duration
	DedupCacheMB int
	HistorySize  int
}

type HistoryItem struct {
	At      time.Time
	BatchID string
	Entity  string
	Targets []string
	OK      bool
	Error   string
}
