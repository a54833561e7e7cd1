package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DeliveryEntry records one notification handed to the transport.
// Keep it compact and schema-stable.
type DeliveryEntry struct {
	At      time.Time `json:"at"`
	BatchID string    `json:"batch_id"`
	Entity  string    `json:"entity"`
	Targets []string  `json:"targets,omitempty"`
	All     bool      `json:"all,omitempty"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	TookMS  int64     `json:"took_ms"`
}
