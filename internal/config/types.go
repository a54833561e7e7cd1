package config

// Config is the on-disk configuration (JSON, or YAML coerced to JSON).
//
// All durations are Go duration strings (e.g. "500ms", "5s", "1m").
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Engine   EngineConfig   `json:"engine"`
	Routes   Routes         `json:"routes"`
	Delivery DeliveryConfig `json:"delivery"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Metrics  MetricsConfig  `json:"metrics"`
	Source   SourceConfig   `json:"source"`
}

// Routes maps a target name (or "all") to entity -> subscription kinds.
//
// Example:
//
//	"routes": { "phone": { "alice": ["onoff", "topic"] }, "all": { "bob": ["all"] } }
type Routes map[string]map[string][]string

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// EngineConfig tunes batching and rendering.
//
// Defaults (when fields are omitted/zero):
//   - debounce: "5s"
//   - rank_ceiling: 1000
//   - title_prefix: "PW: "
//   - countdown.placeholder: "[none]"
//   - countdown.threshold: 2
type EngineConfig struct {
	Debounce     string          `json:"debounce,omitempty"`
	RankCeiling  int             `json:"rank_ceiling,omitempty"`
	TitlePrefix  string          `json:"title_prefix,omitempty"`
	NetworkLabel string          `json:"network_label,omitempty"`
	Countdown    CountdownConfig `json:"countdown"`
}

type CountdownConfig struct {
	Placeholder string `json:"placeholder,omitempty"`
	Threshold   int    `json:"threshold,omitempty"`
}

// DeliveryConfig controls the async delivery pipeline and its transport.
//
// Enabled is a pointer so an omitted value defaults to true.
type DeliveryConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Driver  string `json:"driver"` // "telegram" | "log"

	// Targets maps target names used in routes to transport ids.
	Targets map[string]string `json:"targets"`

	Workers      int    `json:"workers,omitempty"`
	QueueSize    int    `json:"queue_size,omitempty"`
	RatePerSec   int    `json:"rate_per_sec,omitempty"`
	DedupWindow  string `json:"dedup_window,omitempty"`
	DedupCacheMB int    `json:"dedup_cache_mb,omitempty"`
	SendTimeout  string `json:"send_timeout,omitempty"`
	HistorySize  int    `json:"history_size,omitempty"`

	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`
	// TokenEnv names the environment variable holding the token when Token
	// is empty. Default: PUSHWATCH_TELEGRAM_TOKEN.
	TokenEnv string `json:"token_env,omitempty"`
	APIURL   string `json:"api_url,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// StorageConfig controls the optional delivery audit log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./pushwatch.db", "retention": "720h" }
type StorageConfig struct {
	Driver        string `json:"driver"`
	Path          string `json:"path"`
	BusyTimeout   string `json:"busy_timeout,omitempty"`
	Retention     string `json:"retention,omitempty"`
	PruneSchedule string `json:"prune_schedule,omitempty"` // cron spec, default "@hourly"
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:9464"
	Path    string `json:"path,omitempty"` // default "/metrics"
}

type SourceConfig struct {
	// Replay is a JSON-lines observation file; "-" reads stdin.
	Replay    string `json:"replay,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
}

const DefaultTokenEnv = "PUSHWATCH_TELEGRAM_TOKEN"

// DeliveryEnabled reports whether delivery is on (default true).
func (c *Config) DeliveryEnabled() bool {
	return c.Delivery.Enabled == nil || *c.Delivery.Enabled
}
