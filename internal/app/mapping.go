package app

import (
	"fmt"
	"strings"
	"time"

	"pushwatch/internal/buffer"
	"pushwatch/internal/compose"
	"pushwatch/internal/config"
	"pushwatch/internal/countdown"
	"pushwatch/internal/delivery"
	"pushwatch/internal/delivery/telegram"
	"pushwatch/internal/metrics"
	"pushwatch/internal/router"
	"pushwatch/internal/storage"
	"pushwatch/pkg/logx"
)

const (
	defaultMetricsAddr   = "127.0.0.1:9464"
	defaultMetricsPath   = "/metrics"
	defaultPruneSchedule = "@hourly"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapRouterConfig(cfg *config.Config) (router.Config, error) {
	debounce, err := config.ParseDurationOrDefault("engine.debounce", cfg.Engine.Debounce, buffer.DefaultInterval)
	if err != nil {
		return router.Config{}, err
	}
	return router.Config{
		Debounce: debounce,
		Compose: compose.Config{
			TitlePrefix:  cfg.Engine.TitlePrefix,
			RankCeiling:  cfg.Engine.RankCeiling,
			NetworkLabel: cfg.Engine.NetworkLabel,
		},
		Countdown: countdown.Config{
			Placeholder: cfg.Engine.Countdown.Placeholder,
			Threshold:   cfg.Engine.Countdown.Threshold,
		},
	}, nil
}

// mapDeliveryConfig leaves zero counts to the service defaults; an omitted
// dedup window means one minute.
func mapDeliveryConfig(cfg *config.Config) (delivery.Config, error) {
	d := cfg.Delivery
	sendTimeout, err := config.ParseDurationOrDefault("delivery.send_timeout", d.SendTimeout, 10*time.Second)
	if err != nil {
		return delivery.Config{}, err
	}
	dedupWindow, err := config.ParseDurationOrDefault("delivery.dedup_window", d.DedupWindow, time.Minute)
	if err != nil {
		return delivery.Config{}, err
	}
	return delivery.Config{
		Enabled:      cfg.DeliveryEnabled(),
		Workers:      d.Workers,
		QueueSize:    d.QueueSize,
		RatePerSec:   d.RatePerSec,
		SendTimeout:  sendTimeout,
		DedupWindow:  dedupWindow,
		DedupCacheMB: d.DedupCacheMB,
		HistorySize:  d.HistorySize,
	}, nil
}

func newSender(cfg *config.Config, log logx.Logger) (delivery.Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Delivery.Driver)) {
	case "log":
		return delivery.NewLogSender(log), nil
	case "", "telegram":
		timeout, err := config.ParseDurationOrDefault("delivery.telegram.timeout", cfg.Delivery.Telegram.Timeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		return telegram.New(telegram.Config{
			Token:   cfg.TelegramToken(),
			APIURL:  cfg.Delivery.Telegram.APIURL,
			Timeout: timeout,
		}, log)
	default:
		return nil, fmt.Errorf("unknown delivery.driver: %s", cfg.Delivery.Driver)
	}
}

// mapStorageConfig reports (cfg, retention, enabled, err).
func mapStorageConfig(cfg *config.Config) (storage.Config, time.Duration, bool, error) {
	sc := cfg.Storage
	if sc == nil {
		return storage.Config{}, 0, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" || driver == "off" {
		return storage.Config{}, 0, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, 0, false, err
	}
	retention, err := config.ParseDurationOrDefault("storage.retention", sc.Retention, 0)
	if err != nil {
		return storage.Config{}, 0, false, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, retention, true, nil
}

func mapMetricsConfig(cfg *config.Config) (metrics.Config, string, string) {
	addr := strings.TrimSpace(cfg.Metrics.Addr)
	if addr == "" {
		addr = defaultMetricsAddr
	}
	path := strings.TrimSpace(cfg.Metrics.Path)
	if path == "" {
		path = defaultMetricsPath
	}
	return metrics.Config{Enabled: cfg.Metrics.Enabled}, addr, path
}

func pruneSchedule(cfg *config.Config) string {
	if cfg.Storage == nil || strings.TrimSpace(cfg.Storage.PruneSchedule) == "" {
		return defaultPruneSchedule
	}
	return strings.TrimSpace(cfg.Storage.PruneSchedule)
}
