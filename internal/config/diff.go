package config

import (
	"reflect"
	"strings"

	"pushwatch/pkg/logx"
)

// Sections applied on reload without a restart.
const (
	SectionLogging  = "logging"
	SectionDelivery = "delivery"
)

// SummarizeConfigChange returns the changed sections and safe structured
// fields for logging (never the Telegram token). Sections other than
// SectionLogging and SectionDelivery need a restart to take effect; for
// delivery only the tuning applies live, transport changes are reported as
// "delivery.transport".
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, SectionLogging)
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Engine, newCfg.Engine) {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.String("engine.debounce", newCfg.Engine.Debounce),
			logx.Int("engine.rank_ceiling", newCfg.Engine.RankCeiling),
		)
	}

	if !reflect.DeepEqual(oldCfg.Routes, newCfg.Routes) {
		changed = append(changed, "routes")
		attrs = append(attrs, logx.Int("routes.targets", len(newCfg.Routes)))
	}

	od, nd := oldCfg.Delivery, newCfg.Delivery
	if oldCfg.DeliveryEnabled() != newCfg.DeliveryEnabled() ||
		od.Workers != nd.Workers ||
		od.QueueSize != nd.QueueSize ||
		od.RatePerSec != nd.RatePerSec ||
		od.DedupCacheMB != nd.DedupCacheMB ||
		od.HistorySize != nd.HistorySize ||
		strings.TrimSpace(od.DedupWindow) != strings.TrimSpace(nd.DedupWindow) ||
		strings.TrimSpace(od.SendTimeout) != strings.TrimSpace(nd.SendTimeout) {
		changed = append(changed, SectionDelivery)
		attrs = append(attrs,
			logx.Bool("delivery.enabled", newCfg.DeliveryEnabled()),
			logx.Int("delivery.workers", nd.Workers),
			logx.Int("delivery.queue_size", nd.QueueSize),
			logx.Int("delivery.rate_per_sec", nd.RatePerSec),
			logx.String("delivery.dedup_window", nd.DedupWindow),
		)
	}
	if !strings.EqualFold(strings.TrimSpace(od.Driver), strings.TrimSpace(nd.Driver)) ||
		!reflect.DeepEqual(od.Targets, nd.Targets) ||
		od.Telegram.Token != nd.Telegram.Token ||
		od.Telegram.TokenEnv != nd.Telegram.TokenEnv ||
		od.Telegram.APIURL != nd.Telegram.APIURL ||
		od.Telegram.Timeout != nd.Telegram.Timeout {
		changed = append(changed, "delivery.transport")
		attrs = append(attrs,
			logx.String("delivery.driver", nd.Driver),
			logx.Int("delivery.targets", len(nd.Targets)),
			logx.Bool("delivery.telegram.token_set", strings.TrimSpace(nd.Telegram.Token) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if newCfg.Storage != nil {
			attrs = append(attrs,
				logx.String("storage.driver", newCfg.Storage.Driver),
				logx.String("storage.retention", newCfg.Storage.Retention),
			)
		}
	}

	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs, logx.Bool("metrics.enabled", newCfg.Metrics.Enabled), logx.String("metrics.addr", newCfg.Metrics.Addr))
	}

	if oldCfg.Source != newCfg.Source {
		changed = append(changed, "source")
	}
	return changed, attrs
}

// NeedsRestart filters changed down to sections a reload cannot apply.
func NeedsRestart(changed []string) []string {
	var out []string
	for _, s := range changed {
		if s != SectionLogging && s != SectionDelivery {
			out = append(out, s)
		}
	}
	return out
}
