package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"pushwatch/internal/delivery"
	"pushwatch/internal/router"
	"pushwatch/pkg/logx"
)

var ErrInvalid = errors.New("invalid config")

// ParseDurationOrDefault parses raw as a non-negative Go duration. Empty or
// zero yields def.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

// TelegramToken returns the configured token, falling back to the
// environment.
func (c *Config) TelegramToken() string {
	if tok := strings.TrimSpace(c.Delivery.Telegram.Token); tok != "" {
		return tok
	}
	env := strings.TrimSpace(c.Delivery.Telegram.TokenEnv)
	if env == "" {
		env = DefaultTokenEnv
	}
	return strings.TrimSpace(os.Getenv(env))
}

type problems []error

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Errorf(format, args...))
}

func (p *problems) duration(path, raw string) {
	if _, err := ParseDurationOrDefault(path, raw, 0); err != nil {
		*p = append(*p, err)
	}
}

// Validate reports every structural problem in cfg at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	var errs problems

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		errs.addf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		errs.addf("logging.file.path: required when file logging is enabled")
	}

	errs.duration("engine.debounce", cfg.Engine.Debounce)
	if cfg.Engine.RankCeiling < 0 {
		errs.addf("engine.rank_ceiling: must be >= 0")
	}
	if cfg.Engine.Countdown.Threshold < 0 {
		errs.addf("engine.countdown.threshold: must be >= 0")
	}

	validateDelivery(cfg, &errs)
	validateRoutes(cfg, &errs)

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none", "off":
		case "file", "sqlite":
			if strings.TrimSpace(st.Path) == "" {
				errs.addf("storage.path: required for driver %q", st.Driver)
			}
		default:
			errs.addf("storage.driver: unknown driver %q", st.Driver)
		}
		errs.duration("storage.busy_timeout", st.BusyTimeout)
		errs.duration("storage.retention", st.Retention)
		if sched := strings.TrimSpace(st.PruneSchedule); sched != "" {
			if _, err := cron.ParseStandard(sched); err != nil {
				errs.addf("storage.prune_schedule: %v", err)
			}
		}
	}

	if cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs.addf("metrics.path: must start with /")
	}
	if cfg.Source.QueueSize < 0 {
		errs.addf("source.queue_size: must be >= 0")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w:\n%w", ErrInvalid, errors.Join(errs...))
}

func validateDelivery(cfg *Config, errs *problems) {
	d := cfg.Delivery
	switch strings.ToLower(strings.TrimSpace(d.Driver)) {
	case "", "telegram":
		if cfg.DeliveryEnabled() && cfg.TelegramToken() == "" {
			env := d.Telegram.TokenEnv
			if env == "" {
				env = DefaultTokenEnv
			}
			errs.addf("delivery.telegram.token: empty (set it or %s)", env)
		}
	case "log":
	default:
		errs.addf("delivery.driver: unknown driver %q", d.Driver)
	}
	if d.Workers < 0 || d.QueueSize < 0 || d.RatePerSec < 0 || d.DedupCacheMB < 0 || d.HistorySize < 0 {
		errs.addf("delivery: workers, queue_size, rate_per_sec, dedup_cache_mb and history_size must be >= 0")
	}
	errs.duration("delivery.dedup_window", d.DedupWindow)
	errs.duration("delivery.send_timeout", d.SendTimeout)
	errs.duration("delivery.telegram.timeout", d.Telegram.Timeout)
	if _, err := delivery.NewDirectory(d.Targets); err != nil {
		errs.addf("delivery.targets: %v", err)
	}
}

func validateRoutes(cfg *Config, errs *problems) {
	if len(cfg.Routes) == 0 {
		errs.addf("routes: at least one route is required")
		return
	}
	targets := make([]string, 0, len(cfg.Routes))
	for t := range cfg.Routes {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	for _, target := range targets {
		if target != delivery.AllTargets {
			if _, ok := cfg.Delivery.Targets[target]; !ok {
				errs.addf("routes.%s: target not in delivery.targets", target)
			}
		}
		entities := cfg.Routes[target]
		if len(entities) == 0 {
			errs.addf("routes.%s: no entities", target)
		}
		for entity, kinds := range entities {
			if strings.TrimSpace(entity) == "" {
				errs.addf("routes.%s: empty entity", target)
				continue
			}
			if len(kinds) == 0 {
				errs.addf("routes.%s.%s: no kinds", target, entity)
			}
			for _, k := range kinds {
				if _, err := router.ParseKind(k); err != nil {
					errs.addf("routes.%s.%s: %v", target, entity, err)
				}
			}
		}
	}
}
