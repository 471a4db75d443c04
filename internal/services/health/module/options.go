package module

import (
	"time"

	"repopulse/internal/platform/config"
)

// Options holds configuration options for the health service
type Options struct {
	DelayPerHour  time.Duration
	Workers       int
	MaxRetries    int
	RetryBase     time.Duration
	HourTimeout   time.Duration
	FetchTimeout  time.Duration
	ReadTimeout   time.Duration
	MaxWindowDays int
}

// FromConfig reads the health options from config with CORE_HEALTH_ prefix
func FromConfig(cfg config.Conf) Options {
	h := cfg.Prefix("CORE_HEALTH_")
	return Options{
		DelayPerHour:  h.MayDuration("DELAY", 0),
		Workers:       h.MayInt("WORKERS", 4),
		MaxRetries:    h.MayInt("RETRIES", 3),
		RetryBase:     h.MayDuration("RETRY_BASE", 500*time.Millisecond),
		HourTimeout:   h.MayDuration("HOUR_TIMEOUT", 0),
		FetchTimeout:  h.MayDuration("FETCH_TIMEOUT", 10*time.Minute),
		ReadTimeout:   h.MayDuration("READ_TIMEOUT", 10*time.Minute),
		MaxWindowDays: h.MayInt("MAX_WINDOW_DAYS", 0),
	}
}
