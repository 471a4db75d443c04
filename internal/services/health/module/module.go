// Package module wires the health service and its adapters from config
package module

import (
	"repopulse/internal/platform/config"
	"repopulse/internal/services/health/domain"
	"repopulse/internal/services/health/ingest"
	"repopulse/internal/services/health/service"
)

// Ports defines the health module ports
type Ports struct {
	Runner domain.RunnerPort
}

// Module bundles the wired health service
type Module struct {
	ports Ports
}

// New constructs the health module, wiring the archive fetcher, reader, and
// classifier into the service using CORE_HEALTH_* and CORE_INGEST_* config
func New(cfg config.Conf) *Module {
	opts := FromConfig(cfg)

	fetch := ingest.NewFetcher(cfg)
	reader := ingest.NewReaderFactory()
	classify := ingest.NewClassifier()

	svc := service.New(fetch, reader, classify, service.Config{
		DelayPerHour:  opts.DelayPerHour,
		Workers:       opts.Workers,
		MaxRetries:    opts.MaxRetries,
		RetryBase:     opts.RetryBase,
		HourTimeout:   opts.HourTimeout,
		FetchTimeout:  opts.FetchTimeout,
		ReadTimeout:   opts.ReadTimeout,
		MaxWindowDays: opts.MaxWindowDays,
	})

	return &Module{ports: Ports{Runner: svc}}
}

// Name returns the module name
func (m *Module) Name() string { return "health" }

// Ports returns the module ports
func (m *Module) Ports() Ports { return m.ports }
