package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"repopulse/internal/core/version"
	"repopulse/internal/platform/config"
	"repopulse/internal/platform/logger"
	ptime "repopulse/internal/platform/time"
	"repopulse/internal/services/health/domain"
	"repopulse/internal/services/health/export"
	healthmod "repopulse/internal/services/health/module"
)

func mustSetEnv(key, val string) {
	if val != "" {
		_ = os.Setenv(key, val)
	}
}

// parseStamp accepts a UTC date or a date with an hour
func parseStamp(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02T15", s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func main() {
	l := logger.Get()

	var (
		fStart   = flag.String("start", "", "UTC window start, YYYY-MM-DD or YYYY-MM-DDTHH")
		fEnd     = flag.String("end", "", "UTC window end (exclusive), YYYY-MM-DD or YYYY-MM-DDTHH")
		fOut     = flag.String("out", "", "output CSV path; default results/<timestamp>/results.csv")
		fTop     = flag.Int("top", 20, "rows to print as a console table; 0 disables the table")
		fWorkers = flag.Int("workers", 0, "override CORE_HEALTH_WORKERS")
		fCache   = flag.String("cache", "", "override CORE_INGEST_CACHE_DIR")
	)
	flag.Parse()

	if *fStart == "" || *fEnd == "" {
		l.Panic().Msg("must provide -start and -end")
	}
	start, err := parseStamp(*fStart)
	if err != nil {
		l.Panic().Err(err).Msg("bad -start")
	}
	end, err := parseStamp(*fEnd)
	if err != nil {
		l.Panic().Err(err).Msg("bad -end")
	}
	if !end.After(start) {
		l.Panic().Str("start", start.String()).Str("end", end.String()).Msg("-end must be after -start")
	}

	// surface flag overrides to modules that read FromConfig
	if *fWorkers > 0 {
		mustSetEnv("CORE_HEALTH_WORKERS", strconv.Itoa(*fWorkers))
	}
	mustSetEnv("CORE_INGEST_CACHE_DIR", *fCache)

	bi := version.Info()
	l.Info().Str("version", bi.Version).Str("commit", bi.Commit).Msg("starting")

	root := config.New()
	hm := healthmod.New(root)

	ctx := context.Background()
	w := domain.Window{Start: ptime.TruncateHourUTC(start), End: ptime.TruncateHourUTC(end)}
	res, err := hm.Ports().Runner.Run(ctx, w)
	if err != nil {
		l.Fatal().Err(err).Msg("health run failed")
	}

	outPath := *fOut
	if outPath == "" {
		outPath = filepath.Join("results", res.Report.RunID, "results.csv")
	}
	if err := export.WriteCSVFile(outPath, res.Ranked); err != nil {
		l.Fatal().Err(err).Str("path", outPath).Msg("csv export failed")
	}
	l.Info().Str("path", outPath).Int("repos", len(res.Ranked)).Msg("wrote results")

	if failed := res.Report.FailedHours(); len(failed) > 0 {
		labels := make([]string, 0, len(failed))
		for _, h := range failed {
			labels = append(labels, h.Label())
		}
		l.Warn().Strs("hours", labels).Msg("some shards contributed no data")
	}

	if *fTop > 0 {
		if err := export.RenderTable(os.Stdout, res.Ranked, *fTop); err != nil {
			l.Error().Err(err).Msg("table render failed")
		}
	}
}
