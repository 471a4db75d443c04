// Package service orchestrates a health-score run: fan out over the shard
// hours of the window, classify each hour's events into facts, fold them
// through a single reducer, then normalize and rank
package service

import (
	"context"
	"io"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	perr "repopulse/internal/platform/errors"
	"repopulse/internal/platform/logger"
	"repopulse/internal/platform/validate"
	"repopulse/internal/services/health/aggregate"
	"repopulse/internal/services/health/domain"
	"repopulse/internal/services/health/guardrails"
	"repopulse/internal/services/health/score"
)

// Config holds configuration options for the health service
type Config struct {
	// Concurrency & pacing
	Workers      int           // number of parallel hours; <=0 -> 1
	DelayPerHour time.Duration // optional sleep after each processed hour (per worker)

	// Hour-level retry
	MaxRetries int           // attempts per hour; <=0 -> 1
	RetryBase  time.Duration // base backoff for hour retries; <=0 -> 500ms

	// Timeouts applied via guardrails
	HourTimeout  time.Duration
	FetchTimeout time.Duration
	ReadTimeout  time.Duration

	// Range guard
	MaxWindowDays int // 0 = unlimited
}

// Service implements domain.RunnerPort
type Service struct {
	Fetch    domain.Fetcher
	Reader   domain.ReaderFactory
	Classify domain.Classifier
	Cfg      Config
}

// New constructs the health service
func New(f domain.Fetcher, rf domain.ReaderFactory, c domain.Classifier, cfg Config) *Service {
	if f == nil {
		panic("health.Service requires a non nil Fetcher")
	}
	if rf == nil {
		panic("health.Service requires a non nil ReaderFactory")
	}
	if c == nil {
		panic("health.Service requires a non nil Classifier")
	}
	return &Service{Fetch: f, Reader: rf, Classify: c, Cfg: cfg}
}

var _ domain.RunnerPort = (*Service)(nil)

// Run processes every shard hour of the window and returns the ranked
// statistics with per-hour accounting. Failed hours are recorded in the
// report and the run continues; only a window precondition failure or an
// aggregation defect aborts the whole run
func (s *Service) Run(ctx context.Context, w domain.Window) (*domain.Result, error) {
	if err := validate.Struct(w); err != nil {
		return nil, err
	}
	days := w.Days()
	if days < 1 {
		return nil, perr.InvalidArgf(
			"window %s..%s spans no whole day",
			w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"),
		)
	}
	if s.Cfg.MaxWindowDays > 0 && days > s.Cfg.MaxWindowDays {
		return nil, perr.InvalidArgf("window spans %d days, limit is %d", days, s.Cfg.MaxWindowDays)
	}

	runID := uuid.NewString()
	ctx = logger.WithRun(ctx, runID, "")
	hours := w.Hours()
	workers := max(s.Cfg.Workers, 1)
	logger.C(ctx).Info().
		Int("days", days).
		Int("hours", len(hours)).
		Int("workers", workers).
		Msg("health run started")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// single reducer owns the accumulator; workers only produce fact batches
	acc := aggregate.New()
	factCh := make(chan []domain.Fact, workers)
	reduceDone := make(chan struct{})
	var reduceErr error
	go func() {
		defer close(reduceDone)
		for batch := range factCh {
			if err := acc.FoldAll(batch); err != nil {
				reduceErr = err
				cancel()
				for range factCh {
					// drain so workers never block on a dead reducer
				}
				return
			}
		}
	}()

	reports := make([]domain.HourReport, len(hours))
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, hr := range hours {
		i, hr := i, hr
		g.Go(func() error {
			hctx := logger.WithRun(runCtx, runID, hr.Label())
			facts, rep := s.runHourWithRetry(hctx, hr)
			reports[i] = rep
			if len(facts) > 0 {
				select {
				case factCh <- facts:
				case <-runCtx.Done():
				}
			}
			if s.Cfg.DelayPerHour > 0 {
				_ = sleepCtx(runCtx, s.Cfg.DelayPerHour)
			}
			return nil
		})
	}
	_ = g.Wait()
	close(factCh)
	<-reduceDone

	if reduceErr != nil {
		return nil, reduceErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := domain.Report{RunID: runID, Window: w, Hours: reports}
	if failed := report.FailedHours(); len(failed) > 0 {
		logger.C(ctx).Warn().
			Int("failed_hours", len(failed)).
			Msg("run completed with shard gaps, results cover the hours that succeeded")
	}

	stats := acc.Snapshot()
	if err := score.Normalize(ctx, stats, w); err != nil {
		return nil, err
	}
	ranked := score.Rank(stats)

	events, facts, ignored, badLines, badFacts := report.Totals()
	logger.C(ctx).Info().
		Int("repos", len(ranked)).
		Int("events", events).
		Int("facts", facts).
		Int("ignored", ignored).
		Int("bad_lines", badLines).
		Int("bad_facts", badFacts).
		Msg("health run finished")

	return &domain.Result{Ranked: ranked, Report: report}, nil
}

// runHourWithRetry retries transient failures with jittered backoff and
// reports the hour as failed once the budget is spent. The run itself keeps
// going; the gap is visible in the report
func (s *Service) runHourWithRetry(ctx context.Context, hr domain.HourRef) ([]domain.Fact, domain.HourReport) {
	attempts := max(s.Cfg.MaxRetries, 1)
	base := s.Cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}

	var last error
	for i := 0; i < attempts; i++ {
		facts, rep, err := s.runHour(ctx, hr)
		if err == nil {
			return facts, rep
		}
		last = err

		// stop early on non-retryable errors
		if !perr.Retryable(err) {
			break
		}
		if i == attempts-1 {
			break
		}

		// exponential backoff with jitter, cap at 30s
		d := min(base<<i, 30*time.Second)
		j := d/2 + time.Duration(rand.Int63n(int64(d/2)))
		if se := sleepCtx(ctx, j); se != nil {
			last = se
			break
		}
	}

	logger.C(ctx).Error().Err(last).Msg("hour failed, continuing without this shard")
	return nil, domain.HourReport{Hour: hr, Status: "failed", Err: last.Error()}
}

func (s *Service) runHour(ctx context.Context, hr domain.HourRef) ([]domain.Fact, domain.HourReport, error) {
	tos := guardrails.Timeouts{
		Hour:  s.Cfg.HourTimeout,
		Fetch: s.Cfg.FetchTimeout,
		Read:  s.Cfg.ReadTimeout,
	}
	hrCtx, hrCancel := guardrails.WithHour(ctx, tos)
	defer hrCancel()

	rep := domain.HourReport{Hour: hr}

	fetchCtx, fetchCancel := guardrails.ForFetch(hrCtx, tos)
	rc, err := s.Fetch.Fetch(fetchCtx, hr)
	fetchCancel()
	if err != nil {
		return nil, rep, err
	}

	rd, err := s.Reader.New(rc)
	if err != nil {
		_ = rc.Close()
		return nil, rep, err
	}

	var facts []domain.Fact
	readCtx, readCancel := guardrails.ForRead(hrCtx, tos)
	rerr := func() error {
		for {
			if err := readCtx.Err(); err != nil {
				return err
			}
			env, e := rd.Next()
			if e == io.EOF {
				break
			}
			if e != nil {
				return e
			}
			rep.Events++

			cls := s.Classify.FromEvent(env)
			switch cls.Skip {
			case domain.SkipNone:
				facts = append(facts, cls.Fact)
				rep.Facts++
			case domain.SkipMalformed:
				rep.BadFacts++
				logger.C(ctx).Debug().
					Str("kind", env.Type).
					Str("field", cls.Detail).
					Msg("event missing required field, skipped")
			default:
				rep.Ignored++
			}
		}
		return nil
	}()
	readCancel()
	if cerr := rd.Close(); cerr != nil && rerr == nil {
		rerr = cerr
	}
	if rerr != nil {
		return nil, rep, rerr
	}

	_, skipped, _ := rd.Stats()
	rep.BadLines = skipped
	rep.Status = "ok"
	return facts, rep, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
