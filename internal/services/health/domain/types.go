// Package domain holds the core data model for repository health scoring
package domain

import (
	"time"

	"repopulse/internal/adapters/ingest/gharchive"
	ptime "repopulse/internal/platform/time"
)

// EventEnvelope re-exports the archive event shape used by the classifier and reader
type EventEnvelope = gharchive.EventEnvelope

// HourRef is a reference to a specific archive hour
type HourRef struct{ Year, Month, Day, Hour int }

// UTC returns the UTC time corresponding to the HourRef
func (h HourRef) UTC() time.Time {
	return time.Date(h.Year, time.Month(h.Month), h.Day, h.Hour, 0, 0, 0, time.UTC)
}

// Label returns the shard label in archive naming form, YYYY-MM-DD-H
func (h HourRef) Label() string {
	return gharchive.HourRef(h).String()
}

// Window is the half-open time range [Start, End) activity is aggregated over.
// End must be strictly after Start and the window must cover at least one
// whole day; violating either is a precondition failure
type Window struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end"   validate:"required,gtfield=Start"`
}

// Days returns the number of whole days in the window
func (w Window) Days() int {
	return ptime.WholeDays(w.Start, w.End)
}

// Hours enumerates the shard coordinates covered by the window: every hour
// 0..23 of every date in [startDate, endDate). The end date itself is
// excluded, matching the half-open day range
func (w Window) Hours() []HourRef {
	var out []HourRef
	day := time.Date(w.Start.UTC().Year(), w.Start.UTC().Month(), w.Start.UTC().Day(), 0, 0, 0, 0, time.UTC)
	endDay := time.Date(w.End.UTC().Year(), w.End.UTC().Month(), w.End.UTC().Day(), 0, 0, 0, 0, time.UTC)
	for day.Before(endDay) {
		for h := 0; h <= 23; h++ {
			out = append(out, HourRef{Year: day.Year(), Month: int(day.Month()), Day: day.Day(), Hour: h})
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}

// Fact is a normalized, typed extraction from one raw archive event record
type Fact interface{ fact() }

// CommitActivity records one push to a repository by one actor
type CommitActivity struct {
	RepoID  int64
	Org     string
	Name    string
	ActorID int64
}

// IssueOpened records an issue being opened (or re-opened) in a repository
type IssueOpened struct {
	RepoID   int64
	Org      string
	Name     string
	IssueID  int64
	OpenedAt int64 // epoch seconds UTC
}

// IssueClosed records an issue being closed. Only meaningful when a matching
// open was observed inside the window
type IssueClosed struct {
	RepoID   int64
	IssueID  int64
	ClosedAt int64 // epoch seconds UTC
}

func (CommitActivity) fact() {}
func (IssueOpened) fact()    {}
func (IssueClosed) fact()    {}

// IssueRecord tracks the current open/close pair for one issue id.
// ClosedAt is 0 while the issue is still open in the window
type IssueRecord struct {
	ID       int64
	OpenedAt int64
	ClosedAt int64
}

// Closed reports whether a close was observed for the current open
func (r IssueRecord) Closed() bool { return r.ClosedAt > 0 }

// OpenSeconds returns how long the issue was (or has been) open, using
// endEpoch for issues still open at the end of the window
func (r IssueRecord) OpenSeconds(endEpoch int64) int64 {
	if r.Closed() {
		return r.ClosedAt - r.OpenedAt
	}
	return endEpoch - r.OpenedAt
}

// RepoStatistic is the per-repository aggregate. The aggregator owns it
// exclusively until it is handed read-only to the normalizer; the last three
// fields are write-once, populated by the normalizer
type RepoStatistic struct {
	ID           int64
	Org          string
	Name         string
	CommitCount  int
	Contributors map[int64]struct{}
	Issues       map[int64]IssueRecord

	AvgCommitsPerDay    float64
	AvgIssueOpenSeconds float64
	HealthScore         float64
}

// NewRepoStatistic creates an empty statistic for a newly observed repository
func NewRepoStatistic(id int64, org, name string) *RepoStatistic {
	return &RepoStatistic{
		ID:           id,
		Org:          org,
		Name:         name,
		Contributors: map[int64]struct{}{},
		Issues:       map[int64]IssueRecord{},
	}
}

// HourReport is the per-shard accounting for a processed hour
type HourReport struct {
	Hour     HourRef
	Status   string // "ok" or "failed"
	Events   int    // valid envelopes read
	Facts    int    // facts extracted
	Ignored  int    // unrecognized kinds and untracked actions
	BadLines int    // malformed JSON lines skipped by the reader
	BadFacts int    // recognized kinds missing required fields
	Err      string
}

// Report is the run-level accounting handed back with the results: which
// shards were processed, which failed, and what was skipped. The run never
// silently truncates the dataset
type Report struct {
	RunID  string
	Window Window
	Hours  []HourReport
}

// FailedHours lists the shards that contributed no data
func (r *Report) FailedHours() []HourRef {
	var out []HourRef
	for _, h := range r.Hours {
		if h.Status != "ok" {
			out = append(out, h.Hour)
		}
	}
	return out
}

// Totals sums per-hour accounting across the run
func (r *Report) Totals() (events, facts, ignored, badLines, badFacts int) {
	for _, h := range r.Hours {
		events += h.Events
		facts += h.Facts
		ignored += h.Ignored
		badLines += h.BadLines
		badFacts += h.BadFacts
	}
	return
}
