package domain

import (
	"context"
	"io"
)

// RunnerPort is the public port exposed by the health module
type RunnerPort interface {
	Run(ctx context.Context, w Window) (*Result, error)
}

// Result bundles the ranked statistics with the run accounting
type Result struct {
	Ranked []*RepoStatistic
	Report Report
}

// Fetcher is the shard fetcher interface
type Fetcher interface {
	Fetch(ctx context.Context, hr HourRef) (io.ReadCloser, error)
}

// ReaderPort is the event reader interface
type ReaderPort interface {
	Next() (EventEnvelope, error)
	Close() error
	Stats() (events, skipped int, bytes int64) // return zeros if not supported
}

// ReaderFactory is the event reader factory interface
type ReaderFactory interface {
	New(io.ReadCloser) (ReaderPort, error)
}

// SkipReason says why a record produced no fact
type SkipReason uint8

const (
	// SkipNone means a fact was produced
	SkipNone SkipReason = iota

	// SkipUnrecognized means the record's discriminant is not a kind we track
	SkipUnrecognized

	// SkipAction means an issue-lifecycle action we don't track (labeled,
	// assigned, ...)
	SkipAction

	// SkipMalformed means a recognized kind was missing a required field
	SkipMalformed
)

// Classification is the outcome of classifying one event record: a fact, or
// a skip reason. Malformed records are data, not control flow
type Classification struct {
	Fact   Fact
	Skip   SkipReason
	Detail string // for malformed records, which field was missing
}

// Classifier turns one raw event record into at most one normalized fact
type Classifier interface {
	FromEvent(env EventEnvelope) Classification
}
