package ingest

import (
	"io"

	"repopulse/internal/adapters/ingest/gharchive"
	"repopulse/internal/services/health/domain"
)

// readerFactory adapts gharchive.NewReader to the domain.ReaderFactory
type readerFactory struct{}

// NewReaderFactory returns a factory that wraps gharchive.NewReader
func NewReaderFactory() domain.ReaderFactory { return readerFactory{} }

func (readerFactory) New(rc io.ReadCloser) (domain.ReaderPort, error) {
	r, err := gharchive.NewReader(rc)
	if err != nil {
		return nil, err
	}
	return &reader{r: r}, nil
}

type reader struct {
	r *gharchive.Reader
}

func (r *reader) Next() (domain.EventEnvelope, error) {
	// domain.EventEnvelope is an alias to gharchive.EventEnvelope; return directly
	return r.r.Next()
}

func (r *reader) Close() error { return r.r.Close() }

func (r *reader) Stats() (events, skipped int, bytes int64) {
	return r.r.Stats()
}
