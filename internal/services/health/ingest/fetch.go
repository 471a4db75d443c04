package ingest

import (
	"context"
	"io"
	"time"

	"repopulse/internal/adapters/ingest/gharchive"
	"repopulse/internal/platform/config"
	"repopulse/internal/services/health/domain"
)

// fetcher implements domain.Fetcher using the cached GH Archive fetcher
type fetcher struct {
	f gharchive.Fetcher
}

// NewFetcher constructs a domain.Fetcher from config under CORE_INGEST_*.
// This keeps config-reading outside the service and the repos
func NewFetcher(cfg config.Conf) domain.Fetcher {
	ing := cfg.Prefix("CORE_INGEST_")

	cacheDir := ing.MayString("CACHE_DIR", "")
	refreshH := time.Duration(ing.MayInt("REFRESH_RECENT_HOURS", 0)) * time.Hour
	retainDays := ing.MayInt("RETAIN_MAX_DAYS", 0)
	retainBytes := int64(ing.MayInt("RETAIN_MAX_BYTES", 0))

	httpTO := time.Duration(ing.MayInt("HTTP_TIMEOUT_SECONDS", 0)) * time.Second // 0 == no client timeout

	base := gharchive.NewHTTPFetcherWithTimeout(httpTO)
	if cacheDir == "" {
		// no cache dir configured: fetch straight from the archive
		return &fetcher{f: base}
	}
	return &fetcher{
		f: gharchive.NewCachedFetcher(
			cacheDir,
			base,
			gharchive.WithRefreshRecent(refreshH),
			gharchive.WithRetention(time.Duration(retainDays)*24*time.Hour, retainBytes),
		),
	}
}

func (f *fetcher) Fetch(ctx context.Context, hr domain.HourRef) (io.ReadCloser, error) {
	// Translate to the gharchive.HourRef and delegate
	return f.f.Fetch(ctx, gharchive.HourRef(hr))
}
