// Package gharchive handles fetching and reading GH Archive hourly gzip files
// line-by-line
//
// Design choices:
// - Stream with bufio.Scanner but with a 32MB cap to reliably handle huge commits.
// - Strict JSON/v2 (UTF-8 validated). Malformed lines are skipped and counted.
// - Keep payload as raw JSON until classify-stage to avoid a giant union type
// - Optional on-disk cache with meta sidecars so re-runs over the same window
//   do not re-download shards
package gharchive
