// Package export renders ranked repository statistics as the published CSV
// and as a human-readable console table
package export

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	perr "repopulse/internal/platform/errors"
	"repopulse/internal/services/health/domain"
)

// csvHeader is the published column order. Consumers key on these names
var csvHeader = []string{
	"org",
	"repo_name",
	"health_score",
	"num_commits",
	"num_contributors",
	"average_num_commits",
	"average_issue_open_time",
}

// WriteCSV writes one row per repository in the order given. Callers pass
// ranked statistics; this function does not re-sort
func WriteCSV(w io.Writer, repos []*domain.RepoStatistic) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnknown, "write csv header")
	}
	for _, rs := range repos {
		row := []string{
			rs.Org,
			rs.Name,
			fixed2(rs.HealthScore),
			strconv.Itoa(rs.CommitCount),
			strconv.Itoa(len(rs.Contributors)),
			fixed2(rs.AvgCommitsPerDay),
			fixed2(rs.AvgIssueOpenSeconds),
		}
		if err := cw.Write(row); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeUnknown, "write csv row for repo %d", rs.ID)
		}
	}
	cw.Flush()
	return perr.WrapIf(cw.Error(), perr.ErrorCodeUnknown, "flush csv")
}

// WriteCSVFile writes the CSV to path, creating parent directories as needed
func WriteCSVFile(path string, repos []*domain.RepoStatistic) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeUnknown, "create output dir %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "create %s", path)
	}
	if err := WriteCSV(f, repos); err != nil {
		_ = f.Close()
		return err
	}
	return perr.WrapIf(f.Close(), perr.ErrorCodeUnknown, "close csv")
}

// RenderTable prints the top rows as a console table. topN <= 0 renders
// everything
func RenderTable(w io.Writer, repos []*domain.RepoStatistic, topN int) error {
	if topN > 0 && topN < len(repos) {
		repos = repos[:topN]
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Rank", "Org", "Repo", "Score", "Commits", "Contributors", "Commits/Day", "Issue Open (s)"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for i, rs := range repos {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			rs.Org,
			rs.Name,
			fixed2(rs.HealthScore),
			strconv.Itoa(rs.CommitCount),
			strconv.Itoa(len(rs.Contributors)),
			fixed2(rs.AvgCommitsPerDay),
			fixed2(rs.AvgIssueOpenSeconds),
		})
	}
	if err := table.Bulk(data); err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnknown, "table rows")
	}
	return perr.WrapIf(table.Render(), perr.ErrorCodeUnknown, "render table")
}

// fixed2 formats a metric with exactly two decimals, matching the rounding
// applied upstream
func fixed2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
