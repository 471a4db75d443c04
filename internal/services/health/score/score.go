// Package score normalizes aggregated repository statistics into a bounded
// health score and ranks the result.
//
// Scoring is a two pass sweep over the aggregate snapshot: pass one fixes the
// per-repository averages and collects the population extrema, pass two
// combines the four normalized terms into the final score. Every exported
// metric is rounded half-up to two decimals before it participates in any
// extremum or ratio, so the published numbers and the score agree
package score

import (
	"context"
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	perr "repopulse/internal/platform/errors"
	"repopulse/internal/platform/logger"
	ptime "repopulse/internal/platform/time"
	"repopulse/internal/services/health/domain"
)

// Round2 rounds half-up to two decimal places. All published metrics and the
// health score go through this
func Round2(x float64) float64 {
	return math.Floor(x*100+0.5) / 100
}

// extrema are the population-wide reference points for normalization. The
// seeds keep the ratios defined for degenerate populations: commit and
// contributor maxima never drop below one, and the open-time minimum starts
// at the ceiling so the first repository with issues claims it
type extrema struct {
	maxCommits      int
	maxContributors int
	maxAvgCommits   float64
	minAvgIssueOpen float64
}

func newExtrema() extrema {
	return extrema{
		maxCommits:      1,
		maxContributors: 1,
		maxAvgCommits:   0,
		minAvgIssueOpen: math.MaxFloat64,
	}
}

func (e *extrema) observe(rs *domain.RepoStatistic) {
	if rs.CommitCount > e.maxCommits {
		e.maxCommits = rs.CommitCount
	}
	if n := len(rs.Contributors); n > e.maxContributors {
		e.maxContributors = n
	}
	if rs.AvgCommitsPerDay > e.maxAvgCommits {
		e.maxAvgCommits = rs.AvgCommitsPerDay
	}
	if len(rs.Issues) > 0 && rs.AvgIssueOpenSeconds < e.minAvgIssueOpen {
		e.minAvgIssueOpen = rs.AvgIssueOpenSeconds
	}
}

// Normalize computes the averages, extrema, and health score for every
// statistic in place. The window supplies the day count for commit velocity
// and the end instant for issues still open when the window closes
func Normalize(ctx context.Context, repos []*domain.RepoStatistic, w domain.Window) error {
	nDays := w.Days()
	if nDays <= 0 {
		return perr.Computationf("window %s..%s spans no whole day", w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
	}
	endEpoch := ptime.EpochUTC(w.End)

	ex := newExtrema()
	for _, rs := range repos {
		rs.AvgCommitsPerDay = Round2(float64(rs.CommitCount) / float64(nDays))
		if len(rs.Issues) > 0 {
			durations := make(stats.Float64Data, 0, len(rs.Issues))
			for _, rec := range rs.Issues {
				durations = append(durations, float64(rec.OpenSeconds(endEpoch)))
			}
			mean, err := stats.Mean(durations)
			if err != nil {
				return perr.Computationf("issue open-time mean for repo %d: %v", rs.ID, err)
			}
			rs.AvgIssueOpenSeconds = Round2(mean)
		}
		ex.observe(rs)
	}

	if ex.minAvgIssueOpen != math.MaxFloat64 && ex.minAvgIssueOpen <= 0 {
		// issues opened and closed within the same second floor the minimum
		// at zero; dividing by it would blow every issue factor up, so the
		// factor degrades to neutral instead
		logger.C(ctx).Warn().
			Float64("min_avg_issue_open", ex.minAvgIssueOpen).
			Msg("non-positive issue open-time minimum, issue factor disabled for this run")
	}

	for _, rs := range repos {
		rs.HealthScore = Round2(healthScore(rs, ex))
	}
	return nil
}

// healthScore multiplies the four terms: raw commit volume, contributor
// breadth, commit velocity (all normalized into [0, 1]), and the issue
// duration ratio against the population minimum. Note the ratio is this
// repository's average over the minimum, so it is >= 1 and longer relative
// open time inflates the score; that is the published formula and is
// reproduced as-is rather than inverted
func healthScore(rs *domain.RepoStatistic, ex extrema) float64 {
	commits := float64(rs.CommitCount) / float64(ex.maxCommits)
	contributors := float64(len(rs.Contributors)) / float64(ex.maxContributors)

	velocity := 1.0
	if ex.maxAvgCommits > 0 {
		velocity = rs.AvgCommitsPerDay / ex.maxAvgCommits
	}

	issueFactor := 1.0
	if len(rs.Issues) > 0 && ex.minAvgIssueOpen > 0 && ex.minAvgIssueOpen != math.MaxFloat64 {
		issueFactor = rs.AvgIssueOpenSeconds / ex.minAvgIssueOpen
	}

	return commits * contributors * velocity * issueFactor
}

// Rank sorts by health score descending, ties broken by repository id
// ascending so the ordering is stable across runs. Sorts in place and
// returns the slice for chaining
func Rank(repos []*domain.RepoStatistic) []*domain.RepoStatistic {
	sort.Slice(repos, func(i, j int) bool {
		if repos[i].HealthScore != repos[j].HealthScore {
			return repos[i].HealthScore > repos[j].HealthScore
		}
		return repos[i].ID < repos[j].ID
	})
	return repos
}
