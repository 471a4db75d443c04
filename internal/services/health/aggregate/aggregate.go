// Package aggregate folds classified facts into per-repository statistics.
//
// The accumulator is the single logical writer for the statistics map. Folding
// is commutative and associative: replaying the same multiset of facts in any
// order yields the final state of a chronological replay. Issue open/close
// pairs reconcile by event timestamp, so shards may be folded in any hour
// order; a close observed before its open is parked until the open arrives and
// never surfaces on its own. Partitioned accumulators built from disjoint fact
// streams can be combined with Merge
package aggregate

import (
	perr "repopulse/internal/platform/errors"
	"repopulse/internal/services/health/domain"
)

type pendingKey struct{ repo, issue int64 }

// Accumulator owns the per-repository statistics for one run
type Accumulator struct {
	repos map[int64]*domain.RepoStatistic

	// closes seen before their matching open (shards fold in any order).
	// Entries that never find an open are dropped at snapshot time, which
	// keeps closed-without-open a no-op on the visible state
	pendingCloses map[pendingKey]int64
}

// New creates an empty accumulator
func New() *Accumulator {
	return &Accumulator{
		repos:         map[int64]*domain.RepoStatistic{},
		pendingCloses: map[pendingKey]int64{},
	}
}

// Len returns the number of repositories observed so far
func (a *Accumulator) Len() int { return len(a.repos) }

// Fold applies one fact. Facts never delete state; unknown fact types are an
// Aggregation-coded error because they indicate a logic defect upstream
func (a *Accumulator) Fold(f domain.Fact) error {
	switch fact := f.(type) {
	case domain.CommitActivity:
		if fact.RepoID == 0 {
			return perr.Aggregationf("commit fact with zero repo id")
		}
		rs := a.ensure(fact.RepoID, fact.Org, fact.Name)
		rs.CommitCount++
		rs.Contributors[fact.ActorID] = struct{}{}
		return nil

	case domain.IssueOpened:
		if fact.RepoID == 0 {
			return perr.Aggregationf("issue-opened fact with zero repo id")
		}
		rs := a.ensure(fact.RepoID, fact.Org, fact.Name)
		a.foldOpen(rs, fact)
		return nil

	case domain.IssueClosed:
		a.foldClose(fact)
		return nil

	default:
		return perr.Aggregationf("unknown fact type %T", f)
	}
}

// foldOpen upserts the issue record. The latest open wins; a close already on
// the record survives only if it postdates the winning open (re-opening resets
// close state)
func (a *Accumulator) foldOpen(rs *domain.RepoStatistic, fact domain.IssueOpened) {
	rec, ok := rs.Issues[fact.IssueID]
	if !ok || fact.OpenedAt > rec.OpenedAt {
		keepClose := int64(0)
		if ok && rec.ClosedAt >= fact.OpenedAt {
			keepClose = rec.ClosedAt
		}
		rec = domain.IssueRecord{ID: fact.IssueID, OpenedAt: fact.OpenedAt, ClosedAt: keepClose}
	}

	// a close may have arrived ahead of this open; it can never match a later
	// open (opens only move forward), so the parked entry is consumed either way
	key := pendingKey{repo: fact.RepoID, issue: fact.IssueID}
	if parked, found := a.pendingCloses[key]; found {
		if parked >= rec.OpenedAt && parked > rec.ClosedAt {
			rec.ClosedAt = parked
		}
		delete(a.pendingCloses, key)
	}

	rs.Issues[fact.IssueID] = rec
}

// foldClose sets the close timestamp when a matching in-window open exists,
// parks the close when the open has not arrived yet, and drops closes that
// predate the current open (stale after a re-open)
func (a *Accumulator) foldClose(fact domain.IssueClosed) {
	rs, ok := a.repos[fact.RepoID]
	if ok {
		if rec, found := rs.Issues[fact.IssueID]; found {
			if fact.ClosedAt >= rec.OpenedAt && fact.ClosedAt > rec.ClosedAt {
				rec.ClosedAt = fact.ClosedAt
				rs.Issues[fact.IssueID] = rec
			}
			return
		}
	}
	key := pendingKey{repo: fact.RepoID, issue: fact.IssueID}
	if fact.ClosedAt > a.pendingCloses[key] {
		a.pendingCloses[key] = fact.ClosedAt
	}
}

// FoldAll applies a batch of facts, stopping at the first error
func (a *Accumulator) FoldAll(facts []domain.Fact) error {
	for _, f := range facts {
		if err := a.Fold(f); err != nil {
			return err
		}
	}
	return nil
}

// ensure returns the statistic for id, creating it on first observation.
// org and name are fixed by whoever observes the repository first and never
// revised, even if later events disagree
func (a *Accumulator) ensure(id int64, org, name string) *domain.RepoStatistic {
	if rs, ok := a.repos[id]; ok {
		return rs
	}
	rs := domain.NewRepoStatistic(id, org, name)
	a.repos[id] = rs
	return rs
}

// Merge combines another accumulator built from a disjoint fact stream:
// commit counts add, contributor sets union, issue records reconcile by the
// most recent timestamp per field. A reconciled close older than the
// reconciled open is dropped to preserve the close-after-open invariant
func (a *Accumulator) Merge(b *Accumulator) {
	for id, brs := range b.repos {
		ars, ok := a.repos[id]
		if !ok {
			a.repos[id] = brs
			continue
		}
		ars.CommitCount += brs.CommitCount
		for actor := range brs.Contributors {
			ars.Contributors[actor] = struct{}{}
		}
		for issueID, brec := range brs.Issues {
			arec, found := ars.Issues[issueID]
			if !found {
				ars.Issues[issueID] = brec
				continue
			}
			merged := domain.IssueRecord{
				ID:       issueID,
				OpenedAt: max64(arec.OpenedAt, brec.OpenedAt),
				ClosedAt: max64(arec.ClosedAt, brec.ClosedAt),
			}
			if merged.ClosedAt > 0 && merged.ClosedAt < merged.OpenedAt {
				merged.ClosedAt = 0
			}
			ars.Issues[issueID] = merged
		}
	}

	// merge parked closes, then flush any that can now match an open
	for key, ts := range b.pendingCloses {
		if ts > a.pendingCloses[key] {
			a.pendingCloses[key] = ts
		}
	}
	for key, ts := range a.pendingCloses {
		rs, ok := a.repos[key.repo]
		if !ok {
			continue
		}
		rec, found := rs.Issues[key.issue]
		if !found {
			continue
		}
		if ts >= rec.OpenedAt && ts > rec.ClosedAt {
			rec.ClosedAt = ts
			rs.Issues[key.issue] = rec
		}
		delete(a.pendingCloses, key)
	}
}

// Snapshot hands the accumulated statistics to the normalizer. Parked closes
// that never found an open are not part of the visible state. The caller must
// treat the result as read-only aside from the write-once metric fields
func (a *Accumulator) Snapshot() []*domain.RepoStatistic {
	out := make([]*domain.RepoStatistic, 0, len(a.repos))
	for _, rs := range a.repos {
		out = append(out, rs)
	}
	return out
}

// Get returns the statistic for one repository id, mainly for tests
func (a *Accumulator) Get(id int64) (*domain.RepoStatistic, bool) {
	rs, ok := a.repos[id]
	return rs, ok
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
