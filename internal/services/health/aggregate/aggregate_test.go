package aggregate

import (
	"math/rand"
	"testing"

	perr "repopulse/internal/platform/errors"
	"repopulse/internal/services/health/domain"
)

func commit(repo int64, actor int64) domain.Fact {
	return domain.CommitActivity{RepoID: repo, Org: "acme", Name: "widgets", ActorID: actor}
}

func opened(repo, issue, at int64) domain.Fact {
	return domain.IssueOpened{RepoID: repo, Org: "acme", Name: "widgets", IssueID: issue, OpenedAt: at}
}

func closed(repo, issue, at int64) domain.Fact {
	return domain.IssueClosed{RepoID: repo, IssueID: issue, ClosedAt: at}
}

func TestFoldCommitActivity(t *testing.T) {
	acc := New()
	for _, f := range []domain.Fact{commit(1, 7), commit(1, 7), commit(1, 8)} {
		if err := acc.Fold(f); err != nil {
			t.Fatalf("Fold: %v", err)
		}
	}
	rs, ok := acc.Get(1)
	if !ok {
		t.Fatalf("repo 1 not created")
	}
	if rs.CommitCount != 3 {
		t.Fatalf("CommitCount = %d, want 3", rs.CommitCount)
	}
	// repeated pushes from the same actor do not inflate the contributor set
	if len(rs.Contributors) != 2 {
		t.Fatalf("Contributors = %d, want 2", len(rs.Contributors))
	}
	if rs.Org != "acme" || rs.Name != "widgets" {
		t.Fatalf("identity mismatch: %+v", rs)
	}
}

func TestFirstWriteWinsForOrgName(t *testing.T) {
	acc := New()
	_ = acc.Fold(domain.CommitActivity{RepoID: 1, Org: "acme", Name: "widgets", ActorID: 1})
	_ = acc.Fold(domain.CommitActivity{RepoID: 1, Org: "renamed", Name: "other", ActorID: 2})
	rs, _ := acc.Get(1)
	if rs.Org != "acme" || rs.Name != "widgets" {
		t.Fatalf("org/name should be fixed on first observation: %+v", rs)
	}
}

func TestFoldIssueLifecycle(t *testing.T) {
	acc := New()
	if err := acc.FoldAll([]domain.Fact{opened(1, 100, 1000), closed(1, 100, 4600)}); err != nil {
		t.Fatalf("FoldAll: %v", err)
	}
	rs, _ := acc.Get(1)
	rec := rs.Issues[100]
	if rec.OpenedAt != 1000 || rec.ClosedAt != 4600 {
		t.Fatalf("issue record mismatch: %+v", rec)
	}
	if !rec.Closed() {
		t.Fatalf("record should be closed")
	}
	if got := rec.OpenSeconds(0); got != 3600 {
		t.Fatalf("OpenSeconds = %d, want 3600", got)
	}
}

func TestReopenResetsCloseState(t *testing.T) {
	acc := New()
	_ = acc.FoldAll([]domain.Fact{
		opened(1, 100, 1000),
		closed(1, 100, 2000),
		opened(1, 100, 3000), // re-open: open timestamp overwritten, close cleared
	})
	rs, _ := acc.Get(1)
	rec := rs.Issues[100]
	if rec.OpenedAt != 3000 || rec.Closed() {
		t.Fatalf("re-open should reset the record: %+v", rec)
	}
}

func TestClosedWithoutOpenIsNoOp(t *testing.T) {
	acc := New()
	// repo never seen at all
	if err := acc.Fold(closed(9, 100, 2000)); err != nil {
		t.Fatalf("Fold: %v", err)
	}
	if acc.Len() != 0 {
		t.Fatalf("closed-without-open must not create a repository")
	}

	// repo seen, but the issue was never opened in the window
	_ = acc.Fold(commit(1, 7))
	if err := acc.Fold(closed(1, 100, 2000)); err != nil {
		t.Fatalf("Fold: %v", err)
	}
	rs, _ := acc.Get(1)
	if len(rs.Issues) != 0 {
		t.Fatalf("issue map should be unchanged, got %+v", rs.Issues)
	}
}

func TestIssueOpenedCreatesRepo(t *testing.T) {
	acc := New()
	_ = acc.Fold(opened(5, 1, 1000))
	rs, ok := acc.Get(5)
	if !ok {
		t.Fatalf("issue-opened should lazily create the repository")
	}
	if rs.CommitCount != 0 || len(rs.Contributors) != 0 {
		t.Fatalf("fresh repo should have zero commit state: %+v", rs)
	}
}

func TestFoldUnknownFactIsAggregationError(t *testing.T) {
	acc := New()
	err := acc.Fold(nil)
	if err == nil || !perr.IsCode(err, perr.ErrorCodeAggregation) {
		t.Fatalf("expected Aggregation error, got %v", err)
	}
}

func TestFoldCommutativity(t *testing.T) {
	facts := []domain.Fact{
		commit(1, 7), commit(1, 8), commit(1, 7),
		commit(2, 9),
		opened(1, 100, 1000),
		closed(1, 100, 4600),
		opened(2, 200, 2000),
		closed(2, 999, 2500), // never opened: no-op in every order
	}

	base := New()
	if err := base.FoldAll(facts); err != nil {
		t.Fatalf("FoldAll: %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		shuffled := make([]domain.Fact, len(facts))
		copy(shuffled, facts)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		acc := New()
		if err := acc.FoldAll(shuffled); err != nil {
			t.Fatalf("FoldAll shuffled: %v", err)
		}
		assertSameState(t, base, acc)
	}
}

func assertSameState(t *testing.T, a, b *Accumulator) {
	t.Helper()
	if a.Len() != b.Len() {
		t.Fatalf("repo counts differ: %d vs %d", a.Len(), b.Len())
	}
	for _, ars := range a.Snapshot() {
		brs, ok := b.Get(ars.ID)
		if !ok {
			t.Fatalf("repo %d missing", ars.ID)
		}
		if ars.CommitCount != brs.CommitCount {
			t.Fatalf("repo %d commit counts differ: %d vs %d", ars.ID, ars.CommitCount, brs.CommitCount)
		}
		if len(ars.Contributors) != len(brs.Contributors) {
			t.Fatalf("repo %d contributor sets differ", ars.ID)
		}
		for actor := range ars.Contributors {
			if _, ok := brs.Contributors[actor]; !ok {
				t.Fatalf("repo %d missing contributor %d", ars.ID, actor)
			}
		}
		if len(ars.Issues) != len(brs.Issues) {
			t.Fatalf("repo %d issue maps differ", ars.ID)
		}
		for id, arec := range ars.Issues {
			if brec := brs.Issues[id]; arec != brec {
				t.Fatalf("repo %d issue %d differs: %+v vs %+v", ars.ID, id, arec, brec)
			}
		}
	}
}

func TestMergePartitions(t *testing.T) {
	left := New()
	_ = left.FoldAll([]domain.Fact{commit(1, 7), commit(1, 8), opened(1, 100, 1000)})

	right := New()
	_ = right.FoldAll([]domain.Fact{commit(1, 8), commit(2, 9), closed(1, 100, 5000)})
	// the close in the right partition had no open there; merging must
	// reunite it with the open from the left partition
	left.Merge(right)

	rs, _ := left.Get(1)
	if rs.CommitCount != 3 {
		t.Fatalf("merged CommitCount = %d, want 3", rs.CommitCount)
	}
	if len(rs.Contributors) != 2 {
		t.Fatalf("merged Contributors = %d, want 2", len(rs.Contributors))
	}
	if rec := rs.Issues[100]; rec.OpenedAt != 1000 || rec.ClosedAt != 5000 {
		t.Fatalf("merged issue record mismatch: %+v", rec)
	}
	if _, ok := left.Get(2); !ok {
		t.Fatalf("repo only present in right partition should appear after merge")
	}
}

func TestMergeReconcilesIssueRecords(t *testing.T) {
	left := New()
	_ = left.FoldAll([]domain.Fact{opened(1, 100, 1000), closed(1, 100, 2000)})

	right := New()
	_ = right.FoldAll([]domain.Fact{opened(1, 100, 3000)})

	left.Merge(right)
	rs, _ := left.Get(1)
	rec := rs.Issues[100]
	// most-recent open wins; the stale close (before the reconciled open) is dropped
	if rec.OpenedAt != 3000 || rec.Closed() {
		t.Fatalf("reconciled record mismatch: %+v", rec)
	}
}
