// Package ingest holds adapter shims and the event classifier for health runs.
package ingest

import (
	"encoding/json"
	"strings"

	"repopulse/internal/adapters/ingest/gharchive"
	"repopulse/internal/services/health/domain"
)

const (
	pushEvent   = "PushEvent"
	issuesEvent = "IssuesEvent"

	actionOpened = "opened"
	actionClosed = "closed"
)

type classifier struct{}

// NewClassifier constructs the stock classifier
func NewClassifier() domain.Classifier { return classifier{} }

// FromEvent classifies one archive envelope into at most one fact.
// Only PushEvent and IssuesEvent are recognized; anything else is skipped.
// A recognized kind missing a required field is reported as malformed so the
// caller can log and keep going
func (classifier) FromEvent(env domain.EventEnvelope) domain.Classification {
	switch env.Type {
	case pushEvent:
		return classifyPush(env)
	case issuesEvent:
		return classifyIssue(env)
	default:
		return domain.Classification{Skip: domain.SkipUnrecognized}
	}
}

func classifyPush(env domain.EventEnvelope) domain.Classification {
	if env.Repo.ID == 0 {
		return malformed("repo.id")
	}
	org, name, ok := splitFullName(env.Repo.Name)
	if !ok {
		return malformed("repo.name")
	}
	if env.Actor.ID == 0 {
		return malformed("actor.id")
	}
	return domain.Classification{Fact: domain.CommitActivity{
		RepoID:  env.Repo.ID,
		Org:     org,
		Name:    name,
		ActorID: env.Actor.ID,
	}}
}

func classifyIssue(env domain.EventEnvelope) domain.Classification {
	if env.Repo.ID == 0 {
		return malformed("repo.id")
	}
	org, name, ok := splitFullName(env.Repo.Name)
	if !ok {
		return malformed("repo.name")
	}

	var p gharchive.IssuesPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return malformed("payload")
	}
	if p.Action == "" {
		return malformed("payload.action")
	}
	if p.Issue.ID == 0 {
		return malformed("payload.issue.id")
	}
	if env.CreatedAt.IsZero() {
		return malformed("created_at")
	}
	ts := env.CreatedAt.UTC().Unix()

	// "opened" matches by substring so "reopened" also counts as an open;
	// "closed" matches by exact equality. This mirrors the archive's observed
	// action vocabulary
	switch {
	case strings.Contains(p.Action, actionOpened):
		return domain.Classification{Fact: domain.IssueOpened{
			RepoID:   env.Repo.ID,
			Org:      org,
			Name:     name,
			IssueID:  p.Issue.ID,
			OpenedAt: ts,
		}}
	case p.Action == actionClosed:
		return domain.Classification{Fact: domain.IssueClosed{
			RepoID:   env.Repo.ID,
			IssueID:  p.Issue.ID,
			ClosedAt: ts,
		}}
	default:
		return domain.Classification{Skip: domain.SkipAction}
	}
}

// splitFullName splits "org/name" on the first slash; both halves must be
// non-empty
func splitFullName(full string) (org, name string, ok bool) {
	org, name, found := strings.Cut(full, "/")
	if !found || org == "" || name == "" {
		return "", "", false
	}
	return org, name, true
}

func malformed(field string) domain.Classification {
	return domain.Classification{Skip: domain.SkipMalformed, Detail: field}
}
