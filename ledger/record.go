// Package ledger keeps the bounded, newest-first history of poster runs.
package ledger

import "time"

// Outcome is the overall result of one run.
type Outcome string

const (
	OutcomePosted         Outcome = "posted"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeFailed         Outcome = "failed"
	OutcomeDryRun         Outcome = "dry_run"
	OutcomeCommentAdded   Outcome = "comment_added"
	OutcomeCommentSkipped Outcome = "comment_skipped"
)

// CommentOutcome is the result of the source-attribution comment.
type CommentOutcome string

const (
	CommentPosted  CommentOutcome = "posted"
	CommentFailed  CommentOutcome = "failed"
	CommentSkipped CommentOutcome = "skipped"
)

// TriggerSource says what started a run.
type TriggerSource string

const (
	SourceScheduled TriggerSource = "scheduled"
	SourceManual    TriggerSource = "manual"
)

// DefaultMaxHistory is the number of records kept when none is configured.
const DefaultMaxHistory = 20

// RunRecord is written once per run and never modified afterwards.
type RunRecord struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	Outcome        Outcome        `json:"outcome"`
	PostedTitle    string         `json:"posted_title,omitempty"`
	PostedURL      string         `json:"posted_url,omitempty"`
	Error          string         `json:"error,omitempty"`
	CommentOutcome CommentOutcome `json:"comment_outcome,omitempty"`
	Flair          string         `json:"flair,omitempty"`
	SourceURL      string         `json:"source_url,omitempty"`
	Source         TriggerSource  `json:"source"`
}
