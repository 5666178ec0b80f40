package publisher

import (
	"context"
	"errors"
	"fmt"

	"auto_reddit_speakout_poster/ledger"
	"auto_reddit_speakout_poster/logging"
	"auto_reddit_speakout_poster/reddit"
)

// RepairStatus is the outcome of EnsureComment.
type RepairStatus string

const (
	RepairCommented     RepairStatus = "commented"
	RepairAlreadyExists RepairStatus = "already_exists"
	RepairTitleMismatch RepairStatus = "title_mismatch"
	RepairFailed        RepairStatus = "failed"
)

// RepairResult reports what EnsureComment did. The titles are set on a
// title mismatch, Error on failure.
type RepairResult struct {
	Status          RepairStatus `json:"status"`
	LatestPostTitle string       `json:"latest_post_title,omitempty"`
	SourceTitle     string       `json:"source_title,omitempty"`
	Error           string       `json:"error,omitempty"`
}

// EnsureComment adds the source comment to the newest post when it is today's
// cartoon and the bot has not commented yet. A post with another title is
// left alone. Like Run, it is not aborted by cancelling ctx.
func (p *Publisher) EnsureComment(ctx context.Context) RepairResult {
	ctx = context.WithoutCancel(ctx)
	log := p.logger.WithField("flow", "comment_repair")
	res := p.ensureComment(ctx, log)
	if res.Status == RepairFailed {
		log.WithField("error", res.Error).Error("Comment repair failed")
	}
	p.metrics.observeRepair(res.Status)
	return res
}

func (p *Publisher) ensureComment(ctx context.Context, log logging.Entry) RepairResult {
	item, err := p.source.FetchLatest(ctx)
	if err != nil {
		return repairFailed(fmt.Errorf("%w: %w", ErrFetch, err))
	}
	s, err := p.auth.Authenticate(ctx)
	if err != nil {
		return repairFailed(fmt.Errorf("%w: %w", ErrAuth, err))
	}

	posts, err := p.platform.RecentPosts(ctx, s, p.opts.Subreddit, 1)
	if err != nil {
		return repairFailed(err)
	}
	if len(posts) == 0 {
		return repairFailed(errors.New("no posts found in subreddit"))
	}
	latest := posts[0]
	if !IsAlreadyPosted(latest.Title, item.Title) {
		return RepairResult{Status: RepairTitleMismatch, LatestPostTitle: latest.Title, SourceTitle: item.Title}
	}

	comments, err := p.platform.Comments(ctx, s, p.opts.Subreddit, latest.ID())
	if err != nil {
		return repairFailed(err)
	}
	if hasCommentBy(comments, p.opts.BotUsername) {
		log.WithField("post", latest.Name).Info("Bot already commented")
		p.record(ctx, p.repairRecord(ledger.OutcomeCommentSkipped, latest, item.PageURL), log)
		return RepairResult{Status: RepairAlreadyExists}
	}

	if err := p.platform.AddComment(ctx, s, latest.Name, SourceComment(item.PageURL)); err != nil {
		return repairFailed(fmt.Errorf("%w: %w", ErrAnnotation, err))
	}
	log.WithField("post", latest.Name).Info("Source comment posted")
	p.record(ctx, p.repairRecord(ledger.OutcomeCommentAdded, latest, item.PageURL), log)
	return RepairResult{Status: RepairCommented}
}

func (p *Publisher) repairRecord(outcome ledger.Outcome, post reddit.Post, sourceURL string) ledger.RunRecord {
	rec := p.newRecord(RunOptions{Source: ledger.SourceManual}, outcome)
	rec.PostedTitle = post.Title
	rec.SourceURL = sourceURL
	if post.Permalink != "" {
		rec.PostedURL = redditBaseURL + post.Permalink
	}
	return rec
}

func hasCommentBy(comments []reddit.Comment, author string) bool {
	if author == "" {
		return false
	}
	for _, c := range comments {
		if c.Author == author {
			return true
		}
	}
	return false
}

func repairFailed(err error) RepairResult {
	return RepairResult{Status: RepairFailed, Error: err.Error()}
}
