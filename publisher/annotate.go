package publisher

import (
	"context"
	"fmt"

	"auto_reddit_speakout_poster/ledger"
	"auto_reddit_speakout_poster/logging"
	"auto_reddit_speakout_poster/reddit"
)

// attemptComment posts the source attribution on postName. It never fails
// the run: no name means skipped, any error means failed.
func (p *Publisher) attemptComment(ctx context.Context, s reddit.Session, postName, sourceURL string, log logging.Entry) ledger.CommentOutcome {
	if postName == "" {
		return ledger.CommentSkipped
	}
	if err := p.platform.AddComment(ctx, s, postName, SourceComment(sourceURL)); err != nil {
		log.WithError(fmt.Errorf("%w: %w", ErrAnnotation, err)).WithField("post", postName).
			Error("Failed to post source comment (non-fatal)")
		return ledger.CommentFailed
	}
	log.WithField("post", postName).Info("Source comment posted")
	return ledger.CommentPosted
}
