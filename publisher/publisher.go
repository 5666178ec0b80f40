package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"auto_reddit_speakout_poster/flair"
	"auto_reddit_speakout_poster/ledger"
	"auto_reddit_speakout_poster/logging"
	"auto_reddit_speakout_poster/reddit"
	"auto_reddit_speakout_poster/source"
)

// SettleDelay is how long Reddit gets to list a new post before verification.
const SettleDelay = 3 * time.Second

const redditBaseURL = "https://www.reddit.com"

// SourceFetcher returns the newest cartoon.
type SourceFetcher interface {
	FetchLatest(ctx context.Context) (source.Item, error)
}

// Authenticator obtains a fresh session for one run.
type Authenticator interface {
	Authenticate(ctx context.Context) (reddit.Session, error)
}

// Platform is the subset of the Reddit API the workflow drives.
type Platform interface {
	NewestPostTitle(ctx context.Context, s reddit.Session, subreddit string) (string, error)
	RecentPosts(ctx context.Context, s reddit.Session, subreddit string, limit int) ([]reddit.Post, error)
	UploadImage(ctx context.Context, s reddit.Session, imageURL string) (string, error)
	SubmitImagePost(ctx context.Context, s reddit.Session, r reddit.SubmitRequest) (reddit.Submission, error)
	SubmitLinkPost(ctx context.Context, s reddit.Session, r reddit.SubmitRequest) (reddit.Submission, error)
	AddComment(ctx context.Context, s reddit.Session, thingName, text string) error
	Comments(ctx context.Context, s reddit.Session, subreddit, postID string) ([]reddit.Comment, error)
}

// FlairDetector picks the party flair for a cartoon.
type FlairDetector interface {
	Detect(ctx context.Context, imageURL string) (flair.Detection, error)
}

// RunOptions controls one invocation.
type RunOptions struct {
	DryRun             bool
	SkipDuplicateCheck bool
	Source             ledger.TriggerSource
}

// Deps are the collaborators a Publisher drives. Flair is optional.
type Deps struct {
	Source   SourceFetcher
	Auth     Authenticator
	Platform Platform
	Ledger   ledger.Ledger
	Flair    FlairDetector
	Metrics  *Metrics
}

// Options carries the posting target.
type Options struct {
	Subreddit      string
	TitleLabel     string
	BotUsername    string
	FlairTemplates map[string]string
}

// Publisher runs the fetch, dedupe, submit, verify and annotate workflow and
// records exactly one RunRecord per Run.
type Publisher struct {
	source   SourceFetcher
	auth     Authenticator
	platform Platform
	ledger   ledger.Ledger
	flair    FlairDetector
	metrics  *Metrics
	opts     Options
	logger   logging.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func New(deps Deps, opts Options, logger logging.Logger) (*Publisher, error) {
	if deps.Source == nil || deps.Auth == nil || deps.Platform == nil || deps.Ledger == nil {
		return nil, errors.New("source, auth, platform and ledger are required")
	}
	if opts.Subreddit == "" {
		opts.Subreddit = DefaultSubreddit
	}
	if opts.TitleLabel == "" {
		opts.TitleLabel = DefaultTitleLabel
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Publisher{
		source:   deps.Source,
		auth:     deps.Auth,
		platform: deps.Platform,
		ledger:   deps.Ledger,
		flair:    deps.Flair,
		metrics:  deps.Metrics,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		sleep:    wait,
	}, nil
}

func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Subreddit is the community posts go to.
func (p *Publisher) Subreddit() string {
	return p.opts.Subreddit
}

// PostTitle is the title a source item is posted under.
func (p *Publisher) PostTitle(item source.Item) string {
	return p.opts.TitleLabel + " | " + item.Title
}

// SourceComment is the attribution comment body for a source page.
func SourceComment(pageURL string) string {
	return "**Source:** " + pageURL
}

// Run fetches the newest cartoon, authenticates, submits it and appends the
// outcome to the ledger. It never returns an error: every exit path becomes a
// RunRecord. Cancelling ctx does not abort a run once started; only its
// values are used.
func (p *Publisher) Run(ctx context.Context, opts RunOptions) ledger.RunRecord {
	ctx = context.WithoutCancel(ctx)
	if opts.Source == "" {
		opts.Source = ledger.SourceScheduled
	}
	start := p.now()
	log := p.logger.WithFields(logging.Fields{"trigger": opts.Source, "dry_run": opts.DryRun})
	log.WithField("state", StateStart).Info("Starting run")

	rec := p.run(ctx, opts, log)
	p.record(ctx, rec, log)
	p.metrics.observeRun(rec, p.now().Sub(start))
	return rec
}

func (p *Publisher) run(ctx context.Context, opts RunOptions, log logging.Entry) ledger.RunRecord {
	log.WithField("state", StateFetchSource).Debug("Fetching source")
	item, err := p.source.FetchLatest(ctx)
	if err != nil {
		return p.failed(opts, fmt.Errorf("%w: %w", ErrFetch, err), log)
	}
	s, err := p.auth.Authenticate(ctx)
	if err != nil {
		return p.failed(opts, fmt.Errorf("%w: %w", ErrAuth, err), log)
	}
	return p.Submit(ctx, item, s, opts)
}

// Submit runs the workflow for an already fetched item with a valid session.
// It returns the record without appending it to the ledger.
func (p *Publisher) Submit(ctx context.Context, item source.Item, s reddit.Session, opts RunOptions) ledger.RunRecord {
	if opts.Source == "" {
		opts.Source = ledger.SourceScheduled
	}
	log := p.logger.WithFields(logging.Fields{"trigger": opts.Source, "source_title": item.Title})
	rec, err := p.submit(ctx, item, s, opts, log)
	if err != nil {
		return p.failed(opts, err, log)
	}
	return rec
}

func (p *Publisher) submit(ctx context.Context, item source.Item, s reddit.Session, opts RunOptions, log logging.Entry) (ledger.RunRecord, error) {
	if !opts.SkipDuplicateCheck {
		log.WithField("state", StateCheckDuplicate).Debug("Checking newest post")
		newest, err := p.platform.NewestPostTitle(ctx, s, p.opts.Subreddit)
		if err != nil {
			return ledger.RunRecord{}, fmt.Errorf("check newest post: %w", err)
		}
		if IsAlreadyPosted(newest, item.Title) {
			log.WithField("state", StateSkipped).Info("Latest Speak Out posted already")
			rec := p.newRecord(opts, ledger.OutcomeSkipped)
			rec.PostedTitle = item.Title
			rec.SourceURL = item.PageURL
			return rec, nil
		}
	} else {
		log.Info("Skipping already-posted check")
	}

	title := p.PostTitle(item)
	if opts.DryRun {
		log.WithFields(logging.Fields{"state": StateDryRun, "title": title}).Info("Dry run, not posting")
		rec := p.newRecord(opts, ledger.OutcomeDryRun)
		rec.PostedTitle = item.Title
		rec.SourceURL = item.PageURL
		return rec, nil
	}

	party, flairID := p.detectFlair(ctx, item, log)
	req := reddit.SubmitRequest{Subreddit: p.opts.Subreddit, Title: title, FlairID: flairID}

	post, accepted, err := p.submitPrimary(ctx, s, item, req, log)
	if err != nil && accepted {
		// Retrying here could double-post, so record optimistically and stop.
		log.WithError(err).WithField("state", StateAmbiguousFailure).
			Error("Image post was submitted but verification failed; not posting link to avoid duplicate")
		rec := p.newRecord(opts, ledger.OutcomePosted)
		rec.PostedTitle = title
		rec.SourceURL = item.PageURL
		rec.Error = err.Error()
		rec.Flair = party
		return rec, nil
	}
	if err != nil {
		log.WithError(err).WithField("state", StateSubmitFallback).Warn("Image upload/post failed, falling back to link post")
		var ferr error
		post, ferr = p.submitFallback(ctx, s, item, req, log)
		if ferr != nil {
			return ledger.RunRecord{}, fmt.Errorf("both strategies failed: image post: %v; link post: %w", err, ferr)
		}
	}

	log.WithFields(logging.Fields{"state": StateAnnotate, "post": post.Name}).Info("Post verified")
	comment := p.attemptComment(ctx, s, post.Name, item.PageURL, log)

	rec := p.newRecord(opts, ledger.OutcomePosted)
	rec.PostedTitle = title
	rec.PostedURL = post.URL
	rec.SourceURL = item.PageURL
	rec.CommentOutcome = comment
	rec.Flair = party
	log.WithField("state", StateDone).Info("Run complete")
	return rec, nil
}

// verifiedPost is the post a submission resolved to after verification.
type verifiedPost struct {
	Name  string
	Title string
	URL   string
}

// submitPrimary uploads the image and submits a native image post. accepted
// turns true once Reddit has taken the submission, whatever happens after.
func (p *Publisher) submitPrimary(ctx context.Context, s reddit.Session, item source.Item, req reddit.SubmitRequest, log logging.Entry) (verifiedPost, bool, error) {
	log.WithField("state", StateSubmitPrimary).Debug("Uploading image")
	assetURL, err := p.platform.UploadImage(ctx, s, item.ImageURL)
	if err != nil {
		return verifiedPost{}, false, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	if assetURL == "" {
		return verifiedPost{}, false, fmt.Errorf("%w: upload did not return a usable URL", ErrUpload)
	}
	log.WithField("asset_url", assetURL).Info("Uploaded image to Reddit")

	req.URL = assetURL
	sub, err := p.platform.SubmitImagePost(ctx, s, req)
	if err != nil {
		return verifiedPost{}, false, fmt.Errorf("%w: %w", ErrSubmit, err)
	}
	log.WithField("state", StateVerifyPrimary).Info("Submitted image post")

	post, err := p.verify(ctx, s, item, sub, "image post")
	return post, true, err
}

// submitFallback submits a link post straight at the source image.
func (p *Publisher) submitFallback(ctx context.Context, s reddit.Session, item source.Item, req reddit.SubmitRequest, log logging.Entry) (verifiedPost, error) {
	req.URL = item.ImageURL
	sub, err := p.platform.SubmitLinkPost(ctx, s, req)
	if err != nil {
		return verifiedPost{}, fmt.Errorf("%w: %w", ErrSubmit, err)
	}
	log.WithField("state", StateVerifyFallback).Info("Submitted fallback link post")
	return p.verify(ctx, s, item, sub, "link post")
}

// verify waits for the post to settle and checks the newest post carries the
// source title. Image submissions usually come back without a name; the
// verified listing entry is then the only source of it.
func (p *Publisher) verify(ctx context.Context, s reddit.Session, item source.Item, sub reddit.Submission, kind string) (verifiedPost, error) {
	p.sleep(ctx, SettleDelay)

	posts, err := p.platform.RecentPosts(ctx, s, p.opts.Subreddit, 1)
	if err != nil {
		return verifiedPost{}, fmt.Errorf("%w: %s verification read failed: %w", ErrVerification, kind, err)
	}
	if len(posts) == 0 {
		return verifiedPost{}, fmt.Errorf("%w: %s verification failed: subreddit has no posts", ErrVerification, kind)
	}
	newest := posts[0]
	if !strings.Contains(newest.Title, item.Title) {
		return verifiedPost{}, fmt.Errorf("%w: %s verification failed: newest post is %q, expected to contain %q",
			ErrVerification, kind, newest.Title, item.Title)
	}

	post := verifiedPost{Name: sub.Name, Title: newest.Title, URL: sub.URL}
	if post.Name == "" {
		post.Name = newest.Name
	}
	if post.URL == "" {
		post.URL = newest.URL
	}
	if post.URL == "" && newest.Permalink != "" {
		post.URL = redditBaseURL + newest.Permalink
	}
	return post, nil
}

// detectFlair returns the party label and template id, or empty strings.
// Detection problems never stop a post.
func (p *Publisher) detectFlair(ctx context.Context, item source.Item, log logging.Entry) (string, string) {
	if p.flair == nil || len(p.opts.FlairTemplates) == 0 {
		return "", ""
	}
	det, err := p.flair.Detect(ctx, item.ImageURL)
	if err != nil {
		log.WithError(err).Warn("Party detection failed (non-fatal)")
		return "", ""
	}
	if !det.Found() {
		log.WithField("reason", det.Reason).Info("No party detected")
		return "", ""
	}
	id, ok := p.opts.FlairTemplates[string(det.Party)]
	if !ok || id == "" {
		log.WithField("party", det.Party).Info("No flair template for party")
		return "", ""
	}
	return string(det.Party), id
}

func (p *Publisher) newRecord(opts RunOptions, outcome ledger.Outcome) ledger.RunRecord {
	return ledger.RunRecord{
		ID:        uuid.NewString(),
		Timestamp: p.now().UTC(),
		Outcome:   outcome,
		Source:    opts.Source,
	}
}

func (p *Publisher) failed(opts RunOptions, err error, log logging.Entry) ledger.RunRecord {
	log.WithError(err).WithField("state", StateFailed).Error("Bot run failed")
	rec := p.newRecord(opts, ledger.OutcomeFailed)
	rec.Error = err.Error()
	return rec
}

// record appends to the ledger. A write failure is logged and dropped.
func (p *Publisher) record(ctx context.Context, rec ledger.RunRecord, log logging.Entry) {
	if err := p.ledger.Append(ctx, rec); err != nil {
		log.WithError(fmt.Errorf("%w: %w", ErrLedgerWrite, err)).Error("Failed to write run state")
	}
}
