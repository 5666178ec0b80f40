package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"auto_reddit_speakout_poster/flair"
	"auto_reddit_speakout_poster/ledger"
	"auto_reddit_speakout_poster/reddit"
	"auto_reddit_speakout_poster/source"
)

const botUsername = "speakout-bot"

var testItem = source.Item{
	Title:    "Monday, January 1, 2024",
	ImageURL: "https://images.example.com/speakout.jpg",
	PageURL:  "https://www.deccanherald.com/opinion/speak-out/speak-out-1",
}

type fakeSource struct {
	item source.Item
	err  error
}

func (f *fakeSource) FetchLatest(context.Context) (source.Item, error) {
	return f.item, f.err
}

type fakeAuth struct {
	err   error
	calls int
}

func (f *fakeAuth) Authenticate(context.Context) (reddit.Session, error) {
	f.calls++
	if f.err != nil {
		return reddit.Session{}, f.err
	}
	return reddit.Session{AccessToken: "tok"}, nil
}

// fakePlatform is an in-memory subreddit. Image submissions come back without
// a post name, as they do on Reddit.
type fakePlatform struct {
	mu sync.Mutex

	posts    []reddit.Post
	comments map[string][]reddit.Comment
	nextID   int

	uploadErr  error
	imageErr   error
	linkErr    error
	commentErr error
	listErr    error
	// imageVanishes and linkVanishes accept a submission but never list the post.
	imageVanishes bool
	linkVanishes  bool

	calls        map[string]int
	imageReqs    []reddit.SubmitRequest
	linkReqs     []reddit.SubmitRequest
	commentedOn  []string
	commentTexts []string
}

func newFakePlatform(posts ...reddit.Post) *fakePlatform {
	return &fakePlatform{posts: posts, comments: map[string][]reddit.Comment{}, calls: map[string]int{}}
}

func (f *fakePlatform) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakePlatform) mutatingCalls() int {
	return f.count("upload") + f.count("image") + f.count("link") + f.count("comment")
}

func (f *fakePlatform) addPost(title, url string) reddit.Post {
	f.nextID++
	id := fmt.Sprintf("p%d", f.nextID)
	post := reddit.Post{
		Name:      "t3_" + id,
		Title:     title,
		URL:       url,
		Permalink: "/r/DHSavagery/comments/" + id + "/",
	}
	f.posts = append([]reddit.Post{post}, f.posts...)
	return post
}

func (f *fakePlatform) NewestPostTitle(ctx context.Context, s reddit.Session, sr string) (string, error) {
	posts, err := f.RecentPosts(ctx, s, sr, 1)
	if err != nil || len(posts) == 0 {
		return "", err
	}
	return posts[0].Title, nil
}

func (f *fakePlatform) RecentPosts(_ context.Context, _ reddit.Session, _ string, limit int) ([]reddit.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["list"]++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if limit > len(f.posts) {
		limit = len(f.posts)
	}
	out := make([]reddit.Post, limit)
	copy(out, f.posts[:limit])
	return out, nil
}

func (f *fakePlatform) UploadImage(_ context.Context, _ reddit.Session, imageURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["upload"]++
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return "https://uploads.example.com/rte_images/asset.jpg", nil
}

func (f *fakePlatform) SubmitImagePost(_ context.Context, _ reddit.Session, r reddit.SubmitRequest) (reddit.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["image"]++
	f.imageReqs = append(f.imageReqs, r)
	if f.imageErr != nil {
		return reddit.Submission{}, f.imageErr
	}
	if !f.imageVanishes {
		f.addPost(r.Title, r.URL)
	}
	return reddit.Submission{}, nil
}

func (f *fakePlatform) SubmitLinkPost(_ context.Context, _ reddit.Session, r reddit.SubmitRequest) (reddit.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["link"]++
	f.linkReqs = append(f.linkReqs, r)
	if f.linkErr != nil {
		return reddit.Submission{}, f.linkErr
	}
	if f.linkVanishes {
		return reddit.Submission{Name: "t3_ghost", URL: r.URL}, nil
	}
	post := f.addPost(r.Title, r.URL)
	return reddit.Submission{Name: post.Name, URL: post.URL}, nil
}

func (f *fakePlatform) AddComment(_ context.Context, _ reddit.Session, thing, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["comment"]++
	if f.commentErr != nil {
		return f.commentErr
	}
	f.commentedOn = append(f.commentedOn, thing)
	f.commentTexts = append(f.commentTexts, text)
	id := strings.TrimPrefix(thing, "t3_")
	f.comments[id] = append(f.comments[id], reddit.Comment{Author: botUsername, Body: text})
	return nil
}

func (f *fakePlatform) Comments(_ context.Context, _ reddit.Session, _, postID string) ([]reddit.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["comments"]++
	return f.comments[postID], nil
}

// cancelOnSubmit cancels the caller's context once Reddit has accepted the
// image post, and fails listings on a cancelled context like a real client.
type cancelOnSubmit struct {
	*fakePlatform
	cancel context.CancelFunc
}

func (c *cancelOnSubmit) SubmitImagePost(ctx context.Context, s reddit.Session, r reddit.SubmitRequest) (reddit.Submission, error) {
	sub, err := c.fakePlatform.SubmitImagePost(ctx, s, r)
	c.cancel()
	return sub, err
}

func (c *cancelOnSubmit) RecentPosts(ctx context.Context, s reddit.Session, sr string, limit int) ([]reddit.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.fakePlatform.RecentPosts(ctx, s, sr, limit)
}

// contextLedger refuses writes on a cancelled context, as Redis does.
type contextLedger struct {
	*ledger.MemoryLedger
}

func (l contextLedger) Append(ctx context.Context, rec ledger.RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.MemoryLedger.Append(ctx, rec)
}

type failingLedger struct{}

func (failingLedger) Append(context.Context, ledger.RunRecord) error {
	return errors.New("kv unavailable")
}

func (failingLedger) ReadAll(context.Context) ([]ledger.RunRecord, error) {
	return nil, errors.New("kv unavailable")
}

type fakeDetector struct {
	det   flair.Detection
	err   error
	calls int
}

func (f *fakeDetector) Detect(context.Context, string) (flair.Detection, error) {
	f.calls++
	return f.det, f.err
}

type harness struct {
	pub      *Publisher
	platform *fakePlatform
	auth     *fakeAuth
	ledger   *ledger.MemoryLedger
	sleeps   []time.Duration
}

func newHarness(platform *fakePlatform, mutate ...func(*Deps, *Options)) *harness {
	h := &harness{platform: platform, auth: &fakeAuth{}, ledger: ledger.NewMemoryLedger(ledger.DefaultMaxHistory)}
	deps := Deps{
		Source:   &fakeSource{item: testItem},
		Auth:     h.auth,
		Platform: platform,
		Ledger:   h.ledger,
	}
	opts := Options{Subreddit: "DHSavagery", BotUsername: botUsername}
	for _, m := range mutate {
		m(&deps, &opts)
	}
	pub, err := New(deps, opts, nil)
	if err != nil {
		panic(err)
	}
	pub.now = func() time.Time { return time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC) }
	pub.sleep = func(_ context.Context, d time.Duration) { h.sleeps = append(h.sleeps, d) }
	h.pub = pub
	return h
}

func (h *harness) history() []ledger.RunRecord {
	records, _ := h.ledger.ReadAll(context.Background())
	return records
}
