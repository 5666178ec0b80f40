// Package reddit is a small client for the parts of the Reddit API the poster uses:
// password-grant OAuth, subreddit listings, media upload, submissions and comments.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"auto_reddit_speakout_poster/logging"
)

const (
	DefaultAuthURL   = "https://www.reddit.com/api/v1/access_token"
	DefaultAPIURL    = "https://oauth.reddit.com"
	DefaultUserAgent = "web:com.pratyushvashisht.reddit-savage-bot (by /u/prvashisht)"
)

// Config holds the script-app credentials and endpoints.
type Config struct {
	AppID     string
	AppSecret string
	Username  string
	Password  string
	UserAgent string

	// AuthURL and APIURL override the Reddit endpoints, for tests.
	AuthURL string
	APIURL  string
}

// ErrSessionExpired is returned instead of sending a request with a stale token.
var ErrSessionExpired = errors.New("reddit session expired")

// Session is a bearer credential owned by a single run.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Expired reports whether the token is past its lifetime at now. A session
// without a known lifetime never expires.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Post is one entry of a subreddit listing.
type Post struct {
	Name      string `json:"name"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Permalink string `json:"permalink"`
	Author    string `json:"author"`
}

// ID is the post id without the t3_ kind prefix.
func (p Post) ID() string {
	return strings.TrimPrefix(p.Name, "t3_")
}

// Comment is a top-level comment on a post.
type Comment struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

// Submission is what a submit call returned. Any field may be empty: image
// submissions deliver the post name asynchronously.
type Submission struct {
	Name string
	URL  string
}

// APIError is a non-2xx status or a non-empty Reddit error list.
type APIError struct {
	Op     string
	Status int
	Errors []string
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("reddit %s failed: %d", e.Op, e.Status)
	}
	return fmt.Sprintf("reddit %s failed: %d %s", e.Op, e.Status, strings.Join(e.Errors, "; "))
}

// Client talks to Reddit with one shared http.Client. Read-only GETs go
// through a retry policy; writes are sent exactly once.
type Client struct {
	cfg    Config
	client *http.Client
	reads  failsafe.Executor[*http.Response]
	logger logging.Logger

	maxImageBytes int64
}

// New validates cfg and builds a Client. A nil http.Client gets a 60s default.
func New(cfg Config, client *http.Client, logger logging.Logger) (*Client, error) {
	if cfg.AppID == "" || cfg.AppSecret == "" {
		return nil, errors.New("reddit config must include app_id and app_secret")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("reddit config must include username and password")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	cfg.APIURL = strings.TrimSuffix(cfg.APIURL, "/")
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(200*time.Millisecond, 2*time.Second).
		WithMaxRetries(2).
		WithJitterFactor(0.1).
		HandleIf(retryable).
		Build()
	return &Client{
		cfg:           cfg,
		client:        client,
		reads:         failsafe.With[*http.Response](retry),
		logger:        logger,
		maxImageBytes: defaultMaxImageBytes,
	}, nil
}

// retryable decides whether a read is attempted again. A response that is
// going to be retried is closed here since nothing else sees it.
func retryable(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, ErrSessionExpired)
	}
	if resp == nil || (resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests) {
		return false
	}
	resp.Body.Close()
	return true
}

// Username is the bot account the client authenticates as.
func (c *Client) Username() string {
	return c.cfg.Username
}

func (c *Client) newRequest(ctx context.Context, method, path string, s Session, form url.Values) (*http.Request, error) {
	if s.Expired(time.Now()) {
		return nil, ErrSessionExpired
	}
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIURL+path, body)
	if err != nil {
		return nil, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Authorization", "Bearer "+s.AccessToken)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	return req, nil
}

// getJSON performs an authenticated GET with retries and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, op, path string, s Session, out any) error {
	resp, err := c.reads.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := c.newRequest(ctx, http.MethodGet, path, s, nil)
		if err != nil {
			return nil, err
		}
		return c.client.Do(req)
	})
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("reddit %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &APIError{Op: op, Status: resp.StatusCode, Errors: []string{readSnippet(resp.Body)}}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("reddit %s: decode response: %w", op, err)
	}
	return nil
}

// postForm performs an authenticated form POST once and decodes the body into out.
func (c *Client) postForm(ctx context.Context, op, path string, s Session, form url.Values, out any) (int, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, s, form)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("reddit %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp.StatusCode, &APIError{Op: op, Status: resp.StatusCode, Errors: []string{readSnippet(resp.Body)}}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("reddit %s: decode response: %w", op, err)
		}
	}
	return resp.StatusCode, nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}

// apiErrors flattens Reddit's [[code, message, field], ...] error list.
func apiErrors(raw [][]any) []string {
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		parts := make([]string, 0, len(e))
		for _, p := range e {
			if p == nil {
				continue
			}
			parts = append(parts, fmt.Sprint(p))
		}
		out = append(out, strings.Join(parts, ": "))
	}
	return out
}
