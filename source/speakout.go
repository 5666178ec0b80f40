// Package source scrapes the newest Speak Out cartoon from the Deccan Herald site.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/net/html"

	"auto_reddit_speakout_poster/logging"
)

const (
	DefaultListURL    = "https://www.deccanherald.com/tags/speak-out"
	articlePathPrefix = "/opinion/speak-out/"
	titleLayout       = "Monday, January 2, 2006"
)

// Item is the day's cartoon. It is built fresh on every run and never mutated.
type Item struct {
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
	PageURL  string `json:"page_url"`
}

// Fetcher reads the tag listing, follows the newest article and pulls its
// title and og:image.
type Fetcher struct {
	listURL   string
	userAgent string
	client    *http.Client
	executor  failsafe.Executor[*http.Response]
	logger    logging.Logger
}

// Options tunes a Fetcher. Zero values pick defaults.
type Options struct {
	ListURL    string
	UserAgent  string
	MaxRetries int
	RetryDelay time.Duration
}

func NewFetcher(opts Options, client *http.Client, logger logging.Logger) *Fetcher {
	if opts.ListURL == "" {
		opts.ListURL = DefaultListURL
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 2
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(opts.RetryDelay, 8*opts.RetryDelay).
		WithMaxRetries(opts.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(shouldRetry).
		Build()
	return &Fetcher{
		listURL:   opts.ListURL,
		userAgent: opts.UserAgent,
		client:    client,
		executor:  failsafe.With[*http.Response](retry),
		logger:    logger,
	}
}

// shouldRetry closes the body of any response it hands back for a retry.
func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	if resp == nil || (resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests) {
		return false
	}
	resp.Body.Close()
	return true
}

// FetchLatest returns the newest cartoon. It fails when the listing has no
// article link or the article lacks a title or image.
func (f *Fetcher) FetchLatest(ctx context.Context) (Item, error) {
	listHTML, err := f.get(ctx, f.listURL)
	if err != nil {
		return Item{}, fmt.Errorf("fetch listing %s: %w", f.listURL, err)
	}
	listDoc, err := html.Parse(bytes.NewReader(listHTML))
	if err != nil {
		return Item{}, fmt.Errorf("parse listing: %w", err)
	}
	href := findArticleLink(listDoc)
	if href == "" {
		return Item{}, errors.New("could not find latest Speak Out link on tag page")
	}
	pageURL, err := resolve(f.listURL, href)
	if err != nil {
		return Item{}, err
	}

	articleHTML, err := f.get(ctx, pageURL)
	if err != nil {
		return Item{}, fmt.Errorf("fetch article %s: %w", pageURL, err)
	}
	doc, err := html.Parse(bytes.NewReader(articleHTML))
	if err != nil {
		return Item{}, fmt.Errorf("parse article: %w", err)
	}
	meta := extractArticleMeta(doc)

	title := NormalizeTitle(meta.title)
	if title == "" {
		return Item{}, errors.New("could not extract title from article page")
	}
	if meta.image == "" {
		return Item{}, errors.New("could not extract og:image from article page")
	}

	item := Item{Title: title, ImageURL: meta.image, PageURL: pageURL}
	f.logger.WithFields(logging.Fields{"title": item.Title, "page_url": item.PageURL}).Debug("Fetched latest Speak Out")
	return item, nil
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	resp, err := f.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		if f.userAgent != "" {
			req.Header.Set("User-Agent", f.userAgent)
		}
		return f.client.Do(req)
	})
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func resolve(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse list url: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse article link %q: %w", href, err)
	}
	return b.ResolveReference(ref).String(), nil
}

// findArticleLink returns the first anchor pointing into the Speak Out section.
func findArticleLink(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "a" {
		href := attr(n, "href")
		if isArticleHref(href) {
			return href
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if href := findArticleLink(c); href != "" {
			return href
		}
	}
	return ""
}

func isArticleHref(href string) bool {
	if strings.HasPrefix(strings.ToLower(href), articlePathPrefix) {
		return len(href) > len(articlePathPrefix)
	}
	u, err := url.Parse(href)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.HasPrefix(strings.ToLower(u.Path), articlePathPrefix) && len(u.Path) > len(articlePathPrefix)
}

type articleMeta struct {
	title string
	image string
}

// extractArticleMeta prefers og:title and falls back to the first h1.
func extractArticleMeta(doc *html.Node) articleMeta {
	var meta articleMeta
	var h1 string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				content := strings.TrimSpace(attr(n, "content"))
				switch attr(n, "property") {
				case "og:title":
					if content != "" && meta.title == "" {
						meta.title = content
					}
				case "og:image":
					if content != "" && meta.image == "" {
						meta.image = stripQuery(content)
					}
				}
			case "h1":
				if h1 == "" {
					h1 = strings.TrimSpace(textContent(n))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if meta.title == "" {
		meta.title = h1
	}
	return meta
}

func stripQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

var dateLayouts = []string{
	"2 January 2006",
	"January 2, 2006",
	"January 2 2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"Monday, January 2, 2006",
	"Monday, 2 January 2006",
	"2006-01-02",
	"02-01-2006",
}

// NormalizeTitle keeps the part after the last "|" and rewrites a date into
// the long en-US form ("Monday, January 1, 2024"). Text that is not a
// recognised date is returned trimmed.
func NormalizeTitle(raw string) string {
	t := strings.TrimSpace(raw)
	if i := strings.LastIndex(t, "|"); i >= 0 {
		t = strings.TrimSpace(t[i+1:])
	}
	if t == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, t); err == nil {
			return d.Format(titleLayout)
		}
	}
	return t
}
