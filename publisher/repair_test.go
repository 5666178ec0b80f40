package publisher

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto_reddit_speakout_poster/ledger"
	"auto_reddit_speakout_poster/reddit"
)

func todaysPost() reddit.Post {
	return reddit.Post{
		Name:      "t3_abc",
		Title:     "DH Speakout | " + testItem.Title,
		Permalink: "/r/DHSavagery/comments/abc/dh_speakout/",
	}
}

func TestEnsureCommentAddsMissingComment(t *testing.T) {
	platform := newFakePlatform(todaysPost())
	platform.comments["abc"] = []reddit.Comment{{Author: "someone", Body: "lol"}}
	h := newHarness(platform)

	res := h.pub.EnsureComment(context.Background())

	assert.Equal(t, RepairCommented, res.Status)
	assert.Equal(t, []string{"t3_abc"}, platform.commentedOn)
	assert.Equal(t, []string{"**Source:** " + testItem.PageURL}, platform.commentTexts)

	history := h.history()
	require.Len(t, history, 1)
	assert.Equal(t, ledger.OutcomeCommentAdded, history[0].Outcome)
	assert.Equal(t, ledger.SourceManual, history[0].Source)
	assert.Equal(t, "https://www.reddit.com/r/DHSavagery/comments/abc/dh_speakout/", history[0].PostedURL)
}

func TestEnsureCommentAlreadyExists(t *testing.T) {
	platform := newFakePlatform(todaysPost())
	platform.comments["abc"] = []reddit.Comment{{Author: botUsername, Body: "**Source:** x"}}
	h := newHarness(platform)

	res := h.pub.EnsureComment(context.Background())

	assert.Equal(t, RepairAlreadyExists, res.Status)
	assert.Equal(t, 0, platform.count("comment"))
	history := h.history()
	require.Len(t, history, 1)
	assert.Equal(t, ledger.OutcomeCommentSkipped, history[0].Outcome)
}

func TestEnsureCommentTitleMismatch(t *testing.T) {
	platform := newFakePlatform(reddit.Post{Name: "t3_zzz", Title: "Some user post"})
	h := newHarness(platform)

	res := h.pub.EnsureComment(context.Background())

	assert.Equal(t, RepairTitleMismatch, res.Status)
	assert.Equal(t, "Some user post", res.LatestPostTitle)
	assert.Equal(t, testItem.Title, res.SourceTitle)
	assert.Equal(t, 0, platform.count("comment"))
	assert.Equal(t, 0, platform.count("comments"))
	assert.Empty(t, h.history())
}

func TestEnsureCommentFailures(t *testing.T) {
	t.Run("empty subreddit", func(t *testing.T) {
		h := newHarness(newFakePlatform())
		res := h.pub.EnsureComment(context.Background())
		assert.Equal(t, RepairFailed, res.Status)
		assert.Contains(t, res.Error, "no posts")
	})

	t.Run("comment rejected", func(t *testing.T) {
		platform := newFakePlatform(todaysPost())
		platform.commentErr = assert.AnError
		h := newHarness(platform)
		res := h.pub.EnsureComment(context.Background())
		assert.Equal(t, RepairFailed, res.Status)
		assert.Contains(t, res.Error, ErrAnnotation.Error())
		assert.Empty(t, h.history())
	})

	t.Run("auth", func(t *testing.T) {
		h := newHarness(newFakePlatform(todaysPost()))
		h.auth.err = assert.AnError
		res := h.pub.EnsureComment(context.Background())
		assert.Equal(t, RepairFailed, res.Status)
		assert.Equal(t, 0, h.platform.count("list"))
	})
}

func TestEnsureCommentMetrics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	h := newHarness(newFakePlatform(todaysPost()), func(d *Deps, _ *Options) {
		d.Metrics = metrics
	})

	h.pub.EnsureComment(context.Background())
	h.pub.EnsureComment(context.Background())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.repairs.WithLabelValues("commented")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.repairs.WithLabelValues("already_exists")))
}

func TestEnsureCommentIgnoresCallerCancellation(t *testing.T) {
	mem := ledger.NewMemoryLedger(ledger.DefaultMaxHistory)
	platform := newFakePlatform(todaysPost())
	h := newHarness(platform, func(d *Deps, _ *Options) {
		d.Ledger = contextLedger{mem}
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.pub.EnsureComment(ctx)

	assert.Equal(t, RepairCommented, res.Status)
	history, err := mem.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ledger.OutcomeCommentAdded, history[0].Outcome)
	assert.Equal(t, testItem.PageURL, history[0].SourceURL)
}
