package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

type listing[T any] struct {
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data T      `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// RecentPosts returns up to limit posts from /r/{subreddit}/new, newest first.
func (c *Client) RecentPosts(ctx context.Context, s Session, subreddit string, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = 1
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("raw_json", "1")

	var data listing[Post]
	path := "/r/" + url.PathEscape(subreddit) + "/new?" + q.Encode()
	if err := c.getJSON(ctx, "fetch subreddit posts", path, s, &data); err != nil {
		return nil, err
	}
	posts := make([]Post, 0, len(data.Data.Children))
	for _, child := range data.Data.Children {
		posts = append(posts, child.Data)
	}
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

// NewestPostTitle returns the title of the newest post, or "" for an empty subreddit.
func (c *Client) NewestPostTitle(ctx context.Context, s Session, subreddit string) (string, error) {
	posts, err := c.RecentPosts(ctx, s, subreddit, 1)
	if err != nil {
		return "", err
	}
	if len(posts) == 0 {
		return "", nil
	}
	return posts[0].Title, nil
}

// Comments returns the top-level comments of a post. postID has no t3_ prefix.
func (c *Client) Comments(ctx context.Context, s Session, subreddit, postID string) ([]Comment, error) {
	if postID == "" {
		return nil, errors.New("post id is required")
	}
	// The endpoint returns [post listing, comment listing].
	var data []listing[Comment]
	path := fmt.Sprintf("/r/%s/comments/%s?raw_json=1", url.PathEscape(subreddit), url.PathEscape(postID))
	if err := c.getJSON(ctx, "fetch post comments", path, s, &data); err != nil {
		return nil, err
	}
	if len(data) < 2 {
		return nil, nil
	}
	comments := make([]Comment, 0, len(data[1].Data.Children))
	for _, child := range data[1].Data.Children {
		if child.Kind != "t1" {
			continue
		}
		comments = append(comments, child.Data)
	}
	return comments, nil
}
