package reddit

import (
	"context"
	"errors"
	"net/url"
)

// SubmitRequest describes a new post. FlairID is optional.
type SubmitRequest struct {
	Subreddit string
	Title     string
	URL       string
	FlairID   string
}

type submitResp struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			ID                string `json:"id"`
			Name              string `json:"name"`
			URL               string `json:"url"`
			WebsocketURL      string `json:"websocket_url"`
			UserSubmittedPage string `json:"user_submitted_page"`
		} `json:"data"`
	} `json:"json"`
}

// SubmitImagePost creates a native image post from an uploaded media URL.
// Reddit usually leaves Name empty here and announces it over a websocket.
func (c *Client) SubmitImagePost(ctx context.Context, s Session, r SubmitRequest) (Submission, error) {
	form := submitForm(r, "image")
	form.Set("sendreplies", "true")
	return c.submit(ctx, "submit image post", s, form)
}

// SubmitLinkPost creates a link post pointing at r.URL.
func (c *Client) SubmitLinkPost(ctx context.Context, s Session, r SubmitRequest) (Submission, error) {
	return c.submit(ctx, "submit link post", s, submitForm(r, "link"))
}

func submitForm(r SubmitRequest, kind string) url.Values {
	form := url.Values{}
	form.Set("sr", r.Subreddit)
	form.Set("title", r.Title)
	form.Set("kind", kind)
	form.Set("url", r.URL)
	form.Set("resubmit", "true")
	form.Set("api_type", "json")
	if r.FlairID != "" {
		form.Set("flair_id", r.FlairID)
	}
	return form
}

func (c *Client) submit(ctx context.Context, op string, s Session, form url.Values) (Submission, error) {
	if form.Get("sr") == "" || form.Get("title") == "" || form.Get("url") == "" {
		return Submission{}, errors.New("subreddit, title and url are required")
	}
	var data submitResp
	status, err := c.postForm(ctx, op, "/api/submit?raw_json=1", s, form, &data)
	if err != nil {
		return Submission{}, err
	}
	if len(data.JSON.Errors) > 0 {
		return Submission{}, &APIError{Op: op, Status: status, Errors: apiErrors(data.JSON.Errors)}
	}
	sub := Submission{Name: data.JSON.Data.Name, URL: data.JSON.Data.URL}
	if sub.Name == "" && data.JSON.Data.ID != "" {
		sub.Name = "t3_" + data.JSON.Data.ID
	}
	c.logger.WithField("op", op).WithField("name", sub.Name).Debug("Reddit accepted submission")
	return sub, nil
}

type commentResp struct {
	JSON struct {
		Errors [][]any `json:"errors"`
	} `json:"json"`
}

// AddComment replies to a thing (post fullname, e.g. t3_abc) with markdown text.
func (c *Client) AddComment(ctx context.Context, s Session, thingName, text string) error {
	if thingName == "" {
		return errors.New("thing name is required")
	}
	form := url.Values{}
	form.Set("thing_id", thingName)
	form.Set("text", text)
	form.Set("api_type", "json")
	var data commentResp
	status, err := c.postForm(ctx, "add comment", "/api/comment", s, form, &data)
	if err != nil {
		return err
	}
	if len(data.JSON.Errors) > 0 {
		return &APIError{Op: "add comment", Status: status, Errors: apiErrors(data.JSON.Errors)}
	}
	return nil
}
