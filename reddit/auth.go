package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type accessTokenResp struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// Authenticate exchanges the account password for a short-lived bearer token.
func (c *Client) Authenticate(ctx context.Context) (Session, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Session{}, err
	}
	req.SetBasicAuth(c.cfg.AppID, c.cfg.AppSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return Session{}, err
	}
	defer resp.Body.Close()

	var data accessTokenResp
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Session{}, fmt.Errorf("failed to decode access_token response: %d %w", resp.StatusCode, err)
	}
	if data.AccessToken == "" {
		return Session{}, fmt.Errorf("failed to get access_token: %d %s", resp.StatusCode, data.Error)
	}

	s := Session{AccessToken: data.AccessToken}
	if data.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(data.ExpiresIn) * time.Second)
	}
	c.logger.WithField("expires_in", data.ExpiresIn).Debug("Authenticated with Reddit")
	return s, nil
}
