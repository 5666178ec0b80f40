package reddit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

const defaultMaxImageBytes = 20 << 20

type leaseField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type mediaLeaseResp struct {
	Args struct {
		Action string          `json:"action"`
		Fields json.RawMessage `json:"fields"`
	} `json:"args"`
	Asset struct {
		AssetID string `json:"asset_id"`
	} `json:"asset"`
}

// fields accepts both the list form [{name, value}] and a plain object.
func (r mediaLeaseResp) fields() ([]leaseField, error) {
	if len(r.Args.Fields) == 0 || string(r.Args.Fields) == "null" {
		return nil, nil
	}
	var list []leaseField
	if err := json.Unmarshal(r.Args.Fields, &list); err == nil {
		return list, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(r.Args.Fields, &obj); err != nil {
		return nil, fmt.Errorf("unexpected lease fields: %w", err)
	}
	list = make([]leaseField, 0, len(obj))
	for k, v := range obj {
		list = append(list, leaseField{Name: k, Value: fmt.Sprint(v)})
	}
	return list, nil
}

// UploadImage downloads the image at sourceURL, leases a media slot, posts
// the bytes to the lease's storage action and returns the URL to submit.
func (c *Client) UploadImage(ctx context.Context, s Session, sourceURL string) (string, error) {
	img, mimeType, err := c.downloadImage(ctx, sourceURL)
	if err != nil {
		return "", err
	}
	ext := "jpg"
	if strings.Contains(mimeType, "png") {
		ext = "png"
	}

	form := url.Values{}
	form.Set("filepath", "speakout."+ext)
	form.Set("mimetype", mimeType)
	var lease mediaLeaseResp
	if _, err := c.postForm(ctx, "media lease", "/api/media/asset.json?raw_json=1", s, form, &lease); err != nil {
		return "", err
	}

	action := lease.Args.Action
	if action == "" {
		return "", errors.New("media lease did not include an upload action")
	}
	if strings.HasPrefix(action, "//") {
		action = "https:" + action
	}
	fields, err := lease.fields()
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	key := ""
	for _, f := range fields {
		if f.Name == "key" {
			key = f.Value
		}
		if err := writer.WriteField(f.Name, f.Value); err != nil {
			return "", err
		}
	}
	part, err := writer.CreatePart(filePartHeader("upload."+ext, mimeType))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(img); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("media storage upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", &APIError{Op: "media storage upload", Status: resp.StatusCode, Errors: []string{readSnippet(resp.Body)}}
	}

	if key != "" {
		return strings.TrimSuffix(action, "/") + "/" + key, nil
	}
	if lease.Asset.AssetID != "" {
		return fmt.Sprintf("https://i.redd.it/%s.%s", lease.Asset.AssetID, ext), nil
	}
	return "", errors.New("image upload did not return a usable URL")
}

func (c *Client) downloadImage(ctx context.Context, sourceURL string) ([]byte, string, error) {
	resp, err := c.reads.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		return c.client.Do(req)
	})
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, "", fmt.Errorf("image download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image download failed: %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("image download: %w", err)
	}
	if int64(len(data)) > c.maxImageBytes {
		return nil, "", fmt.Errorf("image download: image exceeds %d bytes", c.maxImageBytes)
	}
	mimeType := "image/jpeg"
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil && strings.HasPrefix(mt, "image/") {
			mimeType = mt
		}
	}
	return data, mimeType, nil
}

func filePartHeader(filename, mimeType string) textproto.MIMEHeader {
	return textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename)},
		"Content-Type":        {mimeType},
	}
}
