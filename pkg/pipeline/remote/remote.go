// Package remote implements pipeline.Adapter against a voxloop server.
//
// Each clip is uploaded as the "audio" field of a multipart/form-data POST to
// {baseURL}/api/transcribe. The server runs transcription, chat completion and
// speech synthesis and answers with JSON:
//
//	{"transcription": "...", "response": "...", "audioUrl": "/responses/<id>.wav"}
//
// Relative audio URLs are resolved against the base URL so callers can fetch
// them directly.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/voxloop/pkg/pipeline"
)

const (
	transcribePath = "/api/transcribe"
	formField      = "audio"
	defaultTimeout = 60 * time.Second

	// maxResponseBytes bounds the JSON body read from the server.
	maxResponseBytes = 1 << 20
)

// Compile-time assertion that Client implements pipeline.Adapter.
var _ pipeline.Adapter = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client. It has
// no effect when combined with WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.timeout = d
	}
}

// Client uploads clips to a remote server.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	timeout    time.Duration
}

// New returns a Client for the server at baseURL, e.g. "http://localhost:3131".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote: base url %q must be http or https", baseURL)
	}
	c := &Client{base: u, timeout: defaultTimeout}
	for _, o := range opts {
		o(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// errorBody is the JSON shape of a failed request.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Process uploads clip and returns the server's result.
func (c *Client) Process(ctx context.Context, clip pipeline.Clip) (*pipeline.Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, formField, clip.FilenameOrDefault()))
	ct := clip.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	fw, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("remote: create form part: %w", err)
	}
	if _, err := fw.Write(clip.Data); err != nil {
		return nil, fmt.Errorf("remote: write audio data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("remote: close multipart writer: %w", err)
	}

	endpoint := c.base.String() + transcribePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("remote: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("remote: read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			if eb.Details != "" {
				return nil, fmt.Errorf("remote: server returned HTTP %d: %s: %s", resp.StatusCode, eb.Error, eb.Details)
			}
			return nil, fmt.Errorf("remote: server returned HTTP %d: %s", resp.StatusCode, eb.Error)
		}
		return nil, fmt.Errorf("remote: server returned HTTP %d", resp.StatusCode)
	}

	var res pipeline.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("remote: parse JSON response: %w", err)
	}
	if res.AudioURL != "" {
		ref, err := url.Parse(res.AudioURL)
		if err != nil {
			return nil, fmt.Errorf("remote: parse audio url: %w", err)
		}
		res.AudioURL = c.base.ResolveReference(ref).String()
	}
	return &res, nil
}
