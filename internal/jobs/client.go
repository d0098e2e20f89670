// Package jobs is the HTTP client for the remote processing backend.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spherical/slide-deck/internal/domain"
	"github.com/spherical/slide-deck/internal/observability"
)

// ErrNotFound is returned when the backend has nothing for a job.
var ErrNotFound = errors.New("not found")

var _ domain.Submitter = (*Client)(nil)

// SubmitResponse is the reply to an upload.
type SubmitResponse struct {
	ProcessID string `json:"process_id"`
}

// DeckResponse carries a synthesized deck.
type DeckResponse struct {
	JobID  string               `json:"job_id"`
	Slides []domain.SlideRecord `json:"slides"`
}

// AppendImageRequest adds a manual image to a page.
type AppendImageRequest struct {
	Src  string       `json:"src"`
	Rect *domain.Rect `json:"rect,omitempty"`
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Client talks to the processing backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      *RetryConfig
	logger     *observability.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetryConfig replaces the retry policy.
func WithRetryConfig(cfg *RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, logger *observability.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = observability.Nop()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		retry:      DefaultRetryConfig(),
		logger:     logger.WithComponent("jobs_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit uploads payload as a multipart file and returns the job id.
func (c *Client) Submit(ctx context.Context, filename string, payload []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", domain.IOError("failed to build upload", err)
	}
	if _, err := part.Write(payload); err != nil {
		return "", domain.IOError("failed to build upload", err)
	}
	if err := mw.Close(); err != nil {
		return "", domain.IOError("failed to build upload", err)
	}

	var out SubmitResponse
	err = c.do(ctx, http.MethodPost, "/process", mw.FormDataContentType(), body.Bytes(), &out)
	if err != nil {
		return "", err
	}
	if out.ProcessID == "" {
		return "", domain.ProtocolError("upload response has no process_id", nil)
	}

	c.logger.Info().Str("job_id", out.ProcessID).Str("file", filename).Int("bytes", len(payload)).Msg("document submitted")
	return out.ProcessID, nil
}

// FetchDocument returns the processed document of a job.
func (c *Client) FetchDocument(ctx context.Context, jobID string) (*domain.Document, error) {
	var doc domain.Document
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID)+"/document", "", nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// FetchDeck returns the synthesized deck of a job, manual images included.
func (c *Client) FetchDeck(ctx context.Context, jobID string) ([]domain.SlideRecord, error) {
	var out DeckResponse
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID)+"/deck", "", nil, &out); err != nil {
		return nil, err
	}
	return out.Slides, nil
}

// AppendImage adds a manual image to a page of a job.
func (c *Client) AppendImage(ctx context.Context, jobID string, page int, src string, rect *domain.Rect) (domain.ImageRegion, error) {
	data, err := json.Marshal(AppendImageRequest{Src: src, Rect: rect})
	if err != nil {
		return domain.ImageRegion{}, domain.ValidationError("failed to encode image", err)
	}

	var out domain.ImageRegion
	path := "/jobs/" + url.PathEscape(jobID) + "/pages/" + strconv.Itoa(page) + "/images"
	if err := c.do(ctx, http.MethodPost, path, "application/json", data, &out); err != nil {
		return domain.ImageRegion{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	resp, err := c.send(ctx, func() (*http.Request, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, path, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.ProtocolError(fmt.Sprintf("invalid response from %s %s", method, path), err)
	}
	return nil
}

func statusError(method, path string, resp *http.Response) error {
	var e ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	var cause error = fmt.Errorf("HTTP %d", resp.StatusCode)
	if resp.StatusCode == http.StatusNotFound {
		cause = ErrNotFound
	}
	return domain.JobError(fmt.Sprintf("%s %s: %s", method, path, msg), cause)
}
