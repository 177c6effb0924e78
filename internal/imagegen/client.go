package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"studio/internal/infra"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.5-flash-image-preview"

	apiKeyHeader = "x-goog-api-key"
)

// Options controls how the Gemini client is configured.
type Options struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
	// Observe, when set, is called once per completed HTTP exchange with the
	// upstream status (zero on transport failure) and elapsed time.
	Observe func(status int, elapsed time.Duration)
}

// Client posts generation requests to the Gemini generateContent endpoint.
// It never retries; every failure is returned to the caller once.
type Client struct {
	endpoint   string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
	observe    func(int, time.Duration)
}

type wireInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type wirePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *wireInlineData `json:"inline_data,omitempty"`
}

type wireContent struct {
	Parts []wirePart `json:"parts"`
}

type wireRequest struct {
	Contents []wireContent `json:"contents"`
}

type wireErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

// NewClient constructs a client with sane defaults. Callers may provide a nil
// HTTP client; the default one adds no timeout of its own.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}

	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}

	return &Client{
		endpoint:   fmt.Sprintf("%s/models/%s:generateContent", baseURL, url.PathEscape(model)),
		model:      model,
		httpClient: httpClient,
		logger:     logger,
		observe:    opts.Observe,
	}
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// Endpoint returns the fixed generation URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Generate performs exactly one POST and returns the raw 2xx body. Non-2xx
// statuses and transport failures come back as *Error.
func (c *Client) Generate(ctx context.Context, apiKey string, req GenerationRequest) ([]byte, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingCredential
	}

	body, err := json.Marshal(toWire(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(apiKeyHeader, apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.record(0, start)
		e := transportError(err)
		if e.Kind == KindCanceled {
			c.logger.Debug().Str("model", c.model).Msg("imagegen: request canceled")
		} else {
			c.logger.Error().Err(err).Str("model", c.model).Msg("imagegen: request failed")
		}
		return nil, e
	}
	defer resp.Body.Close()
	c.record(resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		evt := c.logger.Warn().Int("status", resp.StatusCode).Str("model", c.model)
		var apiErr wireErrorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			evt = evt.Str("provider_status", apiErr.Error.Status).Str("provider_message", apiErr.Error.Message)
		} else if len(data) > 0 {
			evt = evt.Str("body", strings.TrimSpace(string(data)))
		}
		evt.Msg("imagegen: provider returned error status")
		return nil, statusError(resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error().Err(err).Msg("imagegen: read response body")
		return nil, transportError(err)
	}
	c.logger.Debug().Int("bytes", len(data)).Str("model", c.model).Msg("imagegen: provider response received")
	return data, nil
}

func (c *Client) record(status int, start time.Time) {
	if c.observe != nil {
		c.observe(status, time.Since(start))
	}
}

func toWire(req GenerationRequest) wireRequest {
	parts := make([]wirePart, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.Image != nil {
			parts = append(parts, wirePart{InlineData: &wireInlineData{MimeType: p.Image.MIMEType, Data: p.Image.Data}})
			continue
		}
		parts = append(parts, wirePart{Text: p.Text})
	}
	return wireRequest{Contents: []wireContent{{Parts: parts}}}
}
