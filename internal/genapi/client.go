package genapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Options struct {
	BaseURL    string
	APIKey     string
	CreditsURL string
	// Timeout bounds non-streaming requests. Streams are bounded by ctx only.
	Timeout          time.Duration
	MaxDownloadBytes int64
	Transport        http.RoundTripper
}

type Client struct {
	apiKey       string
	baseURL      string
	creditsURL   string
	maxDownload  int64
	httpClient   *http.Client
	streamClient *http.Client
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	if opts.MaxDownloadBytes <= 0 {
		opts.MaxDownloadBytes = 20 << 20
	}
	return &Client{
		apiKey:       opts.APIKey,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		creditsURL:   strings.TrimRight(opts.CreditsURL, "/"),
		maxDownload:  opts.MaxDownloadBytes,
		httpClient:   &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		streamClient: &http.Client{Transport: opts.Transport},
	}
}

// Result is a complete, non-streamed generation.
type Result struct {
	Text             string
	Images           []ImagePayload
	CreditsRemaining *decimal.Decimal
}

func (c *Client) Generate(ctx context.Context, genReq GenerationRequest) (*Result, error) {
	genReq.Stream = false
	resp, err := c.post(ctx, c.httpClient, genReq, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	events, err := ParseEvent(body)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	result := &Result{}
	var text strings.Builder
	for _, ev := range events {
		switch ev.Type {
		case EventText:
			text.WriteString(ev.Delta)
		case EventImage:
			result.Images = append(result.Images, ev.Image)
		case EventCredits:
			credits := ev.Credits
			result.CreditsRemaining = &credits
		case EventError:
			return nil, &APIError{StatusCode: resp.StatusCode, Message: ev.Message}
		}
	}
	result.Text = text.String()
	return result, nil
}

// Stream posts a streaming generation and calls fn for every event in
// arrival order. It returns when the server signals completion, the body
// ends, ctx is cancelled, or fn returns an error. Error events become
// *APIError and are not passed to fn.
func (c *Client) Stream(ctx context.Context, genReq GenerationRequest, fn func(Event) error) error {
	genReq.Stream = true
	resp, err := c.post(ctx, c.streamClient, genReq, "text/event-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := NewSSEReader(resp.Body)
	for {
		payload, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("read stream: %w", err)
		}

		events, err := ParseEvent(payload)
		if err != nil {
			return fmt.Errorf("parse stream event: %w", err)
		}
		for _, ev := range events {
			switch ev.Type {
			case EventError:
				return &APIError{Message: ev.Message}
			case EventDone:
				return nil
			}
			if err := fn(ev); err != nil {
				return err
			}
		}
	}
}

func (c *Client) post(ctx context.Context, hc *http.Client, genReq GenerationRequest, accept string) (*http.Response, error) {
	body, contentType, err := genReq.encode()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", accept)
	c.authorize(req)

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return resp, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
