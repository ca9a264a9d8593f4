package genapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/set-night/pixchat/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Credits returns the remaining credits of a user.
func (c *Client) Credits(ctx context.Context, userID int64) (decimal.Decimal, error) {
	if c.creditsURL == "" {
		return decimal.Zero, ErrCreditsDisabled
	}

	body, err := c.get(ctx, fmt.Sprintf("%s/users/%d/credits", c.creditsURL, userID), true)
	if err != nil {
		return decimal.Zero, err
	}

	credits := gjson.GetBytes(body, "credits")
	if !credits.Exists() {
		return decimal.Zero, fmt.Errorf("credits response missing \"credits\" field")
	}
	balance, err := decimal.NewFromString(credits.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse credits %q: %w", credits.String(), err)
	}
	return balance, nil
}

// Manifest fetches the static content manifest.
func (c *Client) Manifest(ctx context.Context, url string) (*domain.ContentManifest, error) {
	body, err := c.get(ctx, url, false)
	if err != nil {
		return nil, err
	}
	var manifest domain.ContentManifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &manifest, nil
}

// Download fetches a remote image and returns its bytes and content type.
func (c *Client) Download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", readAPIError(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxDownload+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > c.maxDownload {
		return nil, "", ErrImageTooLarge
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) get(ctx context.Context, url string, auth bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if auth {
		c.authorize(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
