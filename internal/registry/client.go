// Package registry is the HTTP client for the external asset registry.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xtrntr/landmarket/internal/models"
)

// RejectionError is a business-level refusal reported by the registry, such as
// the seller no longer owning the asset. Any other error from this package means
// the call did not complete and the remote outcome is unknown.
type RejectionError struct {
	StatusCode int
	Reason     string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("registry rejected request (%d): %s", e.StatusCode, e.Reason)
}

// Client calls the registry. It never retries: a transfer is not idempotent.
type Client struct {
	http *http.Client
}

// NewClient creates a client whose calls give up after timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

type transferRequest struct {
	From models.Identity `json:"from"`
	To   models.Identity `json:"to"`
}

type errorBody struct {
	Error string `json:"error"`
}

// TransferOwnership asks the registry at address to move assetID from one owner to another.
func (c *Client) TransferOwnership(ctx context.Context, address string, assetID uint64, from, to models.Identity) (*models.Asset, error) {
	body, err := json.Marshal(transferRequest{From: from, To: to})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, assetURL(address, assetID)+"/transfer", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doAsset(req)
}

// GetAsset reads the registry's current record for assetID.
func (c *Client) GetAsset(ctx context.Context, address string, assetID uint64) (*models.Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL(address, assetID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build asset request: %w", err)
	}
	return c.doAsset(req)
}

func (c *Client) doAsset(req *http.Request) (*models.Asset, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "landmarket-registry-client/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read registry response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var asset models.Asset
		if err := json.Unmarshal(data, &asset); err != nil {
			return nil, fmt.Errorf("failed to decode registry asset: %w", err)
		}
		return &asset, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &RejectionError{StatusCode: resp.StatusCode, Reason: reason(data, resp.Status)}
	default:
		return nil, fmt.Errorf("registry returned %d: %s", resp.StatusCode, reason(data, resp.Status))
	}
}

func assetURL(address string, assetID uint64) string {
	return strings.TrimRight(address, "/") + "/assets/" + strconv.FormatUint(assetID, 10)
}

func reason(data []byte, fallback string) string {
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	if s := strings.TrimSpace(string(data)); s != "" {
		return s
	}
	return fallback
}
