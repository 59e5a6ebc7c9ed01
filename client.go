package planmint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout covers a full finality wait on the server side
const DefaultTimeout = 90 * time.Second

// HTTPClient talks to a planmint server over its JSON API
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient creates a client for the server at baseURL. A nil httpClient
// uses one with DefaultTimeout.
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) MintNFT(ctx context.Context, req MintRequest) (*Result, error) {
	var res Result
	if err := c.do(ctx, http.MethodPost, "/mint-nft", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) BurnNFT(ctx context.Context, req BurnRequest) (*Result, error) {
	var res Result
	if err := c.do(ctx, http.MethodPost, "/burn-nft", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) MintSoulbound(ctx context.Context, req SoulboundRequest) (*Result, error) {
	var res Result
	if err := c.do(ctx, http.MethodPost, "/mint-soulbound", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) LogBurn(ctx context.Context, wallet, mint, txID string) error {
	body := map[string]string{"userPubkey": wallet, "mint": mint, "txid": txID}
	return c.do(ctx, http.MethodPost, "/log-burn", body, nil)
}

func (c *HTTPClient) Reconcile(ctx context.Context, receipt string) (*Result, error) {
	var res Result
	if err := c.do(ctx, http.MethodPost, "/reconcile", map[string]string{"receipt": receipt}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var res Health
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Code == "" {
			return fmt.Errorf("%s %s returned %d: %w", method, path, resp.StatusCode, ErrUnexpectedResponse)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %v: %w", err, ErrUnexpectedResponse)
	}
	return nil
}
