// Package explorer fetches verified contract ABIs from an Etherscan-compatible API.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// DefaultURL is the Etherscan mainnet API endpoint.
const DefaultURL = "https://api.etherscan.io/api"

var (
	// ErrNotFound means the explorer has no verified ABI for the address.
	ErrNotFound = errors.New("contract abi not found")
	// ErrRateLimited means the explorer rejected the call for exceeding its rate limit.
	ErrRateLimited = errors.New("explorer rate limit exceeded")
)

// Client is an Etherscan-style getabi client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a client. A nil httpClient uses http.DefaultClient.
func NewClient(baseURL, apiKey string, httpClient *http.Client, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// FetchABI returns the raw ABI JSON for a verified contract.
func (c *Client) FetchABI(ctx context.Context, address common.Address) ([]byte, error) {
	query := url.Values{}
	query.Set("module", "contract")
	query.Set("action", "getabi")
	query.Set("address", address.Hex())
	if c.apiKey != "" {
		query.Set("apikey", c.apiKey)
	}

	reqURL := c.baseURL + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get abi %s: %w", address.Hex(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("get abi %s: %w", address.Hex(), ErrRateLimited)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get abi %s: status %d", address.Hex(), resp.StatusCode)
	}

	var payload apiResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if payload.Status != "1" {
		c.logger.Debug("explorer rejected getabi",
			zap.String("address", address.Hex()),
			zap.String("message", payload.Message),
			zap.String("result", payload.Result),
		)
		return nil, fmt.Errorf("get abi %s: %w", address.Hex(), classify(payload))
	}

	return []byte(payload.Result), nil
}

func classify(payload apiResponse) error {
	text := strings.ToLower(payload.Result + " " + payload.Message)
	switch {
	case strings.Contains(text, "rate limit"):
		return ErrRateLimited
	case strings.Contains(text, "not verified"),
		strings.Contains(text, "invalid address"):
		return ErrNotFound
	default:
		return fmt.Errorf("%s: %s", payload.Message, payload.Result)
	}
}
