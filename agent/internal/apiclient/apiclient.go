// Package apiclient is the agent's minimal HTTP client for the server's
// unauthenticated node-credential exchange endpoint. It deliberately knows
// nothing about the rest of the HTTP surface — the agent only ever talks to
// the server to trade its long-lived node bearer for current broker
// coordinates.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BrokerCredentials mirrors the server's exchange response body.
type BrokerCredentials struct {
	Host      string  `json:"host"`
	Port      int     `json:"port"`
	Username  string  `json:"username"`
	Password  string  `json:"password"`
	ExpiresAt *string `json:"expiresAt"`
}

// Client talks to one server base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a Client. timeout bounds every exchange request.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// ExchangeNodeToken trades a node's long-lived bearer for fresh broker
// credentials via POST /nodes/auth/exchange.
func (c *Client) ExchangeNodeToken(ctx context.Context, nodeID, nodeToken string) (*BrokerCredentials, error) {
	body, err := json.Marshal(map[string]string{
		"nodeId":    nodeID,
		"nodeToken": nodeToken,
	})
	if err != nil {
		return nil, fmt.Errorf("apiclient: encoding exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/nodes/auth/exchange", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("apiclient: building exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apiclient: exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("apiclient: exchange failed with status %d: %s", resp.StatusCode, string(msg))
	}

	var out struct {
		MQTT BrokerCredentials `json:"mqtt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("apiclient: decoding exchange response: %w", err)
	}
	return &out.MQTT, nil
}
