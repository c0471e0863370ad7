// Package mt5 implements the execution gateway against a REST bridge
// exposing one MetaTrader-style trading account.
package mt5

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sigrelay/internal/config"
	"sigrelay/internal/gateway"
	"sigrelay/internal/model"
	"sigrelay/internal/pkg/convert"
)

// Client wraps the bridge REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	username   string
	password   string
	token      string
}

// NewClient constructs a bridge client from configuration.
func NewClient(cfg config.MT5Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.APIURL)
	if raw == "" {
		return nil, fmt.Errorf("mt5.api_url must not be empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse mt5.api_url: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
		} else {
			transport.TLSClientConfig.InsecureSkipVerify = true // #nosec G402
		}
	}
	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		username:   strings.TrimSpace(cfg.Username),
		password:   strings.TrimSpace(cfg.Password),
		token:      strings.TrimSpace(cfg.APIToken),
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) Name() string { return "mt5" }

func (c *Client) AccountSnapshot(ctx context.Context) (model.AccountSnapshot, error) {
	var raw map[string]any
	if err := c.doRequest(ctx, http.MethodGet, "/account", nil, &raw); err != nil {
		return model.AccountSnapshot{}, err
	}
	snap := model.AccountSnapshot{At: time.Now()}
	if raw == nil {
		return snap, nil
	}
	snap.Balance = convert.ToFloat64(raw["balance"])
	snap.Equity = convert.ToFloat64(raw["equity"])
	snap.Margin = convert.ToFloat64(raw["margin"])
	snap.FreeMargin = convert.ToFloat64(raw["free_margin"])
	if snap.FreeMargin == 0 {
		snap.FreeMargin = convert.ToFloat64(raw["margin_free"])
	}
	if cur, ok := raw["currency"].(string); ok {
		snap.Currency = strings.ToUpper(strings.TrimSpace(cur))
	}
	return snap, nil
}

func (c *Client) Positions(ctx context.Context) ([]model.Position, error) {
	var out []model.Position
	if err := c.fetchList(ctx, "/positions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Quotes(ctx context.Context) ([]model.MarketQuote, error) {
	var out []model.MarketQuote
	if err := c.fetchList(ctx, "/quotes", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TradeHistory(ctx context.Context, lookback time.Duration) ([]model.HistoricalTrade, error) {
	days := int(lookback.Hours() / 24)
	if days < 1 {
		days = 1
	}
	var out []model.HistoricalTrade
	if err := c.fetchList(ctx, fmt.Sprintf("/history?days=%d", days), &out); err != nil {
		return nil, err
	}
	return out, nil
}

type orderPayload struct {
	Symbol    string   `json:"symbol"`
	Direction string   `json:"direction"`
	Volume    float64  `json:"volume"`
	Stop      *float64 `json:"stop,omitempty"`
	Target    *float64 `json:"target,omitempty"`
	Comment   string   `json:"comment,omitempty"`
}

func (c *Client) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (gateway.OrderResult, error) {
	payload := orderPayload{
		Symbol:    req.Symbol,
		Direction: string(req.Direction),
		Volume:    req.Volume,
		Stop:      req.Stop,
		Target:    req.Target,
		Comment:   req.Comment,
	}
	var res gateway.OrderResult
	if err := c.doRequest(ctx, http.MethodPost, "/order", payload, &res); err != nil {
		return gateway.OrderResult{}, err
	}
	return res, nil
}

func (c *Client) ClosePosition(ctx context.Context, id string) (gateway.OrderResult, error) {
	if strings.TrimSpace(id) == "" {
		return gateway.OrderResult{}, fmt.Errorf("position id required")
	}
	var res gateway.OrderResult
	path := "/positions/" + url.PathEscape(id) + "/close"
	if err := c.doRequest(ctx, http.MethodPost, path, nil, &res); err != nil {
		return gateway.OrderResult{}, err
	}
	return res, nil
}

func (c *Client) ModifyPosition(ctx context.Context, id string, stop, target *float64) (gateway.OrderResult, error) {
	if strings.TrimSpace(id) == "" {
		return gateway.OrderResult{}, fmt.Errorf("position id required")
	}
	payload := map[string]any{}
	if stop != nil {
		payload["stop"] = *stop
	}
	if target != nil {
		payload["target"] = *target
	}
	var res gateway.OrderResult
	path := "/positions/" + url.PathEscape(id) + "/modify"
	if err := c.doRequest(ctx, http.MethodPost, path, payload, &res); err != nil {
		return gateway.OrderResult{}, err
	}
	return res, nil
}

// fetchList decodes a JSON list response, tolerating bridges that wrap the
// list in an envelope under data/result/items.
func (c *Client) fetchList(ctx context.Context, path string, out any) error {
	var raw json.RawMessage
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return fmt.Errorf("unexpected bridge response shape: %w", err)
	}
	for _, key := range []string{"data", "result", "items", "positions", "quotes", "trades"} {
		if inner, ok := env[key]; ok && len(bytes.TrimSpace(inner)) > 0 {
			return json.Unmarshal(inner, out)
		}
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload, out any) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("mt5 client not initialized")
	}
	endpoint, err := c.resolveEndpoint(path)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call bridge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(data) == 0 {
			return fmt.Errorf("bridge error: %s", resp.Status)
		}
		return fmt.Errorf("bridge error (%s): %s", resp.Status, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode bridge response: %w", err)
	}
	return nil
}

func (c *Client) resolveEndpoint(path string) (*url.URL, error) {
	if c.baseURL == nil {
		return nil, fmt.Errorf("mt5 api url not set")
	}
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		trimmed = "/"
	}
	query := ""
	if idx := strings.Index(trimmed, "?"); idx >= 0 {
		query = trimmed[idx+1:]
		trimmed = trimmed[:idx]
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	base := *c.baseURL
	base.Path = strings.TrimSuffix(base.Path, "/") + trimmed
	base.RawPath = ""
	base.RawQuery = query
	base.Fragment = ""
	return &base, nil
}
