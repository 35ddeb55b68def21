package snow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const tableAPIPath = "/api/now/table/"

// Client talks to the ServiceNow table API. One call to Query is one
// upstream attempt; retry policy lives in Retryer and admission control
// in the limiter, both composed by the query service.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: defaultTransport(cfg),
		}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("snowclient"),
	}, nil
}

// tableResponse is the wire shape of a table API read.
type tableResponse struct {
	Result []Record `json:"result"`
}

// tableErrorResponse is the structured error body ServiceNow returns
// on 4xx responses.
type tableErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	} `json:"error"`
}

// Query reads one page from a table. The attempt carries its own
// timeout; a timed-out attempt surfaces as a transient error so the
// retry layer can reissue it.
func (c *Client) Query(parentCtx context.Context, q TableQuery) (*TableResult, error) {
	start := time.Now()

	if q.Table == "" {
		return nil, &BusinessError{Status: 0, Body: "table is required"}
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.AttemptTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.queryURL(q), nil)
	if err != nil {
		return nil, fmt.Errorf("snow: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("snow: %s query: %w", q.Table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.statusError(resp, q.Table)
	}

	var decoded tableResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		// A truncated body usually means the gateway dropped the
		// connection mid-response; classify accordingly.
		return nil, fmt.Errorf("snow: decode %s response: %w", q.Table, err)
	}

	out := &TableResult{Records: decoded.Result}
	if header := resp.Header.Get("X-Total-Count"); header != "" {
		if total, err := strconv.Atoi(header); err == nil && total >= 0 {
			out.Total = total
			out.HasTotal = true
		}
	}

	c.logger.Debug("table query completed",
		zap.String("table", q.Table),
		zap.Int("offset", q.Offset),
		zap.Int("limit", q.Limit),
		zap.Int("records", len(out.Records)),
		zap.Int("total", out.Total),
		zap.Bool("has_total", out.HasTotal),
		zap.Duration("duration", time.Since(start)),
	)

	return out, nil
}

// queryURL builds the table API URL with sysparm parameters.
func (c *Client) queryURL(q TableQuery) string {
	params := url.Values{}
	if q.Filter != "" {
		params.Set("sysparm_query", q.Filter)
	}
	if len(q.Fields) > 0 {
		params.Set("sysparm_fields", strings.Join(q.Fields, ","))
	}
	params.Set("sysparm_limit", strconv.Itoa(q.Limit))
	params.Set("sysparm_offset", strconv.Itoa(q.Offset))
	params.Set("sysparm_display_value", "true")
	params.Set("sysparm_exclude_reference_link", "true")

	return c.cfg.BaseURL + tableAPIPath + url.PathEscape(q.Table) + "?" + params.Encode()
}

// statusError maps a non-2xx response onto the error taxonomy.
func (c *Client) statusError(resp *http.Response, table string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := string(body)
	var decoded tableErrorResponse
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error.Message != "" {
		message = decoded.Error.Message
		if decoded.Error.Detail != "" {
			message += ": " + decoded.Error.Detail
		}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.Error("authentication rejected",
			zap.String("table", table),
			zap.Int("status", resp.StatusCode),
		)
		return &AuthError{Status: resp.StatusCode, Body: truncate(message, 200)}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		c.logger.Warn("upstream unavailable",
			zap.String("table", table),
			zap.Int("status", resp.StatusCode),
		)
		return &upstreamStatusError{Status: resp.StatusCode}
	default:
		c.logger.Error("upstream rejected query",
			zap.String("table", table),
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(message, 200)),
		)
		return &BusinessError{Status: resp.StatusCode, Body: truncate(message, 200)}
	}
}

// Close releases resources held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// truncate limits string length for logging.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
