// Package practicum implements the homework status API client.
package practicum

import (
	"context"
	"encoding/json"
	"fmt"
	"hwbot/pkg/logx"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Endpoint  string
	Token     string
	Timeout   time.Duration
	UserAgent string
}

type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
	now  func() time.Time
}

// maxBodySize caps the response read; status payloads are tiny.
const maxBodySize = 4 << 20

func NewClient(cfg Config, log logx.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
		now:  time.Now,
	}
}

// Statuses fetches homework statuses changed since from (epoch seconds).
// from <= 0 means "now".
//
// The decoded body is returned as generic JSON (map[string]any for an
// object) so shape validation stays with the caller.
func (c *Client) Statuses(ctx context.Context, from int64) (any, error) {
	if from <= 0 {
		from = c.now().Unix()
	}
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("from_date", strconv.FormatInt(from, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.cfg.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &APIError{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	c.log.Debug("homework API responded",
		logx.Int("status", resp.StatusCode),
		logx.Int64("from_date", from),
		logx.Duration("took", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, &APIError{Kind: KindHTTPStatus, StatusCode: resp.StatusCode}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &APIError{Kind: KindTransport, StatusCode: resp.StatusCode, Err: err}
	}
	var body any
	if err := json.Unmarshal(b, &body); err != nil {
		return nil, &APIError{Kind: KindDecode, StatusCode: resp.StatusCode, Err: err}
	}

	if m, ok := body.(map[string]any); ok {
		_, hasCode := m["code"]
		_, hasErr := m["error"]
		if hasCode || hasErr {
			return nil, &APIError{
				Kind:       KindAPIReported,
				StatusCode: resp.StatusCode,
				Code:       stringify(m["code"]),
				Message:    stringify(m["error"]),
			}
		}
	}
	return body, nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
