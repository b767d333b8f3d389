package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/trafficlens/metricsync/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config contains reporting API client configuration
type Config struct {
	BaseURL        string
	APIToken       string
	Timeout        time.Duration
	RatePerSecond  float64
	RateBurst      int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns default client configuration
func DefaultConfig() *Config {
	return &Config{
		Timeout:        30 * time.Second,
		RatePerSecond:  5,
		RateBurst:      5,
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// Client talks to the analytics reporting API. Every request waits on a
// token-bucket rate limiter first; retryable failures (quota, network,
// 5xx) are retried with exponential backoff and jitter, auth and decode
// failures are not.
type Client struct {
	cfg        *Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a new reporting API client
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		logger:     logger,
	}
}

// reportResponse is the wire shape of a report.
type reportResponse struct {
	Totals map[string]float64 `json:"totals"`
}

// propertyResponse is the wire shape of a catalog entry.
type propertyResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Priority       int       `json:"priority"`
	Tags           []string  `json:"tags"`
	Active         bool      `json:"active"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// FetchReport fetches one report for a property and date range.
func (c *Client) FetchReport(ctx context.Context, propertyID string, r domain.DateRange) (*domain.Report, error) {
	endpoint := fmt.Sprintf("%s/v1/properties/%s/report", strings.TrimSuffix(c.cfg.BaseURL, "/"), url.PathEscape(propertyID))
	query := url.Values{}
	query.Set("start", r.Start)
	query.Set("end", r.End)

	var resp reportResponse
	if err := c.getJSON(ctx, endpoint+"?"+query.Encode(), &resp); err != nil {
		return nil, err
	}

	return &domain.Report{
		PropertyID: propertyID,
		Range:      r,
		Totals:     resp.Totals,
		FetchedAt:  time.Now(),
	}, nil
}

// ListProperties lists the analytics properties visible to the API token.
func (c *Client) ListProperties(ctx context.Context) ([]domain.Property, error) {
	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/v1/properties"

	var resp struct {
		Properties []propertyResponse `json:"properties"`
	}
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.Property, 0, len(resp.Properties))
	for _, p := range resp.Properties {
		out = append(out, domain.Property{
			ID:             p.ID,
			Name:           p.Name,
			Priority:       domain.Priority(p.Priority),
			Tags:           p.Tags,
			Active:         p.Active,
			LastAccessedAt: p.LastAccessedAt,
		})
	}
	return out, nil
}

// getJSON performs a rate-limited GET with retry and decodes the body.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		err := c.doGet(ctx, endpoint, out)
		if err == nil {
			return nil
		}
		if !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		c.logger.Debug("retrying upstream request",
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff

	var policy backoff.BackOff = b
	if c.cfg.MaxRetries > 0 {
		policy = backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries))
	}
	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.NewUpstreamError(domain.CategoryNetwork, 0, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewUpstreamError(domain.CategoryNetwork, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return classifyStatus(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewUpstreamError(domain.CategoryDecode, resp.StatusCode, err)
	}
	return nil
}

func classifyStatus(status int, body string) error {
	err := fmt.Errorf("unexpected response: %s", body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewUpstreamError(domain.CategoryAuth, status, err)
	case status == http.StatusTooManyRequests:
		return domain.NewUpstreamError(domain.CategoryQuota, status, err)
	case status >= 500:
		return domain.NewUpstreamError(domain.CategoryServer, status, err)
	default:
		return domain.NewUpstreamError(domain.CategoryRequest, status, err)
	}
}
