package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/tropicaldog17/audtracker/internal/metrics"
)

// ClientOptions tunes the shared HTTP client used by every source.
type ClientOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// DefaultClientOptions matches the upstream free-tier limits.
var DefaultClientOptions = ClientOptions{Timeout: 10 * time.Second, RequestsPerSecond: 1, Burst: 1}

// apiClient performs rate-limited JSON GETs and records per-source metrics.
type apiClient struct {
	source     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newAPIClient(source string, opts ClientOptions) *apiClient {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultClientOptions.Timeout
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &apiClient{
		source:     source,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    limiter,
	}
}

// getJSON fetches url and decodes the body into a generic map with numbers
// kept as json.Number.
func (c *apiClient) getJSON(ctx context.Context, url string) (map[string]any, error) {
	var raw map[string]any
	if err := c.get(ctx, url, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *apiClient) get(ctx context.Context, url string, out any) (err error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	start := time.Now()
	defer func() {
		metrics.FetchDuration.WithLabelValues(c.source).Observe(time.Since(start).Seconds())
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeError
		}
		metrics.FetchTotal.WithLabelValues(c.source, outcome).Inc()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "audtracker/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", c.source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", c.source, resp.StatusCode, string(body))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", c.source, err)
	}
	return nil
}

// download streams url into w without JSON decoding.
func (c *apiClient) download(ctx context.Context, url string, w io.Writer) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "audtracker/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.FetchTotal.WithLabelValues(c.source, metrics.OutcomeError).Inc()
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.FetchTotal.WithLabelValues(c.source, metrics.OutcomeError).Inc()
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to save %s: %w", url, err)
	}
	metrics.FetchTotal.WithLabelValues(c.source, metrics.OutcomeSuccess).Inc()
	return nil
}
