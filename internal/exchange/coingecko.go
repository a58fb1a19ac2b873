package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/tomx220052/cryptoprice/internal/errors"
	"github.com/tomx220052/cryptoprice/internal/metrics"
	"github.com/tomx220052/cryptoprice/internal/models"
	"github.com/tomx220052/cryptoprice/internal/settlement"
)

const (
	// CoinGecko public API base URL
	coinGeckoBaseURL = "https://api.coingecko.com/api/v3"

	// API endpoints
	marketChartRangeEndpoint = "/coins/%s/market_chart/range"
	historyEndpoint          = "/coins/%s/history"
	pingEndpoint             = "/ping"

	// Request configuration
	requestTimeout     = 30 * time.Second
	healthCheckTimeout = 5 * time.Second
	userAgent          = "cryptoprice/1.0"
	quoteCurrency      = "usd"

	// Public API budget
	defaultRequestsPerMinute = 30
	defaultBurst             = 1

	// historyDateLayout is the DD-MM-YYYY format of the history endpoint
	historyDateLayout = "02-01-2006"

	component = "exchange"
)

// Sleeper waits for d unless ctx is done or cancel reports cancellation.
type Sleeper func(ctx context.Context, d time.Duration, cancel Canceller) error

// CoinGeckoConfig configures a CoinGeckoAdapter.
type CoinGeckoConfig struct {
	BaseURL           string        `json:"base_url"`
	APIKey            string        `json:"-"`
	Timeout           time.Duration `json:"timeout"`
	RequestsPerMinute int           `json:"requests_per_minute"`
	Burst             int           `json:"burst"`
	Retry             RetryPolicy   `json:"retry"`
}

// DefaultCoinGeckoConfig returns the public API defaults.
func DefaultCoinGeckoConfig() CoinGeckoConfig {
	return CoinGeckoConfig{
		BaseURL:           coinGeckoBaseURL,
		Timeout:           requestTimeout,
		RequestsPerMinute: defaultRequestsPerMinute,
		Burst:             defaultBurst,
		Retry:             DefaultRetryPolicy(),
	}
}

// CoinGeckoAdapter implements ExchangeAdapter for the CoinGecko REST API.
type CoinGeckoAdapter struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
	apiKey      string
	policy      RetryPolicy
	limits      RateLimit
	logger      *slog.Logger
	telemetry   *metrics.Telemetry
	sleep       Sleeper
}

// NewCoinGeckoAdapter creates an adapter with the default configuration.
func NewCoinGeckoAdapter() *CoinGeckoAdapter {
	adapter, _ := NewCoinGeckoAdapterWithConfig(DefaultCoinGeckoConfig(), slog.Default())
	return adapter
}

// NewCoinGeckoAdapterWithLogger creates a default adapter with a custom logger.
func NewCoinGeckoAdapterWithLogger(logger *slog.Logger) *CoinGeckoAdapter {
	adapter, _ := NewCoinGeckoAdapterWithConfig(DefaultCoinGeckoConfig(), logger)
	return adapter
}

// NewCoinGeckoAdapterWithConfig creates an adapter from cfg. Zero fields fall
// back to the defaults.
func NewCoinGeckoAdapterWithConfig(cfg CoinGeckoConfig, logger *slog.Logger) (*CoinGeckoAdapter, error) {
	defaults := DefaultCoinGeckoConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = defaults.Retry
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &CoinGeckoAdapter{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		rateLimiter: rate.NewLimiter(limit, cfg.Burst),
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		policy:      cfg.Retry,
		limits:      RateLimit{RequestsPerMinute: cfg.RequestsPerMinute, BurstSize: cfg.Burst},
		logger:      logger.With("component", component),
		sleep:       Sleep,
	}, nil
}

// SetTelemetry attaches metrics recording to the adapter.
func (c *CoinGeckoAdapter) SetTelemetry(t *metrics.Telemetry) {
	c.telemetry = t
}

// SetSleeper replaces the wait used between retries.
func (c *CoinGeckoAdapter) SetSleeper(s Sleeper) {
	if s != nil {
		c.sleep = s
	}
}

// Policy returns the adapter's retry policy.
func (c *CoinGeckoAdapter) Policy() RetryPolicy {
	return c.policy
}

// FetchRange implements the PriceFetcher interface using /coins/{id}/market_chart/range.
func (c *CoinGeckoAdapter) FetchRange(ctx context.Context, coinID string, window settlement.QueryWindow, opts FetchOptions) ([]models.PriceSample, error) {
	const operation = "FetchRange"

	if strings.TrimSpace(coinID) == "" {
		return nil, errors.Newf(errors.ErrorTypeBadRequest, component, operation, "coin id cannot be empty")
	}
	if window.To <= window.From {
		return nil, errors.Newf(errors.ErrorTypeRange, component, operation, "window %s is empty", window).WithCoin(coinID)
	}

	params := url.Values{}
	params.Set("vs_currency", quoteCurrency)
	params.Set("from", strconv.FormatInt(window.From, 10))
	params.Set("to", strconv.FormatInt(window.To, 10))
	if c.apiKey != "" {
		params.Set("x_cg_pro_api_key", c.apiKey)
		params.Set("interval", "daily")
	}

	c.logger.Debug("fetching price range from CoinGecko",
		"coin", coinID,
		"window", window.String())

	var samples []models.PriceSample
	decode := func(body []byte) *errors.ClassifiedError {
		var response marketChartRangeResponse
		if err := json.Unmarshal(body, &response); err != nil {
			return errors.New(errors.ErrorTypeTransport, component, operation,
				fmt.Errorf("failed to parse range response: %w", err))
		}
		if response.Prices == nil {
			return errors.Newf(errors.ErrorTypeNoData, component, operation, "response has no prices field")
		}

		samples = make([]models.PriceSample, 0, len(*response.Prices))
		for i, point := range *response.Prices {
			sample, err := convertPricePoint(point)
			if err != nil {
				c.logger.Warn("skipping malformed price point",
					"coin", coinID,
					"index", i,
					"error", err)
				continue
			}
			samples = append(samples, sample)
		}
		return nil
	}

	if err := c.doWithRetry(ctx, operation, "market_chart_range", coinID,
		c.endpointURL(marketChartRangeEndpoint, coinID, params), opts, decode); err != nil {
		return nil, err
	}

	if len(samples) == 0 {
		c.logger.Warn("provider returned no price samples", "coin", coinID)
	}

	c.logger.Debug("fetched price samples",
		"coin", coinID,
		"count", len(samples))

	return samples, nil
}

// FetchHistory implements the HistoryProvider interface using /coins/{id}/history.
func (c *CoinGeckoAdapter) FetchHistory(ctx context.Context, coinID string, date models.Date, opts FetchOptions) (decimal.Decimal, error) {
	const operation = "FetchHistory"

	if strings.TrimSpace(coinID) == "" {
		return decimal.Zero, errors.Newf(errors.ErrorTypeBadRequest, component, operation, "coin id cannot be empty")
	}

	params := url.Values{}
	params.Set("date", date.Time().Format(historyDateLayout))
	params.Set("localization", "false")
	if c.apiKey != "" {
		params.Set("x_cg_pro_api_key", c.apiKey)
	}

	var price decimal.Decimal
	decode := func(body []byte) *errors.ClassifiedError {
		var response historyResponse
		if err := json.Unmarshal(body, &response); err != nil {
			return errors.New(errors.ErrorTypeTransport, component, operation,
				fmt.Errorf("failed to parse history response: %w", err))
		}
		if response.MarketData == nil {
			return errors.Newf(errors.ErrorTypeNoData, component, operation, "no market data for %s", date)
		}
		raw, ok := response.MarketData.CurrentPrice[quoteCurrency]
		if !ok || raw.String() == "" {
			return errors.Newf(errors.ErrorTypeNoData, component, operation, "no %s price for %s", quoteCurrency, date)
		}

		p, err := decimal.NewFromString(raw.String())
		if err != nil {
			return errors.New(errors.ErrorTypeNoData, component, operation,
				fmt.Errorf("invalid price %q: %w", raw.String(), err))
		}
		price = p
		return nil
	}

	if err := c.doWithRetry(ctx, operation, "history", coinID,
		c.endpointURL(historyEndpoint, coinID, params), opts, decode); err != nil {
		return decimal.Zero, err
	}
	return price, nil
}

// GetLimits implements the RateLimitInfo interface.
func (c *CoinGeckoAdapter) GetLimits() RateLimit {
	return c.limits
}

// WaitForLimit implements the RateLimitInfo interface.
func (c *CoinGeckoAdapter) WaitForLimit(ctx context.Context) error {
	return c.rateLimiter.Wait(ctx)
}

// HealthCheck implements the HealthChecker interface.
func (c *CoinGeckoAdapter) HealthCheck(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(healthCtx, http.MethodGet, c.baseURL+pingEndpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.telemetry.RecordRequest(ctx, "ping", 0)
		return errors.New(errors.ClassifyTransport(err), component, "HealthCheck",
			fmt.Errorf("health check request failed: %w", err))
	}
	defer resp.Body.Close()
	c.telemetry.RecordRequest(ctx, "ping", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		errType, _ := errors.ClassifyHTTPStatus(resp.StatusCode)
		return errors.Newf(errType, component, "HealthCheck",
			"health check failed: status %d", resp.StatusCode).WithStatus(resp.StatusCode)
	}

	c.logger.Debug("health check passed")
	return nil
}

// Private helper methods

func (c *CoinGeckoAdapter) endpointURL(pattern, coinID string, params url.Values) string {
	return c.baseURL + fmt.Sprintf(pattern, url.PathEscape(coinID)) + "?" + params.Encode()
}

func (c *CoinGeckoAdapter) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
}

// doWithRetry issues GET requestURL and hands the body to decode until both
// succeed, a failure is terminal or the attempt budget is spent. Cancellation
// is checked before every attempt and before every wait.
func (c *CoinGeckoAdapter) doWithRetry(ctx context.Context, operation, endpoint, coinID, requestURL string, opts FetchOptions, decode func([]byte) *errors.ClassifiedError) error {
	transportBackoff := errors.NewBackOff(c.policy.Strategy, c.policy.TransportDelay, c.policy.MaxTransportDelay, c.policy.Jitter)

	var lastErr *errors.ClassifiedError
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if err := c.checkCancelled(ctx, operation, coinID, opts); err != nil {
			return err
		}

		if err := c.WaitForLimit(ctx); err != nil {
			return errors.Cancelled(component, operation).WithCoin(coinID)
		}

		body, ce := c.doRequest(ctx, operation, endpoint, coinID, requestURL)
		if ce == nil {
			ce = decode(body)
			if ce == nil {
				return nil
			}
			ce.WithCoin(coinID)
		}
		ce.Attempts = attempt

		if !ce.Retryable {
			if ce.Type != errors.ErrorTypeCancelled {
				c.logger.Error("request failed",
					"coin", coinID,
					"operation", operation,
					"attempt", attempt,
					"error_type", ce.Type,
					"status", ce.StatusCode,
					"error", ce.Err)
			}
			return ce
		}

		lastErr = ce
		if attempt == c.policy.MaxAttempts {
			break
		}

		if err := c.checkCancelled(ctx, operation, coinID, opts); err != nil {
			return err
		}

		wait := c.retryDelay(ce, transportBackoff)

		c.logger.Warn("request failed, retrying",
			"coin", coinID,
			"operation", operation,
			"attempt", attempt,
			"max_attempts", c.policy.MaxAttempts,
			"error_type", ce.Type,
			"status", ce.StatusCode,
			"wait", wait,
			"error", ce.Err)

		c.telemetry.RecordRetry(ctx, endpoint, string(ce.Type), attempt)

		if err := c.sleep(ctx, wait, opts.Cancel); err != nil {
			return errors.Cancelled(component, operation).WithCoin(coinID)
		}
	}

	c.logger.Error("request failed after all retries",
		"coin", coinID,
		"operation", operation,
		"attempts", c.policy.MaxAttempts,
		"error_type", lastErr.Type)

	return lastErr.Terminal(c.policy.MaxAttempts)
}

// doRequest performs one GET and classifies any failure.
func (c *CoinGeckoAdapter) doRequest(ctx context.Context, operation, endpoint, coinID, requestURL string) ([]byte, *errors.ClassifiedError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		ce := errors.New(errors.ErrorTypeBadRequest, component, operation,
			fmt.Errorf("failed to create request: %w", err)).WithCoin(coinID)
		return nil, ce
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.telemetry.RecordRequest(ctx, endpoint, 0)
		if ctx.Err() != nil {
			return nil, errors.Cancelled(component, operation).WithCoin(coinID)
		}
		return nil, errors.New(errors.ClassifyTransport(err), component, operation,
			fmt.Errorf("request failed: %w", sanitizeURLError(err))).WithCoin(coinID)
	}
	defer resp.Body.Close()

	c.telemetry.RecordRequest(ctx, endpoint, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Cancelled(component, operation).WithCoin(coinID)
		}
		return nil, errors.New(errors.ErrorTypeTransport, component, operation,
			fmt.Errorf("failed to read response body: %w", err)).WithCoin(coinID).WithStatus(resp.StatusCode)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	errType, retryable := errors.ClassifyHTTPStatus(resp.StatusCode)
	ce := errors.New(errType, component, operation,
		fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiErrorMessage(body))).WithCoin(coinID).WithStatus(resp.StatusCode)
	ce.Retryable = retryable

	if resp.StatusCode == http.StatusTooManyRequests {
		ce.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}

	return nil, ce
}

// retryDelay picks the wait before the next attempt: the rate limit cooldown
// (or a longer Retry-After) after a 429, the transport strategy otherwise.
func (c *CoinGeckoAdapter) retryDelay(ce *errors.ClassifiedError, transportBackoff backoff.BackOff) time.Duration {
	if ce.Type == errors.ErrorTypeRateLimit {
		if ce.RetryAfter > c.policy.RateLimitCooldown {
			return ce.RetryAfter
		}
		return c.policy.RateLimitCooldown
	}

	next := transportBackoff.NextBackOff()
	if next == backoff.Stop {
		return c.policy.TransportDelay
	}
	return next
}

func (c *CoinGeckoAdapter) checkCancelled(ctx context.Context, operation, coinID string, opts FetchOptions) error {
	if opts.cancelled() || ctx.Err() != nil {
		c.logger.Debug("fetch cancelled", "coin", coinID, "operation", operation)
		return errors.Cancelled(component, operation).WithCoin(coinID)
	}
	return nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}

// apiErrorMessage extracts the provider's error text, falling back to a
// truncated raw body.
func apiErrorMessage(body []byte) string {
	var apiErr coinGeckoError
	if err := json.Unmarshal(body, &apiErr); err == nil {
		if apiErr.Error != "" {
			return apiErr.Error
		}
		if apiErr.Status.ErrorMessage != "" {
			return apiErr.Status.ErrorMessage
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	if msg == "" {
		msg = "empty response"
	}
	return msg
}

// sanitizeURLError drops the request URL, which may carry the API key.
func sanitizeURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

func convertPricePoint(point []json.Number) (models.PriceSample, error) {
	if len(point) < 2 {
		return models.PriceSample{}, fmt.Errorf("expected [timestamp, price], got %d values", len(point))
	}
	if point[0] == "" || point[1] == "" {
		return models.PriceSample{}, fmt.Errorf("null value in price point")
	}

	ts, err := point[0].Int64()
	if err != nil {
		f, ferr := point[0].Float64()
		if ferr != nil {
			return models.PriceSample{}, fmt.Errorf("invalid timestamp %q: %w", point[0], err)
		}
		ts = int64(f)
	}

	price, err := decimal.NewFromString(point[1].String())
	if err != nil {
		return models.PriceSample{}, fmt.Errorf("invalid price %q: %w", point[1], err)
	}

	return models.NewPriceSample(ts, price), nil
}

// Sleep waits for d, polling cancel every CancelPollInterval. It returns
// ctx.Err() when ctx is done and errors.ErrCancelled when cancel fires.
func Sleep(ctx context.Context, d time.Duration, cancel Canceller) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	var poll <-chan time.Time
	if cancel != nil {
		ticker := time.NewTicker(CancelPollInterval)
		defer ticker.Stop()
		poll = ticker.C
	}

	for {
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-poll:
			if cancel.Cancelled() {
				return errors.ErrCancelled
			}
		}
	}
}

// CancelPollInterval is how often Sleep polls a Canceller.
const CancelPollInterval = 100 * time.Millisecond
