package matchfeed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"

	"github.com/klubbweb/matchcenter/internal/platform/logging"
	"github.com/klubbweb/matchcenter/internal/platform/resilience"
	"github.com/klubbweb/matchcenter/internal/usecase"
)

const (
	defaultPollPath    = "/matcher/data"
	defaultHTTPTimeout = 15 * time.Second
	maxResponseBytes   = 4 << 20
)

var errFeedTransient = crerr.New("match feed transient failure")

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	PollPath       string
	Timeout        time.Duration
	MaxRetries     int
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client polls the upstream HTTP endpoint for full match payloads. It
// implements usecase.SnapshotFetcher.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	pollPath       string
	maxRetries     int
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	flight         resilience.SingleFlight

	lastGoodMu sync.Mutex
	lastGood   *usecase.RawSnapshot
	lastGoodAt time.Time
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = defaultHTTPTimeout
	}

	pollPath := strings.TrimSpace(cfg.PollPath)
	if pollPath == "" {
		pollPath = defaultPollPath
	}

	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:     httpClient,
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		pollPath:       pollPath,
		maxRetries:     cfg.MaxRetries,
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg),
		circuitEnabled: breakerCfg.Enabled,
	}
}

// FetchSnapshot pulls the full match payload. Concurrent callers share one
// request. When every retry fails but an earlier fetch succeeded, the last
// good payload is returned instead of the error so consumers degrade to
// slightly stale data rather than an outage.
func (c *Client) FetchSnapshot(ctx context.Context) (usecase.RawSnapshot, error) {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "match feed circuit breaker rejected request", "state", c.breaker.State())
			if snap, ok := c.lastGoodSnapshot(); ok {
				return snap, nil
			}
			return usecase.RawSnapshot{}, fmt.Errorf("%w: match feed is temporarily unavailable", usecase.ErrDependencyUnavailable)
		}
	}

	out, err, _ := c.flight.Do(c.pollPath, func() (any, error) {
		raw, reqErr := c.executeRequest(ctx, c.baseURL+c.pollPath)
		if c.circuitEnabled {
			if reqErr != nil && crerr.Is(reqErr, errFeedTransient) {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
		}
		return raw, reqErr
	})
	if err != nil {
		if snap, ok := c.lastGoodSnapshot(); ok {
			c.logger.WarnContext(ctx, "serving last good payload", "error", err, "fetchedAt", c.lastGoodAt)
			return snap, nil
		}
		return usecase.RawSnapshot{}, err
	}

	raw, ok := out.([]byte)
	if !ok {
		return usecase.RawSnapshot{}, fmt.Errorf("unexpected response payload type %T", out)
	}

	snap, err := decodeSnapshotPayload(raw)
	if err != nil {
		return usecase.RawSnapshot{}, err
	}

	c.lastGoodMu.Lock()
	copied := snap
	c.lastGood = &copied
	c.lastGoodAt = time.Now()
	c.lastGoodMu.Unlock()
	return snap, nil
}

func (c *Client) lastGoodSnapshot() (usecase.RawSnapshot, bool) {
	c.lastGoodMu.Lock()
	defer c.lastGoodMu.Unlock()
	if c.lastGood == nil {
		return usecase.RawSnapshot{}, false
	}
	return *c.lastGood, true
}

func (c *Client) executeRequest(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: send request: %v", errFeedTransient, err)
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			_ = resp.Body.Close()
			if readErr != nil {
				lastErr = fmt.Errorf("%w: read response body: %v", errFeedTransient, readErr)
			} else if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return raw, nil
			} else if isRetryableStatus(resp.StatusCode) {
				lastErr = fmt.Errorf("%w: feed status=%d", errFeedTransient, resp.StatusCode)
			} else {
				return nil, fmt.Errorf("feed status=%d", resp.StatusCode)
			}
		}

		if attempt == c.maxRetries {
			break
		}
		backoff := time.Duration(attempt+1) * time.Second
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("feed request failed")
	}
	c.logger.WarnContext(ctx, "match feed request failed", "url", fullURL, "error", lastErr)
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// decodeSnapshotPayload accepts both upstream generations: the bucketed
// {"current": [...], "old": [...]} shape and the older flat list of matches,
// which gets partitioned by normalized status.
func decodeSnapshotPayload(raw []byte) (usecase.RawSnapshot, error) {
	var bucketed struct {
		Current     []map[string]any `json:"current"`
		Old         []map[string]any `json:"old"`
		LastUpdated string           `json:"lastUpdated"`
	}
	if err := sonic.Unmarshal(raw, &bucketed); err == nil && (bucketed.Current != nil || bucketed.Old != nil) {
		return usecase.RawSnapshot{
			Current:     bucketed.Current,
			Old:         bucketed.Old,
			LastUpdated: parsePayloadTime(bucketed.LastUpdated),
		}, nil
	}

	var flat []map[string]any
	if err := sonic.Unmarshal(raw, &flat); err == nil {
		return partitionFlatMatches(flat), nil
	}

	var wrapped struct {
		Matches     []map[string]any `json:"matches"`
		LastUpdated string           `json:"lastUpdated"`
	}
	if err := sonic.Unmarshal(raw, &wrapped); err == nil && wrapped.Matches != nil {
		snap := partitionFlatMatches(wrapped.Matches)
		snap.LastUpdated = parsePayloadTime(wrapped.LastUpdated)
		return snap, nil
	}

	return usecase.RawSnapshot{}, fmt.Errorf("decode feed payload: unrecognized shape")
}

func partitionFlatMatches(records []map[string]any) usecase.RawSnapshot {
	var snap usecase.RawSnapshot
	for _, record := range records {
		if m, ok := usecase.Normalize(record); ok && m.Finished() {
			snap.Old = append(snap.Old, record)
			continue
		}
		snap.Current = append(snap.Current, record)
	}
	return snap
}

func parsePayloadTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
