package webhook

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"

	"github.com/klubbweb/matchcenter/internal/platform/logging"
	"github.com/klubbweb/matchcenter/internal/platform/resilience"
	"github.com/klubbweb/matchcenter/internal/usecase"
)

var errWebhookTransient = crerr.New("webhook transient failure")

type PublisherConfig struct {
	TargetURL      string
	Secret         string
	Timeout        time.Duration
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Publisher pushes change notifications to a downstream webhook, typically a
// site-cache invalidation endpoint. It implements usecase.ChangeNotifier.
type Publisher struct {
	client         *fasthttp.Client
	targetURL      string
	secret         string
	timeout        time.Duration
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
}

func NewPublisher(cfg PublisherConfig, logger *logging.Logger) *Publisher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Publisher{
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		targetURL:      strings.TrimSpace(cfg.TargetURL),
		secret:         strings.TrimSpace(cfg.Secret),
		timeout:        timeout,
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg),
		circuitEnabled: breakerCfg.Enabled,
	}
}

// NotifyChanged posts a compact change summary. Delivery is best effort;
// failures are reported to the caller but never retried here, the downstream
// polls on its own cadence anyway.
func (p *Publisher) NotifyChanged(ctx context.Context, snap usecase.Snapshot) error {
	if p.targetURL == "" {
		return nil
	}
	if p.circuitEnabled {
		if err := p.breaker.Allow(); err != nil {
			p.logger.WarnContext(ctx, "webhook circuit breaker rejected request", "state", p.breaker.State())
			return fmt.Errorf("webhook is temporarily unavailable: %w", err)
		}
	}

	payload := map[string]any{
		"currentCount": len(snap.Current),
		"oldCount":     len(snap.Old),
		"lastUpdated":  snap.LastUpdated,
	}
	body, err := sonic.Marshal(payload)
	if err != nil {
		return crerr.Wrap(err, "marshal webhook payload")
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	_, _ = buf.Write(body)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(p.targetURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if p.secret != "" {
		req.Header.Set("X-Webhook-Token", p.secret)
	}
	req.SetBody(buf.B)

	deadline := time.Now().Add(p.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	if err := p.client.DoDeadline(req, resp, deadline); err != nil {
		callErr := fmt.Errorf("%w: post webhook url=%s: %v", errWebhookTransient, p.targetURL, err)
		p.recordCircuitResult(callErr)
		return callErr
	}

	status := resp.StatusCode()
	if status/100 != 2 {
		if status == fasthttp.StatusTooManyRequests || status >= fasthttp.StatusInternalServerError {
			callErr := fmt.Errorf("%w: webhook status=%d url=%s", errWebhookTransient, status, p.targetURL)
			p.recordCircuitResult(callErr)
			return callErr
		}
		callErr := fmt.Errorf("webhook status=%d url=%s", status, p.targetURL)
		p.recordCircuitResult(callErr)
		return callErr
	}

	p.recordCircuitResult(nil)
	return nil
}

func (p *Publisher) recordCircuitResult(err error) {
	if !p.circuitEnabled || p.breaker == nil {
		return
	}
	if err != nil && stderrors.Is(err, errWebhookTransient) {
		p.breaker.RecordFailure()
		return
	}
	p.breaker.RecordSuccess()
}
