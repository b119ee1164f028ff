package usecase

import (
	"context"
	"math/rand"
	"time"
)

// FallbackPoller re-polls the HTTP endpoint while the stream is down so
// consumers keep getting data. The cadence is jittered so a fleet of
// replicas restarting together does not line up against the upstream.
type FallbackPoller struct {
	svc   *FeedService
	every time.Duration
}

func NewFallbackPoller(svc *FeedService, every time.Duration) *FallbackPoller {
	if every <= 0 {
		every = DefaultFeedServiceConfig().FallbackEvery
	}
	return &FallbackPoller{svc: svc, every: every}
}

func (p *FallbackPoller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.interval()):
			if p.svc.streamUp() {
				continue
			}
			if _, err := p.svc.Refresh(ctx, true); err != nil {
				p.svc.logger.WarnContext(ctx, "fallback poll failed", "error", err)
			}
		}
	}
}

// interval jitters the cadence by up to ±10%.
func (p *FallbackPoller) interval() time.Duration {
	spread := int64(p.every) / 5
	if spread <= 0 {
		return p.every
	}
	return p.every - p.every/10 + time.Duration(rand.Int63n(spread))
}
