package application

import (
	"context"

	"github.com/davarch/ci-tracker/internal/domain"
	"go.uber.org/zap"
)

// Publisher writes a registry report to the status cache after every change.
type Publisher struct {
	log   *zap.Logger
	reg   *Registry
	cache domain.StatusCache
	clock domain.Clock
}

func NewPublisher(l *zap.Logger, reg *Registry, cache domain.StatusCache, clock domain.Clock) *Publisher {
	return &Publisher{log: l, reg: reg, cache: cache, clock: clock}
}

// Run blocks until ctx is done or the registry is torn down.
func (p *Publisher) Run(ctx context.Context) {
	ch, unsubscribe := p.reg.Subscribe()
	defer unsubscribe()

	p.PublishOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			p.PublishOnce(ctx)
		}
	}
}

func (p *Publisher) PublishOnce(ctx context.Context) {
	r := domain.StatusReport{Items: p.reg.Items(), Retrieved: p.clock.Now().Unix()}
	if err := p.cache.Write(ctx, r); err != nil {
		p.log.Warn("status cache write failed", zap.Error(err))
	}
}
