package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/sereno/pkg/provider/s2s"
)

var _ s2s.Provider = (*Provider)(nil)

// Provider guards Connect of an inner s2s.Provider with a [Breaker].
// Sessions that were opened are not affected by the breaker.
type Provider struct {
	inner   s2s.Provider
	breaker *Breaker
}

// WrapProvider returns p guarded by a breaker built from cfg.
func WrapProvider(p s2s.Provider, cfg BreakerConfig) *Provider {
	if cfg.Name == "" {
		cfg.Name = "live-connect"
	}
	return &Provider{inner: p, breaker: NewBreaker(cfg)}
}

// Connect implements [s2s.Provider]. A connect aborted through ctx does not
// count against the breaker.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig, cb s2s.Callbacks) (s2s.SessionHandle, error) {
	var h s2s.SessionHandle
	err := p.breaker.Execute(func() error {
		var err error
		h, err = p.inner.Connect(ctx, cfg, cb)
		return err
	}, func(err error) bool {
		return ctx.Err() != nil || errors.Is(err, context.Canceled)
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Capabilities implements [s2s.Provider].
func (p *Provider) Capabilities() s2s.Capabilities {
	return p.inner.Capabilities()
}

// Breaker returns the breaker guarding Connect.
func (p *Provider) Breaker() *Breaker { return p.breaker }
