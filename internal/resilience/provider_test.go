package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/sereno/internal/resilience"
	"github.com/MrWong99/sereno/pkg/provider/s2s"
	s2smock "github.com/MrWong99/sereno/pkg/provider/s2s/mock"
)

func TestProvider_FailsFastAfterRepeatedConnectErrors(t *testing.T) {
	t.Parallel()

	inner := &s2smock.Provider{ConnectErr: errors.New("dial: connection refused")}
	p := resilience.WrapProvider(inner, resilience.BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})
	ctx := context.Background()

	for range 2 {
		if _, err := p.Connect(ctx, s2s.SessionConfig{}, s2s.Callbacks{}); err == nil {
			t.Fatal("Connect: want error")
		}
	}
	if _, err := p.Connect(ctx, s2s.SessionConfig{}, s2s.Callbacks{}); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("Connect() = %v, want ErrCircuitOpen", err)
	}
	if n := inner.CallCountConnect(); n != 2 {
		t.Errorf("inner Connect calls = %d, want 2", n)
	}
}

func TestProvider_CancelledConnectNotCounted(t *testing.T) {
	t.Parallel()

	inner := &s2smock.Provider{ConnectGate: make(chan struct{})}
	p := resilience.WrapProvider(inner, resilience.BreakerConfig{MaxFailures: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Connect(ctx, s2s.SessionConfig{}, s2s.Callbacks{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Connect() = %v, want context.Canceled", err)
	}
	if got := p.Breaker().State(); got != resilience.StateClosed {
		t.Errorf("breaker state = %v, want closed", got)
	}
}

func TestProvider_PassesThrough(t *testing.T) {
	t.Parallel()

	inner := &s2smock.Provider{ProviderCapabilities: s2s.Capabilities{OutputRate: 24000}}
	p := resilience.WrapProvider(inner, resilience.BreakerConfig{})

	h, err := p.Connect(context.Background(), s2s.SessionConfig{Voice: "Aoede"}, s2s.Callbacks{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if h != inner.Current() {
		t.Error("handle is not the inner session")
	}
	if got := p.Capabilities().OutputRate; got != 24000 {
		t.Errorf("OutputRate = %d, want 24000", got)
	}
	if got := inner.ConnectCalls[0].Cfg.Voice; got != "Aoede" {
		t.Errorf("voice = %q, want Aoede", got)
	}
}
