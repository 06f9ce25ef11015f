// Package app wires all Sereno subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run blocks until the context ends, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithStatus, WithClock, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/sereno/internal/config"
	"github.com/MrWong99/sereno/internal/health"
	"github.com/MrWong99/sereno/internal/observe"
	"github.com/MrWong99/sereno/internal/resilience"
	"github.com/MrWong99/sereno/internal/session"
	"github.com/MrWong99/sereno/pkg/audio"
	"github.com/MrWong99/sereno/pkg/audio/visual"
	"github.com/MrWong99/sereno/pkg/memory"
	"github.com/MrWong99/sereno/pkg/provider/s2s"
)

// Providers holds one interface value per provider slot. Populated by
// main.go via the config registry.
type Providers struct {
	Live  s2s.Provider
	Audio audio.Platform
}

// App owns all subsystem lifetimes of the live voice client.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	store      memory.ConversationStore
	pg         *lazyStore
	analyser   *visual.Analyser
	canvas     *visual.RasterCanvas
	visualizer *visual.Visualizer
	machine    *session.Machine

	status  session.Status
	clock   session.Clock
	metrics *observe.Metrics
	ticker  func() visual.Ticker

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a conversation store instead of creating one from
// config.
func WithStore(s memory.ConversationStore) Option {
	return func(a *App) { a.store = s }
}

// WithStatus sets the receiver of status text and stickers.
func WithStatus(s session.Status) Option {
	return func(a *App) { a.status = s }
}

// WithClock injects the session clock.
func WithClock(c session.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithMetrics injects the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTicker injects the visualizer frame ticker factory.
func WithTicker(newTicker func() visual.Ticker) Option {
	return func(a *App) { a.ticker = newTicker }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). cfg must already
// have defaults applied.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Live == nil {
		return nil, fmt.Errorf("app: a live provider is required")
	}
	if providers.Audio == nil {
		return nil, fmt.Errorf("app: an audio platform is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Conversation store ────────────────────────────────────────────
	a.initMemory()

	// ── 2. Visualizer ────────────────────────────────────────────────────
	a.initVisualizer()

	// ── 3. Session machine ───────────────────────────────────────────────
	// Repeated connect failures make new sessions fail fast instead of
	// redialling a dead endpoint on every toggle.
	live := resilience.WrapProvider(providers.Live, resilience.BreakerConfig{Name: cfg.Live.Provider})
	a.machine = session.New(session.Config{
		Provider: live,
		Platform: providers.Audio,
		Store:    a.store,
		Session:  SessionConfig(cfg.Live),
		OutputFormat: audio.Format{
			SampleRate: cfg.Audio.OutputSampleRate,
			Channels:   cfg.Audio.OutputChannels,
		},
		CaptureRate:     cfg.Audio.InputSampleRate,
		FrameSize:       cfg.Audio.FrameSize,
		SendQueue:       cfg.Audio.SendQueue,
		StickerDuration: cfg.Session.StickerDuration,
		CloseTimeout:    cfg.Session.CloseTimeout,
		PersistTimeout:  cfg.Session.PersistTimeout,
		Analyser:        a.analyser,
		Visualizer:      a.visualizer,
		Status:          a.status,
		Clock:           a.clock,
		Metrics:         a.metrics,
	})

	// The platform is closed last, after the machine released its streams.
	a.closers = append(a.closers, providers.Audio.Close)

	slog.Info("app initialised",
		"live_provider", cfg.Live.Provider,
		"audio_backend", cfg.Audio.Backend,
		"persistence", a.persistence(),
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initMemory picks the conversation store: an injected one, a lazily
// connected PostgreSQL store, or the in-memory fallback.
func (a *App) initMemory() {
	if a.store != nil {
		return
	}
	if dsn := a.cfg.Memory.PostgresDSN; dsn != "" {
		a.pg = newLazyStore(dsn)
		a.store = a.pg
		a.closers = append(a.closers, a.pg.Close)
		return
	}
	a.store = memory.NewInMemoryStore()
}

// initVisualizer builds the analyser, the raster canvas and the render task.
func (a *App) initVisualizer() {
	vc := a.cfg.Visualizer
	a.analyser = visual.NewAnalyser(visual.WithFFTSize(vc.FFTSize))

	display := visual.Display{Width: vc.Width, Height: vc.Height, PixelRatio: vc.PixelRatio}
	a.canvas = visual.NewRasterCanvas(vc.Width, vc.Height)

	opts := []visual.Option{
		visual.WithFPS(vc.FPS),
		visual.WithDisplay(func() visual.Display { return display }),
		visual.WithExponent(vc.Exponent),
	}
	if a.ticker != nil {
		opts = append(opts, visual.WithTicker(a.ticker))
	}
	a.visualizer = visual.New(a.analyser, a.canvas, opts...)
}

func (a *App) persistence() string {
	if a.pg != nil {
		return "postgres"
	}
	if _, ok := a.store.(*memory.InMemoryStore); ok {
		return "memory"
	}
	return "custom"
}

// SessionConfig converts the live section of the config into the initial
// configuration of a remote session.
func SessionConfig(lc config.LiveConfig) s2s.SessionConfig {
	return s2s.SessionConfig{
		Voice:        lc.Voice,
		Instructions: lc.Instructions,
		Transcribe:   !lc.DisableTranscription,
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Machine returns the session state machine.
func (a *App) Machine() *session.Machine { return a.machine }

// Canvas returns the canvas the visualizer draws on.
func (a *App) Canvas() *visual.RasterCanvas { return a.canvas }

// Store returns the conversation store in use.
func (a *App) Store() memory.ConversationStore { return a.store }

// HealthCheckers returns the readiness checks of the app's dependencies.
func (a *App) HealthCheckers() []health.Checker {
	var checks []health.Checker
	if a.pg != nil {
		checks = append(checks, health.Checker{Name: "database", Check: a.pg.Ping})
	}
	return checks
}

// Toggle starts a session when Idle and stops it otherwise.
func (a *App) Toggle(ctx context.Context) error {
	return a.machine.Toggle(ctx)
}

// ApplyConfig applies a reloaded configuration. Changes to the live section
// take effect from the next session; everything else except the log level
// (handled by main) needs a restart.
func (a *App) ApplyConfig(_, cfg *config.Config, d config.ConfigDiff) {
	if d.LiveChanged {
		a.machine.SetSessionConfig(SessionConfig(cfg.Live))
		slog.Info("live session config updated; applies from the next session")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config change requires a restart to take effect", "fields", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run blocks until ctx is cancelled and returns ctx.Err(). Sessions are
// started and stopped through [App.Toggle] or [App.Machine].
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running", "state", a.machine.State().String())
	<-ctx.Done()
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown ends any active session, waiting for its teardown, then runs the
// closers in order. It respects the context deadline: if ctx expires before
// all closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.machine.Shutdown(ctx); err != nil {
			slog.Warn("session did not reach idle before the deadline", "err", err)
			shutdownErr = err
			return
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
