// Package session implements the live voice session state machine.
//
// A [Machine] owns one live session at a time and drives it through
//
//	Idle → Connecting → Listening → Closing → Idle
//
// with Errored as a transient state on fatal errors. It acquires the
// microphone and the output audio context, opens the remote session, routes
// inbound audio through decode and playback scheduling, accumulates
// transcripts per turn, shows stickers requested by the model, and tears
// everything down exactly once when the session ends.
//
// Every event (Start, Stop, remote callbacks, timers) is handled by a serial
// executor, so handlers never run concurrently and the per-session state
// needs no further locking. Device callbacks and the visualizer render task
// run on their own goroutines and only touch their own component's state.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/sereno/internal/observe"
	"github.com/MrWong99/sereno/pkg/audio"
	"github.com/MrWong99/sereno/pkg/audio/playback"
	"github.com/MrWong99/sereno/pkg/audio/visual"
	"github.com/MrWong99/sereno/pkg/memory"
	"github.com/MrWong99/sereno/pkg/provider/s2s"
)

// ErrSessionActive is returned by [Machine.Start] when the machine is not
// Idle.
var ErrSessionActive = errors.New("session: a session is already active")

// Default timings.
const (
	defaultStickerDuration = 4 * time.Second
	defaultCloseTimeout    = 5 * time.Second
	defaultPersistTimeout  = 10 * time.Second
)

// StickerTool is the name of the function the model calls to show a sticker.
const StickerTool = "display_sticker"

// Status receives user-visible session feedback. Implementations must not
// block; they are called from the machine's executor.
type Status interface {
	// SetStatus replaces the status text ("Connecting…", live transcript,
	// error message).
	SetStatus(text string)

	// ShowSticker displays the named sticker until HideSticker or the next
	// ShowSticker.
	ShowSticker(name string)

	// HideSticker removes the sticker, if any.
	HideSticker()
}

// Config wires the machine to its collaborators. Provider and Platform are
// required; everything else is optional.
type Config struct {
	// Provider opens remote live sessions.
	Provider s2s.Provider

	// Platform supplies the microphone and the speaker.
	Platform audio.Platform

	// Store receives the conversation log at teardown. Nil disables
	// persistence.
	Store memory.ConversationStore

	// Session is the initial remote session configuration. The sticker tool
	// is always offered in addition to Session.Tools.
	Session s2s.SessionConfig

	// OutputFormat is the format of the playback context. Inbound audio in
	// another format is converted. Defaults to 24 kHz mono.
	OutputFormat audio.Format

	// CaptureRate, FrameSize and SendQueue configure the capture pipeline.
	// Zero values select the capture package defaults.
	CaptureRate int
	FrameSize   int
	SendQueue   int

	// StickerDuration is how long a sticker stays visible. Default 4s.
	StickerDuration time.Duration

	// CloseTimeout bounds the wait for the remote close confirmation after
	// Stop. Default 5s.
	CloseTimeout time.Duration

	// PersistTimeout bounds the conversation save at teardown. Default 10s.
	PersistTimeout time.Duration

	// Analyser, if set, is attached as a tap to every output context.
	Analyser *visual.Analyser

	// Visualizer, if set, is started when the session opens and stopped at
	// teardown.
	Visualizer *visual.Visualizer

	// Status receives status text and sticker updates.
	Status Status

	// Clock defaults to the wall clock.
	Clock Clock

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Machine is the live session state machine. All methods are safe for
// concurrent use.
type Machine struct {
	provider  s2s.Provider
	platform  audio.Platform
	store     memory.ConversationStore
	outFormat audio.Format

	captureRate int
	frameSize   int
	sendQueue   int

	stickerDuration time.Duration
	closeTimeout    time.Duration
	persistTimeout  time.Duration

	analyser   *visual.Analyser
	visualizer *visual.Visualizer
	status     Status
	clock      Clock
	metrics    *observe.Metrics

	exec executor

	// Owned by the executor.
	sessionCfg s2s.SessionConfig
	scheduler  *playback.Scheduler
	cur        *run

	stateMu sync.Mutex
	state   State
	idle    chan struct{} // closed while the state is Idle
	lastID  string
}

// New creates a Machine in the Idle state.
func New(cfg Config) *Machine {
	m := &Machine{
		provider:        cfg.Provider,
		platform:        cfg.Platform,
		store:           cfg.Store,
		outFormat:       cfg.OutputFormat,
		captureRate:     cfg.CaptureRate,
		frameSize:       cfg.FrameSize,
		sendQueue:       cfg.SendQueue,
		stickerDuration: cfg.StickerDuration,
		closeTimeout:    cfg.CloseTimeout,
		persistTimeout:  cfg.PersistTimeout,
		analyser:        cfg.Analyser,
		visualizer:      cfg.Visualizer,
		status:          cfg.Status,
		clock:           cfg.Clock,
		metrics:         cfg.Metrics,
		sessionCfg:      cfg.Session,
		scheduler:       playback.NewScheduler(nil),
		idle:            make(chan struct{}),
	}
	close(m.idle)

	if m.outFormat.SampleRate <= 0 {
		m.outFormat.SampleRate = 24000
	}
	if m.outFormat.Channels <= 0 {
		m.outFormat.Channels = 1
	}
	if m.stickerDuration <= 0 {
		m.stickerDuration = defaultStickerDuration
	}
	if m.closeTimeout <= 0 {
		m.closeTimeout = defaultCloseTimeout
	}
	if m.persistTimeout <= 0 {
		m.persistTimeout = defaultPersistTimeout
	}
	if m.status == nil {
		m.status = nopStatus{}
	}
	if m.clock == nil {
		m.clock = realClock{}
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// Start begins a new session. It returns [ErrSessionActive] unless the
// machine is Idle. Start returns as soon as the session is Connecting;
// progress is reported through the [Status] and [Machine.State].
//
// ctx supplies values (trace, logger attributes) to the session; its
// cancellation does not end the session.
func (m *Machine) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	m.exec.post(func() { errc <- m.handleStart(ctx) })
	return <-errc
}

// Stop requests the end of the current session. In Connecting and Listening
// the machine moves to Closing and asks the remote end to close; teardown
// happens when the close is confirmed or the close timeout expires. In every
// other state Stop is a no-op.
//
// Start, Stop and Toggle return once their request has been handled, so they
// wait behind events queued earlier, including a teardown that is saving the
// conversation (bounded by the persist timeout).
func (m *Machine) Stop() {
	done := make(chan struct{})
	m.exec.post(func() {
		m.handleStop()
		close(done)
	})
	<-done
}

// Toggle starts a session when Idle and stops it otherwise.
func (m *Machine) Toggle(ctx context.Context) error {
	errc := make(chan error, 1)
	m.exec.post(func() {
		if m.State() == Idle {
			errc <- m.handleStart(ctx)
			return
		}
		m.handleStop()
		errc <- nil
	})
	return <-errc
}

// SetSessionConfig replaces the remote session configuration. It applies
// from the next Start; a running session is not affected.
func (m *Machine) SetSessionConfig(cfg s2s.SessionConfig) {
	m.exec.post(func() { m.sessionCfg = cfg })
}

// State returns the current state.
func (m *Machine) State() State {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.state
}

// SessionID returns the id of the current or most recent session, or "".
func (m *Machine) SessionID() string {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.lastID
}

// Idle returns a channel that is closed while the machine is Idle. Callers
// must fetch a fresh channel after every state change they wait for.
func (m *Machine) Idle() <-chan struct{} {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.idle
}

// Shutdown stops any active session and waits until the machine is Idle or
// ctx is done.
func (m *Machine) Shutdown(ctx context.Context) error {
	m.Stop()
	select {
	case <-m.Idle():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// setState records s. Only called from the executor.
func (m *Machine) setState(ctx context.Context, s State) {
	m.stateMu.Lock()
	prev := m.state
	m.state = s
	switch {
	case s == Idle && prev != Idle:
		close(m.idle)
	case s != Idle && prev == Idle:
		m.idle = make(chan struct{})
	}
	m.stateMu.Unlock()

	if prev != s {
		observe.Logger(ctx).Info("session state changed", "from", prev.String(), "to", s.String())
	}
}

type nopStatus struct{}

func (nopStatus) SetStatus(string)   {}
func (nopStatus) ShowSticker(string) {}
func (nopStatus) HideSticker()       {}
