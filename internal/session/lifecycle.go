package session

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/sereno/internal/observe"
	"github.com/MrWong99/sereno/pkg/audio"
	"github.com/MrWong99/sereno/pkg/audio/capture"
	"github.com/MrWong99/sereno/pkg/audio/playback"
	"github.com/MrWong99/sereno/pkg/memory"
	"github.com/MrWong99/sereno/pkg/provider/s2s"
)

// Error kinds reported in logs, metrics and the status text.
const (
	kindPermission = "permission_denied"
	kindCapture    = "capture"
	kindOutput     = "output"
	kindTransport  = "transport"
)

var errNotConnected = errors.New("session: remote session not connected")

// run is the state of one session, from Start to teardown. Apart from the
// handle link, its fields are only touched by the executor.
type run struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time
	inbound audio.Format
	mime    string

	capture   *capture.Pipeline
	output    *playback.Context
	converter *audio.FormatConverter

	// The capture sender reads the handle from its own goroutine.
	handleMu  sync.Mutex
	handle    s2s.SessionHandle
	closeOnce sync.Once

	opened       bool
	remoteClosed bool
	done         bool

	user  strings.Builder
	model strings.Builder
	log   []memory.TranscriptEntry

	stickerTimer Timer
	stickerSeq   uint64
	closeTimer   Timer
}

func (r *run) setHandle(h s2s.SessionHandle) {
	r.handleMu.Lock()
	defer r.handleMu.Unlock()
	r.handle = h
}

func (r *run) sessionHandle() s2s.SessionHandle {
	r.handleMu.Lock()
	defer r.handleMu.Unlock()
	return r.handle
}

// send is the capture sink.
func (r *run) send(ctx context.Context, p audio.EncodedPayload) error {
	h := r.sessionHandle()
	if h == nil {
		return errNotConnected
	}
	return h.SendAudio(ctx, p, r.mime)
}

// closeHandle asks the remote end to close, at most once per run. The
// confirmation arrives through OnClose.
func (r *run) closeHandle() {
	h := r.sessionHandle()
	if h == nil {
		return
	}
	r.closeOnce.Do(func() {
		go func() {
			if err := h.Close(); err != nil {
				observe.Logger(r.ctx).Debug("session: close remote session", "err", err)
			}
		}()
	})
}

// ─── Start ───────────────────────────────────────────────────────────────────

func (m *Machine) handleStart(ctx context.Context) error {
	if m.State() != Idle {
		return ErrSessionActive
	}

	id := uuid.NewString()
	sctx, cancel := context.WithCancel(observe.WithSessionID(context.WithoutCancel(ctx), id))
	r := &run{
		id:      id,
		ctx:     sctx,
		cancel:  cancel,
		started: m.clock.Now(),
		inbound: audio.Format{SampleRate: m.inboundRate(), Channels: 1},
	}
	r.capture = capture.New(m.platform.Input(),
		capture.WithSampleRate(m.captureRate),
		capture.WithFrameSize(m.frameSize),
		capture.WithQueueSize(m.sendQueue),
		capture.WithFrameHook(func(_ audio.AudioFrame, err error) {
			status := "sent"
			if err != nil {
				status = "failed"
			}
			m.metrics.RecordCaptureFrame(sctx, status)
		}),
		capture.WithDropHook(func(audio.AudioFrame) {
			m.metrics.RecordCaptureFrame(sctx, "dropped")
		}),
	)
	r.mime = audio.MIMEType(r.capture.Format().SampleRate)

	m.cur = r
	m.stateMu.Lock()
	m.lastID = id
	m.stateMu.Unlock()

	m.setState(sctx, Connecting)
	m.status.SetStatus("Connecting…")
	m.metrics.ActiveSessions.Add(sctx, 1)

	go m.connect(r, m.remoteConfig(r))
	return nil
}

// remoteConfig returns the session configuration for r with the sticker tool
// added.
func (m *Machine) remoteConfig(r *run) s2s.SessionConfig {
	cfg := m.sessionCfg
	cfg.InputRate = r.capture.Format().SampleRate
	cfg.Tools = slices.Clone(cfg.Tools)
	if !slices.ContainsFunc(cfg.Tools, func(t s2s.ToolDefinition) bool { return t.Name == StickerTool }) {
		cfg.Tools = append(cfg.Tools, stickerToolDef)
	}
	return cfg
}

func (m *Machine) inboundRate() int {
	if rate := m.provider.Capabilities().OutputRate; rate > 0 {
		return rate
	}
	return 24000
}

// connect acquires the devices and opens the remote session. It runs on its
// own goroutine and reports every step back through the executor.
func (m *Machine) connect(r *run, cfg s2s.SessionConfig) {
	if err := r.capture.Acquire(r.ctx); err != nil {
		kind := kindCapture
		if errors.Is(err, audio.ErrPermissionDenied) {
			kind = kindPermission
		}
		m.exec.post(func() { m.handleConnectFailed(r, kind, err) })
		return
	}

	out, err := playback.Open(r.ctx, m.platform.Output(), m.outFormat)
	if err != nil {
		m.exec.post(func() { m.handleConnectFailed(r, kindOutput, err) })
		return
	}
	// Posted before Connect so it is handled before any remote event.
	m.exec.post(func() { m.handleDevicesReady(r, out) })

	h, err := m.provider.Connect(r.ctx, cfg, m.callbacks(r))
	if err != nil {
		m.exec.post(func() { m.handleConnectFailed(r, kindTransport, err) })
		return
	}
	r.setHandle(h)
	m.exec.post(func() { m.handleConnected(r) })
}

func (m *Machine) callbacks(r *run) s2s.Callbacks {
	return s2s.Callbacks{
		OnOpen: func() {
			m.exec.post(func() { m.handleOpen(r) })
		},
		OnMessage: func(msg *s2s.ServerMessage) {
			m.exec.post(func() { m.handleMessage(r, msg) })
		},
		OnError: func(err error) {
			m.exec.post(func() { m.handleError(r, err) })
		},
		OnClose: func(ev s2s.CloseEvent) {
			m.exec.post(func() { m.handleClose(r, ev) })
		},
	}
}

func (m *Machine) handleDevicesReady(r *run, out *playback.Context) {
	if r.done {
		// Teardown was forced while the devices were opening.
		_ = out.Close()
		_ = r.capture.Stop()
		return
	}
	if m.analyser != nil {
		out.AddTap(m.analyser)
	}
	r.output = out
	r.converter = &audio.FormatConverter{Target: out.Format()}
	m.scheduler.SetOutput(out)
}

func (m *Machine) handleConnected(r *run) {
	if r.done {
		_ = r.capture.Stop()
		r.closeHandle()
		return
	}
	if m.State() == Closing {
		// Stop arrived before the handle existed.
		r.closeHandle()
	}
}

func (m *Machine) handleConnectFailed(r *run, kind string, err error) {
	if r.done {
		_ = r.capture.Stop()
		return
	}
	if m.State() == Closing {
		observe.Logger(r.ctx).Info("session: connect aborted by stop", "err", err)
		m.finish(r, "Session ended")
		return
	}
	m.fail(r, kind, err)
}

// ─── Open ────────────────────────────────────────────────────────────────────

func (m *Machine) handleOpen(r *run) {
	if r.done || m.State() != Connecting {
		return
	}
	r.opened = true
	m.metrics.ConnectDuration.Record(r.ctx, m.clock.Now().Sub(r.started).Seconds())

	if err := r.capture.Start(r.ctx, r.send); err != nil {
		kind := kindCapture
		if errors.Is(err, audio.ErrPermissionDenied) {
			kind = kindPermission
		}
		m.fail(r, kind, err)
		return
	}
	if m.visualizer != nil {
		m.visualizer.Start()
	}

	m.setState(r.ctx, Listening)
	m.status.SetStatus("Listening…")
}

// ─── Stop and close ──────────────────────────────────────────────────────────

func (m *Machine) handleStop() {
	r := m.cur
	switch m.State() {
	case Connecting, Listening:
	default:
		return
	}

	m.setState(r.ctx, Closing)
	m.status.SetStatus("Closing…")
	if !r.opened {
		// Abort device acquisition and dialing.
		r.cancel()
	}
	r.closeHandle()
	r.closeTimer = m.clock.AfterFunc(m.closeTimeout, func() {
		m.exec.post(func() { m.handleCloseTimeout(r) })
	})
}

func (m *Machine) handleCloseTimeout(r *run) {
	if r.done {
		return
	}
	observe.Logger(r.ctx).Warn("session: remote close not confirmed, forcing teardown", "timeout", m.closeTimeout)
	m.finish(r, "Session ended")
}

func (m *Machine) handleError(r *run, err error) {
	if r.done {
		return
	}
	m.fail(r, kindTransport, err)
}

func (m *Machine) handleClose(r *run, ev s2s.CloseEvent) {
	r.remoteClosed = true
	if r.done {
		return
	}
	if ev.Err != nil && m.State() != Closing {
		m.fail(r, kindTransport, ev.Err)
		return
	}
	observe.Logger(r.ctx).Info("session: remote session closed",
		"code", ev.Code,
		"reason", ev.Reason,
		"local", ev.Local,
	)
	m.finish(r, "Session ended")
}

// finish tears r down and returns to Idle with text as the final status.
func (m *Machine) finish(r *run, text string) {
	m.teardown(r)
	m.status.SetStatus(text)
	m.setState(r.ctx, Idle)
}

// fail moves through Errored to Idle, tearing r down on the way.
func (m *Machine) fail(r *run, kind string, err error) {
	observe.Logger(r.ctx).Error("session failed", "kind", kind, "err", err)
	m.metrics.RecordSessionError(r.ctx, kind)
	m.setState(r.ctx, Errored)
	m.teardown(r)
	m.status.SetStatus(errorText(kind, err))
	m.setState(r.ctx, Idle)
}

func errorText(kind string, err error) string {
	switch kind {
	case kindPermission:
		return "Microphone access was denied. Allow access and try again."
	case kindTransport:
		return "Connection lost: " + err.Error()
	default:
		return "Session error: " + err.Error()
	}
}

// teardown releases every resource of r. It runs at most once per run and
// tolerates resources that were never acquired.
func (m *Machine) teardown(r *run) {
	if r.done {
		return
	}
	r.done = true
	log := observe.Logger(r.ctx)

	if m.visualizer != nil {
		m.visualizer.Stop()
	}
	if err := r.capture.Stop(); err != nil {
		log.Warn("session: stop capture", "err", err)
	}
	if r.output != nil {
		if err := r.output.Close(); err != nil {
			log.Warn("session: close output context", "err", err)
		}
	}
	if m.analyser != nil {
		m.analyser.Reset()
	}

	if r.stickerTimer != nil {
		r.stickerTimer.Stop()
		r.stickerTimer = nil
	}
	r.stickerSeq++
	if r.closeTimer != nil {
		r.closeTimer.Stop()
		r.closeTimer = nil
	}
	m.status.HideSticker()

	m.scheduler.Reset()
	if r.converter != nil {
		r.converter.Reset()
	}

	if !r.remoteClosed {
		r.closeHandle()
	}
	r.cancel()

	m.persist(r)

	m.metrics.SessionDuration.Record(r.ctx, m.clock.Now().Sub(r.started).Seconds())
	m.metrics.ActiveSessions.Add(r.ctx, -1)
	log.Info("session torn down", "entries", len(r.log))
}

// persist saves the finalized conversation log, if any. Fragments of an
// unfinished turn are discarded.
func (m *Machine) persist(r *run) {
	if m.store == nil || len(r.log) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), m.persistTimeout)
	defer cancel()

	if err := m.store.SaveConversation(ctx, r.id, r.log); err != nil {
		observe.Logger(ctx).Error("session: persist conversation", "entries", len(r.log), "err", err)
		m.metrics.RecordSessionError(ctx, "persist")
		return
	}
	for _, e := range r.log {
		m.metrics.RecordTranscriptEntry(ctx, string(e.Role))
	}
}
