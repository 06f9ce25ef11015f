// Package mock provides test doubles for the s2s package interfaces.
//
// Use Provider to verify Connect calls and capture the Callbacks the caller
// registered. Use Session to inspect which methods were invoked and to drive
// server events from the test goroutine.
//
// Example:
//
//	p := &mock.Provider{}
//	handle, _ := p.Connect(ctx, cfg, cb)
//	p.Open()                 // fires cb.OnOpen
//	p.Message(&s2s.ServerMessage{...})
//	p.Close(s2s.CloseEvent{}) // fires cb.OnClose
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/sereno/pkg/audio"
	"github.com/MrWong99/sereno/pkg/provider/s2s"
)

var _ s2s.Provider = (*Provider)(nil)
var _ s2s.SessionHandle = (*Session)(nil)

// ─── Provider ─────────────────────────────────────────────────────────────────

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg s2s.SessionConfig
}

// Provider is a mock implementation of s2s.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the handle returned by Connect. If nil, Connect creates a new
	// Session with CloseFiresOnClose set.
	Session *Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectGate, if non-nil, makes Connect block until it is closed or the
	// context is cancelled.
	ConnectGate chan struct{}

	// ProviderCapabilities is returned by Capabilities.
	ProviderCapabilities s2s.Capabilities

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall

	cb       s2s.Callbacks
	current  *Session
	connects int
}

// Connect records the call, stores cb and returns Session or ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig, cb s2s.Callbacks) (s2s.SessionHandle, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	gate := p.ConnectGate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	sess := p.Session
	if sess == nil {
		sess = &Session{CloseFiresOnClose: true}
	}
	sess.bind(cb)
	p.cb = cb
	p.current = sess
	p.connects++
	return sess, nil
}

// Capabilities returns ProviderCapabilities.
func (p *Provider) Capabilities() s2s.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ProviderCapabilities
}

// CallCountConnect returns the number of Connect invocations.
func (p *Provider) CallCountConnect() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}

// Connects returns the number of successful Connect calls. Unlike
// [Provider.CallCountConnect] it only moves once the session is bound.
func (p *Provider) Connects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects
}

// Current returns the session handed out by the most recent successful
// Connect, or nil.
func (p *Provider) Current() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Provider) callbacks() s2s.Callbacks {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cb
}

// Open fires OnOpen on the most recent Connect's callbacks.
func (p *Provider) Open() {
	if cb := p.callbacks(); cb.OnOpen != nil {
		cb.OnOpen()
	}
}

// Message fires OnMessage.
func (p *Provider) Message(m *s2s.ServerMessage) {
	if cb := p.callbacks(); cb.OnMessage != nil {
		cb.OnMessage(m)
	}
}

// Error fires OnError.
func (p *Provider) Error(err error) {
	if cb := p.callbacks(); cb.OnError != nil {
		cb.OnError(err)
	}
}

// Close fires OnClose with ev through the current session, so it is
// delivered at most once per session.
func (p *Provider) Close(ev s2s.CloseEvent) {
	if s := p.Current(); s != nil {
		s.FireClose(ev)
	}
}

// ─── Session ──────────────────────────────────────────────────────────────────

// AudioCall records one SendAudio invocation.
type AudioCall struct {
	Payload  audio.EncodedPayload
	MIMEType string
}

// Session is a mock implementation of s2s.SessionHandle.
type Session struct {
	mu sync.Mutex

	// SendAudioErr, if non-nil, is returned by SendAudio.
	SendAudioErr error

	// SendToolResponseErr, if non-nil, is returned by SendToolResponse.
	SendToolResponseErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// CloseFiresOnClose makes Close deliver a clean local CloseEvent, the way
	// a real transport does after the close handshake.
	CloseFiresOnClose bool

	// AudioCalls records every SendAudio call in order.
	AudioCalls []AudioCall

	// ToolResponses records every FunctionResponse sent.
	ToolResponses []s2s.FunctionResponse

	// CallCountClose is the number of Close invocations.
	CallCountClose int

	cb       s2s.Callbacks
	onClosed bool
}

func (s *Session) bind(cb s2s.Callbacks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
	s.onClosed = false
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(_ context.Context, payload audio.EncodedPayload, mimeType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AudioCalls = append(s.AudioCalls, AudioCall{Payload: payload, MIMEType: mimeType})
	return s.SendAudioErr
}

// SendToolResponse records the responses and returns SendToolResponseErr.
func (s *Session) SendToolResponse(_ context.Context, responses ...s2s.FunctionResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ToolResponses = append(s.ToolResponses, responses...)
	return s.SendToolResponseErr
}

// Close records the call. With CloseFiresOnClose it fires OnClose
// asynchronously.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CallCountClose++
	fire, err := s.CloseFiresOnClose, s.CloseErr
	s.mu.Unlock()
	if fire {
		go s.FireClose(s2s.CloseEvent{Code: 1000, Reason: "session closed", Local: true})
	}
	return err
}

// FireClose invokes OnClose unless it was already delivered.
func (s *Session) FireClose(ev s2s.CloseEvent) {
	s.mu.Lock()
	if s.onClosed {
		s.mu.Unlock()
		return
	}
	s.onClosed = true
	cb := s.cb.OnClose
	s.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// AudioCount returns the number of SendAudio calls.
func (s *Session) AudioCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.AudioCalls)
}

// Audio returns a copy of the recorded SendAudio calls.
func (s *Session) Audio() []AudioCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AudioCall(nil), s.AudioCalls...)
}

// Responses returns a copy of the recorded tool responses.
func (s *Session) Responses() []s2s.FunctionResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]s2s.FunctionResponse(nil), s.ToolResponses...)
}

// Closes returns the number of Close calls.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountClose
}
