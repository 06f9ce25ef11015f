// Package gemini implements the s2s.Provider interface for Google's Gemini Live API.
//
// It establishes a bidirectional WebSocket connection to the Gemini Live endpoint
// and exchanges JSON messages according to the BidiGenerateContent protocol.
// Audio is transmitted as base64-encoded PCM chunks; server events are
// surfaced through s2s.Callbacks from a single receive goroutine.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/MrWong99/sereno/pkg/audio"
	"github.com/MrWong99/sereno/pkg/provider/s2s"
	"github.com/coder/websocket"
)

// Compile-time assertions that Provider and session satisfy the s2s interfaces.
var _ s2s.Provider = (*Provider)(nil)
var _ s2s.SessionHandle = (*session)(nil)

const (
	defaultModel   = "gemini-2.0-flash-live-001"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	// outputRate is the sample rate of Gemini Live audio output.
	outputRate = 24000

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second

	// readLimit bounds a single inbound message; audio chunks are well below.
	readLimit = 8 << 20
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Gemini model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient sets the HTTP client used for the WebSocket handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements s2s.Provider for Google's Gemini Live API.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New creates a new Gemini Live Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Capabilities returns static metadata about the Gemini Live provider.
func (p *Provider) Capabilities() s2s.Capabilities {
	return s2s.Capabilities{
		OutputRate:           outputRate,
		MaxSessionDurationMs: 15 * 60 * 1000,
		Voices:               []string{"Aoede", "Charon", "Fenrir", "Kore", "Puck"},
	}
}

// Connect establishes a new Gemini Live session with the given configuration.
// It returns after the setup message is sent; cb.OnOpen fires when the server
// acknowledges it with setupComplete.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig, cb s2s.Callbacks) (s2s.SessionHandle, error) {
	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		p.baseURL, url.QueryEscape(p.apiKey),
	)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: p.httpClient,
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w: %w", s2s.ErrTransport, err)
	}
	conn.SetReadLimit(readLimit)

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:   conn,
		cb:     cb,
		done:   make(chan struct{}),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := sess.sendSetup(ctx, p.model, cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w: %w", s2s.ErrTransport, err)
	}

	go sess.receiveLoop()
	go sess.keepaliveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string             `json:"model"`
	GenerationConfig         generationConfig   `json:"generationConfig"`
	SystemInstruction        *systemInstruction `json:"systemInstruction,omitempty"`
	Tools                    []geminiTool       `json:"tools,omitempty"`
	InputAudioTranscription  *struct{}          `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}          `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type geminiTool struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations,omitempty"`
}

type functionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type toolResponseMessage struct {
	ToolResponse toolResponse `json:"toolResponse"`
}

type toolResponse struct {
	FunctionResponses []functionResponse `json:"functionResponses"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverMessage struct {
	SetupComplete        *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent        *serverContent   `json:"serverContent,omitempty"`
	ToolCall             *toolCallMsg     `json:"toolCall,omitempty"`
	ToolCallCancellation *json.RawMessage `json:"toolCallCancellation,omitempty"`
	GoAway               *json.RawMessage `json:"goAway,omitempty"`
	Error                *geminiError     `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type serverContent struct {
	ModelTurn           *modelTurn     `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

type transcription struct {
	Text string `json:"text"`
}

type toolCallMsg struct {
	FunctionCalls []functionCall `json:"functionCalls"`
}

type functionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn *websocket.Conn
	cb   s2s.Callbacks

	mu     sync.Mutex
	done   chan struct{}
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// sendSetup sends the initial BidiGenerateContent setup message.
func (s *session) sendSetup(ctx context.Context, model string, cfg s2s.SessionConfig) error {
	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"audio"},
			},
		},
	}

	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: cfg.Instructions}},
		}
	}

	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	if cfg.Transcribe {
		msg.Setup.InputAudioTranscription = &struct{}{}
		msg.Setup.OutputAudioTranscription = &struct{}{}
	}

	if len(cfg.Tools) > 0 {
		decls := make([]functionDeclaration, len(cfg.Tools))
		for i, t := range cfg.Tools {
			decls[i] = functionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			}
		}
		msg.Setup.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}

	return s.writeJSON(ctx, msg)
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// receiveLoop reads messages from the WebSocket and dispatches them to the
// callbacks. It is the only goroutine invoking callbacks and calls OnClose
// exactly once, on exit.
func (s *session) receiveLoop() {
	ev := s2s.CloseEvent{}
	defer func() {
		s.cancel()
		if s.cb.OnClose != nil {
			s.cb.OnClose(ev)
		}
	}()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			ev = s.closeEvent(err)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("gemini: skipping malformed server message", "err", err, "bytes", len(data))
			continue
		}

		s.handleServerMessage(&msg)
	}
}

// closeEvent classifies the error that ended the read loop.
func (s *session) closeEvent(err error) s2s.CloseEvent {
	s.mu.Lock()
	local := s.closed
	s.mu.Unlock()

	if local {
		return s2s.CloseEvent{Code: int(websocket.StatusNormalClosure), Reason: "session closed", Local: true}
	}

	switch code := websocket.CloseStatus(err); code {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		var ce websocket.CloseError
		errors.As(err, &ce)
		return s2s.CloseEvent{Code: int(code), Reason: ce.Reason}
	case -1:
		return s2s.CloseEvent{Err: fmt.Errorf("gemini: read: %w: %w", s2s.ErrTransport, err)}
	default:
		var ce websocket.CloseError
		errors.As(err, &ce)
		return s2s.CloseEvent{
			Code:   int(code),
			Reason: ce.Reason,
			Err:    fmt.Errorf("gemini: closed with status %d: %w: %s", int(code), s2s.ErrTransport, ce.Reason),
		}
	}
}

func (s *session) handleServerMessage(msg *serverMessage) {
	if msg.SetupComplete != nil && s.cb.OnOpen != nil {
		s.cb.OnOpen()
	}
	if msg.Error != nil {
		s.handleError(msg.Error)
	}
	if msg.GoAway != nil {
		slog.Info("gemini: server announced disconnect")
	}

	out := &s2s.ServerMessage{}
	if msg.ServerContent != nil {
		out.ServerContent = convertContent(msg.ServerContent)
	}
	if msg.ToolCall != nil {
		out.ToolCall = convertToolCall(msg.ToolCall)
	}
	if (out.ServerContent != nil || out.ToolCall != nil) && s.cb.OnMessage != nil {
		s.cb.OnMessage(out)
	}
}

func (s *session) handleError(ge *geminiError) {
	if s.cb.OnError == nil {
		return
	}
	msg := "unknown error"
	if ge.Message != "" {
		msg = ge.Message
	}
	s.cb.OnError(fmt.Errorf("gemini: %s (code %d)", msg, ge.Code))
}

func convertContent(sc *serverContent) *s2s.ServerContent {
	out := &s2s.ServerContent{
		TurnComplete: sc.TurnComplete,
		Interrupted:  sc.Interrupted,
	}
	if sc.ModelTurn != nil {
		out.ModelTurn = &s2s.Turn{Parts: make([]s2s.Part, 0, len(sc.ModelTurn.Parts))}
		for _, p := range sc.ModelTurn.Parts {
			sp := s2s.Part{Text: p.Text}
			if p.InlineData != nil {
				sp.InlineData = &s2s.InlineData{
					MIMEType: p.InlineData.MIMEType,
					Data:     audio.EncodedPayload(p.InlineData.Data),
				}
			}
			out.ModelTurn.Parts = append(out.ModelTurn.Parts, sp)
		}
	}
	if sc.InputTranscription != nil {
		out.InputTranscription = &s2s.Transcription{Text: sc.InputTranscription.Text}
	}
	if sc.OutputTranscription != nil {
		out.OutputTranscription = &s2s.Transcription{Text: sc.OutputTranscription.Text}
	}
	return out
}

func convertToolCall(tc *toolCallMsg) *s2s.ToolCall {
	out := &s2s.ToolCall{FunctionCalls: make([]s2s.FunctionCall, len(tc.FunctionCalls))}
	for i, fc := range tc.FunctionCalls {
		out.FunctionCalls[i] = s2s.FunctionCall{ID: fc.ID, Name: fc.Name, Args: fc.Args}
	}
	return out
}

// keepaliveLoop sends WebSocket pings to keep the Gemini Live connection alive.
func (s *session) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, keepaliveTimeout)
			_ = s.conn.Ping(pingCtx)
			cancel()
		}
	}
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ── SessionHandle methods ──────────────────────────────────────────────────────

// SendAudio delivers one base64 PCM chunk to the model.
func (s *session) SendAudio(ctx context.Context, payload audio.EncodedPayload, mimeType string) error {
	if s.isClosed() {
		return s2s.ErrSessionClosed
	}
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{
				{MIMEType: mimeType, Data: string(payload)},
			},
		},
	}
	if err := s.writeJSON(ctx, msg); err != nil {
		return fmt.Errorf("gemini: send audio: %w: %w", s2s.ErrTransport, err)
	}
	return nil
}

// SendToolResponse answers function calls.
func (s *session) SendToolResponse(ctx context.Context, responses ...s2s.FunctionResponse) error {
	if s.isClosed() {
		return s2s.ErrSessionClosed
	}
	if len(responses) == 0 {
		return nil
	}
	frs := make([]functionResponse, len(responses))
	for i, r := range responses {
		resp := r.Response
		if resp == nil {
			resp = map[string]any{}
		}
		frs[i] = functionResponse{ID: r.ID, Name: r.Name, Response: resp}
	}
	msg := toolResponseMessage{ToolResponse: toolResponse{FunctionResponses: frs}}
	if err := s.writeJSON(ctx, msg); err != nil {
		return fmt.Errorf("gemini: send tool response: %w: %w", s2s.ErrTransport, err)
	}
	return nil
}

// Close performs the WebSocket close handshake. OnClose fires from the
// receive goroutine once the connection is down. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done) // signals keepaliveLoop via done channel
	if err := s.conn.Close(websocket.StatusNormalClosure, "session closed"); err != nil {
		slog.Debug("gemini: close handshake", "err", err)
	}
	s.cancel() // unblocks receiveLoop if the handshake did not
	return nil
}
