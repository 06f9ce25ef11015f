// Package s2s defines the Provider interface for Speech-to-Speech (S2S) backends.
//
// An S2S provider wraps a real-time voice AI service that accepts streamed
// microphone audio and streams synthesised audio, transcriptions and tool
// calls back in a single, stateful session. The Gemini Live API is the
// reference backend.
//
// A session is event driven: the caller supplies [Callbacks] at connect time
// and the provider invokes them from its receive goroutine, in wire order.
// [Callbacks.OnClose] is invoked exactly once per session, whether the close
// was requested locally via [SessionHandle.Close] or initiated by the remote
// end.
//
// All implementations must be safe for concurrent use.
package s2s

import (
	"context"
	"errors"

	"github.com/MrWong99/sereno/pkg/audio"
)

// ErrTransport wraps failures of the underlying connection.
var ErrTransport = errors.New("s2s: transport error")

// ErrSessionClosed is returned by send methods after Close.
var ErrSessionClosed = errors.New("s2s: session closed")

// ToolDefinition declares a function the model may call.
type ToolDefinition struct {
	// Name is the function name the model uses in a [FunctionCall].
	Name string

	// Description tells the model when to call the function.
	Description string

	// Parameters is a JSON-schema object describing the arguments.
	Parameters map[string]any
}

// SessionConfig is the initial configuration for a new S2S session.
type SessionConfig struct {
	// Voice is the provider voice name used for synthesised speech. Empty
	// selects the provider default.
	Voice string

	// Instructions is the system-level prompt for the model.
	Instructions string

	// Tools is the set of functions offered to the model.
	Tools []ToolDefinition

	// InputRate is the sample rate of the audio passed to SendAudio.
	InputRate int

	// Transcribe enables input and output transcription events.
	Transcribe bool
}

// ServerMessage is one content or tool-call event from the model.
type ServerMessage struct {
	ServerContent *ServerContent
	ToolCall      *ToolCall
}

// ServerContent carries model output and transcriptions.
type ServerContent struct {
	// ModelTurn holds streamed model output parts (audio or text).
	ModelTurn *Turn

	// InputTranscription is a fragment of the recognised user speech.
	InputTranscription *Transcription

	// OutputTranscription is a fragment of the text of the model's speech.
	OutputTranscription *Transcription

	// TurnComplete marks the end of the current model turn.
	TurnComplete bool

	// Interrupted reports that the user barged in on the model.
	Interrupted bool
}

// Turn is a sequence of output parts.
type Turn struct {
	Parts []Part
}

// Part is a single piece of model output.
type Part struct {
	Text       string
	InlineData *InlineData
}

// InlineData is an encoded media chunk, e.g. PCM audio.
type InlineData struct {
	// MIMEType such as "audio/pcm;rate=24000".
	MIMEType string
	// Data is the base64 payload.
	Data audio.EncodedPayload
}

// Transcription is a text fragment.
type Transcription struct {
	Text string
}

// ToolCall is a request from the model to invoke one or more functions.
type ToolCall struct {
	FunctionCalls []FunctionCall
}

// FunctionCall is a single function invocation.
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}

// FunctionResponse answers a [FunctionCall].
type FunctionResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// CloseEvent describes how a session ended.
type CloseEvent struct {
	// Code is the transport close code (1000 for a normal closure), or 0 if
	// the connection failed without a close handshake.
	Code int

	// Reason is the close reason text, if any.
	Reason string

	// Local is true when the close was requested via [SessionHandle.Close].
	Local bool

	// Err is non-nil when the session ended abnormally.
	Err error
}

// Callbacks receive session events. Any field may be nil. Callbacks are
// invoked sequentially from a single goroutine and must not block for long.
type Callbacks struct {
	// OnOpen is called once the remote end accepted the session setup.
	OnOpen func()

	// OnMessage is called for every content or tool-call event.
	OnMessage func(*ServerMessage)

	// OnError is called for error events reported by the remote end.
	OnError func(error)

	// OnClose is called exactly once when the session has ended.
	OnClose func(CloseEvent)
}

// Capabilities describes static properties of the S2S provider.
type Capabilities struct {
	// OutputRate is the sample rate of the audio the model produces.
	OutputRate int

	// MaxSessionDurationMs is the provider's hard upper bound on session
	// lifetime in milliseconds. Zero means no documented limit.
	MaxSessionDurationMs int

	// Voices lists the available voice names.
	Voices []string
}

// SessionHandle represents an open S2S session. It is an interface so that test
// code can supply mock implementations without a live provider connection.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers one encoded audio chunk. mimeType describes the
	// payload, e.g. "audio/pcm;rate=16000".
	SendAudio(ctx context.Context, payload audio.EncodedPayload, mimeType string) error

	// SendToolResponse answers previously received function calls.
	SendToolResponse(ctx context.Context, responses ...FunctionResponse) error

	// Close requests closure. [Callbacks.OnClose] fires once the session has
	// ended. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any S2S backend.
type Provider interface {
	// Connect opens a session and returns once the setup has been sent.
	// [Callbacks.OnOpen] fires when the remote end acknowledges it, which may
	// happen before Connect returns.
	Connect(ctx context.Context, cfg SessionConfig, cb Callbacks) (SessionHandle, error)

	// Capabilities returns static metadata about the provider.
	Capabilities() Capabilities
}
