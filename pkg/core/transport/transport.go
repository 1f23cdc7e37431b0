// Package transport defines the boundary between the session core and the
// real-time connection carrying audio/text to the remote agent. Two
// implementations exist: a low-latency WebRTC data-channel transport
// (transport/rtc) and a reliable WebSocket transport (transport/wsock).
package transport

import (
	"context"
)

// Kind identifies the underlying connection mechanism.
type Kind string

const (
	// KindRealtime is the low-latency peer transport (WebRTC).
	KindRealtime Kind = "webrtc"
	// KindSocket is the reliable socket transport (WebSocket).
	KindSocket Kind = "websocket"
)

// AgentMode is the agent's voice-activity mode as reported by the transport.
type AgentMode string

const (
	ModeSpeaking  AgentMode = "speaking"
	ModeListening AgentMode = "listening"
)

// MessageSource identifies who produced an incoming transcript.
type MessageSource string

const (
	SourceUser  MessageSource = "user"
	SourceAgent MessageSource = "agent"
)

// IncomingMessage is a transcript turn delivered by the transport.
type IncomingMessage struct {
	Source MessageSource
	Text   string
}

// DisconnectDetails describes why the transport dropped.
type DisconnectDetails struct {
	Reason string
	Err    error
}

// ToolFunc is a named remote-invocable function dispatched by the agent.
// Implementations catch their own errors and return a human-readable string.
type ToolFunc func(ctx context.Context, params map[string]any) (string, error)

// Callbacks are the lifecycle hooks a transport invokes as the conversation
// progresses. All callbacks may be nil. Callbacks can fire at arbitrary
// interleavings relative to caller-initiated operations; consumers guard
// against late invocations with their own flags.
type Callbacks struct {
	OnConnect           func()
	OnDisconnect        func(details DisconnectDetails)
	OnError             func(err error)
	OnModeChange        func(mode AgentMode)
	OnMessage           func(msg IncomingMessage)
	OnUnhandledToolCall func(name string, params map[string]any)
	OnDebug             func(event any)
}

// TurnTaking holds the turn-taking tunables forwarded to the agent.
type TurnTaking struct {
	Eagerness          string  `json:"eagerness,omitempty"`
	TimeoutSeconds     int     `json:"timeout_seconds,omitempty"`
	AllowInterruptions bool    `json:"allow_interruptions,omitempty"`
	VADThreshold       float64 `json:"vad_threshold,omitempty"`
}

// Greeting controls the agent's opening message for a session.
type Greeting struct {
	// SuppressDefault disables the agent's configured first message.
	SuppressDefault bool `json:"suppress_default,omitempty"`
	// Override replaces the default first message when non-empty.
	Override string `json:"override,omitempty"`
}

// StartOptions configures a transport session.
type StartOptions struct {
	AgentID    string
	TextOnly   bool
	Greeting   Greeting
	TurnTaking TurnTaking

	// Tools is the client tool registry the agent can invoke mid-conversation.
	Tools map[string]ToolFunc

	// Context is opaque context data shared with the agent at session start.
	Context map[string]string

	Debug bool
}

// Transport is a live session handle. At most one handle is live at a time;
// the owner nulls its slot synchronously before beginning teardown.
type Transport interface {
	// EndSession gracefully terminates the session. Some platforms hang the
	// underlying teardown call, so callers wrap this with a deadline.
	EndSession(ctx context.Context) error

	// SetVolume sets output volume in [0, 1].
	SetVolume(v float64) error

	// SetMicMuted mutes or unmutes audio input.
	SetMicMuted(muted bool) error

	// OutputVolume returns the current measured output volume in [0, 1].
	OutputVolume() float64

	// InputVolume returns the current measured input volume in [0, 1].
	InputVolume() float64

	// FrequencyData returns an output frequency snapshot for visualizers.
	// May return nil when unavailable.
	FrequencyData() []float32

	// SendUserActivity signals user presence to delay agent turn-taking.
	SendUserActivity()

	// Kind reports the underlying connection mechanism.
	Kind() Kind
}

// Dialer establishes transport sessions.
type Dialer interface {
	Dial(ctx context.Context, opts StartOptions, cb Callbacks) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, opts StartOptions, cb Callbacks) (Transport, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, opts StartOptions, cb Callbacks) (Transport, error) {
	return f(ctx, opts, cb)
}
