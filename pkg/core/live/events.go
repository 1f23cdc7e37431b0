package live

import "github.com/voxkit-go/voxkit/pkg/core/chat"

// Event is the interface for all conversation events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// StateChangedEvent is emitted on every committed state transition.
type StateChangedEvent struct {
	From  State  `json:"from"`
	To    State  `json:"to"`
	Error string `json:"error,omitempty"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// SessionStartedEvent is emitted when a fresh session establishes.
type SessionStartedEvent struct {
	SessionID string `json:"session_id"`
	Voice     bool   `json:"voice"`
	Transport string `json:"transport"`
}

func (e *SessionStartedEvent) EventType() string { return "session.started" }

// SessionEndedEvent is emitted when a session ends for any reason. Mode
// transitions do not end the logical session and do not emit this.
type SessionEndedEvent struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

func (e *SessionEndedEvent) EventType() string { return "session.ended" }

// MessageEvent is emitted when a message lands in the visible transcript.
type MessageEvent struct {
	Message chat.Message `json:"message"`
}

func (e *MessageEvent) EventType() string { return "message" }

// ErrorEvent is emitted when a connection effort fails or the transport
// surfaces an error.
type ErrorEvent struct {
	Message   string `json:"message"`
	Permanent bool   `json:"permanent"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// PermissionDeniedEvent is emitted when the microphone permission probe
// fails during a voice upgrade.
type PermissionDeniedEvent struct{}

func (e *PermissionDeniedEvent) EventType() string { return "permission.denied" }

// InactivityWarningEvent is emitted shortly before the idle timeout ends
// the session.
type InactivityWarningEvent struct {
	RemainingMs int64 `json:"remaining_ms"`
}

func (e *InactivityWarningEvent) EventType() string { return "inactivity.warning" }

// AudioLevelEvent carries the periodic output-level broadcast consumed by
// visualizers. Fire-and-forget.
type AudioLevelEvent struct {
	Levels AudioLevels `json:"levels"`
}

func (e *AudioLevelEvent) EventType() string { return "audio.level" }

// DebugEvent mirrors debug tracing for programmatic access.
type DebugEvent struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

func (e *DebugEvent) EventType() string { return "debug" }
