package wsock

import (
	"encoding/json"

	"github.com/voxkit-go/voxkit/pkg/core/transport"
)

// Client → server frames.

type clientInit struct {
	Type       string               `json:"type"` // "session_init"
	AgentID    string               `json:"agent_id"`
	TextOnly   bool                 `json:"text_only,omitempty"`
	Greeting   transport.Greeting   `json:"greeting,omitempty"`
	TurnTaking transport.TurnTaking `json:"turn_taking,omitempty"`
	Tools      []string             `json:"tools,omitempty"`
	Context    map[string]string    `json:"context,omitempty"`
}

type clientUserMessage struct {
	Type string `json:"type"` // "user_message"
	Text string `json:"text"`
}

type clientToolResult struct {
	Type    string `json:"type"` // "tool_result"
	CallID  string `json:"call_id"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error,omitempty"`
}

type clientControl struct {
	Type string `json:"type"` // "user_activity" | "session_end"
}

type clientPong struct {
	Type    string `json:"type"` // "pong"
	EventID int64  `json:"event_id"`
}

type clientSetting struct {
	Type  string  `json:"type"` // "set_volume" | "set_mic_muted"
	Value float64 `json:"value,omitempty"`
	Muted bool    `json:"muted,omitempty"`
}

// Server → client frames. Every frame carries a type discriminator; unknown
// types are surfaced through OnDebug and otherwise ignored.

type serverEnvelope struct {
	Type string `json:"type"`
}

type serverAck struct {
	Type      string `json:"type"` // "session_ack"
	SessionID string `json:"session_id,omitempty"`
}

type serverAgentMode struct {
	Type string `json:"type"` // "agent_mode"
	Mode string `json:"mode"`
}

type serverTranscript struct {
	Type   string `json:"type"` // "transcript"
	Source string `json:"source"`
	Text   string `json:"text"`
}

type serverToolCall struct {
	Type   string         `json:"type"` // "tool_call"
	CallID string         `json:"call_id"`
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

type serverPing struct {
	Type    string `json:"type"` // "ping"
	EventID int64  `json:"event_id"`
}

type serverError struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type serverSessionEnd struct {
	Type   string `json:"type"` // "session_end"
	Reason string `json:"reason,omitempty"`
}

type serverAudioLevel struct {
	Type        string    `json:"type"` // "audio_level"
	Output      float64   `json:"output"`
	Input       float64   `json:"input"`
	Frequencies []float32 `json:"frequencies,omitempty"`
}

type serverDebug struct {
	Type  string          `json:"type"` // "debug"
	Event json.RawMessage `json:"event"`
}
