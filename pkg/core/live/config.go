package live

import (
	"log/slog"
	"time"

	"github.com/voxkit-go/voxkit/pkg/core/chat"
	"github.com/voxkit-go/voxkit/pkg/core/mic"
	"github.com/voxkit-go/voxkit/pkg/core/tools"
	"github.com/voxkit-go/voxkit/pkg/core/transport"
	"github.com/voxkit-go/voxkit/pkg/nav"
	"github.com/voxkit-go/voxkit/pkg/storage"
)

// State is the connection/voice-activity state of a conversation.
type State int

const (
	// StateDisconnected is the resting state: no transport, no session.
	StateDisconnected State = iota
	// StateConnecting is the text-mode handshake.
	StateConnecting
	// StateInitializing is the voice-mode handshake, which additionally
	// negotiates microphone and transport.
	StateInitializing
	// StateConnected is an established session. Text mode stays here for
	// the conversation's duration.
	StateConnected
	// StateListening means the agent is waiting for user speech. Voice
	// mode only.
	StateListening
	// StateSpeaking means agent audio is playing. Voice mode only.
	StateSpeaking
	// StateThinking is the transient overlay while a tool call runs.
	StateThinking
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateInitializing:
		return "INITIALIZING"
	case StateConnected:
		return "CONNECTED"
	case StateListening:
		return "LISTENING"
	case StateSpeaking:
		return "SPEAKING"
	case StateThinking:
		return "THINKING"
	default:
		return "UNKNOWN"
	}
}

// active reports whether the state belongs to a live or in-progress
// session.
func (s State) active() bool {
	return s != StateDisconnected
}

const (
	// MaxRetries bounds connection attempts per logical connect effort.
	MaxRetries = 3

	// DefaultListeningDebounce delays committing a listening transition,
	// so residual agent audio does not flash a spurious listening state.
	DefaultListeningDebounce = 600 * time.Millisecond

	// DefaultOutputVolumeFloor is the output level below which the agent
	// is considered done speaking when the debounce expires.
	DefaultOutputVolumeFloor = 0.05

	// DefaultEndSessionTimeout caps graceful transport teardown; some
	// platforms hang the underlying close call.
	DefaultEndSessionTimeout = 5 * time.Second

	// DefaultForceDisconnectDelay is how long a deferred end-call waits
	// for the natural listening transition before disconnecting anyway.
	DefaultForceDisconnectDelay = 5 * time.Second

	// DefaultBackoffBase scales the exponential retry backoff.
	DefaultBackoffBase = time.Second
)

// Options configures a conversation. This is the whole configuration
// surface: the package is an embeddable library with no CLI or flag
// handling of its own.
type Options struct {
	// AgentID identifies the remote agent. Required.
	AgentID string `yaml:"agent_id" json:"agent_id"`

	// StartInVoiceMode opens the first session in voice mode.
	StartInVoiceMode bool `yaml:"start_in_voice_mode" json:"start_in_voice_mode"`

	// Debug enables per-session debug events and stderr tracing.
	Debug bool `yaml:"debug" json:"debug"`

	// TurnTaking tunes the agent's conversational turn detection.
	TurnTaking transport.TurnTaking `yaml:"turn_taking" json:"turn_taking"`

	// ShareContext forwards page context to the agent at session start.
	ShareContext bool `yaml:"share_context" json:"share_context"`

	// Greeting overrides or suppresses the agent's default greeting for
	// the first voice session.
	Greeting transport.Greeting `yaml:"greeting" json:"greeting"`

	// InactivityEnabled arms the idle-session countdown.
	InactivityEnabled bool `yaml:"inactivity_enabled" json:"inactivity_enabled"`

	// VoiceInactivityTimeout and TextInactivityTimeout override the
	// 3-minute default per mode.
	VoiceInactivityTimeout time.Duration `yaml:"voice_inactivity_timeout" json:"voice_inactivity_timeout"`
	TextInactivityTimeout  time.Duration `yaml:"text_inactivity_timeout" json:"text_inactivity_timeout"`

	// InactivityWarningLead is how long before the idle timeout the
	// warning callback fires.
	InactivityWarningLead time.Duration `yaml:"inactivity_warning_lead" json:"inactivity_warning_lead"`

	// Platform selects the transport fallback timeout profile, for
	// example "ios-safari".
	Platform string `yaml:"platform" json:"platform"`

	// MaxMessages bounds the persisted transcript.
	MaxMessages int `yaml:"max_messages" json:"max_messages"`

	// ReorderWindow bounds the ASR-lag message reordering.
	ReorderWindow time.Duration `yaml:"reorder_window" json:"reorder_window"`

	// ListeningDebounce, OutputVolumeFloor, EndSessionTimeout,
	// ForceDisconnectDelay and BackoffBase are tuning parameters; zero
	// selects the package default. The mechanisms matter, the exact
	// values do not.
	ListeningDebounce    time.Duration `yaml:"listening_debounce" json:"listening_debounce"`
	OutputVolumeFloor    float64       `yaml:"output_volume_floor" json:"output_volume_floor"`
	EndSessionTimeout    time.Duration `yaml:"end_session_timeout" json:"end_session_timeout"`
	ForceDisconnectDelay time.Duration `yaml:"force_disconnect_delay" json:"force_disconnect_delay"`
	BackoffBase          time.Duration `yaml:"backoff_base" json:"backoff_base"`

	// Collaborators. None are serialized.

	// Realtime and Reliable are the transport dialers. Reliable is
	// required; Realtime may be nil to force the reliable transport.
	Realtime transport.Dialer `yaml:"-" json:"-"`
	Reliable transport.Dialer `yaml:"-" json:"-"`

	// Microphone and Prober manage the hardware audio input.
	Microphone mic.Microphone       `yaml:"-" json:"-"`
	Prober     mic.PermissionProber `yaml:"-" json:"-"`

	// Storage persists the transcript and visit tracking.
	Storage *storage.Namespace `yaml:"-" json:"-"`

	// Nav backs the navigation tool.
	Nav *nav.Registry `yaml:"-" json:"-"`

	// Page backs the page-context tool.
	Page tools.PageReader `yaml:"-" json:"-"`

	// ExtraTools are merged into the registry with the same thinking
	// treatment as the builtin processing tools.
	ExtraTools map[string]tools.Func `yaml:"-" json:"-"`

	// Callback hooks. All optional, all fire-and-forget.
	OnConnect     func()                   `yaml:"-" json:"-"`
	OnDisconnect  func()                   `yaml:"-" json:"-"`
	OnMessage     func(msg chat.Message)   `yaml:"-" json:"-"`
	OnStateChange func(state State)        `yaml:"-" json:"-"`
	OnError       func(err error)          `yaml:"-" json:"-"`
	OnAudioLevel  func(levels AudioLevels) `yaml:"-" json:"-"`

	Logger  *slog.Logger `yaml:"-" json:"-"`
	Metrics *Metrics     `yaml:"-" json:"-"`
}

// DefaultOptions returns Options with package defaults filled in.
func DefaultOptions() *Options {
	return &Options{
		InactivityEnabled:    true,
		ListeningDebounce:    DefaultListeningDebounce,
		OutputVolumeFloor:    DefaultOutputVolumeFloor,
		EndSessionTimeout:    DefaultEndSessionTimeout,
		ForceDisconnectDelay: DefaultForceDisconnectDelay,
		BackoffBase:          DefaultBackoffBase,
	}
}

// withDefaults fills zero tuning fields in place.
func (o *Options) withDefaults() {
	if o.ListeningDebounce <= 0 {
		o.ListeningDebounce = DefaultListeningDebounce
	}
	if o.OutputVolumeFloor <= 0 {
		o.OutputVolumeFloor = DefaultOutputVolumeFloor
	}
	if o.EndSessionTimeout <= 0 {
		o.EndSessionTimeout = DefaultEndSessionTimeout
	}
	if o.ForceDisconnectDelay <= 0 {
		o.ForceDisconnectDelay = DefaultForceDisconnectDelay
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Microphone == nil {
		o.Microphone = mic.Noop{}
	}
	if o.Prober == nil {
		o.Prober = mic.AlwaysGranted{}
	}
}
