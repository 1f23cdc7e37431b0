package live

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxkit-go/voxkit/pkg/core"
	"github.com/voxkit-go/voxkit/pkg/core/chat"
	"github.com/voxkit-go/voxkit/pkg/core/inactivity"
	"github.com/voxkit-go/voxkit/pkg/core/transport"
	"github.com/voxkit-go/voxkit/pkg/storage"
)

// sessionEndedText is the synthetic transcript notice marking a session
// boundary. Mode transitions do not produce it.
const sessionEndedText = "Session ended"

// resumedGreeting replaces the default greeting when voice has already
// been used this session, so the agent does not reintroduce itself.
const resumedGreeting = "We're continuing our conversation in voice mode."

// Session composes the connection state machine, the message store and
// the inactivity timer into the stable surface the presentation layer
// consumes. It adds session-boundary bookkeeping: fresh session ids, the
// synthetic end-of-session message, and first-greeting suppression
// across mode toggles.
type Session struct {
	opts  *Options
	store *chat.Store
	conn  *Connection
	idle  *inactivity.Timer

	mu        sync.Mutex
	sessionID string
	voiceUsed bool

	userStateHook func(State)
}

// NewSession creates a Session from opts. The zero-value collaborators
// fall back to no-op implementations; Reliable is the only required
// dialer.
func NewSession(opts *Options) *Session {
	opts.withDefaults()

	store := chat.NewStore(chat.StoreConfig{
		Namespace:     opts.Storage,
		MaxMessages:   opts.MaxMessages,
		ReorderWindow: opts.ReorderWindow,
		Logger:        opts.Logger,
	})

	s := &Session{
		opts:          opts,
		store:         store,
		userStateHook: opts.OnStateChange,
	}

	// The facade filters state broadcasts before they reach observers.
	opts.OnStateChange = s.broadcastState

	s.conn = NewConnection(opts, store)
	s.conn.SetSessionEndHook(s.handleSessionEnd)

	s.idle = inactivity.NewTimer(inactivity.Config{
		Enabled:      opts.InactivityEnabled,
		VoiceTimeout: opts.VoiceInactivityTimeout,
		TextTimeout:  opts.TextInactivityTimeout,
		WarningLead:  opts.InactivityWarningLead,
		OnTimeout:    s.idleTimeout,
		OnWarning:    s.idleWarning,
		Logger:       opts.Logger,
	})

	if opts.Storage != nil {
		storage.RecordVisit(opts.Storage)
	}
	return s
}

// Events returns the conversation event stream.
func (s *Session) Events() <-chan Event { return s.conn.Events() }

// Messages returns a copy of the visible transcript.
func (s *Session) Messages() []chat.Message { return s.store.Messages() }

// Store returns the underlying message store, for scroll collaboration.
func (s *Session) Store() *chat.Store { return s.store }

// SessionID returns the current logical session identifier.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// VoiceMode reports whether the conversation is currently in voice mode.
func (s *Session) VoiceMode() bool { return s.conn.Voice() }

// State returns the connection state as observers should see it:
// voice-only states are masked to connected while in text mode.
func (s *Session) State() State {
	return s.filterState(s.conn.State())
}

func (s *Session) filterState(state State) State {
	if !s.conn.Voice() && (state == StateListening || state == StateSpeaking) {
		return StateConnected
	}
	return state
}

func (s *Session) broadcastState(state State) {
	if s.userStateHook != nil {
		s.userStateHook(s.filterState(state))
	}
}

// Connect starts a fresh session in the configured starting mode. The
// transcript is cleared and a new session id is issued.
func (s *Session) Connect(ctx context.Context) error {
	if s.conn.State().active() {
		return nil
	}
	return s.connectFresh(ctx, s.opts.StartInVoiceMode)
}

func (s *Session) connectFresh(ctx context.Context, voice bool) error {
	s.store.ClearMessages()
	s.beginSession()

	// Greeting suppression is scoped to one logical session; a fresh
	// session replays the default greeting.
	s.mu.Lock()
	s.voiceUsed = false
	s.mu.Unlock()

	if err := s.conn.Connect(ctx, voice, s.greetingFor(voice)); err != nil {
		return err
	}
	s.afterConnect(voice, true)
	return nil
}

// Retry resets the retry budget and re-issues the previous connect.
func (s *Session) Retry(ctx context.Context) error {
	if err := s.conn.RetryConnect(ctx); err != nil {
		return err
	}
	s.afterConnect(s.conn.Voice(), false)
	return nil
}

// SendText adds the user's text to the transcript and sends it over the
// live transport, or queues it until one exists. Activity resets the
// inactivity countdown.
func (s *Session) SendText(text string) error {
	s.idle.Reset()
	s.conn.AddLocalMessage(chat.Message{Role: chat.RoleUser, Content: text})
	if !s.conn.Connected() {
		s.store.QueueMessage(text)
		return nil
	}
	return s.conn.SendText(text)
}

// NotifyActivity signals user presence: resets the idle countdown and
// delays agent turn-taking.
func (s *Session) NotifyActivity() {
	s.idle.Reset()
	s.conn.SendUserActivity()
}

// Disconnect ends the session at the user's request.
func (s *Session) Disconnect(ctx context.Context) error {
	s.idle.Stop()
	return s.conn.Disconnect(ctx, DisconnectOptions{Reason: "user"})
}

// UpgradeToVoice switches a text conversation to voice. No-op when
// already in voice mode. Microphone permission is probed first with a
// throwaway capture; a denial leaves the text session untouched.
func (s *Session) UpgradeToVoice(ctx context.Context) error {
	if s.conn.Voice() {
		return nil
	}
	s.idle.Reset()

	if err := s.opts.Prober.Probe(ctx); err != nil {
		perr := core.NewPermissionError("microphone permission denied")
		s.conn.emit(&PermissionDeniedEvent{})
		s.conn.emit(&ErrorEvent{Message: perr.Message, Permanent: true})
		if s.opts.OnError != nil {
			s.opts.OnError(perr)
		}
		return perr
	}

	if s.conn.State().active() {
		if err := s.conn.Disconnect(ctx, DisconnectOptions{PreserveHistory: true}); err != nil {
			return err
		}
	}

	if err := s.conn.Connect(ctx, true, s.greetingFor(true)); err != nil {
		return err
	}
	s.afterConnect(true, false)
	return nil
}

// DowngradeToText switches a voice conversation to text. Muting alone is
// not enough: server-side speech generation only stops with a full
// reconnect under a text-only configuration, so the session is torn down
// with history preserved and re-dialed.
func (s *Session) DowngradeToText(ctx context.Context) error {
	if !s.conn.Voice() {
		return nil
	}
	state := s.conn.State()
	if !s.conn.Connected() && state != StateConnecting && state != StateInitializing {
		return nil
	}
	s.idle.Reset()

	if err := s.conn.Disconnect(ctx, DisconnectOptions{PreserveHistory: true}); err != nil {
		return err
	}

	greeting := s.opts.Greeting
	greeting.SuppressDefault = true
	if err := s.conn.Connect(ctx, false, greeting); err != nil {
		return err
	}
	s.afterConnect(false, false)
	return nil
}

// Close releases the Session, ending any live conversation.
func (s *Session) Close() error {
	s.idle.Stop()
	return s.conn.Close()
}

// beginSession issues a fresh session identifier.
func (s *Session) beginSession() {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
	s.conn.SetSessionID(id)
}

// afterConnect runs the post-connect bookkeeping shared by fresh
// connects, retries and mode switches.
func (s *Session) afterConnect(voice, fresh bool) {
	if !s.conn.Connected() {
		return
	}
	if voice {
		s.mu.Lock()
		s.voiceUsed = true
		s.mu.Unlock()
	}

	mode := inactivity.ModeText
	if voice {
		mode = inactivity.ModeVoice
	}
	s.idle.Start(mode)

	if fresh {
		s.conn.emit(&SessionStartedEvent{
			SessionID: s.SessionID(),
			Voice:     voice,
			Transport: string(s.conn.Kind()),
		})
	}
}

// greetingFor selects the greeting configuration for a session. The
// default greeting plays only on the first voice session of the widget's
// lifetime: re-upgrades and mode transitions suppress it.
func (s *Session) greetingFor(voice bool) transport.Greeting {
	greeting := s.opts.Greeting
	if !voice {
		return greeting
	}
	s.mu.Lock()
	used := s.voiceUsed
	s.mu.Unlock()
	if used {
		greeting.SuppressDefault = true
		greeting.Override = resumedGreeting
	}
	return greeting
}

// handleSessionEnd is the connection's non-transitional teardown hook:
// it stops the idle countdown, appends the synthetic end-of-session
// notice and marks the session boundary before the teardown wait runs.
func (s *Session) handleSessionEnd(reason string) {
	s.idle.Stop()

	s.mu.Lock()
	id := s.sessionID
	s.mu.Unlock()

	s.conn.AddLocalMessage(chat.Message{
		Role:      chat.RoleAssistant,
		Content:   sessionEndedText,
		SessionID: id,
	})
	s.conn.emit(&SessionEndedEvent{SessionID: id, Reason: reason})
}

func (s *Session) idleTimeout() {
	// The idle path shares the user-disconnect path, so the synthetic
	// end message still appears.
	_ = s.conn.Disconnect(context.Background(), DisconnectOptions{Reason: "inactivity"})
}

func (s *Session) idleWarning(remaining time.Duration) {
	s.conn.emit(&InactivityWarningEvent{RemainingMs: remaining.Milliseconds()})
}
