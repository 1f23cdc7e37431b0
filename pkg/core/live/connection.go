package live

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxkit-go/voxkit/pkg/core"
	"github.com/voxkit-go/voxkit/pkg/core/chat"
	"github.com/voxkit-go/voxkit/pkg/core/tools"
	"github.com/voxkit-go/voxkit/pkg/core/transport"
)

// connectRequest remembers the last connect call so RetryConnect can
// re-issue it unchanged.
type connectRequest struct {
	voice    bool
	greeting transport.Greeting
}

// Connection owns the single underlying transport session and the
// finite-state model of connection/voice activity: negotiation, retry
// with backoff, the mode-transition protocol, and the guards that keep
// late transport callbacks from acting on a dead session.
type Connection struct {
	opts  *Options
	store *chat.Store

	mu          sync.Mutex
	state       State
	voiceMode   bool
	handle      transport.Transport
	kind        transport.Kind
	sessionID   string
	lastErr     *core.Error
	retries     int
	lastReq     connectRequest
	hasLastReq  bool
	sessionDone func()

	// attempt stamps every connect invocation; stale continuations
	// compare against it and abort silently.
	attempt atomic.Int64

	// userDisconnected is set by user-initiated disconnect and cleared
	// only by the next successful fresh connect. While set, every
	// transport callback is dropped unconditionally.
	userDisconnected atomic.Bool

	// transitioning marks a history-preserving disconnect, blocking the
	// transport's own disconnect callback from cascading into a second
	// teardown.
	transitioning atomic.Bool

	// deferDisconnect is the end-call flag: disconnect on the next
	// listening transition instead of mid-speech.
	deferDisconnect atomic.Bool

	// onSessionEnd fires once per non-transitional teardown, before the
	// teardown wait. The facade hangs session bookkeeping off it.
	onSessionEnd func(reason string)

	timerMu     sync.Mutex
	listenTimer *time.Timer
	forceTimer  *time.Timer

	// eventsMu orders emits against the final channel close so late
	// emitters never send on a closed channel.
	eventsMu     sync.Mutex
	eventsClosed bool
	events       chan Event

	done   chan struct{}
	closed atomic.Bool
}

// NewConnection creates a disconnected Connection over store.
func NewConnection(opts *Options, store *chat.Store) *Connection {
	opts.withDefaults()
	return &Connection{
		opts:   opts,
		store:  store,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

// Events returns the conversation event stream. Events are dropped when
// the consumer falls behind.
func (c *Connection) Events() <-chan Event { return c.events }

// State returns the current connection state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether a live transport handle exists.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle != nil
}

// Voice reports whether the current or pending session is voice mode.
func (c *Connection) Voice() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voiceMode
}

// Kind reports the negotiated transport kind of the live session.
func (c *Connection) Kind() transport.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kind
}

// LastError returns the error surfaced by the most recent failed effort.
func (c *Connection) LastError() *core.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// SetSessionID stamps subsequent incoming messages with id.
func (c *Connection) SetSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// SetSessionEndHook installs the non-transitional teardown hook.
func (c *Connection) SetSessionEndHook(fn func(reason string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSessionEnd = fn
}

// Connect establishes a session. No-op when a session is live or a
// connect is in flight. The initial state (connecting for text,
// initializing for voice) is committed before any asynchronous work so
// the UI reflects intent immediately.
func (c *Connection) Connect(ctx context.Context, voice bool, greeting transport.Greeting) error {
	c.mu.Lock()
	if c.state.active() {
		c.mu.Unlock()
		c.debug("CONNECT", "ignored, state "+c.State().String())
		return nil
	}
	if c.opts.AgentID == "" {
		err := core.NewInvalidRequestError("No Agent ID")
		c.lastErr = err
		c.mu.Unlock()
		c.emit(&ErrorEvent{Message: err.Message, Permanent: true})
		if c.opts.OnError != nil {
			c.opts.OnError(err)
		}
		return err
	}

	// Each fresh user-initiated call gets its own retry budget.
	c.retries = 0
	c.lastErr = nil
	c.voiceMode = voice
	c.lastReq = connectRequest{voice: voice, greeting: greeting}
	c.hasLastReq = true
	attemptID := c.attempt.Add(1)

	initial := StateConnecting
	if voice {
		initial = StateInitializing
	}
	c.mu.Unlock()

	c.setState(initial)
	return c.connectLoop(ctx, attemptID, voice, greeting)
}

// RetryConnect resets the retry budget and the surfaced error, then
// re-issues the previous connect call with its original options.
func (c *Connection) RetryConnect(ctx context.Context) error {
	c.mu.Lock()
	req, ok := c.lastReq, c.hasLastReq
	c.retries = 0
	c.lastErr = nil
	c.mu.Unlock()
	if !ok {
		return core.NewInvalidRequestError("nothing to retry")
	}
	return c.Connect(ctx, req.voice, req.greeting)
}

func (c *Connection) connectLoop(ctx context.Context, attemptID int64, voice bool, greeting transport.Greeting) error {
	for {
		handle, err := c.dial(ctx, attemptID, voice, greeting)
		if c.stale(attemptID) {
			// Superseded by a newer attempt or a disconnect; abandon
			// silently, releasing the handle if one arrived late.
			if handle != nil {
				endCtx, cancel := context.WithTimeout(context.Background(), c.opts.EndSessionTimeout)
				_ = handle.EndSession(endCtx)
				cancel()
			}
			return nil
		}
		if err == nil {
			c.finishConnect(attemptID, handle, voice)
			return nil
		}

		class := core.Classify(err)
		c.opts.Metrics.errorClass(string(class))
		if class == core.ClassPermanent || ctx.Err() != nil {
			c.failConnect(err, class)
			return err
		}

		c.mu.Lock()
		c.retries++
		n := c.retries
		c.mu.Unlock()
		if n >= MaxRetries {
			c.opts.Metrics.connectOutcome("exhausted")
			c.failConnect(err, class)
			return err
		}

		backoff := c.opts.BackoffBase * (1 << n)
		c.debug("CONNECT", fmt.Sprintf("attempt %d failed, retrying in %s: %v", n, backoff, err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			c.failConnect(ctx.Err(), core.ClassTransient)
			return ctx.Err()
		case <-c.done:
			return nil
		}
		if c.stale(attemptID) {
			return nil
		}
	}
}

func (c *Connection) dial(ctx context.Context, attemptID int64, voice bool, greeting transport.Greeting) (transport.Transport, error) {
	startOpts := transport.StartOptions{
		AgentID:    c.opts.AgentID,
		TextOnly:   !voice,
		Greeting:   greeting,
		TurnTaking: c.opts.TurnTaking,
		Tools:      c.buildTools(),
		Debug:      c.opts.Debug,
	}
	if c.opts.ShareContext && c.opts.Page != nil {
		if content, err := c.opts.Page.ReadPage(ctx); err == nil && content != "" {
			startOpts.Context = map[string]string{"page": content}
		}
	}

	cb := transport.Callbacks{
		OnConnect: func() {
			c.debug("TRANSPORT", "connected")
		},
		OnDisconnect: func(details transport.DisconnectDetails) {
			c.handleTransportDisconnect(attemptID, details)
		},
		OnError: func(err error) {
			c.handleTransportError(attemptID, err)
		},
		OnModeChange: func(mode transport.AgentMode) {
			c.handleModeChange(attemptID, mode)
		},
		OnMessage: func(msg transport.IncomingMessage) {
			c.handleMessage(attemptID, msg)
		},
		OnUnhandledToolCall: func(name string, params map[string]any) {
			c.opts.Logger.Warn("unhandled tool call", "tool", name)
			c.debug("TOOLS", "unhandled tool call: "+name)
		},
		OnDebug: func(event any) {
			c.debug("TRANSPORT", fmt.Sprintf("%v", event))
		},
	}

	neg := &transport.Negotiator{
		Realtime: c.opts.Realtime,
		Reliable: c.opts.Reliable,
		Platform: c.opts.Platform,
		Logger:   c.opts.Logger,
		OnFallback: func(reason error) {
			c.opts.Metrics.fallback()
			c.debug("CONNECT", fmt.Sprintf("falling back to reliable transport: %v", reason))
		},
	}
	return neg.Dial(ctx, startOpts, cb)
}

// buildTools assembles the registry handed to the transport: control
// tools, builtin processing tools, and the externally supplied extras,
// all counted through metrics.
func (c *Connection) buildTools() map[string]transport.ToolFunc {
	reg := tools.NewRegistry(c.opts.Logger)
	ctrl := control{c}
	tools.RegisterControlTools(reg, ctrl)

	deps := tools.ProcessingDeps{
		Storage: c.opts.Storage,
		Page:    c.opts.Page,
	}
	if c.opts.Nav != nil {
		deps.Navigate = c.opts.Nav.RedirectToPage
	}
	tools.RegisterProcessingTools(reg, ctrl, deps)
	reg.Merge(c.opts.ExtraTools, func(fn tools.Func) tools.Func {
		return tools.WrapThinking(ctrl, tools.ThinkingFallback, fn)
	})

	funcs := reg.Funcs()
	for name, fn := range funcs {
		name, fn := name, fn
		funcs[name] = func(ctx context.Context, params map[string]any) (string, error) {
			c.opts.Metrics.toolCall(name)
			c.debug("TOOLS", "invoking "+name)
			return fn(ctx, params)
		}
	}
	return funcs
}

// finishConnect installs the handle and commits the connected state. The
// state is committed only after the handle is captured and input muting
// is configured, so dependent flush/read operations never observe a
// half-initialized session.
func (c *Connection) finishConnect(attemptID int64, handle transport.Transport, voice bool) {
	c.mu.Lock()
	c.handle = handle
	c.kind = handle.Kind()
	c.retries = 0
	c.lastErr = nil
	c.sessionDone = c.opts.Metrics.sessionStarted(modeLabel(voice), string(handle.Kind()))
	c.mu.Unlock()

	// Text mode keeps the hardware input muted.
	_ = handle.SetMicMuted(!voice)
	_ = handle.SetVolume(1)

	c.userDisconnected.Store(false)
	c.transitioning.Store(false)
	c.deferDisconnect.Store(false)

	c.opts.Metrics.connectOutcome("connected")
	c.setState(StateConnected)
	if c.opts.OnConnect != nil {
		c.opts.OnConnect()
	}

	c.store.FlushPendingMessages(handle, true)

	if voice {
		go c.pollAudioLevels(attemptID, handle)
	}
}

func (c *Connection) failConnect(err error, class core.Classification) {
	cerr, ok := err.(*core.Error)
	if !ok {
		cerr = core.NewConnectionError(err.Error(), err)
	}
	c.mu.Lock()
	c.lastErr = cerr
	c.mu.Unlock()

	c.opts.Metrics.connectOutcome("failed")
	c.setStateWithError(StateDisconnected, cerr.Message)
	c.emit(&ErrorEvent{Message: cerr.Message, Permanent: class == core.ClassPermanent})
	if c.opts.OnError != nil {
		c.opts.OnError(cerr)
	}
}

// DisconnectOptions modify a disconnect.
type DisconnectOptions struct {
	// PreserveHistory marks the disconnect as a mode transition: the
	// transcript survives and no session-end bookkeeping runs.
	PreserveHistory bool

	// Reason is recorded with the session end.
	Reason string
}

// Disconnect tears the session down. Idempotent: when already
// disconnected with no cleanup in flight it still sweeps the hardware
// microphone as a safety net.
func (c *Connection) Disconnect(ctx context.Context, opts DisconnectOptions) error {
	// Invalidate in-flight connect continuations first.
	c.attempt.Add(1)

	c.mu.Lock()
	handle := c.handle
	c.handle = nil
	active := c.state.active()
	done := c.sessionDone
	c.sessionDone = nil
	endHook := c.onSessionEnd
	c.mu.Unlock()

	if handle == nil && !active {
		c.opts.Microphone.SweepStray()
		return nil
	}

	c.userDisconnected.Store(true)
	c.transitioning.Store(opts.PreserveHistory)
	c.deferDisconnect.Store(false)
	c.cancelTimers()

	// The end notice marks the boundary of a session that actually
	// connected; canceling a pending connect produces none.
	if handle != nil && !opts.PreserveHistory && endHook != nil {
		endHook(opts.Reason)
	}

	if handle != nil {
		_ = handle.SetMicMuted(true)
		_ = handle.SetVolume(0)

		// Some platforms hang the teardown call; race it against a
		// deadline and move on regardless.
		endCtx, cancel := context.WithTimeout(ctx, c.opts.EndSessionTimeout)
		errCh := make(chan error, 1)
		go func() { errCh <- handle.EndSession(endCtx) }()
		select {
		case err := <-errCh:
			if err != nil {
				c.debug("DISCONNECT", fmt.Sprintf("end session: %v", err))
			}
		case <-endCtx.Done():
			c.debug("DISCONNECT", "end session timed out")
		}
		cancel()
	}

	if err := c.opts.Microphone.Stop(); err != nil {
		c.opts.Logger.Warn("stop microphone", "error", err)
	}
	c.opts.Microphone.SweepStray()

	if done != nil {
		done()
	}
	c.setState(StateDisconnected)
	if c.opts.OnDisconnect != nil {
		c.opts.OnDisconnect()
	}
	c.transitioning.Store(false)
	return nil
}

// Close releases the Connection. The session, if live, is torn down and
// the events channel is closed so range consumers terminate.
func (c *Connection) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	err := c.Disconnect(context.Background(), DisconnectOptions{Reason: "closed"})
	close(c.done)
	c.eventsMu.Lock()
	c.eventsClosed = true
	close(c.events)
	c.eventsMu.Unlock()
	return err
}

// SendText sends user text over the live transport. A send with no
// active transport is a warned no-op; queueing happens upstream.
func (c *Connection) SendText(text string) error {
	c.mu.Lock()
	handle := c.handle
	c.mu.Unlock()
	if handle == nil {
		c.opts.Logger.Warn("send with no active transport")
		return nil
	}
	return transport.Send(handle, text)
}

// SendUserActivity signals user presence to delay agent turn-taking.
func (c *Connection) SendUserActivity() {
	c.mu.Lock()
	handle := c.handle
	c.mu.Unlock()
	if handle != nil {
		handle.SendUserActivity()
	}
}

// AddLocalMessage appends a locally produced message (typed text,
// synthetic notices) to the transcript, stamped with the session id.
func (c *Connection) AddLocalMessage(msg chat.Message) {
	c.mu.Lock()
	if msg.SessionID == "" {
		msg.SessionID = c.sessionID
	}
	c.mu.Unlock()
	c.store.AddMessage(msg)
	c.opts.Metrics.message(string(msg.Role))
	c.emit(&MessageEvent{Message: msg})
	if c.opts.OnMessage != nil {
		c.opts.OnMessage(msg)
	}
}

// --- transport callback handling -------------------------------------

// stale reports whether attemptID has been superseded.
func (c *Connection) stale(attemptID int64) bool {
	return attemptID != c.attempt.Load()
}

// dropCallback is the guard every transport callback passes through: a
// set user-disconnect flag or a superseded attempt drops the callback
// unconditionally.
func (c *Connection) dropCallback(attemptID int64) bool {
	return c.userDisconnected.Load() || c.stale(attemptID)
}

func (c *Connection) handleModeChange(attemptID int64, mode transport.AgentMode) {
	if c.dropCallback(attemptID) {
		return
	}
	c.mu.Lock()
	voice := c.voiceMode
	c.mu.Unlock()
	if !voice {
		// Text mode has no voice-activity states.
		return
	}

	switch mode {
	case transport.ModeSpeaking:
		c.cancelListenTimer()
		c.setState(StateSpeaking)
	case transport.ModeListening:
		c.scheduleListening(attemptID)
	}
}

// scheduleListening debounces the listening transition: residual agent
// audio often outlives the mode event, and committing immediately
// flashes a spurious listening state.
func (c *Connection) scheduleListening(attemptID int64) {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.listenTimer != nil {
		c.listenTimer.Stop()
	}
	c.listenTimer = time.AfterFunc(c.opts.ListeningDebounce, func() {
		c.commitListening(attemptID)
	})
}

func (c *Connection) commitListening(attemptID int64) {
	if c.dropCallback(attemptID) {
		return
	}
	c.mu.Lock()
	handle := c.handle
	c.mu.Unlock()
	if handle == nil {
		return
	}
	if handle.OutputVolume() > c.opts.OutputVolumeFloor {
		c.debug("MODE", "listening suppressed, output still audible")
		return
	}

	if c.deferDisconnect.Swap(false) {
		// A deferred end-call executes here instead of committing the
		// listening state.
		c.cancelForceTimer()
		go func() {
			_ = c.Disconnect(context.Background(), DisconnectOptions{Reason: "end call"})
		}()
		return
	}

	c.setState(StateListening)
}

func (c *Connection) handleMessage(attemptID int64, msg transport.IncomingMessage) {
	if c.dropCallback(attemptID) {
		return
	}
	if !chat.ShouldDisplay(msg.Text) {
		return
	}

	c.mu.Lock()
	voice := c.voiceMode
	sessionID := c.sessionID
	c.mu.Unlock()

	// Text-mode user messages were already added locally by the caller;
	// transport echoes would duplicate them.
	if msg.Source == transport.SourceUser && !voice {
		return
	}

	role := chat.RoleAssistant
	if msg.Source == transport.SourceUser {
		role = chat.RoleUser
	}
	m := chat.Message{Role: role, Content: msg.Text, SessionID: sessionID}
	c.store.AddMessage(m)
	c.opts.Metrics.message(string(role))
	c.emit(&MessageEvent{Message: m})
	if c.opts.OnMessage != nil {
		c.opts.OnMessage(m)
	}
}

func (c *Connection) handleTransportError(attemptID int64, err error) {
	if c.dropCallback(attemptID) {
		return
	}
	class := core.Classify(err)
	c.opts.Metrics.errorClass(string(class))
	c.debug("TRANSPORT", fmt.Sprintf("error: %v", err))
	c.emit(&ErrorEvent{Message: err.Error(), Permanent: class == core.ClassPermanent})
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}

// handleTransportDisconnect is the remote-initiated drop path. Local
// teardown never reaches here: the user-disconnect flag and the
// transitioning flag both drop it.
func (c *Connection) handleTransportDisconnect(attemptID int64, details transport.DisconnectDetails) {
	if c.dropCallback(attemptID) || c.transitioning.Load() {
		return
	}

	c.mu.Lock()
	if c.handle == nil {
		c.mu.Unlock()
		return
	}
	c.handle = nil
	done := c.sessionDone
	c.sessionDone = nil
	endHook := c.onSessionEnd
	c.mu.Unlock()

	c.debug("TRANSPORT", "remote disconnect: "+details.Reason)
	c.cancelTimers()

	if endHook != nil {
		endHook(details.Reason)
	}

	if err := c.opts.Microphone.Stop(); err != nil {
		c.opts.Logger.Warn("stop microphone", "error", err)
	}
	c.opts.Microphone.SweepStray()

	if done != nil {
		done()
	}
	c.setState(StateDisconnected)
	if c.opts.OnDisconnect != nil {
		c.opts.OnDisconnect()
	}
	if details.Err != nil {
		c.handleTransportError(attemptID, details.Err)
	}
}

// --- tools.Control ----------------------------------------------------

// control adapts the Connection to the tool registry's contract. The
// tool-facing disconnect carries no options; it always routes through
// the user-disconnect path with the end-call reason.
type control struct{ *Connection }

func (ct control) Disconnect(ctx context.Context) error {
	return ct.Connection.Disconnect(ctx, DisconnectOptions{Reason: "end call"})
}

// IsDisconnected reports whether the connection is fully torn down.
func (c *Connection) IsDisconnected() bool { return c.State() == StateDisconnected }

// IsSpeaking reports whether the agent is mid-response.
func (c *Connection) IsSpeaking() bool { return c.State() == StateSpeaking }

// IsThinking reports whether the agent is processing.
func (c *Connection) IsThinking() bool { return c.State() == StateThinking }

// SetThinking marks the agent as processing. No-op once inactive.
func (c *Connection) SetThinking() {
	if c.State().active() {
		c.setState(StateThinking)
	}
}

// SetListening forces the listening state. No-op once inactive.
func (c *Connection) SetListening() {
	if c.State().active() {
		c.setState(StateListening)
	}
}

// DeferDisconnectAfterSpeaking flags the connection to disconnect on
// the next listening transition, with a force-disconnect fallback in
// case that transition never arrives.
func (c *Connection) DeferDisconnectAfterSpeaking() {
	c.deferDisconnect.Store(true)
	c.timerMu.Lock()
	if c.forceTimer != nil {
		c.forceTimer.Stop()
	}
	c.forceTimer = time.AfterFunc(c.opts.ForceDisconnectDelay, func() {
		if c.deferDisconnect.Swap(false) {
			_ = c.Disconnect(context.Background(), DisconnectOptions{Reason: "end call"})
		}
	})
	c.timerMu.Unlock()
}

// --- internals --------------------------------------------------------

func (c *Connection) cancelTimers() {
	c.cancelListenTimer()
	c.cancelForceTimer()
}

func (c *Connection) cancelListenTimer() {
	c.timerMu.Lock()
	if c.listenTimer != nil {
		c.listenTimer.Stop()
		c.listenTimer = nil
	}
	c.timerMu.Unlock()
}

func (c *Connection) cancelForceTimer() {
	c.timerMu.Lock()
	if c.forceTimer != nil {
		c.forceTimer.Stop()
		c.forceTimer = nil
	}
	c.timerMu.Unlock()
}

func (c *Connection) setState(newState State) {
	c.setStateWithError(newState, "")
}

func (c *Connection) setStateWithError(newState State, errMsg string) {
	c.mu.Lock()
	oldState := c.state
	c.state = newState
	c.mu.Unlock()

	if oldState == newState {
		return
	}
	c.debug("STATE", fmt.Sprintf("%s -> %s", oldState, newState))
	c.emit(&StateChangedEvent{From: oldState, To: newState, Error: errMsg})
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(newState)
	}
}

// pollAudioLevels periodically reduces the transport's output spectrum
// to AudioLevels for visual collaborators.
func (c *Connection) pollAudioLevels(attemptID int64, handle transport.Transport) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-c.done:
			return
		}
		if c.dropCallback(attemptID) {
			return
		}
		levels := levelsFromFrequencies(handle.OutputVolume(), handle.FrequencyData())
		c.emit(&AudioLevelEvent{Levels: levels})
		if c.opts.OnAudioLevel != nil {
			c.opts.OnAudioLevel(levels)
		}
	}
}

// emit sends an event to the events channel, dropping when full.
func (c *Connection) emit(event Event) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	if c.eventsClosed {
		return
	}
	select {
	case c.events <- event:
	default:
	}
}

// debug traces per-session diagnostics to stderr and mirrors them as
// events for programmatic access. Active only with Options.Debug.
func (c *Connection) debug(category, message string) {
	if !c.opts.Debug {
		return
	}
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(os.Stderr, "\033[90m%s\033[0m [\033[36m%-10s\033[0m] %s\n", timestamp, category, message)
	c.emit(&DebugEvent{Category: category, Message: message})
}

func modeLabel(voice bool) string {
	if voice {
		return "voice"
	}
	return "text"
}
