// Package wsock implements the reliable socket transport on WebSocket.
package wsock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxkit-go/voxkit/pkg/core/transport"
)

const (
	defaultConnectTimeout = 15 * time.Second
	writeControlTimeout   = 2 * time.Second
)

// Dialer establishes WebSocket transport sessions.
type Dialer struct {
	// BaseURL is the agent endpoint, http(s) or ws(s) scheme.
	BaseURL string

	// APIKey, when set, is sent as a bearer token on the upgrade request.
	APIKey string

	// ConnectTimeout bounds the dial + session_ack handshake.
	// Zero means 15 seconds.
	ConnectTimeout time.Duration

	Logger *slog.Logger
}

func (d *Dialer) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Dialer) connectTimeout() time.Duration {
	if d.ConnectTimeout > 0 {
		return d.ConnectTimeout
	}
	return defaultConnectTimeout
}

// Dial opens a WebSocket session: upgrade, session_init, wait for
// session_ack, then start the read loop.
func (d *Dialer) Dial(ctx context.Context, opts transport.StartOptions, cb transport.Callbacks) (transport.Transport, error) {
	wsURL, err := websocketEndpoint(d.BaseURL, opts.AgentID)
	if err != nil {
		return nil, err
	}

	headers := make(http.Header)
	if d.APIKey != "" {
		headers.Set("Authorization", "Bearer "+d.APIKey)
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, d.connectTimeout())
		defer cancel()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	init := clientInit{
		Type:       "session_init",
		AgentID:    opts.AgentID,
		TextOnly:   opts.TextOnly,
		Greeting:   opts.Greeting,
		TurnTaking: opts.TurnTaking,
		Tools:      toolNames(opts.Tools),
		Context:    opts.Context,
	}
	if err := conn.WriteJSON(init); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send session_init: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(d.connectTimeout()))
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read session_ack: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if messageType != websocket.TextMessage {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first frame type %d", messageType)
	}

	var envelope serverEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("decode first frame: %w", err)
	}
	switch envelope.Type {
	case "session_ack":
		// Connected.
	case "error":
		var se serverError
		_ = json.Unmarshal(payload, &se)
		_ = conn.Close()
		return nil, fmt.Errorf("session rejected: %s", se.Message)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first frame type %q", envelope.Type)
	}

	s := &Session{
		conn:   conn,
		cb:     cb,
		tools:  opts.Tools,
		logger: d.logger(),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	if cb.OnConnect != nil {
		cb.OnConnect()
	}
	return s, nil
}

func toolNames(tools map[string]transport.ToolFunc) []string {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func websocketEndpoint(baseURL, agentID string) (string, error) {
	if strings.TrimSpace(baseURL) == "" {
		return "", fmt.Errorf("websocket base URL must not be empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already websocket scheme.
	default:
		return "", fmt.Errorf("base URL must use http(s) or ws(s)")
	}
	q := u.Query()
	q.Set("agent_id", agentID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Session is a live WebSocket transport handle.
type Session struct {
	conn   *websocket.Conn
	cb     transport.Callbacks
	tools  map[string]transport.ToolFunc
	logger *slog.Logger

	done      chan struct{}
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	levelMu   sync.Mutex
	outLevel  float64
	inLevel   float64
	freqs     []float32
	micMuted  bool
	outVolume float64
}

// Kind implements transport.Transport.
func (s *Session) Kind() transport.Kind { return transport.KindSocket }

// SendUserMessage sends a user text turn.
func (s *Session) SendUserMessage(text string) error {
	return s.sendJSON(clientUserMessage{Type: "user_message", Text: text})
}

// SendUserActivity signals user presence to delay agent turn-taking.
func (s *Session) SendUserActivity() {
	_ = s.sendJSON(clientControl{Type: "user_activity"})
}

// SetVolume sets output volume in [0, 1].
func (s *Session) SetVolume(v float64) error {
	s.levelMu.Lock()
	s.outVolume = v
	s.levelMu.Unlock()
	return s.sendJSON(clientSetting{Type: "set_volume", Value: v})
}

// SetMicMuted mutes or unmutes audio input.
func (s *Session) SetMicMuted(muted bool) error {
	s.levelMu.Lock()
	s.micMuted = muted
	s.levelMu.Unlock()
	return s.sendJSON(clientSetting{Type: "set_mic_muted", Muted: muted})
}

// OutputVolume returns the last reported output level.
func (s *Session) OutputVolume() float64 {
	s.levelMu.Lock()
	defer s.levelMu.Unlock()
	return s.outLevel
}

// InputVolume returns the last reported input level.
func (s *Session) InputVolume() float64 {
	s.levelMu.Lock()
	defer s.levelMu.Unlock()
	if s.micMuted {
		return 0
	}
	return s.inLevel
}

// FrequencyData returns the last reported frequency snapshot.
func (s *Session) FrequencyData() []float32 {
	s.levelMu.Lock()
	defer s.levelMu.Unlock()
	if s.freqs == nil {
		return nil
	}
	out := make([]float32, len(s.freqs))
	copy(out, s.freqs)
	return out
}

// EndSession requests a graceful shutdown and closes the connection. The
// ctx deadline bounds the wait for the read loop to drain.
func (s *Session) EndSession(ctx context.Context) error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.sendJSONLocked(clientControl{Type: "session_end"})
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeControlTimeout))
		s.writeMu.Unlock()
		closeErr = s.conn.Close()
	})
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return closeErr
}

func (s *Session) sendJSON(v any) error {
	if s.closed.Load() {
		return fmt.Errorf("session is closed")
	}
	return s.sendJSONLocked(v)
}

func (s *Session) sendJSONLocked(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *Session) readLoop() {
	defer close(s.done)

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.dispatchDisconnect(transport.DisconnectDetails{Reason: "closed"})
				return
			}
			s.dispatchDisconnect(transport.DisconnectDetails{Reason: "read_error", Err: err})
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.handleFrame(data)
	}
}

func (s *Session) handleFrame(data []byte) {
	var envelope serverEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.logger.Warn("undecodable frame", "error", err)
		return
	}

	switch envelope.Type {
	case "agent_mode":
		var frame serverAgentMode
		if json.Unmarshal(data, &frame) != nil {
			return
		}
		if s.cb.OnModeChange != nil {
			s.cb.OnModeChange(transport.AgentMode(frame.Mode))
		}

	case "transcript":
		var frame serverTranscript
		if json.Unmarshal(data, &frame) != nil {
			return
		}
		if s.cb.OnMessage != nil {
			s.cb.OnMessage(transport.IncomingMessage{
				Source: transport.MessageSource(frame.Source),
				Text:   frame.Text,
			})
		}

	case "tool_call":
		var frame serverToolCall
		if json.Unmarshal(data, &frame) != nil {
			return
		}
		go s.runTool(frame)

	case "ping":
		var frame serverPing
		if json.Unmarshal(data, &frame) != nil {
			return
		}
		_ = s.sendJSON(clientPong{Type: "pong", EventID: frame.EventID})

	case "audio_level":
		var frame serverAudioLevel
		if json.Unmarshal(data, &frame) != nil {
			return
		}
		s.levelMu.Lock()
		s.outLevel = frame.Output
		s.inLevel = frame.Input
		if frame.Frequencies != nil {
			s.freqs = frame.Frequencies
		}
		s.levelMu.Unlock()

	case "error":
		var frame serverError
		if json.Unmarshal(data, &frame) != nil {
			return
		}
		if s.cb.OnError != nil {
			s.cb.OnError(fmt.Errorf("%s", frame.Message))
		}

	case "session_end":
		var frame serverSessionEnd
		_ = json.Unmarshal(data, &frame)
		s.dispatchDisconnect(transport.DisconnectDetails{Reason: frame.Reason})

	case "debug":
		var frame serverDebug
		if json.Unmarshal(data, &frame) != nil {
			return
		}
		if s.cb.OnDebug != nil {
			s.cb.OnDebug(frame.Event)
		}

	default:
		if s.cb.OnDebug != nil {
			s.cb.OnDebug(json.RawMessage(data))
		}
	}
}

func (s *Session) runTool(call serverToolCall) {
	fn, ok := s.tools[call.Name]
	if !ok {
		if s.cb.OnUnhandledToolCall != nil {
			s.cb.OnUnhandledToolCall(call.Name, call.Params)
		}
		_ = s.sendJSON(clientToolResult{
			Type:    "tool_result",
			CallID:  call.CallID,
			Result:  fmt.Sprintf("Tool %q is not registered.", call.Name),
			IsError: true,
		})
		return
	}

	result, err := fn(context.Background(), call.Params)
	if err != nil {
		// Tool functions catch their own errors; this is the backstop.
		_ = s.sendJSON(clientToolResult{
			Type:    "tool_result",
			CallID:  call.CallID,
			Result:  fmt.Sprintf("Error executing tool: %v", err),
			IsError: true,
		})
		return
	}
	_ = s.sendJSON(clientToolResult{Type: "tool_result", CallID: call.CallID, Result: result})
}

func (s *Session) dispatchDisconnect(details transport.DisconnectDetails) {
	if s.closed.Swap(true) {
		return
	}
	if s.cb.OnDisconnect != nil {
		s.cb.OnDisconnect(details)
	}
}
