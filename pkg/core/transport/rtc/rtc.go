// Package rtc implements the low-latency peer transport on WebRTC.
//
// Session negotiation exchanges an SDP offer/answer with the agent's
// signaling endpoint over HTTP; conversation frames then flow over an
// "events" data channel using the same JSON frame shapes as the socket
// transport. Audio travels on a separate sendrecv audio transceiver owned
// by the host environment.
package rtc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/voxkit-go/voxkit/pkg/core/transport"
)

const defaultSignalTimeout = 10 * time.Second

// Dialer establishes WebRTC transport sessions.
type Dialer struct {
	// SignalingURL is the HTTP endpoint that answers SDP offers.
	SignalingURL string

	// APIKey, when set, is sent as a bearer token on the signaling request.
	APIKey string

	// ICEServers overrides the default STUN configuration.
	ICEServers []webrtc.ICEServer

	// HTTPClient overrides the signaling HTTP client.
	HTTPClient *http.Client

	Logger *slog.Logger
}

type signalRequest struct {
	AgentID    string               `json:"agent_id"`
	SDP        string               `json:"sdp"`
	Greeting   transport.Greeting   `json:"greeting,omitempty"`
	TurnTaking transport.TurnTaking `json:"turn_taking,omitempty"`
	Tools      []string             `json:"tools,omitempty"`
	Context    map[string]string    `json:"context,omitempty"`
}

type signalResponse struct {
	SDP   string `json:"sdp"`
	Error string `json:"error,omitempty"`
}

func (d *Dialer) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Dialer) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return http.DefaultClient
}

func (d *Dialer) iceServers() []webrtc.ICEServer {
	if len(d.ICEServers) > 0 {
		return d.ICEServers
	}
	return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
}

// Dial negotiates a WebRTC session and waits for the events data channel
// to open. The ctx deadline bounds the whole negotiation; the caller
// (transport.Negotiator) uses this to trigger the socket fallback.
func (d *Dialer) Dial(ctx context.Context, opts transport.StartOptions, cb transport.Callbacks) (transport.Transport, error) {
	if d.SignalingURL == "" {
		return nil, fmt.Errorf("rtc signaling URL must not be empty")
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: d.iceServers()})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	cleanupOnErr := func(err error) (transport.Transport, error) {
		_ = pc.Close()
		return nil, err
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	}); err != nil {
		return cleanupOnErr(fmt.Errorf("add audio transceiver: %w", err))
	}

	dc, err := pc.CreateDataChannel("events", nil)
	if err != nil {
		return cleanupOnErr(fmt.Errorf("create data channel: %w", err))
	}

	s := &Session{
		pc:     pc,
		dc:     dc,
		cb:     cb,
		tools:  opts.Tools,
		logger: d.logger(),
		opened: make(chan struct{}),
		done:   make(chan struct{}),
	}
	dc.OnOpen(func() { close(s.opened) })
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString {
			s.handleFrame(msg.Data)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
			s.dispatchDisconnect(transport.DisconnectDetails{Reason: state.String()})
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return cleanupOnErr(fmt.Errorf("create offer: %w", err))
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return cleanupOnErr(fmt.Errorf("set local description: %w", err))
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return cleanupOnErr(ctx.Err())
	}

	answer, err := d.signal(ctx, opts, pc.LocalDescription().SDP)
	if err != nil {
		return cleanupOnErr(err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		return cleanupOnErr(fmt.Errorf("set remote description: %w", err))
	}

	select {
	case <-s.opened:
	case <-ctx.Done():
		return cleanupOnErr(fmt.Errorf("data channel open: %w", ctx.Err()))
	}

	if cb.OnConnect != nil {
		cb.OnConnect()
	}
	return s, nil
}

func (d *Dialer) signal(ctx context.Context, opts transport.StartOptions, sdp string) (string, error) {
	names := make([]string, 0, len(opts.Tools))
	for name := range opts.Tools {
		names = append(names, name)
	}
	sort.Strings(names)

	body, err := json.Marshal(signalRequest{
		AgentID:    opts.AgentID,
		SDP:        sdp,
		Greeting:   opts.Greeting,
		TurnTaking: opts.TurnTaking,
		Tools:      names,
		Context:    opts.Context,
	})
	if err != nil {
		return "", fmt.Errorf("encode signal request: %w", err)
	}

	signalCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		signalCtx, cancel = context.WithTimeout(ctx, defaultSignalTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(signalCtx, http.MethodPost, d.SignalingURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build signal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.APIKey)
	}

	resp, err := d.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("signal: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read signal response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("signal failed (status %d)", resp.StatusCode)
	}
	var sr signalResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return "", fmt.Errorf("decode signal response: %w", err)
	}
	if sr.Error != "" {
		return "", fmt.Errorf("signal rejected: %s", sr.Error)
	}
	if sr.SDP == "" {
		return "", fmt.Errorf("signal response missing answer")
	}
	return sr.SDP, nil
}

// Session is a live WebRTC transport handle.
type Session struct {
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	cb     transport.Callbacks
	tools  map[string]transport.ToolFunc
	logger *slog.Logger

	opened    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	levelMu  sync.Mutex
	outLevel float64
	inLevel  float64
	freqs    []float32
	micMuted bool
}

// Kind implements transport.Transport.
func (s *Session) Kind() transport.Kind { return transport.KindRealtime }

// SendUserMessage sends a user text turn over the data channel.
func (s *Session) SendUserMessage(text string) error {
	return s.sendJSON(map[string]any{"type": "user_message", "text": text})
}

// SendUserActivity signals user presence to delay agent turn-taking.
func (s *Session) SendUserActivity() {
	_ = s.sendJSON(map[string]any{"type": "user_activity"})
}

// SetVolume sets output volume in [0, 1].
func (s *Session) SetVolume(v float64) error {
	return s.sendJSON(map[string]any{"type": "set_volume", "value": v})
}

// SetMicMuted mutes the outgoing audio track.
func (s *Session) SetMicMuted(muted bool) error {
	s.levelMu.Lock()
	s.micMuted = muted
	s.levelMu.Unlock()
	return s.sendJSON(map[string]any{"type": "set_mic_muted", "muted": muted})
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

// EndSession closes the data channel and peer connection.
func (s *Session) EndSession(ctx context.Context) error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.sendJSONClosed(map[string]any{"type": "session_end"})
		_ = s.dc.Close()
		closeErr = s.pc.Close()
		close(s.done)
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
	return s.sendJSONClosed(v)
}

func (s *Session) sendJSONClosed(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return s.dc.SendText(string(raw))
}

func (s *Session) handleFrame(data []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.logger.Warn("undecodable frame", "error", err)
		return
	}

	switch envelope.Type {
	case "agent_mode":
		var frame struct {
			Mode string `json:"mode"`
		}
		if json.Unmarshal(data, &frame) != nil {
			return
		}
		if s.cb.OnModeChange != nil {
			s.cb.OnModeChange(transport.AgentMode(frame.Mode))
		}

	case "transcript":
		var frame struct {
			Source string `json:"source"`
			Text   string `json:"text"`
		}
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
		var frame struct {
			CallID string         `json:"call_id"`
			Name   string         `json:"name"`
			Params map[string]any `json:"params"`
		}
		if json.Unmarshal(data, &frame) != nil {
			return
		}
		go s.runTool(frame.CallID, frame.Name, frame.Params)

	case "audio_level":
		var frame struct {
			Output      float64   `json:"output"`
			Input       float64   `json:"input"`
			Frequencies []float32 `json:"frequencies"`
		}
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
		var frame struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &frame) != nil {
			return
		}
		if s.cb.OnError != nil {
			s.cb.OnError(fmt.Errorf("%s", frame.Message))
		}

	case "session_end":
		var frame struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(data, &frame)
		s.dispatchDisconnect(transport.DisconnectDetails{Reason: frame.Reason})

	default:
		if s.cb.OnDebug != nil {
			s.cb.OnDebug(json.RawMessage(append([]byte(nil), data...)))
		}
	}
}

func (s *Session) runTool(callID, name string, params map[string]any) {
	fn, ok := s.tools[name]
	if !ok {
		if s.cb.OnUnhandledToolCall != nil {
			s.cb.OnUnhandledToolCall(name, params)
		}
		_ = s.sendJSON(map[string]any{
			"type": "tool_result", "call_id": callID,
			"result": fmt.Sprintf("Tool %q is not registered.", name), "is_error": true,
		})
		return
	}

	result, err := fn(context.Background(), params)
	if err != nil {
		_ = s.sendJSON(map[string]any{
			"type": "tool_result", "call_id": callID,
			"result": fmt.Sprintf("Error executing tool: %v", err), "is_error": true,
		})
		return
	}
	_ = s.sendJSON(map[string]any{"type": "tool_result", "call_id": callID, "result": result})
}

func (s *Session) dispatchDisconnect(details transport.DisconnectDetails) {
	if s.closed.Swap(true) {
		return
	}
	if s.cb.OnDisconnect != nil {
		s.cb.OnDisconnect(details)
	}
}
