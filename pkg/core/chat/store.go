package chat

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/voxkit-go/voxkit/pkg/core/transport"
	"github.com/voxkit-go/voxkit/pkg/storage"
)

const (
	// DefaultMaxMessages bounds the persisted transcript.
	DefaultMaxMessages = 50

	// DefaultReorderWindow is how far back a freshly finalized user
	// transcript may be reordered ahead of faster-generated agent replies.
	// Empirically tuned; preserve the mechanism, not the exact value.
	DefaultReorderWindow = 2 * time.Second

	persistKey = "messages"
)

// StoreConfig configures a Store.
type StoreConfig struct {
	// Namespace is the durable store for persistence. Nil disables it.
	Namespace *storage.Namespace

	// MaxMessages bounds the persisted list. Zero means DefaultMaxMessages.
	MaxMessages int

	// ReorderWindow overrides DefaultReorderWindow when positive.
	ReorderWindow time.Duration

	Logger *slog.Logger
}

// Store holds the visible transcript and the pending outgoing queue.
// Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	messages []Message
	pending  []string

	ns            *storage.Namespace
	maxMessages   int
	reorderWindow time.Duration
	logger        *slog.Logger

	nearBottom bool
	onScroll   func()

	// now is swappable for tests.
	now func() time.Time
}

// NewStore creates a Store, restoring any persisted transcript. A persisted
// copy that fails to parse is discarded.
func NewStore(cfg StoreConfig) *Store {
	s := &Store{
		ns:            cfg.Namespace,
		maxMessages:   cfg.MaxMessages,
		reorderWindow: cfg.ReorderWindow,
		logger:        cfg.Logger,
		nearBottom:    true,
		now:           time.Now,
	}
	if s.maxMessages <= 0 {
		s.maxMessages = DefaultMaxMessages
	}
	if s.reorderWindow <= 0 {
		s.reorderWindow = DefaultReorderWindow
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.restore()
	return s
}

func (s *Store) restore() {
	if s.ns == nil {
		return
	}
	raw, ok := s.ns.Get(persistKey)
	if !ok {
		return
	}
	var messages []Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		s.logger.Warn("discarding unparsable persisted transcript", "error", err)
		_ = s.ns.Remove(persistKey)
		return
	}
	s.messages = messages
}

// AddMessage appends a message, generating an ID and timestamp if absent.
//
// A user message arriving within the reorder window of one or more
// immediately preceding assistant messages is inserted before that
// contiguous assistant run: speech-recognition finalization lags behind
// faster-generated agent replies, so without this the transcript shows the
// answer above the question.
func (s *Store) AddMessage(msg Message) {
	s.mu.Lock()
	now := s.now()
	if msg.ID == "" {
		msg.ID = newMessageID(now)
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = now.UnixMilli()
	}

	insertAt := len(s.messages)
	if msg.Role == RoleUser {
		cutoff := now.Add(-s.reorderWindow).UnixMilli()
		for insertAt > 0 {
			prev := s.messages[insertAt-1]
			if prev.Role != RoleAssistant || prev.Timestamp < cutoff {
				break
			}
			insertAt--
		}
	}

	if insertAt == len(s.messages) {
		s.messages = append(s.messages, msg)
	} else {
		s.messages = append(s.messages, Message{})
		copy(s.messages[insertAt+1:], s.messages[insertAt:])
		s.messages[insertAt] = msg
	}

	s.persistLocked()
	nearBottom := s.nearBottom
	onScroll := s.onScroll
	s.mu.Unlock()

	if nearBottom && onScroll != nil {
		onScroll()
	}
}

// Messages returns a copy of the visible transcript.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the transcript length.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// ClearMessages empties the transcript and removes the persisted copy.
func (s *Store) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	if s.ns != nil {
		if err := s.ns.Remove(persistKey); err != nil {
			s.logger.Warn("remove persisted transcript", "error", err)
		}
	}
}

// persistLocked serializes the most recent maxMessages entries.
func (s *Store) persistLocked() {
	if s.ns == nil {
		return
	}
	tail := s.messages
	if len(tail) > s.maxMessages {
		tail = tail[len(tail)-s.maxMessages:]
	}
	raw, err := json.Marshal(tail)
	if err != nil {
		s.logger.Warn("encode transcript", "error", err)
		return
	}
	if err := s.ns.Set(persistKey, string(raw)); err != nil {
		s.logger.Warn("persist transcript", "error", err)
	}
}

// Persisted returns the persisted transcript copy, for boundary checks.
func (s *Store) Persisted() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ns == nil {
		return nil
	}
	raw, ok := s.ns.Get(persistKey)
	if !ok {
		return nil
	}
	var messages []Message
	if json.Unmarshal([]byte(raw), &messages) != nil {
		return nil
	}
	return messages
}

// QueueMessage appends outgoing text to the pending queue without touching
// the visible transcript.
func (s *Store) QueueMessage(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, text)
}

// PendingCount returns the pending queue length.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// FlushPendingMessages drains the pending queue through the transport, in
// FIFO order. No-op unless connected with a non-empty queue. The queue is
// emptied regardless of individual send failures: delivery is best effort
// and a failed send is logged, never re-queued.
func (s *Store) FlushPendingMessages(handle transport.Transport, isConnected bool) {
	s.mu.Lock()
	if !isConnected || handle == nil || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, text := range pending {
		if err := transport.Send(handle, text); err != nil {
			s.logger.Warn("flush pending message", "error", err)
		}
	}
}

// SetNearBottom records whether the view is scrolled near the bottom.
func (s *Store) SetNearBottom(near bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nearBottom = near
}

// NearBottom reports whether the view is scrolled near the bottom.
func (s *Store) NearBottom() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nearBottom
}

// OnScrollToBottom registers the scroll trigger fired after each mutation
// while the view is near the bottom.
func (s *Store) OnScrollToBottom(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onScroll = fn
}
