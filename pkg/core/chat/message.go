// Package chat owns the visible transcript: message history, insertion
// ordering with speech-recognition lag correction, bounded persistence,
// and the outgoing queue for messages sent before a transport exists.
package chat

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in the visible transcript.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	SessionID string `json:"session_id,omitempty"`
	// Timestamp is epoch milliseconds.
	Timestamp int64 `json:"timestamp,omitempty"`
}

var messageSeq atomic.Int64

// newMessageID generates a unique, roughly monotonic message identifier.
func newMessageID(now time.Time) string {
	return fmt.Sprintf("msg_%d_%d", now.UnixMilli(), messageSeq.Add(1))
}
