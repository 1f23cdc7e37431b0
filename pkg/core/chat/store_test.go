package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/voxkit-go/voxkit/pkg/core/transport"
	"github.com/voxkit-go/voxkit/pkg/storage"
)

func newTestStore(t *testing.T) (*Store, *storage.Namespace) {
	ns := storage.NewNamespace(storage.NewMemoryStore(), "voxkit")
	return NewStore(StoreConfig{Namespace: ns}), ns
}

func TestAddMessage_GeneratesIDAndTimestamp(t *testing.T) {
	s, _ := newTestStore(t)

	s.AddMessage(Message{Role: RoleUser, Content: "hi"})

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("len = %d", len(msgs))
	}
	if msgs[0].ID == "" || msgs[0].Timestamp == 0 {
		t.Errorf("missing generated fields: %+v", msgs[0])
	}
}

func TestAddMessage_ReordersUserBeforeRecentAssistantRun(t *testing.T) {
	s, _ := newTestStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.AddMessage(Message{Role: RoleUser, Content: "question"})
	s.AddMessage(Message{Role: RoleAssistant, Content: "answer part 1"})
	s.AddMessage(Message{Role: RoleAssistant, Content: "answer part 2"})

	// User transcript finalizes late, within the reorder window.
	s.now = func() time.Time { return base.Add(500 * time.Millisecond) }
	s.AddMessage(Message{Role: RoleUser, Content: "late user transcript"})

	got := contents(s)
	want := []string{"question", "late user transcript", "answer part 1", "answer part 2"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestAddMessage_NoReorderAfterWindow(t *testing.T) {
	s, _ := newTestStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.AddMessage(Message{Role: RoleAssistant, Content: "answer"})

	s.now = func() time.Time { return base.Add(3 * time.Second) }
	s.AddMessage(Message{Role: RoleUser, Content: "new question"})

	got := contents(s)
	want := []string{"answer", "new question"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestAddMessage_NoReorderWithoutAssistantRun(t *testing.T) {
	s, _ := newTestStore(t)

	s.AddMessage(Message{Role: RoleUser, Content: "a"})
	s.AddMessage(Message{Role: RoleUser, Content: "b"})

	got := contents(s)
	if fmt.Sprint(got) != fmt.Sprint([]string{"a", "b"}) {
		t.Errorf("order = %v", got)
	}
}

func TestAddMessage_ReorderStopsAtUserMessage(t *testing.T) {
	s, _ := newTestStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.AddMessage(Message{Role: RoleUser, Content: "first"})
	s.AddMessage(Message{Role: RoleAssistant, Content: "reply"})

	s.AddMessage(Message{Role: RoleUser, Content: "second"})

	got := contents(s)
	want := []string{"first", "second", "reply"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestPersistence_BoundedAndMostRecent(t *testing.T) {
	ns := storage.NewNamespace(storage.NewMemoryStore(), "voxkit")
	s := NewStore(StoreConfig{Namespace: ns, MaxMessages: 5})

	for i := 0; i < 12; i++ {
		s.AddMessage(Message{Role: RoleAssistant, Content: fmt.Sprintf("m%d", i)})
	}

	persisted := s.Persisted()
	if len(persisted) != 5 {
		t.Fatalf("persisted len = %d, want 5", len(persisted))
	}
	if persisted[0].Content != "m7" || persisted[4].Content != "m11" {
		t.Errorf("persisted window = %q..%q", persisted[0].Content, persisted[4].Content)
	}
}

func TestPersistence_RestoredOnConstruction(t *testing.T) {
	ns := storage.NewNamespace(storage.NewMemoryStore(), "voxkit")
	s := NewStore(StoreConfig{Namespace: ns})
	s.AddMessage(Message{Role: RoleAssistant, Content: "hello again"})

	restored := NewStore(StoreConfig{Namespace: ns})
	if restored.Len() != 1 {
		t.Fatalf("restored len = %d", restored.Len())
	}
	if restored.Messages()[0].Content != "hello again" {
		t.Errorf("restored = %+v", restored.Messages()[0])
	}
}

func TestPersistence_CorruptCopyDiscarded(t *testing.T) {
	ns := storage.NewNamespace(storage.NewMemoryStore(), "voxkit")
	_ = ns.Set("messages", "{broken")

	s := NewStore(StoreConfig{Namespace: ns})
	if s.Len() != 0 {
		t.Errorf("len = %d, want 0", s.Len())
	}
}

func TestClearMessages_RemovesPersistedCopy(t *testing.T) {
	s, ns := newTestStore(t)
	s.AddMessage(Message{Role: RoleUser, Content: "x"})

	s.ClearMessages()

	if s.Len() != 0 {
		t.Error("transcript not cleared")
	}
	if _, ok := ns.Get("messages"); ok {
		t.Error("persisted copy not removed")
	}
}

type recordingTransport struct {
	sent    []string
	failOn  string
	sendErr error
}

func (r *recordingTransport) EndSession(ctx context.Context) error { return nil }
func (r *recordingTransport) SetVolume(v float64) error            { return nil }
func (r *recordingTransport) SetMicMuted(muted bool) error         { return nil }
func (r *recordingTransport) OutputVolume() float64                { return 0 }
func (r *recordingTransport) InputVolume() float64                 { return 0 }
func (r *recordingTransport) FrequencyData() []float32             { return nil }
func (r *recordingTransport) SendUserActivity()                    {}
func (r *recordingTransport) Kind() transport.Kind                 { return transport.KindSocket }

func (r *recordingTransport) SendUserMessage(text string) error {
	if text == r.failOn {
		return fmt.Errorf("send failed")
	}
	r.sent = append(r.sent, text)
	return nil
}

func TestFlushPendingMessages_NoTransportKeepsQueue(t *testing.T) {
	s, _ := newTestStore(t)
	s.QueueMessage("a")

	s.FlushPendingMessages(nil, false)
	if s.PendingCount() != 1 {
		t.Error("queue must survive flush without a transport")
	}

	// Connected flag false also keeps the queue.
	s.FlushPendingMessages(&recordingTransport{}, false)
	if s.PendingCount() != 1 {
		t.Error("queue must survive flush while disconnected")
	}
}

func TestFlushPendingMessages_DrainsOnceInOrder(t *testing.T) {
	s, _ := newTestStore(t)
	s.QueueMessage("a")
	s.QueueMessage("b")
	s.QueueMessage("c")

	rt := &recordingTransport{}
	s.FlushPendingMessages(rt, true)

	if fmt.Sprint(rt.sent) != fmt.Sprint([]string{"a", "b", "c"}) {
		t.Errorf("sent = %v", rt.sent)
	}
	if s.PendingCount() != 0 {
		t.Error("queue not drained")
	}

	// Flushing again sends nothing.
	s.FlushPendingMessages(rt, true)
	if len(rt.sent) != 3 {
		t.Errorf("second flush re-sent: %v", rt.sent)
	}
}

func TestFlushPendingMessages_FailuresNotRequeued(t *testing.T) {
	s, _ := newTestStore(t)
	s.QueueMessage("a")
	s.QueueMessage("bad")
	s.QueueMessage("c")

	rt := &recordingTransport{failOn: "bad"}
	s.FlushPendingMessages(rt, true)

	if fmt.Sprint(rt.sent) != fmt.Sprint([]string{"a", "c"}) {
		t.Errorf("sent = %v", rt.sent)
	}
	if s.PendingCount() != 0 {
		t.Error("failed sends must not be re-queued")
	}
}

func TestQueueMessage_DoesNotTouchTranscript(t *testing.T) {
	s, _ := newTestStore(t)
	s.QueueMessage("pending")
	if s.Len() != 0 {
		t.Error("queue must not touch the visible list")
	}
}

func TestScrollTrigger_FiresOnlyNearBottom(t *testing.T) {
	s, _ := newTestStore(t)

	fired := 0
	s.OnScrollToBottom(func() { fired++ })

	s.AddMessage(Message{Role: RoleUser, Content: "a"})
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}

	s.SetNearBottom(false)
	s.AddMessage(Message{Role: RoleUser, Content: "b"})
	if fired != 1 {
		t.Errorf("fired = %d after scrolling away, want 1", fired)
	}
}

func TestShouldDisplay(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"Hello", true},
		{"", false},
		{"   ", false},
		{"...", false},
		{"…", false},
		{"null", false},
		{"undefined", false},
		{"[[wf:checkout_started]]", false},
		{"before [[wf:x]] after", false},
		{"ellipsis mid-sentence... is fine", true},
	}
	for _, tc := range cases {
		if got := ShouldDisplay(tc.text); got != tc.want {
			t.Errorf("ShouldDisplay(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func contents(s *Store) []string {
	msgs := s.Messages()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}
