package live

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/voxkit-go/voxkit/pkg/core/transport"
)

func TestMetrics_SessionLifecycle(t *testing.T) {
	m := NewMetrics("test")

	done := m.sessionStarted("voice", "websocket")
	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("active = %v after start", got)
	}
	if got := testutil.ToFloat64(m.SessionsTotal.WithLabelValues("voice", "websocket")); got != 1 {
		t.Errorf("sessions total = %v", got)
	}
	done()
	if got := testutil.ToFloat64(m.SessionsActive); got != 0 {
		t.Errorf("active = %v after done", got)
	}

	m.connectOutcome("connected")
	if got := testutil.ToFloat64(m.ConnectAttempts.WithLabelValues("connected")); got != 1 {
		t.Errorf("connect attempts = %v", got)
	}
	m.fallback()
	if got := testutil.ToFloat64(m.ConnectFallbacks); got != 1 {
		t.Errorf("fallbacks = %v", got)
	}
	m.message("user")
	m.toolCall("get_time")
	m.errorClass("transient")
	if got := testutil.ToFloat64(m.MessagesTotal.WithLabelValues("user")); got != 1 {
		t.Errorf("messages = %v", got)
	}
	if got := testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("get_time")); got != 1 {
		t.Errorf("tool calls = %v", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("transient")); got != 1 {
		t.Errorf("errors = %v", got)
	}
}

func TestMetrics_NilReceiverSafe(t *testing.T) {
	var m *Metrics
	done := m.sessionStarted("voice", "websocket")
	done()
	m.connectOutcome("connected")
	m.fallback()
	m.message("user")
	m.toolCall("get_time")
	m.errorClass("transient")
}

func TestConnection_RecordsSessionMetrics(t *testing.T) {
	dialer := &fakeDialer{}
	opts := testOptions(dialer)
	opts.Metrics = NewMetrics("test")
	c := newTestConnection(opts)

	if err := c.Connect(context.Background(), false, transport.Greeting{}); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(opts.Metrics.SessionsActive); got != 1 {
		t.Errorf("active = %v while connected", got)
	}
	if got := testutil.ToFloat64(opts.Metrics.ConnectAttempts.WithLabelValues("connected")); got != 1 {
		t.Errorf("connect attempts = %v", got)
	}

	if err := c.Disconnect(context.Background(), DisconnectOptions{Reason: "user"}); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(opts.Metrics.SessionsActive); got != 0 {
		t.Errorf("active = %v after disconnect", got)
	}
}
