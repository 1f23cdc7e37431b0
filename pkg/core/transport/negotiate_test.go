package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeTransport struct {
	kind Kind
	sent []string
}

func (f *fakeTransport) EndSession(ctx context.Context) error { return nil }
func (f *fakeTransport) SetVolume(v float64) error            { return nil }
func (f *fakeTransport) SetMicMuted(muted bool) error         { return nil }
func (f *fakeTransport) OutputVolume() float64                { return 0 }
func (f *fakeTransport) InputVolume() float64                 { return 0 }
func (f *fakeTransport) FrequencyData() []float32             { return nil }
func (f *fakeTransport) SendUserActivity()                    {}
func (f *fakeTransport) Kind() Kind                           { return f.kind }

func (f *fakeTransport) SendUserMessage(text string) error {
	f.sent = append(f.sent, text)
	return nil
}

type textOnlyTransport struct{ fakeTransport }

func (f *textOnlyTransport) SendText(text string) error {
	f.sent = append(f.sent, text)
	return nil
}

// SendUserMessage is shadowed away by embedding; redeclare to fail so probing
// order is observable.
func (f *textOnlyTransport) SendUserMessage(text string) error {
	f.sent = append(f.sent, "via_user_message:"+text)
	return nil
}

func staticDialer(handle Transport, err error) Dialer {
	return DialerFunc(func(ctx context.Context, opts StartOptions, cb Callbacks) (Transport, error) {
		return handle, err
	})
}

func hangingDialer() Dialer {
	return DialerFunc(func(ctx context.Context, opts StartOptions, cb Callbacks) (Transport, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

func TestNegotiator_TextModeSkipsRealtime(t *testing.T) {
	realtimeCalled := false
	n := &Negotiator{
		Realtime: DialerFunc(func(ctx context.Context, opts StartOptions, cb Callbacks) (Transport, error) {
			realtimeCalled = true
			return &fakeTransport{kind: KindRealtime}, nil
		}),
		Reliable: staticDialer(&fakeTransport{kind: KindSocket}, nil),
	}

	handle, err := n.Dial(context.Background(), StartOptions{TextOnly: true}, Callbacks{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if realtimeCalled {
		t.Error("text mode must not attempt the low-latency transport")
	}
	if handle.Kind() != KindSocket {
		t.Errorf("Kind = %v, want %v", handle.Kind(), KindSocket)
	}
}

func TestNegotiator_RealtimePreferredInVoice(t *testing.T) {
	n := &Negotiator{
		Realtime: staticDialer(&fakeTransport{kind: KindRealtime}, nil),
		Reliable: staticDialer(&fakeTransport{kind: KindSocket}, nil),
	}

	handle, err := n.Dial(context.Background(), StartOptions{}, Callbacks{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if handle.Kind() != KindRealtime {
		t.Errorf("Kind = %v, want %v", handle.Kind(), KindRealtime)
	}
}

func TestNegotiator_FallsBackOnTimeout(t *testing.T) {
	var fallbackReason error
	n := &Negotiator{
		Realtime:        hangingDialer(),
		Reliable:        staticDialer(&fakeTransport{kind: KindSocket}, nil),
		FallbackTimeout: 30 * time.Millisecond,
		OnFallback:      func(reason error) { fallbackReason = reason },
	}

	handle, err := n.Dial(context.Background(), StartOptions{}, Callbacks{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if handle.Kind() != KindSocket {
		t.Errorf("Kind = %v, want %v", handle.Kind(), KindSocket)
	}
	if fallbackReason == nil {
		t.Error("expected OnFallback to fire with the timeout reason")
	}
}

func TestNegotiator_FallsBackOnError(t *testing.T) {
	n := &Negotiator{
		Realtime: staticDialer(nil, errors.New("ice failed")),
		Reliable: staticDialer(&fakeTransport{kind: KindSocket}, nil),
	}

	handle, err := n.Dial(context.Background(), StartOptions{}, Callbacks{})
	if err != nil {
		t.Fatalf("fallback should absorb the low-latency error, got %v", err)
	}
	if handle.Kind() != KindSocket {
		t.Errorf("Kind = %v, want %v", handle.Kind(), KindSocket)
	}
}

func TestNegotiator_CallerCancellationWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := &Negotiator{
		Realtime: hangingDialer(),
		Reliable: staticDialer(&fakeTransport{kind: KindSocket}, nil),
	}

	if _, err := n.Dial(ctx, StartOptions{}, Callbacks{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNegotiator_PlatformTimeouts(t *testing.T) {
	cases := []struct {
		platform string
		want     time.Duration
	}{
		{"ios-safari", IOSSafariFallbackTimeout},
		{"", DefaultFallbackTimeout},
		{"android-chrome", DefaultFallbackTimeout},
	}
	for _, tc := range cases {
		n := &Negotiator{Platform: tc.platform}
		if got := n.fallbackTimeout(); got != tc.want {
			t.Errorf("platform %q: timeout = %v, want %v", tc.platform, got, tc.want)
		}
	}
}

func TestSend_ProbesInOrder(t *testing.T) {
	f := &fakeTransport{kind: KindSocket}
	if err := Send(f, "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(f.sent) != 1 || f.sent[0] != "hello" {
		t.Errorf("sent = %v", f.sent)
	}

	// SendUserMessage takes precedence over SendText.
	tt := &textOnlyTransport{}
	if err := Send(tt, "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(tt.sent) != 1 || tt.sent[0] != "via_user_message:hi" {
		t.Errorf("sent = %v, want probe order SendUserMessage first", tt.sent)
	}
}

func TestSend_NoMethod(t *testing.T) {
	bare := struct{ Transport }{&fakeTransport{}}
	if err := Send(bare, "x"); err == nil {
		t.Error("expected error for transport without send methods")
	}
}
