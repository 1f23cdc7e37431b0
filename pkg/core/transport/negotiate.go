package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Negotiation timeouts for the low-latency transport attempt. iOS Safari
// stalls WebRTC negotiation behind a hidden permission prompt, so its
// window is shorter to reach the fallback sooner.
const (
	DefaultFallbackTimeout   = 7 * time.Second
	IOSSafariFallbackTimeout = 4 * time.Second
)

// Negotiator dials the low-latency transport first and falls back to the
// reliable transport when negotiation times out or fails. Text-only
// sessions skip negotiation and use the reliable transport directly.
type Negotiator struct {
	// Realtime is the low-latency dialer. May be nil, in which case all
	// sessions use Reliable.
	Realtime Dialer

	// Reliable is the socket dialer. Required.
	Reliable Dialer

	// FallbackTimeout bounds the low-latency attempt. Zero selects a
	// platform default.
	FallbackTimeout time.Duration

	// Platform is the host platform hint (e.g. "ios-safari").
	Platform string

	Logger *slog.Logger

	// OnFallback is invoked when the low-latency attempt is abandoned.
	OnFallback func(reason error)
}

func (n *Negotiator) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

func (n *Negotiator) fallbackTimeout() time.Duration {
	if n.FallbackTimeout > 0 {
		return n.FallbackTimeout
	}
	if n.Platform == "ios-safari" {
		return IOSSafariFallbackTimeout
	}
	return DefaultFallbackTimeout
}

// Dial establishes a transport session per the negotiation policy.
// A low-latency failure is not surfaced as an error: it silently triggers
// one fallback attempt on the reliable transport.
func (n *Negotiator) Dial(ctx context.Context, opts StartOptions, cb Callbacks) (Transport, error) {
	if n.Reliable == nil {
		return nil, fmt.Errorf("negotiator requires a reliable dialer")
	}
	if opts.TextOnly || n.Realtime == nil {
		return n.Reliable.Dial(ctx, opts, cb)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, n.fallbackTimeout())
	handle, err := n.Realtime.Dial(attemptCtx, opts, cb)
	cancel()
	if err == nil {
		return handle, nil
	}
	if ctx.Err() != nil {
		// The caller gave up, not the transport.
		return nil, ctx.Err()
	}

	n.logger().Warn("low-latency transport failed, falling back",
		"platform", n.Platform,
		"error", err)
	if n.OnFallback != nil {
		n.OnFallback(err)
	}

	return n.Reliable.Dial(ctx, opts, cb)
}
