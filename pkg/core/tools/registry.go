// Package tools implements the client tool registry: named functions the
// remote agent can invoke mid-conversation, passed to the transport at
// session start.
package tools

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxkit-go/voxkit/pkg/core/transport"
)

// Func is the uniform tool signature dispatched by the transport.
type Func = transport.ToolFunc

// Control is the slice of the connection state machine the control tools
// need. Implemented by live.Connection.
type Control interface {
	IsDisconnected() bool
	IsSpeaking() bool
	IsThinking() bool
	SetThinking()
	SetListening()

	// Disconnect tears the session down through the same path as a
	// user-initiated disconnect.
	Disconnect(ctx context.Context) error

	// DeferDisconnectAfterSpeaking flags the connection to disconnect on
	// the next listening transition, with a force-disconnect fallback in
	// case that transition never arrives.
	DeferDisconnectAfterSpeaking()
}

// ThinkingFallback is how long a processing tool may leave the connection
// in the thinking state after resolving before it is forced back to
// listening.
const ThinkingFallback = 3 * time.Second

// Registry maps tool names to functions. Each registration also installs a
// snake_case alias so the agent's tool-invocation naming convention does
// not matter. Safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	funcs  map[string]Func
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{funcs: make(map[string]Func), logger: logger}
}

// Register installs fn under name and under its snake_case alias. Later
// registrations replace earlier ones.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
	if alias := snakeCase(name); alias != name {
		r.funcs[alias] = fn
	}
}

// Merge registers every tool in extra, wrapped with wrap if non-nil.
// Used for externally supplied tools, which get the same thinking
// treatment as the builtin processing tools.
func (r *Registry) Merge(extra map[string]Func, wrap func(Func) Func) {
	for name, fn := range extra {
		if wrap != nil {
			fn = wrap(fn)
		}
		r.Register(name, fn)
	}
}

// Funcs returns a copy of the registered mapping, for handing to the
// transport at session start.
func (r *Registry) Funcs() map[string]Func {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Func, len(r.funcs))
	for name, fn := range r.funcs {
		out[name] = fn
	}
	return out
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// snakeCase converts camelCase to snake_case. Names already in snake_case
// pass through unchanged.
func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
