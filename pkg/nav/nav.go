// Package nav is the navigation collaborator: a link registry the agent's
// navigation tool resolves targets against, plus a process-wide
// location-change listener shared by all widget instances.
package nav

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Link is one registered navigation destination.
type Link struct {
	Name string
	URL  string

	// OpenInNewTab asks the host to open the link without leaving the
	// current page.
	OpenInNewTab bool
}

// Opener performs the actual navigation in the host environment.
type Opener interface {
	Open(ctx context.Context, link Link) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, link Link) error

func (f OpenerFunc) Open(ctx context.Context, link Link) error { return f(ctx, link) }

// Registry resolves agent-supplied navigation targets against the
// externally supplied link set. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	links   map[string]Link
	current string
	opener  Opener
	logger  *slog.Logger
}

// NewRegistry creates a registry over links. opener may be nil, in which
// case navigation resolves but performs no host-side action.
func NewRegistry(links []Link, opener Opener, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		links:  make(map[string]Link, len(links)),
		opener: opener,
		logger: logger,
	}
	for _, l := range links {
		r.links[normalize(l.Name)] = l
	}
	return r
}

// SetCurrent records the page the widget currently sits on, so navigating
// there again becomes a no-op.
func (r *Registry) SetCurrent(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = normalize(name)
}

// RedirectToPage resolves target and asks the opener to navigate. The
// returned string is read back to the agent, so every outcome maps to a
// human-readable sentence.
func (r *Registry) RedirectToPage(ctx context.Context, target string) (string, error) {
	key := normalize(target)

	r.mu.Lock()
	link, ok := r.links[key]
	current := r.current
	opener := r.opener
	r.mu.Unlock()

	if !ok {
		return fmt.Sprintf("Error: %q not found in registry", target), nil
	}
	if key == current {
		return fmt.Sprintf("Already on %s.", link.Name), nil
	}

	if opener != nil {
		if err := opener.Open(ctx, link); err != nil {
			r.logger.Warn("navigation failed", "target", link.Name, "error", err)
			return fmt.Sprintf("Error: could not navigate to %s", link.Name), nil
		}
	}

	if !link.OpenInNewTab {
		r.SetCurrent(link.Name)
	}
	return fmt.Sprintf("Navigating to %s...", link.Name), nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
