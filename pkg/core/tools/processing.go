package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/voxkit-go/voxkit/pkg/storage"
)

// Navigator resolves a navigation target to a human-readable status
// string. Backed by nav.Registry.RedirectToPage.
type Navigator func(ctx context.Context, target string) (string, error)

// PageReader returns the current page's textual context for the agent.
type PageReader interface {
	ReadPage(ctx context.Context) (string, error)
}

// WrapThinking decorates a processing tool: the connection enters the
// thinking state before the tool runs, and a fallback timer forces it back
// to listening if the expected follow-up mode event never arrives after
// the tool resolves.
func WrapThinking(ctrl Control, fallback time.Duration, fn Func) Func {
	if fallback <= 0 {
		fallback = ThinkingFallback
	}
	return func(ctx context.Context, params map[string]any) (string, error) {
		ctrl.SetThinking()
		result, err := fn(ctx, params)
		time.AfterFunc(fallback, func() {
			if ctrl.IsThinking() && !ctrl.IsDisconnected() {
				ctrl.SetListening()
			}
		})
		return result, err
	}
}

// ProcessingDeps are the collaborators the builtin processing tools use.
// Nil fields disable the corresponding tool.
type ProcessingDeps struct {
	Navigate Navigator
	Storage  *storage.Namespace
	Page     PageReader
	Now      func() time.Time
}

// RegisterProcessingTools installs the builtin processing tools, each
// wrapped with the thinking decorator.
func RegisterProcessingTools(r *Registry, ctrl Control, deps ProcessingDeps) {
	wrap := func(fn Func) Func { return WrapThinking(ctrl, ThinkingFallback, fn) }

	if deps.Navigate != nil {
		r.Register("redirectToPage", wrap(redirectToPage(deps.Navigate)))
	}
	if deps.Storage != nil {
		r.Register("syncUserData", wrap(syncUserData(deps.Storage)))
	}
	if deps.Page != nil {
		r.Register("readPageContent", wrap(readPageContent(deps.Page)))
	}
	r.Register("getTime", wrap(getTime(deps.Now)))
}

func redirectToPage(navigate Navigator) Func {
	return func(ctx context.Context, params map[string]any) (string, error) {
		target, _ := params["target"].(string)
		if target == "" {
			target, _ = params["url"].(string)
		}
		if target == "" {
			return "Error: no navigation target provided", nil
		}
		status, err := navigate(ctx, target)
		if err != nil {
			return "Error: " + err.Error(), nil
		}
		return status, nil
	}
}

// syncUserData persists the agent-supplied user profile blob so the next
// session can greet a returning user.
func syncUserData(ns *storage.Namespace) Func {
	return func(ctx context.Context, params map[string]any) (string, error) {
		raw, err := json.Marshal(params)
		if err != nil {
			return "Error: could not encode user data", nil
		}
		if err := storage.SetUserData(ns, string(raw)); err != nil {
			return "Error: could not store user data", nil
		}
		return "User data saved.", nil
	}
}

func readPageContent(page PageReader) Func {
	return func(ctx context.Context, params map[string]any) (string, error) {
		content, err := page.ReadPage(ctx)
		if err != nil {
			return "Error: could not read the current page: " + err.Error(), nil
		}
		if content == "" {
			return "The current page has no readable content.", nil
		}
		return content, nil
	}
}

func getTime(now func() time.Time) Func {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, params map[string]any) (string, error) {
		t := now()
		if tz, _ := params["timezone"].(string); tz != "" {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Sprintf("Error: unknown timezone %q", tz), nil
			}
			t = t.In(loc)
		}
		return fmt.Sprintf("The current time is %s.", t.Format(time.RFC3339)), nil
	}
}
