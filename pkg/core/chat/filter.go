package chat

import (
	"regexp"
	"strings"
)

// Placeholder values some agent backends emit instead of real content.
var placeholderBlocklist = map[string]struct{}{
	"":          {},
	"...":       {},
	"…":         {},
	"null":      {},
	"undefined": {},
}

// workflowMarker matches internal workflow-transition markers embedded in
// agent output. These drive server-side flow control and must never reach
// the visible transcript.
var workflowMarker = regexp.MustCompile(`\[\[wf:[^\]]*\]\]`)

// ShouldDisplay reports whether incoming transport text belongs in the
// visible transcript.
func ShouldDisplay(text string) bool {
	trimmed := strings.TrimSpace(text)
	if _, blocked := placeholderBlocklist[trimmed]; blocked {
		return false
	}
	return !workflowMarker.MatchString(trimmed)
}
