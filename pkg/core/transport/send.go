package transport

import "fmt"

// Optional send interfaces a Transport may implement. Naming differs across
// SDK versions, so callers probe these in order rather than requiring one.
type (
	UserMessageSender interface {
		SendUserMessage(text string) error
	}
	TextSender interface {
		SendText(text string) error
	}
	MessageSender interface {
		SendMessage(text string) error
	}
)

// Send delivers text through the handle's best-available send method.
// Candidates are probed in order: SendUserMessage, SendText, SendMessage.
func Send(handle Transport, text string) error {
	switch h := handle.(type) {
	case UserMessageSender:
		return h.SendUserMessage(text)
	case TextSender:
		return h.SendText(text)
	case MessageSender:
		return h.SendMessage(text)
	default:
		return fmt.Errorf("transport %T has no send method", handle)
	}
}
