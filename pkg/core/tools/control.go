package tools

import (
	"context"
)

// Fixed responses the agent reads back or reasons over. Kept stable so
// prompt-side handling does not break.
const (
	skipTurnAck     = "Turn skipped, listening for user input."
	endCallDeferred = "Ending the call after the current response finishes."
	endCallDone     = "Call ended."
)

// RegisterControlTools installs skip_turn and end_call. Control tools do
// not pass through the thinking wrapper: they change conversation state
// directly and must not flash a thinking indicator.
func RegisterControlTools(r *Registry, ctrl Control) {
	r.Register("skipTurn", skipTurn(ctrl))
	r.Register("endCall", endCall(ctrl))
}

func skipTurn(ctrl Control) Func {
	return func(ctx context.Context, params map[string]any) (string, error) {
		if !ctrl.IsDisconnected() {
			ctrl.SetListening()
		}
		return skipTurnAck, nil
	}
}

// endCall disconnects the session. A disconnect while the agent is still
// speaking would cut off its own goodbye, so in that case the disconnect
// is deferred to the next listening transition instead.
func endCall(ctrl Control) Func {
	return func(ctx context.Context, params map[string]any) (string, error) {
		if ctrl.IsSpeaking() {
			ctrl.DeferDisconnectAfterSpeaking()
			return endCallDeferred, nil
		}
		if err := ctrl.Disconnect(ctx); err != nil {
			return "Error ending the call: " + err.Error(), nil
		}
		return endCallDone, nil
	}
}
