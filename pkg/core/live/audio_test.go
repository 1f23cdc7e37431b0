package live

import "testing"

func TestLevelsFromFrequencies(t *testing.T) {
	freqs := []float32{
		1.0, 1.0, 1.0, // bass bins
		0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, // mid bins
		0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, // treble bins
	}
	levels := levelsFromFrequencies(0.8, freqs)

	if levels.Volume != 0.8 {
		t.Errorf("volume = %v", levels.Volume)
	}
	if levels.Bass <= levels.Mid || levels.Mid <= levels.Treble {
		t.Errorf("band ordering wrong: %+v", levels)
	}
}

func TestLevelsFromFrequencies_Empty(t *testing.T) {
	levels := levelsFromFrequencies(0.3, nil)
	if levels.Volume != 0.3 || levels.Bass != 0 || levels.Mid != 0 || levels.Treble != 0 {
		t.Errorf("levels = %+v", levels)
	}
}

func TestLevelsFromFrequencies_Clamped(t *testing.T) {
	levels := levelsFromFrequencies(1.7, []float32{2.0, 2.0})
	if levels.Volume != 1 {
		t.Errorf("volume = %v, want clamp to 1", levels.Volume)
	}
	if levels.Bass > 1 {
		t.Errorf("bass = %v, want clamp to 1", levels.Bass)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateDisconnected: "DISCONNECTED",
		StateConnecting:   "CONNECTING",
		StateInitializing: "INITIALIZING",
		StateConnected:    "CONNECTED",
		StateListening:    "LISTENING",
		StateSpeaking:     "SPEAKING",
		StateThinking:     "THINKING",
		State(99):         "UNKNOWN",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
