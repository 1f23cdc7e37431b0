package live

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOptions_Defaults(t *testing.T) {
	t.Setenv("VOXKIT_CONFIG", "")
	opts, err := LoadOptions("")
	if err != nil {
		t.Fatal(err)
	}
	if opts.ListeningDebounce != DefaultListeningDebounce {
		t.Errorf("debounce = %v", opts.ListeningDebounce)
	}
	if !opts.InactivityEnabled {
		t.Error("inactivity should default on")
	}
}

func TestLoadOptions_YAML(t *testing.T) {
	path := writeFile(t, "opts.yaml", "agent_id: agent-42\ndebug: true\nstart_in_voice_mode: true\n")
	opts, err := LoadOptions(path)
	if err != nil {
		t.Fatal(err)
	}
	if opts.AgentID != "agent-42" || !opts.Debug || !opts.StartInVoiceMode {
		t.Errorf("opts = %+v", opts)
	}
	// Defaults survive a partial file.
	if opts.EndSessionTimeout != DefaultEndSessionTimeout {
		t.Errorf("end session timeout = %v", opts.EndSessionTimeout)
	}
}

func TestLoadOptions_JSON(t *testing.T) {
	path := writeFile(t, "opts.json", `{"agent_id": "agent-7", "platform": "ios-safari"}`)
	opts, err := LoadOptions(path)
	if err != nil {
		t.Fatal(err)
	}
	if opts.AgentID != "agent-7" || opts.Platform != "ios-safari" {
		t.Errorf("opts = %+v", opts)
	}
}

func TestLoadOptions_MissingFile(t *testing.T) {
	if _, err := LoadOptions("/nonexistent/opts.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOptions_Env(t *testing.T) {
	path := writeFile(t, "opts.yaml", "agent_id: from-env\n")
	t.Setenv("VOXKIT_CONFIG", path)
	opts, err := LoadOptions("")
	if err != nil {
		t.Fatal(err)
	}
	if opts.AgentID != "from-env" {
		t.Errorf("agent id = %q", opts.AgentID)
	}
}
