// Package inactivity implements the restartable per-session countdown that
// ends an idle conversation, with an optional pre-timeout warning.
package inactivity

import (
	"log/slog"
	"sync"
	"time"
)

// Mode selects which timeout duration applies.
type Mode string

const (
	ModeVoice Mode = "voice"
	ModeText  Mode = "text"
)

const (
	// DefaultTimeout applies to both modes unless overridden.
	DefaultTimeout = 3 * time.Minute

	// DefaultWarningLead is how long before the terminal fire the warning
	// callback runs.
	DefaultWarningLead = 30 * time.Second
)

// Config configures a Timer.
type Config struct {
	// Enabled gates the whole timer. When false, Start is a no-op.
	Enabled bool

	// VoiceTimeout and TextTimeout override DefaultTimeout when positive.
	VoiceTimeout time.Duration
	TextTimeout  time.Duration

	// WarningLead overrides DefaultWarningLead when positive.
	WarningLead time.Duration

	// OnTimeout fires exactly once per arming when the countdown expires.
	// The timer does not re-arm itself afterwards.
	OnTimeout func()

	// OnWarning, if set, fires WarningLead before the terminal deadline.
	OnWarning func(remaining time.Duration)

	Logger *slog.Logger
}

// Timer is the per-session inactivity countdown. It is either idle or
// armed; arming cancels any previous countdown. Safe for concurrent use.
type Timer struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	armed     bool
	mode      Mode
	deadline  time.Time
	warnTimer *time.Timer
	termTimer *time.Timer
}

// NewTimer creates an idle Timer.
func NewTimer(cfg Config) *Timer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Timer{cfg: cfg, logger: logger}
}

// timeoutFor returns the configured countdown duration for mode.
func (t *Timer) timeoutFor(mode Mode) time.Duration {
	var d time.Duration
	switch mode {
	case ModeVoice:
		d = t.cfg.VoiceTimeout
	default:
		d = t.cfg.TextTimeout
	}
	if d <= 0 {
		d = DefaultTimeout
	}
	return d
}

func (t *Timer) warningLead() time.Duration {
	if t.cfg.WarningLead > 0 {
		return t.cfg.WarningLead
	}
	return DefaultWarningLead
}

// Start arms the countdown for mode, replacing any countdown in flight.
// Called whenever the connection becomes active and whenever the mode
// flips while connected. No-op when the timer is disabled.
func (t *Timer) Start(mode Mode) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.cfg.Enabled {
		return
	}

	t.cancelLocked()

	timeout := t.timeoutFor(mode)
	t.armed = true
	t.mode = mode
	t.deadline = time.Now().Add(timeout)

	if t.cfg.OnWarning != nil {
		lead := t.warningLead()
		if lead < timeout {
			t.warnTimer = time.AfterFunc(timeout-lead, t.warn)
		}
	}
	t.termTimer = time.AfterFunc(timeout, t.fire)

	t.logger.Debug("inactivity timer armed", "mode", string(mode), "timeout", timeout)
}

// Reset re-arms the countdown from zero in the current mode. No-op when
// idle: activity on a dead session must not resurrect the timer.
func (t *Timer) Reset() {
	t.mu.Lock()
	armed := t.armed
	mode := t.mode
	t.mu.Unlock()
	if armed {
		t.Start(mode)
	}
}

// Stop cancels the countdown without firing anything.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
}

func (t *Timer) cancelLocked() {
	if t.warnTimer != nil {
		t.warnTimer.Stop()
		t.warnTimer = nil
	}
	if t.termTimer != nil {
		t.termTimer.Stop()
		t.termTimer = nil
	}
	t.armed = false
}

func (t *Timer) warn() {
	t.mu.Lock()
	if !t.armed {
		t.mu.Unlock()
		return
	}
	remaining := time.Until(t.deadline)
	if remaining < 0 {
		remaining = 0
	}
	callback := t.cfg.OnWarning
	t.mu.Unlock()

	if callback != nil {
		callback(remaining)
	}
}

func (t *Timer) fire() {
	t.mu.Lock()
	if !t.armed {
		t.mu.Unlock()
		return
	}
	t.cancelLocked()
	mode := t.mode
	callback := t.cfg.OnTimeout
	t.mu.Unlock()

	t.logger.Debug("inactivity timeout", "mode", string(mode))

	if callback != nil {
		callback()
	}
}

// Armed reports whether a countdown is in flight.
func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Remaining returns the time left on the countdown. The second return is
// false when the timer is idle.
func (t *Timer) Remaining() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed {
		return 0, false
	}
	remaining := time.Until(t.deadline)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}
