// Package mic defines the hardware audio-input collaborator. The actual
// capture device lives in the host environment; the connection state
// machine only needs to release it deterministically and to probe for
// permission before switching into voice mode.
package mic

import "context"

// Microphone is the host's audio input handle. The device is a shared
// singleton the state machine owns explicitly: an open mic after
// disconnect is a user-visible defect (mic-active indicator), so release
// is never left to finalization.
type Microphone interface {
	// Stop releases the capture device and stops all of its tracks.
	Stop() error

	// SweepStray stops any capture tracks left behind outside the owned
	// handle. Called as a teardown safety net even when Stop succeeded,
	// and on disconnect calls that find no active session.
	SweepStray()
}

// PermissionProber checks microphone permission by briefly opening and
// immediately releasing a throwaway capture handle. A nil error means
// permission is granted.
type PermissionProber interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to PermissionProber.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// Noop is a Microphone for hosts without audio capture.
type Noop struct{}

func (Noop) Stop() error { return nil }
func (Noop) SweepStray() {}

// AlwaysGranted is a PermissionProber that grants unconditionally, for
// hosts where permission is managed out of band.
type AlwaysGranted struct{}

func (AlwaysGranted) Probe(ctx context.Context) error { return nil }
