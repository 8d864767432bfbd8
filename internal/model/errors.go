package model

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned when a capture is started while another is active.
	ErrAlreadyRunning = errors.New("capture session already running")

	// ErrNotRunning is returned when stopping a session that is not running.
	ErrNotRunning = errors.New("capture session not running")

	// ErrStopTimeout is returned when the capture worker did not confirm its exit in time.
	// The session is no longer considered running when this is returned.
	ErrStopTimeout = errors.New("capture worker did not exit before the stop timeout")

	// ErrUnknownConversation is returned when selecting a conversation that has never been seen.
	ErrUnknownConversation = errors.New("unknown conversation")
)

// MalformedPacketError reports a packet that cannot be tracked, usually
// because it has no IP layer.
type MalformedPacketError struct {
	Reason string
}

func (e *MalformedPacketError) Error() string {
	return "malformed packet: " + e.Reason
}

// CaptureSourceError wraps failures opening or reading a packet source.
type CaptureSourceError struct {
	Source string
	Err    error
}

func (e *CaptureSourceError) Error() string {
	return fmt.Sprintf("capture source %s: %v", e.Source, e.Err)
}

func (e *CaptureSourceError) Unwrap() error { return e.Err }

// LookupError wraps a failed geolocation lookup.
type LookupError struct {
	Address string
	Err     error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup %s: %v", e.Address, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }
