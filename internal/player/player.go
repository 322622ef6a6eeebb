// Package player defines the playable transport the session controller drives
// and an RTSP implementation of it.
//
// A Player is pointed at a Source, prepared, played, paused and seeked. It
// reports progress through Events delivered to subscribers; delivery happens
// on goroutines owned by the player, never on the caller's goroutine.
package player

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// TimeUnset marks a timeline value the stream has not reported.
const TimeUnset int64 = math.MinInt64 + 1

// State is the transport readiness.
type State string

// Transport states.
const (
	StateIdle      State = "idle"
	StateBuffering State = "buffering"
	StateReady     State = "ready"
	StateEnded     State = "ended"
)

// ErrorCode classifies transport failures.
type ErrorCode string

// Error codes reported in EventError.
const (
	ErrorNetworkConnectionFailed ErrorCode = "network_connection_failed"
	ErrorConnectionTimeout       ErrorCode = "connection_timeout"
	ErrorDecoderInitFailed       ErrorCode = "decoder_init_failed"
	ErrorRemote                  ErrorCode = "remote_error"
	ErrorUnspecified             ErrorCode = "unspecified"
)

// ErrReleased is returned when a released player is used.
var ErrReleased = errors.New("player released")

// Error is a playback failure reported by the transport.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Config carries per-source transport settings.
type Config struct {
	// ForceReliableTransport requests interleaved TCP delivery instead of UDP.
	ForceReliableTransport bool
	// Timeout bounds connection and session setup.
	Timeout time.Duration
	// ClientIdentifier is sent as the RTSP User-Agent.
	ClientIdentifier string
}

// DefaultConfig matches the live view defaults.
func DefaultConfig() Config {
	return Config{
		ForceReliableTransport: true,
		Timeout:                12 * time.Second,
		ClientIdentifier:       "CameraViewer/1.0",
	}
}

// Source is a stream location plus its transport settings.
type Source struct {
	URI    string
	Config Config
}

// NewSource builds a Source.
func NewSource(uri string, cfg Config) (Source, error) {
	if uri == "" {
		return Source{}, fmt.Errorf("empty source uri")
	}
	return Source{URI: uri, Config: cfg}, nil
}

// Window is one span of the current timeline.
type Window struct {
	// PresentationStartTimeMs is the camera wall clock, in epoch milliseconds,
	// at the current playback position, or TimeUnset.
	PresentationStartTimeMs int64
}

// Timeline describes what the transport knows about the stream's clock.
type Timeline struct {
	Windows []Window
}

// WindowCount returns the number of windows.
func (t Timeline) WindowCount() int {
	return len(t.Windows)
}

// EventKind discriminates Event.
type EventKind uint8

// Event kinds.
const (
	EventStateChanged EventKind = iota + 1
	EventError
)

const typePlayerEvent uint32 = 0x706c6179

// Event is emitted on every state change and every playback error.
type Event struct {
	Kind  EventKind
	State State
	Err   *Error
}

// Type implements event.Event for kelindar/event.
func (e Event) Type() uint32 { return typePlayerEvent }

// Player is the opaque playable transport.
type Player interface {
	// SetSource replaces the active source, tearing down any previous one.
	SetSource(src Source) error
	// Prepare starts connecting to the active source.
	Prepare()
	// Play requests playback; it takes effect once the source is ready.
	Play()
	// Pause stops advancing playback.
	Pause()
	// PlayWhenReady reports whether playback was requested.
	PlayWhenReady() bool
	// SeekTo positions playback. Values at or above the epoch floor are
	// absolute wall clock milliseconds, smaller values are stream offsets.
	SeekTo(positionMillis int64)
	// CurrentPosition returns the playback position in milliseconds.
	CurrentPosition() int64
	// CurrentTimeline returns the stream's clock information.
	CurrentTimeline() Timeline
	// Subscribe registers fn for events until the returned func is called.
	Subscribe(fn func(Event)) (unsubscribe func())
	// Release tears down the transport. It is synchronous and idempotent.
	Release()
}

// Factory creates a fresh Player.
type Factory func() Player
