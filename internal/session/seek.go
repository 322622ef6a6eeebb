package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smazurov/camview/internal/player"
)

// ReasonSeekUnsupported is reported when the camera refuses an absolute seek.
const ReasonSeekUnsupported = "this camera does not support seeking to a specific time"

var (
	// ErrSeekRejected matches a SeekError caused by a protocol level refusal.
	ErrSeekRejected = errors.New("seek rejected")
	// ErrSeekCanceled is delivered to a pending seek superseded by Close,
	// Open or another seek.
	ErrSeekCanceled = errors.New("seek canceled")
)

// SeekError is the failure reason of one seek attempt. The session survives it.
type SeekError struct {
	Reason   string
	Rejected bool
	Cause    error
}

func (e *SeekError) Error() string { return e.Reason }

func (e *SeekError) Unwrap() error { return e.Cause }

// Is reports protocol rejections as ErrSeekRejected.
func (e *SeekError) Is(target error) bool {
	return target == ErrSeekRejected && e.Rejected
}

func seekFailure(msg string, cause error) *SeekError {
	return &SeekError{Reason: "failed to seek: " + msg, Cause: cause}
}

// seekErrorFor maps the transport error that resolved a seek.
func seekErrorFor(err *player.Error) *SeekError {
	if err.Code == player.ErrorRemote {
		return &SeekError{Reason: ReasonSeekUnsupported, Rejected: true, Cause: err}
	}
	return seekFailure(err.Error(), err)
}

// pendingSeek is the one-shot listener of an in-flight seek.
type pendingSeek struct {
	handle      player.Player
	unsubscribe func()
	result      chan error
	target      time.Time
	started     time.Time

	prevState   State
	prevPlaying bool
}

// finish deregisters the listener and delivers err exactly once.
func (s *pendingSeek) finish(err error) {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.result != nil {
		s.result <- err
		close(s.result)
		s.result = nil
	}
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTimestamp reads a seek target. RFC 3339 values carry their own offset;
// wall clock values without one are read in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
