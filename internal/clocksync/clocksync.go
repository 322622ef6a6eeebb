// Package clocksync classifies drift between a camera's presentation clock
// and the local wall clock.
package clocksync

import (
	"fmt"
	"time"
)

// Kind is the drift classification.
type Kind string

// Classifications, ordered by severity.
const (
	KindUnknown     Kind = "unknown"
	KindSynced      Kind = "synced"
	KindSlightlyOff Kind = "slightly_off"
	KindOutOfSync   Kind = "out_of_sync"
)

const (
	syncedBelow      = 1 * time.Second
	slightlyOffBelow = 5 * time.Second
)

// Status is a tagged drift classification. DiffSeconds is the absolute
// difference in whole seconds and is only meaningful for KindSlightlyOff and
// KindOutOfSync.
type Status struct {
	Kind        Kind  `json:"kind" enum:"unknown,synced,slightly_off,out_of_sync"`
	DiffSeconds int64 `json:"diff_seconds,omitempty"`
}

// Unknown is the status before any presentation time has been observed.
var Unknown = Status{Kind: KindUnknown}

// Classify maps an absolute difference to a Status.
func Classify(diffSeconds int64) Status {
	if diffSeconds < 0 {
		diffSeconds = -diffSeconds
	}
	diff := time.Duration(diffSeconds) * time.Second
	switch {
	case diff < syncedBelow:
		return Status{Kind: KindSynced}
	case diff < slightlyOffBelow:
		return Status{Kind: KindSlightlyOff, DiffSeconds: diffSeconds}
	default:
		return Status{Kind: KindOutOfSync, DiffSeconds: diffSeconds}
	}
}

// Message returns the text shown to the user for the status.
func (s Status) Message() string {
	switch s.Kind {
	case KindSynced:
		return "Camera time is in sync"
	case KindSlightlyOff:
		return fmt.Sprintf("Camera time is slightly off by %d seconds", s.DiffSeconds)
	case KindOutOfSync:
		return fmt.Sprintf("Camera time is out of sync by %d seconds", s.DiffSeconds)
	default:
		return "Camera time is unknown"
	}
}

// Result pairs a classification with the camera time it was derived from.
type Result struct {
	Status     Status    `json:"status"`
	CameraTime time.Time `json:"camera_time"`
}

// Evaluator compares presentation timestamps against a wall clock.
type Evaluator struct {
	// Now returns the local wall clock. Defaults to time.Now.
	Now func() time.Time
	// Location is the zone camera times are expressed in. Defaults to time.Local.
	Location *time.Location
}

// NewEvaluator returns an Evaluator on the system clock and zone.
func NewEvaluator() *Evaluator {
	return &Evaluator{Now: time.Now, Location: time.Local}
}

// Evaluate converts presentationEpochMillis to local time and classifies the
// absolute difference to the current wall clock. The result depends only on
// the two instants; nothing is accumulated between calls.
func (e *Evaluator) Evaluate(presentationEpochMillis int64) Result {
	now := time.Now
	if e != nil && e.Now != nil {
		now = e.Now
	}
	loc := time.Local
	if e != nil && e.Location != nil {
		loc = e.Location
	}

	cameraTime := time.UnixMilli(presentationEpochMillis).In(loc)
	drift := now().Sub(cameraTime)
	if drift < 0 {
		drift = -drift
	}

	return Result{
		Status:     Classify(int64(drift / time.Second)),
		CameraTime: cameraTime,
	}
}
