package events

import (
	"github.com/smazurov/camview/internal/cameras"
	"github.com/smazurov/camview/internal/clocksync"
	"github.com/smazurov/camview/internal/probe"
	"github.com/smazurov/camview/internal/session"
)

// Event type constants for kelindar/event.
const (
	TypeCameraCreated uint32 = iota + 1
	TypeCameraUpdated
	TypeCameraDeleted
	TypeCamerasChanged
	TypeProbeCompleted
	TypeSessionStatus
	TypeSeekCompleted
	TypeTimeSyncChecked
	TypeSnapshotCaptured
	TypeSnapshotFailed
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// CameraCreatedEvent is published after a camera is added to the registry.
type CameraCreatedEvent struct {
	Camera    cameras.Camera `json:"camera" doc:"Created camera"`
	Action    string         `json:"action" example:"created" doc:"Action type"`
	Timestamp string         `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraCreatedEvent.
func (e CameraCreatedEvent) Type() uint32 { return TypeCameraCreated }

// CameraUpdatedEvent is published after a camera record changes through the API.
type CameraUpdatedEvent struct {
	Camera    cameras.Camera `json:"camera" doc:"Updated camera"`
	Action    string         `json:"action" example:"updated" doc:"Action type"`
	Timestamp string         `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraUpdatedEvent.
func (e CameraUpdatedEvent) Type() uint32 { return TypeCameraUpdated }

// CameraDeletedEvent is published after a camera is removed.
type CameraDeletedEvent struct {
	CameraID  int64  `json:"camera_id" example:"3" doc:"Deleted camera identifier"`
	Action    string `json:"action" example:"deleted" doc:"Action type"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraDeletedEvent.
func (e CameraDeletedEvent) Type() uint32 { return TypeCameraDeleted }

// CamerasChangedEvent carries the full camera list whenever it changes,
// including edits made to the cameras file outside the API.
type CamerasChangedEvent struct {
	Cameras   []cameras.Camera `json:"cameras" doc:"Current camera list ordered by id"`
	Timestamp string           `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CamerasChangedEvent.
func (e CamerasChangedEvent) Type() uint32 { return TypeCamerasChanged }

// ProbeCompletedEvent reports the outcome of a reachability probe.
type ProbeCompletedEvent struct {
	Address   string        `json:"address" example:"192.168.1.10/live" doc:"Address as entered"`
	Outcome   probe.Outcome `json:"outcome" doc:"Probe outcome"`
	Timestamp string        `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProbeCompletedEvent.
func (e ProbeCompletedEvent) Type() uint32 { return TypeProbeCompleted }

// SessionStatusEvent is published on every observable session change.
type SessionStatusEvent struct {
	Status    session.Status `json:"status" doc:"Session status after the change"`
	Timestamp string         `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionStatusEvent.
func (e SessionStatusEvent) Type() uint32 { return TypeSessionStatus }

// SeekCompletedEvent reports how a timestamp seek resolved.
type SeekCompletedEvent struct {
	CameraID  int64  `json:"camera_id" example:"3" doc:"Camera the seek ran on"`
	Target    string `json:"target" example:"2025-01-27T10:00:00Z" doc:"Requested wall-clock position"`
	Success   bool   `json:"success" doc:"Whether the transport accepted the position"`
	Error     string `json:"error,omitempty" doc:"Failure reason"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SeekCompletedEvent.
func (e SeekCompletedEvent) Type() uint32 { return TypeSeekCompleted }

// TimeSyncCheckedEvent reports a clock drift classification.
type TimeSyncCheckedEvent struct {
	CameraID   int64            `json:"camera_id" example:"3" doc:"Camera checked"`
	Status     clocksync.Status `json:"status" doc:"Drift classification"`
	Message    string           `json:"message" example:"Camera time is in sync" doc:"User-facing text"`
	CameraTime string           `json:"camera_time,omitempty" doc:"Camera clock at the check"`
	Timestamp  string           `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for TimeSyncCheckedEvent.
func (e TimeSyncCheckedEvent) Type() uint32 { return TypeTimeSyncChecked }

// SnapshotCapturedEvent is published after a still frame was saved.
type SnapshotCapturedEvent struct {
	CameraID  int64  `json:"camera_id" example:"3" doc:"Camera captured"`
	Path      string `json:"path" doc:"Saved image path"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SnapshotCapturedEvent.
func (e SnapshotCapturedEvent) Type() uint32 { return TypeSnapshotCaptured }

// SnapshotFailedEvent is published when a capture did not produce a file.
type SnapshotFailedEvent struct {
	CameraID  int64  `json:"camera_id" example:"3" doc:"Camera captured"`
	Error     string `json:"error" example:"snapshot timed out after 10s" doc:"Failure reason"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SnapshotFailedEvent.
func (e SnapshotFailedEvent) Type() uint32 { return TypeSnapshotFailed }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"session" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
