package models

import (
	"github.com/smazurov/camview/internal/clocksync"
	"github.com/smazurov/camview/internal/session"
)

// SessionInput addresses the session of one camera.
type SessionInput struct {
	CameraID int64 `path:"camera_id" minimum:"1" example:"3" doc:"Camera identifier"`
}

// SessionResponse returns a session status.
type SessionResponse struct {
	Body session.Status
}

// SessionListData lists open sessions.
type SessionListData struct {
	Sessions []session.Status `json:"sessions" doc:"Open sessions ordered by camera"`
	Count    int              `json:"count" example:"1" doc:"Number of sessions"`
}

// SessionListResponse returns every open session.
type SessionListResponse struct {
	Body SessionListData
}

// ToggleData reports the playback flag after a toggle.
type ToggleData struct {
	Playing bool `json:"playing" doc:"Whether playback is now requested"`
}

// ToggleResponse returns a toggle result.
type ToggleResponse struct {
	Body ToggleData
}

// SkipBackRequest moves playback backwards.
type SkipBackRequest struct {
	CameraID int64 `path:"camera_id" minimum:"1" example:"3" doc:"Camera identifier"`
	Body     struct {
		Seconds int `json:"seconds,omitempty" minimum:"0" example:"10" doc:"Distance in seconds, 10 when omitted"`
	}
}

// SkipBackData reports the new position.
type SkipBackData struct {
	PositionMs int64 `json:"position_ms" example:"52000" doc:"Position after the skip in milliseconds"`
}

// SkipBackResponse returns a skip result.
type SkipBackResponse struct {
	Body SkipBackData
}

// SeekRequest moves playback to a wall-clock time.
type SeekRequest struct {
	CameraID int64 `path:"camera_id" minimum:"1" example:"3" doc:"Camera identifier"`
	Body     struct {
		Timestamp string `json:"timestamp" example:"2025-01-27 10:00:00" doc:"RFC 3339 time, or local wall-clock time in the configured seek zone"`
	}
}

// SeekData reports how a seek resolved.
type SeekData struct {
	Success bool           `json:"success" doc:"Whether the transport accepted the position"`
	Target  string         `json:"target" example:"2025-01-27T10:00:00+01:00" doc:"Resolved target time"`
	Error   string         `json:"error,omitempty" example:"this camera does not support seeking to a specific time" doc:"Failure reason"`
	Status  session.Status `json:"status" doc:"Session status after the seek"`
}

// SeekResponse returns a seek result.
type SeekResponse struct {
	Body SeekData
}

// TimeSyncData reports a clock drift check.
type TimeSyncData struct {
	Status     clocksync.Status `json:"status" doc:"Drift classification"`
	Message    string           `json:"message" example:"Camera time is in sync" doc:"User-facing text"`
	CameraTime string           `json:"camera_time,omitempty" example:"2025-01-27T10:30:00+01:00" doc:"Camera clock at the check"`
}

// TimeSyncResponse returns a clock drift check.
type TimeSyncResponse struct {
	Body TimeSyncData
}

// SnapshotData reports a saved frame.
type SnapshotData struct {
	Path string `json:"path" doc:"Saved image path"`
}

// SnapshotResponse returns a snapshot result.
type SnapshotResponse struct {
	Body SnapshotData
}
