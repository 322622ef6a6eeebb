package models

import (
	"github.com/smazurov/camview/internal/cameras"
	"github.com/smazurov/camview/internal/probe"
)

// CameraInput is the writable part of a camera.
type CameraInput struct {
	Name     string `json:"name" minLength:"1" example:"Porch" doc:"Display name"`
	URL      string `json:"url" minLength:"1" example:"192.168.1.10:554/live" doc:"Stream address, scheme and port optional"`
	Username string `json:"username,omitempty" example:"admin" doc:"Stream username"`
	Password string `json:"password,omitempty" doc:"Stream password, never returned"`
}

// Camera converts the input into a registry record.
func (in CameraInput) Camera(id int64) cameras.Camera {
	return cameras.Camera{
		ID:       id,
		Name:     in.Name,
		URL:      in.URL,
		Username: in.Username,
		Password: in.Password,
	}
}

// CameraRequest represents a create request.
type CameraRequest struct {
	Body CameraInput
}

// CameraUpdateRequest represents an update request.
type CameraUpdateRequest struct {
	ID   int64 `path:"id" minimum:"1" example:"3" doc:"Camera identifier"`
	Body CameraInput
}

// CameraIDInput addresses one camera.
type CameraIDInput struct {
	ID int64 `path:"id" minimum:"1" example:"3" doc:"Camera identifier"`
}

// CameraResponse returns one camera.
type CameraResponse struct {
	Body cameras.Camera
}

// CameraListData lists the registry.
type CameraListData struct {
	Cameras []cameras.Camera `json:"cameras" doc:"Registered cameras ordered by id"`
	Count   int              `json:"count" example:"2" doc:"Number of cameras"`
}

// CameraListResponse returns the registry.
type CameraListResponse struct {
	Body CameraListData
}

// ProbeRequest asks for a reachability check.
type ProbeRequest struct {
	Body struct {
		Address string `json:"address" example:"192.168.1.10/live" doc:"Address as entered by the user"`
	}
}

// ProbeData reports a probe.
type ProbeData struct {
	Address string        `json:"address" doc:"Address as entered"`
	Outcome probe.Outcome `json:"outcome" doc:"Probe outcome"`
}

// ProbeResponse returns a probe outcome.
type ProbeResponse struct {
	Body ProbeData
}

// CameraTestData reports a probe-then-add attempt. Camera is only set when
// the probe succeeded and the camera was stored.
type CameraTestData struct {
	Outcome probe.Outcome   `json:"outcome" doc:"Probe outcome"`
	Camera  *cameras.Camera `json:"camera,omitempty" doc:"Stored camera"`
}

// CameraTestResponse returns a probe-then-add result.
type CameraTestResponse struct {
	Body CameraTestData
}
