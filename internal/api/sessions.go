package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camview/internal/api/models"
	"github.com/smazurov/camview/internal/endpoint"
	"github.com/smazurov/camview/internal/events"
	"github.com/smazurov/camview/internal/session"
)

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/sessions",
		Summary:     "List Sessions",
		Tags:        []string{"sessions"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.SessionListResponse, error) {
		list := s.hub.List()
		return &models.SessionListResponse{
			Body: models.SessionListData{Sessions: list, Count: len(list)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "open-session",
		Method:      http.MethodPost,
		Path:        "/api/sessions/{camera_id}",
		Summary:     "Open Session",
		Description: "Open a playback session for a registered camera, replacing its current session",
		Tags:        []string{"sessions"},
		Errors:      []int{401, 404, 422, 503},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.SessionInput) (*models.SessionResponse, error) {
		cam, err := s.registry.Get(input.CameraID)
		if err != nil {
			return nil, mapCameraError(err)
		}

		st, err := s.hub.Open(session.Endpoint{
			ID:       cam.ID,
			Name:     cam.Name,
			Address:  cam.URL,
			Username: cam.Username,
			Password: cam.Password,
		})
		if err != nil {
			return nil, s.mapSessionError(input.CameraID, err)
		}
		return &models.SessionResponse{Body: st}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/sessions/{camera_id}",
		Summary:     "Session Status",
		Tags:        []string{"sessions"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.SessionInput) (*models.SessionResponse, error) {
		ctrl, err := s.hub.Get(input.CameraID)
		if err != nil {
			return nil, s.mapSessionError(input.CameraID, err)
		}
		return &models.SessionResponse{Body: ctrl.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "close-session",
		Method:      http.MethodDelete,
		Path:        "/api/sessions/{camera_id}",
		Summary:     "Close Session",
		Description: "Release the camera's transport and forget the session",
		Tags:        []string{"sessions"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.SessionInput) (*models.SessionResponse, error) {
		st, err := s.hub.Close(input.CameraID)
		if err != nil {
			return nil, s.mapSessionError(input.CameraID, err)
		}
		return &models.SessionResponse{Body: st}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "toggle-playback",
		Method:      http.MethodPost,
		Path:        "/api/sessions/{camera_id}/toggle",
		Summary:     "Toggle Playback",
		Tags:        []string{"sessions"},
		Errors:      []int{401, 404, 409},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.SessionInput) (*models.ToggleResponse, error) {
		ctrl, err := s.hub.Get(input.CameraID)
		if err != nil {
			return nil, s.mapSessionError(input.CameraID, err)
		}
		playing, err := ctrl.TogglePlayback()
		if err != nil {
			return nil, s.mapControlError(err)
		}
		return &models.ToggleResponse{Body: models.ToggleData{Playing: playing}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "skip-back",
		Method:      http.MethodPost,
		Path:        "/api/sessions/{camera_id}/skip-back",
		Summary:     "Skip Back",
		Description: "Move playback backwards, never before the start of the stream",
		Tags:        []string{"sessions"},
		Errors:      []int{401, 404, 409},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.SkipBackRequest) (*models.SkipBackResponse, error) {
		ctrl, err := s.hub.Get(input.CameraID)
		if err != nil {
			return nil, s.mapSessionError(input.CameraID, err)
		}
		pos, err := ctrl.SkipBack(time.Duration(input.Body.Seconds) * time.Second)
		if err != nil {
			return nil, s.mapControlError(err)
		}
		return &models.SkipBackResponse{Body: models.SkipBackData{PositionMs: pos}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "seek-to-timestamp",
		Method:      http.MethodPost,
		Path:        "/api/sessions/{camera_id}/seek",
		Summary:     "Seek To Time",
		Description: "Restart playback at a wall-clock time. A refused seek is reported in the body and leaves the session playing.",
		Tags:        []string{"sessions"},
		Errors:      []int{400, 401, 404, 409, 504},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.SeekRequest) (*models.SeekResponse, error) {
		target, err := session.ParseTimestamp(input.Body.Timestamp, s.seekZone)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		ctrl, err := s.hub.Get(input.CameraID)
		if err != nil {
			return nil, s.mapSessionError(input.CameraID, err)
		}

		data, err := s.seek(ctx, input.CameraID, ctrl, target)
		if err != nil {
			return nil, err
		}
		return &models.SeekResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "check-time-sync",
		Method:      http.MethodPost,
		Path:        "/api/sessions/{camera_id}/time-sync",
		Summary:     "Check Time Sync",
		Description: "Compare the camera's presentation clock with the server clock",
		Tags:        []string{"sessions"},
		Errors:      []int{401, 404, 409},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.SessionInput) (*models.TimeSyncResponse, error) {
		ctrl, err := s.hub.Get(input.CameraID)
		if err != nil {
			return nil, s.mapSessionError(input.CameraID, err)
		}
		result, err := ctrl.CheckTimeSync()
		if err != nil {
			return nil, s.mapControlError(err)
		}

		data := models.TimeSyncData{Status: result.Status, Message: result.Status.Message()}
		if !result.CameraTime.IsZero() {
			data.CameraTime = result.CameraTime.Format(time.RFC3339)
		}
		s.eventBus.Publish(events.TimeSyncCheckedEvent{
			CameraID:   input.CameraID,
			Status:     data.Status,
			Message:    data.Message,
			CameraTime: data.CameraTime,
			Timestamp:  events.Now(),
		})
		return &models.TimeSyncResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "take-snapshot",
		Method:      http.MethodPost,
		Path:        "/api/sessions/{camera_id}/snapshot",
		Summary:     "Take Snapshot",
		Description: "Save a still frame of the session's stream. Playback is not affected.",
		Tags:        []string{"sessions"},
		Errors:      []int{401, 404, 409, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.SessionInput) (*models.SnapshotResponse, error) {
		ctrl, err := s.hub.Get(input.CameraID)
		if err != nil {
			return nil, s.mapSessionError(input.CameraID, err)
		}

		path, err := ctrl.TakeSnapshot(ctx)
		if err != nil {
			if errors.Is(err, session.ErrNoSession) {
				return nil, s.mapControlError(err)
			}
			s.eventBus.Publish(events.SnapshotFailedEvent{CameraID: input.CameraID, Error: err.Error(), Timestamp: events.Now()})
			return nil, huma.Error500InternalServerError("Failed to take snapshot", err)
		}

		if err := s.registry.SetSnapshot(input.CameraID, path); err != nil {
			s.logger.Warn("Failed to record snapshot", "camera_id", input.CameraID, "error", err)
		}
		s.eventBus.Publish(events.SnapshotCapturedEvent{CameraID: input.CameraID, Path: path, Timestamp: events.Now()})
		return &models.SnapshotResponse{Body: models.SnapshotData{Path: path}}, nil
	})
}

// seek starts a seek and waits for it to resolve, the request to end, or
// the seek wait to pass. The seek keeps running when the wait is abandoned.
func (s *Server) seek(ctx context.Context, cameraID int64, ctrl *session.Controller, target time.Time) (models.SeekData, error) {
	done := ctrl.SeekToTimestamp(target)

	wait := time.NewTimer(s.seekWait)
	defer wait.Stop()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		return models.SeekData{}, ctx.Err()
	case <-wait.C:
		return models.SeekData{}, huma.NewError(http.StatusGatewayTimeout,
			fmt.Sprintf("camera did not answer the seek within %s", s.seekWait))
	}

	data := models.SeekData{Success: err == nil, Target: target.Format(time.RFC3339)}
	var seekErr *session.SeekError
	switch {
	case err == nil:
	case errors.As(err, &seekErr):
		data.Error = seekErr.Reason
	case errors.Is(err, session.ErrSeekCanceled):
		return models.SeekData{}, huma.Error409Conflict("seek was superseded")
	default:
		return models.SeekData{}, s.mapControlError(err)
	}

	s.eventBus.Publish(events.SeekCompletedEvent{
		CameraID:  cameraID,
		Target:    data.Target,
		Success:   data.Success,
		Error:     data.Error,
		Timestamp: events.Now(),
	})
	data.Status = ctrl.Status()
	return data, nil
}

// mapSessionError converts hub errors to HTTP errors.
func (s *Server) mapSessionError(cameraID int64, err error) error {
	switch {
	case errors.Is(err, session.ErrNoSession):
		return huma.Error404NotFound(fmt.Sprintf("no session for camera %d", cameraID))
	case errors.Is(err, endpoint.ErrInvalidAddress):
		return huma.Error422UnprocessableEntity("Invalid camera address", err)
	case errors.Is(err, session.ErrClosed):
		return huma.Error503ServiceUnavailable("server is shutting down")
	default:
		s.logger.Error("Session operation failed", "camera_id", cameraID, "error", err)
		return huma.Error500InternalServerError("session failure", err)
	}
}

// mapControlError converts controller errors to HTTP errors.
func (s *Server) mapControlError(err error) error {
	if errors.Is(err, session.ErrNoSession) {
		return huma.Error409Conflict("session has no active stream")
	}
	s.logger.Error("Session control failed", "error", err)
	return huma.Error500InternalServerError("session failure", err)
}
