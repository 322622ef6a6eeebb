package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camview/internal/api/models"
	"github.com/smazurov/camview/internal/cameras"
	"github.com/smazurov/camview/internal/events"
)

func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-cameras",
		Method:      http.MethodGet,
		Path:        "/api/cameras",
		Summary:     "List Cameras",
		Description: "Get all registered cameras ordered by id",
		Tags:        []string{"cameras"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.CameraListResponse, error) {
		cams := s.registry.List()
		return &models.CameraListResponse{
			Body: models.CameraListData{Cameras: cams, Count: len(cams)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-camera",
		Method:        http.MethodPost,
		Path:          "/api/cameras",
		Summary:       "Add Camera",
		Description:   "Register a camera without checking that it is reachable",
		Tags:          []string{"cameras"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401, 422, 500},
		Security:      withAuth(),
	}, func(_ context.Context, input *models.CameraRequest) (*models.CameraResponse, error) {
		cam, err := s.insertCamera(input.Body.Camera(0))
		if err != nil {
			return nil, mapCameraError(err)
		}
		return &models.CameraResponse{Body: cam}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "test-camera",
		Method:      http.MethodPost,
		Path:        "/api/cameras/test",
		Summary:     "Test And Add Camera",
		Description: "Probe the camera address and register the camera only if it answers",
		Tags:        []string{"cameras"},
		Errors:      []int{400, 401, 422, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CameraRequest) (*models.CameraTestResponse, error) {
		outcome := s.probe(ctx, input.Body.URL)
		resp := &models.CameraTestResponse{Body: models.CameraTestData{Outcome: outcome}}
		if !outcome.Success() {
			return resp, nil
		}

		cam, err := s.insertCamera(input.Body.Camera(0))
		if err != nil {
			return nil, mapCameraError(err)
		}
		resp.Body.Camera = &cam
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}",
		Summary:     "Get Camera",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CameraIDInput) (*models.CameraResponse, error) {
		cam, err := s.registry.Get(input.ID)
		if err != nil {
			return nil, mapCameraError(err)
		}
		return &models.CameraResponse{Body: cam}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-camera",
		Method:      http.MethodPut,
		Path:        "/api/cameras/{id}",
		Summary:     "Update Camera",
		Description: "Replace a camera. An empty password keeps the stored one. Open sessions keep their address until reopened.",
		Tags:        []string{"cameras"},
		Errors:      []int{400, 401, 404, 422, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CameraUpdateRequest) (*models.CameraResponse, error) {
		current, err := s.registry.Get(input.ID)
		if err != nil {
			return nil, mapCameraError(err)
		}

		cam := input.Body.Camera(input.ID)
		if cam.Password == "" {
			cam.Password = current.Password
		}
		cam.LastSnapshot = current.LastSnapshot
		if err := s.registry.Update(cam); err != nil {
			return nil, mapCameraError(err)
		}

		updated, err := s.registry.Get(input.ID)
		if err != nil {
			return nil, mapCameraError(err)
		}
		s.eventBus.Publish(events.CameraUpdatedEvent{Camera: updated, Action: "updated", Timestamp: events.Now()})
		return &models.CameraResponse{Body: updated}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-camera",
		Method:        http.MethodDelete,
		Path:          "/api/cameras/{id}",
		Summary:       "Delete Camera",
		Description:   "Remove a camera and close its session",
		Tags:          []string{"cameras"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401, 404, 500},
		Security:      withAuth(),
	}, func(_ context.Context, input *models.CameraIDInput) (*struct{}, error) {
		if err := s.registry.Delete(input.ID); err != nil {
			return nil, mapCameraError(err)
		}
		if _, err := s.hub.Close(input.ID); err == nil {
			s.logger.Info("Closed session of deleted camera", "camera_id", input.ID)
		}
		s.eventBus.Publish(events.CameraDeletedEvent{CameraID: input.ID, Action: "deleted", Timestamp: events.Now()})
		return nil, nil
	})
}

func (s *Server) insertCamera(cam cameras.Camera) (cameras.Camera, error) {
	id, err := s.registry.Insert(cam)
	if err != nil {
		return cameras.Camera{}, err
	}
	stored, err := s.registry.Get(id)
	if err != nil {
		return cameras.Camera{}, err
	}
	s.eventBus.Publish(events.CameraCreatedEvent{Camera: stored, Action: "created", Timestamp: events.Now()})
	return stored, nil
}

// mapCameraError converts registry errors to HTTP errors.
func mapCameraError(err error) error {
	var camErr *cameras.Error
	if !errors.As(err, &camErr) {
		return huma.Error500InternalServerError("camera registry failure", err)
	}
	switch camErr.Code {
	case cameras.ErrCodeCameraNotFound:
		return huma.Error404NotFound(camErr.Message)
	case cameras.ErrCodeInvalidParams:
		return huma.Error422UnprocessableEntity(camErr.Message)
	default:
		return huma.Error500InternalServerError(camErr.Message, err)
	}
}
