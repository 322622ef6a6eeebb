package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camview/internal/api/models"
	"github.com/smazurov/camview/internal/endpoint"
	"github.com/smazurov/camview/internal/events"
	"github.com/smazurov/camview/internal/logging"
	"github.com/smazurov/camview/internal/probe"
)

func (s *Server) registerProbeRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "probe-address",
		Method:      http.MethodPost,
		Path:        "/api/probe",
		Summary:     "Probe Address",
		Description: "Check whether an RTSP endpoint answers. Blocks for at most the probe timeout and never retries.",
		Tags:        []string{"cameras"},
		Errors:      []int{400, 401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.ProbeRequest) (*models.ProbeResponse, error) {
		return &models.ProbeResponse{
			Body: models.ProbeData{
				Address: input.Body.Address,
				Outcome: s.probe(ctx, input.Body.Address),
			},
		}, nil
	})
}

// probe runs one reachability check and publishes its outcome without the
// address credentials.
func (s *Server) probe(ctx context.Context, address string) probe.Outcome {
	outcome := s.prober.Probe(ctx, address)

	public := logging.Scrub(address)
	if target, err := endpoint.Normalize(address); err == nil {
		public = endpoint.Redact(target.URI)
	}
	s.eventBus.Publish(events.ProbeCompletedEvent{
		Address:   public,
		Outcome:   outcome,
		Timestamp: events.Now(),
	})
	return outcome
}
