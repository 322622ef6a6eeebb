package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/camview/internal/events"
)

// registerSessionStreamRoutes registers the session status stream. It starts
// with the status of every open session, then forwards each change.
func (s *Server) registerSessionStreamRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "sessions-stream",
		Method:      http.MethodGet,
		Path:        "/api/sessions/stream",
		Summary:     "Session Status Stream",
		Description: "Real-time session state, playback errors and seek progress",
		Tags:        []string{"sessions"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"session-status": events.SessionStatusEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 64)

		unsubscribe := events.SubscribeToChannel[events.SessionStatusEvent](s.eventBus, eventCh)
		defer unsubscribe()

		for _, st := range s.hub.List() {
			if err := send.Data(events.SessionStatusEvent{Status: st, Timestamp: events.Now()}); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
