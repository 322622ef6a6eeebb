package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/camview/internal/api/models"
	"github.com/smazurov/camview/internal/events"
	"github.com/smazurov/camview/internal/logging"
)

func logEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}

// LogPublisher returns a logging callback publishing entries on bus for the
// log stream.
func LogPublisher(bus *events.Bus) logging.LogCallback {
	return func(entry logging.LogEntry) {
		bus.Publish(logEvent(entry))
	}
}

// registerLogRoutes registers log level control and the log stream.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/logs/level",
		Summary:     "Set Log Level",
		Description: "Change one module's log level until restart",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 422},
	}, func(_ context.Context, input *models.LogLevelRequest) (*models.LogLevelResponse, error) {
		if err := logging.SetModuleLevel(input.Body.Module, input.Body.Level); err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		s.logger.Info("Log level changed", "target_module", input.Body.Module, "level", input.Body.Level)

		resp := &models.LogLevelResponse{}
		resp.Body.Module = input.Body.Module
		resp.Body.Level = input.Body.Level
		return resp, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends buffered logs first, then streams new logs.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// subscribe first so nothing logged while the history is sent is lost
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		var sent uint64
		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.ReadSince(0) {
				if err := send.Data(logEvent(entry)); err != nil {
					return
				}
				sent = entry.Seq
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				// entries logged while the history was sent arrive twice
				if e, ok := event.(events.LogEntryEvent); ok && e.Seq != 0 && e.Seq <= sent {
					continue
				}
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
