package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/camview/internal/events"
)

// registerSSERoutes registers the application event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of camera list changes, probe outcomes, seeks, time sync checks and snapshots",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"camera-created":    events.CameraCreatedEvent{},
		"camera-updated":    events.CameraUpdatedEvent{},
		"camera-deleted":    events.CameraDeletedEvent{},
		"cameras-changed":   events.CamerasChangedEvent{},
		"probe-completed":   events.ProbeCompletedEvent{},
		"seek-completed":    events.SeekCompletedEvent{},
		"time-sync-checked": events.TimeSyncCheckedEvent{},
		"snapshot-captured": events.SnapshotCapturedEvent{},
		"snapshot-failed":   events.SnapshotFailedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.CameraCreatedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CameraUpdatedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CameraDeletedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CamerasChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ProbeCompletedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SeekCompletedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.TimeSyncCheckedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SnapshotCapturedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SnapshotFailedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// the current list doubles as the connection confirmation
		if err := send.Data(events.CamerasChangedEvent{
			Cameras:   s.registry.List(),
			Timestamp: events.Now(),
		}); err != nil {
			return
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
