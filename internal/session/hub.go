package session

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/smazurov/camview/internal/player"
)

// Hub keeps one controller per camera. Opening a camera that already has a
// controller reuses it, so the old transport is released before the new one
// is created.
type Hub struct {
	sessions map[int64]*Controller
	mu       sync.RWMutex
	factory  player.Factory
	opts     []Option
	logger   *slog.Logger
	stopped  bool
}

// NewHub creates a hub whose controllers use factory and opts.
func NewHub(factory player.Factory, logger *slog.Logger, opts ...Option) *Hub {
	return &Hub{
		sessions: make(map[int64]*Controller),
		factory:  factory,
		opts:     opts,
		logger:   logger,
	}
}

// Open opens ep, replacing the camera's current session if any.
func (h *Hub) Open(ep Endpoint) (Status, error) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return Status{}, ErrClosed
	}
	ctrl, ok := h.sessions[ep.ID]
	if !ok {
		ctrl = New(h.factory, h.opts...)
		h.sessions[ep.ID] = ctrl
	}
	h.mu.Unlock()

	if ok {
		h.logger.Info("Replacing session", "camera_id", ep.ID)
	}

	err := ctrl.Open(ep)
	return ctrl.Status(), err
}

// Get returns the controller for cameraID.
func (h *Hub) Get(cameraID int64) (*Controller, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ctrl, ok := h.sessions[cameraID]
	if !ok {
		return nil, ErrNoSession
	}
	return ctrl, nil
}

// Close closes and forgets the camera's session.
func (h *Hub) Close(cameraID int64) (Status, error) {
	h.mu.Lock()
	ctrl, ok := h.sessions[cameraID]
	delete(h.sessions, cameraID)
	h.mu.Unlock()

	if !ok {
		return Status{}, ErrNoSession
	}

	ctrl.Close()
	h.logger.Info("Session removed", "camera_id", cameraID)
	return ctrl.Status(), nil
}

// List returns the status of every session ordered by camera.
func (h *Hub) List() []Status {
	h.mu.RLock()
	ctrls := make([]*Controller, 0, len(h.sessions))
	for _, ctrl := range h.sessions {
		ctrls = append(ctrls, ctrl)
	}
	h.mu.RUnlock()

	out := make([]Status, 0, len(ctrls))
	for _, ctrl := range ctrls {
		out = append(out, ctrl.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}

// Stop closes every session. Later calls to Open fail with ErrClosed.
func (h *Hub) Stop() {
	h.mu.Lock()
	h.stopped = true
	ctrls := h.sessions
	h.sessions = make(map[int64]*Controller)
	h.mu.Unlock()

	for _, ctrl := range ctrls {
		ctrl.Close()
	}
	h.logger.Info("Session hub stopped", "sessions", len(ctrls))
}
