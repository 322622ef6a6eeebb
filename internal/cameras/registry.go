package cameras

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Registry is the camera list with change notification.
type Registry struct {
	mu       sync.Mutex
	store    Store
	watchers map[int]chan []Camera
	nextW    int
	logger   *slog.Logger
}

// NewRegistry wraps store. Call Load before use.
func NewRegistry(store Store, logger *slog.Logger) *Registry {
	return &Registry{
		store:    store,
		watchers: make(map[int]chan []Camera),
		logger:   logger,
	}
}

// Load reads the persisted cameras.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Load(); err != nil {
		return storageError("failed to load cameras", err)
	}
	r.logger.Info("Cameras loaded", "count", len(r.store.All()))
	return nil
}

// List returns every camera ordered by ID.
func (r *Registry) List() []Camera {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.All()
}

// Get returns the camera with id.
func (r *Registry) Get(id int64) (Camera, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cam, ok := r.store.Get(id)
	if !ok {
		return Camera{}, notFound(id)
	}
	return cam, nil
}

// Insert stores cam under a new ID and returns it. cam.ID is ignored.
func (r *Registry) Insert(cam Camera) (int64, error) {
	cam = trim(cam)
	if err := cam.Validate(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var maxID int64
	for _, existing := range r.store.All() {
		maxID = max(maxID, existing.ID)
	}
	cam.ID = maxID + 1

	if err := r.store.Add(cam); err != nil {
		return 0, storageError("failed to save camera", err)
	}

	r.logger.Info("Camera added", "camera_id", cam.ID, "name", cam.Name)
	r.notifyLocked()
	return cam.ID, nil
}

// Update replaces the stored camera with the same ID.
func (r *Registry) Update(cam Camera) error {
	cam = trim(cam)
	if err := cam.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.store.Get(cam.ID); !ok {
		return notFound(cam.ID)
	}
	if err := r.store.Update(cam); err != nil {
		return storageError("failed to save camera", err)
	}

	r.logger.Info("Camera updated", "camera_id", cam.ID)
	r.notifyLocked()
	return nil
}

// Delete removes the camera with id.
func (r *Registry) Delete(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.store.Get(id); !ok {
		return notFound(id)
	}
	if err := r.store.Remove(id); err != nil {
		return storageError("failed to delete camera", err)
	}

	r.logger.Info("Camera deleted", "camera_id", id)
	r.notifyLocked()
	return nil
}

// SetSnapshot records the latest snapshot path for a camera.
func (r *Registry) SetSnapshot(id int64, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cam, ok := r.store.Get(id)
	if !ok {
		return notFound(id)
	}
	cam.LastSnapshot = path
	if err := r.store.Update(cam); err != nil {
		return storageError("failed to save camera", err)
	}
	r.notifyLocked()
	return nil
}

// Reload replaces the in-memory list with cams read from an edited file.
// It is a no-op when nothing changed.
func (r *Registry) Reload(cams []Camera) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.Equal(r.store.All(), cams) {
		return
	}
	r.store.Reset(cams)
	r.logger.Info("Cameras reloaded from file", "count", len(cams))
	r.notifyLocked()
}

// Watch delivers the current list at once and again after every change
// until ctx is done. A slow reader only sees the latest list.
func (r *Registry) Watch(ctx context.Context) <-chan []Camera {
	ch := make(chan []Camera, 1)

	r.mu.Lock()
	id := r.nextW
	r.nextW++
	r.watchers[id] = ch
	ch <- r.store.All()
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		delete(r.watchers, id)
		close(ch)
		r.mu.Unlock()
	}()

	return ch
}

func (r *Registry) notifyLocked() {
	for _, ch := range r.watchers {
		// replace an unread list with the newer one
		select {
		case <-ch:
		default:
		}
		ch <- r.store.All()
	}
}

func trim(cam Camera) Camera {
	cam.Name = strings.TrimSpace(cam.Name)
	cam.URL = strings.TrimSpace(cam.URL)
	cam.Username = strings.TrimSpace(cam.Username)
	return cam
}
