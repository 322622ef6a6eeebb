package cameras

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/pelletier/go-toml/v2"
)

// Store persists camera records. Implementations are not safe for
// concurrent use; Registry serializes access.
type Store interface {
	Load() error
	Save() error
	Add(cam Camera) error
	Update(cam Camera) error
	Remove(id int64) error
	Get(id int64) (Camera, bool)
	All() []Camera
	// Reset replaces the in-memory records without writing the file.
	Reset(cams []Camera)
}

// fileConfig is the cameras file layout.
type fileConfig struct {
	Version int      `toml:"version"`
	Cameras []Camera `toml:"cameras"`
}

type tomlStore struct {
	path    string
	cameras map[int64]Camera
}

// NewTOML creates a TOML file backed store.
func NewTOML(path string) Store {
	if path == "" {
		path = "cameras.toml"
	}
	return &tomlStore{
		path:    path,
		cameras: make(map[int64]Camera),
	}
}

// ReadFile parses a cameras file. A missing file yields no cameras.
func ReadFile(path string) ([]Camera, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cameras file: %w", err)
	}

	var cfg fileConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse cameras file: %w", err)
	}

	seen := make(map[int64]bool, len(cfg.Cameras))
	for _, cam := range cfg.Cameras {
		if cam.ID <= 0 {
			return nil, fmt.Errorf("camera %q has no id", cam.Name)
		}
		if seen[cam.ID] {
			return nil, fmt.Errorf("duplicate camera id %d", cam.ID)
		}
		seen[cam.ID] = true
	}
	return sortByID(cfg.Cameras), nil
}

func (s *tomlStore) Load() error {
	cams, err := ReadFile(s.path)
	if err != nil {
		return err
	}
	s.Reset(cams)
	return nil
}

func (s *tomlStore) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cameras directory: %w", err)
	}

	data, err := toml.Marshal(fileConfig{Version: 1, Cameras: s.All()})
	if err != nil {
		return fmt.Errorf("failed to marshal cameras: %w", err)
	}

	// credentials live in this file
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cameras file: %w", err)
	}
	return nil
}

func (s *tomlStore) Add(cam Camera) error {
	s.cameras[cam.ID] = cam
	return s.Save()
}

func (s *tomlStore) Update(cam Camera) error {
	s.cameras[cam.ID] = cam
	return s.Save()
}

func (s *tomlStore) Remove(id int64) error {
	delete(s.cameras, id)
	return s.Save()
}

func (s *tomlStore) Get(id int64) (Camera, bool) {
	cam, ok := s.cameras[id]
	return cam, ok
}

func (s *tomlStore) All() []Camera {
	out := make([]Camera, 0, len(s.cameras))
	for _, cam := range s.cameras {
		out = append(out, cam)
	}
	return sortByID(out)
}

func (s *tomlStore) Reset(cams []Camera) {
	s.cameras = make(map[int64]Camera, len(cams))
	for _, cam := range cams {
		s.cameras[cam.ID] = cam
	}
}

func sortByID(cams []Camera) []Camera {
	slices.SortFunc(cams, func(a, b Camera) int { return cmp.Compare(a.ID, b.ID) })
	return cams
}
