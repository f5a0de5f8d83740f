package timeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"chartreel/internal/fileutil"
	"chartreel/internal/services"
)

// Store persists the props document at a single path.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a Store for path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the props file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the props document. A missing file yields DefaultProps.
func (s *Store) Load() (Props, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultProps(), nil
		}
		return Props{}, fmt.Errorf("read props: %w", err)
	}
	return Decode(data)
}

// Save validates and atomically writes props.
func (s *Store) Save(props Props) error {
	props.Normalize()
	if err := props.Validate(); err != nil {
		return services.Wrap(services.ErrValidation, "timeline", "save props", "", err)
	}
	data, err := json.MarshalIndent(props, "", "  ")
	if err != nil {
		return fmt.Errorf("encode props: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fileutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write props: %w", err)
	}
	return nil
}

// Decode parses a props document and applies defaults.
func Decode(data []byte) (Props, error) {
	var props Props
	if err := json.Unmarshal(data, &props); err != nil {
		return Props{}, services.Wrap(services.ErrValidation, "timeline", "decode props", "invalid JSON", err)
	}
	props.Normalize()
	return props, nil
}
