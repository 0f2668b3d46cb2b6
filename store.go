package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"logocrop/editor"
)

// ErrNoLogo is returned when no logo has been saved yet.
var ErrNoLogo = errors.New("no logo saved")

// Branding is the persisted branding settings record.
type Branding struct {
	Logo      string        `json:"logo"`
	Format    editor.Format `json:"format"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// FileStore keeps the branding settings in a directory: the encoded logo as a
// file and a JSON record with the logo embedded as a data URL.
type FileStore struct {
	Dir string

	mu  sync.Mutex
	now func() time.Time
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir, now: time.Now}
}

func (s *FileStore) recordPath() string {
	return filepath.Join(s.Dir, "branding.json")
}

func (s *FileStore) SaveLogo(ctx context.Context, logo editor.ExtractedImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create settings directory %s: %w", s.Dir, err)
	}

	logoPath := filepath.Join(s.Dir, "logo."+logo.Ext())
	if err := writeFileAtomic(logoPath, logo.Data); err != nil {
		return err
	}

	record := Branding{
		Logo:      logo.DataURL(),
		Format:    logo.Format,
		Width:     logo.Width,
		Height:    logo.Height,
		UpdatedAt: s.now().UTC(),
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal branding settings: %w", err)
	}
	if err := writeFileAtomic(s.recordPath(), data); err != nil {
		return err
	}

	log.Ctx(ctx).Info().
		Str("path", logoPath).
		Int("width", logo.Width).
		Int("height", logo.Height).
		Msg("saved logo")
	return nil
}

// Branding loads the saved branding record.
func (s *FileStore) Branding() (Branding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.recordPath())
	if errors.Is(err, os.ErrNotExist) {
		return Branding{}, ErrNoLogo
	}
	if err != nil {
		return Branding{}, fmt.Errorf("failed to read branding settings: %w", err)
	}
	var b Branding
	if err := json.Unmarshal(data, &b); err != nil {
		return Branding{}, fmt.Errorf("failed to parse branding settings: %w", err)
	}
	return b, nil
}

// LoadLogo returns the saved logo file.
func (s *FileStore) LoadLogo(ctx context.Context) (editor.ExtractedImage, error) {
	b, err := s.Branding()
	if err != nil {
		return editor.ExtractedImage{}, err
	}
	logo := editor.ExtractedImage{Format: b.Format, Width: b.Width, Height: b.Height}
	data, err := os.ReadFile(filepath.Join(s.Dir, "logo."+logo.Ext()))
	if err != nil {
		return editor.ExtractedImage{}, fmt.Errorf("failed to read logo: %w", err)
	}
	logo.Data = data
	return logo, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// JSONStore writes every saved logo as one JSON line instead of persisting it.
type JSONStore struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONStore(w io.Writer) *JSONStore {
	return &JSONStore{enc: json.NewEncoder(w)}
}

func (s *JSONStore) SaveLogo(_ context.Context, logo editor.ExtractedImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(Branding{
		Logo:      logo.DataURL(),
		Format:    logo.Format,
		Width:     logo.Width,
		Height:    logo.Height,
		UpdatedAt: time.Now().UTC(),
	})
}
