package editor

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog/log"
)

var (
	ErrSessionClosed  = errors.New("editing session is closed")
	ErrInvalidDisplay = errors.New("invalid display surface")
)

// SettingsStore persists a committed logo. The editor does not know how.
type SettingsStore interface {
	SaveLogo(ctx context.Context, logo ExtractedImage) error
}

// StoreFunc adapts a function to a SettingsStore.
type StoreFunc func(ctx context.Context, logo ExtractedImage) error

func (f StoreFunc) SaveLogo(ctx context.Context, logo ExtractedImage) error {
	return f(ctx, logo)
}

// Editor opens editing sessions sharing one validated configuration.
type Editor struct {
	cfg       Config
	extractor *Extractor
}

// New validates cfg; a configuration error is returned wrapped around
// ErrInvalidConfig and no editor is built.
func New(cfg Config) (*Editor, error) {
	ex, err := NewExtractor(cfg)
	if err != nil {
		return nil, err
	}
	return &Editor{cfg: cfg, extractor: ex}, nil
}

func (e *Editor) Config() Config { return e.cfg }

// Open starts a session editing src inside a display surface of the given size.
func (e *Editor) Open(src *SourceImage, display Size) (*Session, error) {
	if src == nil {
		return nil, ErrEmptyImage
	}
	if display.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDisplay, display)
	}
	if display.Width > e.cfg.MaxDisplay || display.Height > e.cfg.MaxDisplay {
		return nil, fmt.Errorf("%w: %s exceeds %d per side", ErrInvalidDisplay, display, e.cfg.MaxDisplay)
	}
	view := NewViewport(e.cfg, display, src.Size())
	return &Session{
		editor:   e,
		src:      src,
		view:     view,
		gestures: NewGestures(e.cfg, view),
	}, nil
}

// Session owns the source image and viewport state of one modal edit. It is
// not safe for concurrent use.
type Session struct {
	editor   *Editor
	src      *SourceImage
	view     *Viewport
	gestures *Gestures
}

func (s *Session) Closed() bool { return s.view == nil }

// Viewport returns the session viewport, or nil once the session is closed.
func (s *Session) Viewport() *Viewport { return s.view }

func (s *Session) Source() *SourceImage { return s.src }

// Handle feeds an input event to the viewport. Closed sessions ignore input.
func (s *Session) Handle(ev Event) {
	if s.Closed() {
		return
	}
	s.gestures.Handle(ev)
}

// SourceRegion is the part of the source image currently inside the guide.
func (s *Session) SourceRegion() Rect {
	if s.Closed() {
		return Rect{}
	}
	return s.editor.extractor.SourceRegion(s.src, s.view.State(), s.view.Display())
}

// Preview renders the display surface, or nil once closed.
func (s *Session) Preview() *image.NRGBA {
	if s.Closed() {
		return nil
	}
	return s.editor.extractor.Preview(s.src, s.view.State(), s.view.Display())
}

// Commit extracts the guide contents, hands them to store and closes the
// session. If the store fails the session stays open so the commit can be
// retried.
func (s *Session) Commit(ctx context.Context, store SettingsStore) (ExtractedImage, error) {
	if s.Closed() {
		return ExtractedImage{}, ErrSessionClosed
	}
	state := s.view.State()
	logo, err := s.editor.extractor.Extract(s.src, state, s.view.Display())
	if err != nil {
		return ExtractedImage{}, err
	}
	log.Ctx(ctx).Debug().
		Stringer("state", state).
		Stringer("region", s.SourceRegion()).
		Int("bytes", len(logo.Data)).
		Msg("extracted logo")

	if err := store.SaveLogo(ctx, logo); err != nil {
		return ExtractedImage{}, fmt.Errorf("failed to save logo: %w", err)
	}
	s.Cancel()
	return logo, nil
}

// Cancel discards the session state without extracting anything.
func (s *Session) Cancel() {
	s.src = nil
	s.view = nil
	s.gestures = nil
}
