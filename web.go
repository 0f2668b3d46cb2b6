package main

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"logocrop/editor"
)

//go:embed static
var staticFS embed.FS
var isDebug = os.Getenv("DEBUG") == "1"

type Config struct {
	RootDir string
	// SkipDir is left out of directory listings, usually the settings dir.
	SkipDir          string
	Editor           *editor.Editor
	Loader           *ImageLoader
	Store            editor.SettingsStore
	Display          editor.Size
	// SessionIdle is how long an untouched session is kept before it is
	// discarded.
	SessionIdle      time.Duration
	OnBeforeShutdown func()
	OnReady          func(addr string)
	OnCommit         func(logo editor.ExtractedImage)
}

type WebApp struct {
	config       Config
	sessions     *sessionRegistry
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

func NewWebApp(config Config) *WebApp {
	if config.Loader == nil {
		config.Loader = NewImageLoader(0)
	}
	if config.Display.Empty() {
		config.Display = editor.Size{Width: 600, Height: 600}
	}
	if config.SessionIdle <= 0 {
		config.SessionIdle = 30 * time.Minute
	}
	return &WebApp{
		config:     config,
		sessions:   newSessionRegistry(),
		shutdownCh: make(chan struct{}),
	}
}

func (a *WebApp) Shutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdownCh)
	})
}

// logoSource is implemented by stores that can hand back the saved logo.
type logoSource interface {
	LoadLogo(ctx context.Context) (editor.ExtractedImage, error)
}

type openRequest struct {
	Filename string `json:"filename" form:"filename"`
	Width    int    `json:"width" form:"width"`
	Height   int    `json:"height" form:"height"`
}

type eventsRequest struct {
	Events []editor.Event `json:"events"`
}

type sessionView struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	Source   editor.Size          `json:"source"`
	Display  editor.Size          `json:"display"`
	Viewport editor.ViewportState `json:"viewport"`
	Dragging bool                 `json:"dragging"`
	Guide    editor.Rect          `json:"guide"`
	Region   editor.Rect          `json:"region"`
	ZoomMin  float64              `json:"zoom_min"`
	ZoomMax  float64              `json:"zoom_max"`
	OpenedAt time.Time            `json:"opened_at"`
}

type logoResponse struct {
	Format  editor.Format `json:"format"`
	Width   int           `json:"width"`
	Height  int           `json:"height"`
	DataURL string        `json:"data_url"`
}

func (a *WebApp) view(ls *liveSession) sessionView {
	cfg := a.config.Editor.Config()
	v := ls.session.Viewport()
	return sessionView{
		ID:       ls.id,
		Name:     ls.name,
		Source:   v.Source(),
		Display:  v.Display(),
		Viewport: v.State(),
		Dragging: v.Dragging(),
		Guide:    v.Guide(),
		Region:   ls.session.SourceRegion(),
		ZoomMin:  cfg.ZoomMin,
		ZoomMax:  cfg.ZoomMax,
		OpenedAt: ls.openedAt,
	}
}

// withSession runs fn holding the session lock. Closed, idle or unknown
// sessions are reported as 404.
func (a *WebApp) withSession(c *fiber.Ctx, fn func(ls *liveSession) error) error {
	ls, ok := a.sessions.get(c.Params("id"))
	if !ok {
		return fiber.NewError(http.StatusNotFound, "session not found")
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.session.Closed() {
		return fiber.NewError(http.StatusNotFound, "session not found")
	}
	now := a.sessions.now()
	if now.Sub(ls.touched) > a.config.SessionIdle {
		ls.session.Cancel()
		a.sessions.remove(ls.id)
		log.Ctx(requestContext(c)).Info().Msg("discarded idle editing session")
		return fiber.NewError(http.StatusNotFound, "session not found")
	}
	ls.touched = now
	return fn(ls)
}

func requestContext(c *fiber.Ctx) context.Context {
	lc := log.Logger.With().Str("path", c.Path())
	if id := c.Params("id"); id != "" {
		lc = lc.Str("session", id)
	}
	logger := lc.Logger()
	return logger.WithContext(c.UserContext())
}

func inputError(err error) error {
	switch {
	case errors.Is(err, ErrImageTooLarge):
		return fiber.NewError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrNotImage):
		return fiber.NewError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, editor.ErrEmptyImage), errors.Is(err, editor.ErrInvalidDisplay):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	}
	return err
}

func (a *WebApp) openSession(c *fiber.Ctx) error {
	ctx := requestContext(c)

	var req openRequest
	var src *editor.SourceImage
	var name string

	if fh, err := c.FormFile("file"); err == nil {
		req.Width, _ = strconv.Atoi(c.FormValue("width"))
		req.Height, _ = strconv.Atoi(c.FormValue("height"))
		f, err := fh.Open()
		if err != nil {
			return fmt.Errorf("failed to open upload: %w", err)
		}
		defer f.Close()
		if src, err = a.config.Loader.Load(ctx, f, fh.Header.Get("Content-Type")); err != nil {
			return inputError(err)
		}
		name = fh.Filename
	} else {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "expected an upload or a filename")
		}
		path, err := resolveInRoot(a.config.RootDir, req.Filename)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		f, err := os.Open(path)
		if err != nil {
			return fiber.NewError(http.StatusNotFound, "file not found")
		}
		defer f.Close()
		if src, err = a.config.Loader.Load(ctx, f, ""); err != nil {
			return inputError(err)
		}
		name = req.Filename
	}

	display := a.config.Display
	if req.Width > 0 && req.Height > 0 {
		display = editor.Size{Width: req.Width, Height: req.Height}
	}
	session, err := a.config.Editor.Open(src, display)
	if err != nil {
		return inputError(err)
	}

	ls := a.sessions.add(name, session)
	log.Ctx(ctx).Info().
		Str("session", ls.id).
		Str("name", name).
		Stringer("source", src.Size()).
		Stringer("display", display).
		Msg("opened editing session")
	return c.Status(http.StatusCreated).JSON(a.view(ls))
}

func (a *WebApp) handleEvents(c *fiber.Ctx) error {
	var req eventsRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid events payload")
	}
	if len(req.Events) == 0 {
		var ev editor.Event
		if err := json.Unmarshal(c.Body(), &ev); err == nil && ev.Kind != "" {
			req.Events = append(req.Events, ev)
		}
	}
	return a.withSession(c, func(ls *liveSession) error {
		for _, ev := range req.Events {
			ls.session.Handle(ev)
		}
		return c.JSON(a.view(ls))
	})
}

func (a *WebApp) commitSession(c *fiber.Ctx) error {
	ctx := requestContext(c)
	var logo editor.ExtractedImage
	err := a.withSession(c, func(ls *liveSession) error {
		var err error
		logo, err = ls.session.Commit(ctx, a.config.Store)
		if err != nil {
			return err
		}
		a.sessions.remove(ls.id)
		return nil
	})
	if err != nil {
		return err
	}
	if fn := a.config.OnCommit; fn != nil {
		fn(logo)
	}
	return c.JSON(logoResponse{
		Format:  logo.Format,
		Width:   logo.Width,
		Height:  logo.Height,
		DataURL: logo.DataURL(),
	})
}

func (a *WebApp) routes() *fiber.App {
	webapp := fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
		BodyLimit:             int(a.config.Loader.MaxBytes) + 1<<20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Ctx(c.Context()).Error().
				Err(err).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("Request failed")
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				if fiberErr.Code == http.StatusNotFound && c.Path() == "/favicon.ico" {
					return nil
				}
				return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
			}
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		},
	})

	webapp.Use(recover.New())

	filesRoot := http.Dir(a.config.RootDir)
	webapp.Get("/api/view", func(c *fiber.Ctx) error {
		filePath := c.Query("file")
		return filesystem.SendFile(c, filesRoot, filePath)
	})

	webapp.Get("/api/ls", func(c *fiber.Ctx) error {
		dir, err := walkImages(requestContext(c), a.config.RootDir, a.config.SkipDir)
		if err != nil {
			return fmt.Errorf("failed to walk dir: %w", err)
		}
		for i := range dir.Files {
			dir.Files[i].URL = "/api/view?file=" + url.QueryEscape(dir.Files[i].Name)
		}
		return c.JSON(dir)
	})

	webapp.Post("/api/sessions", a.openSession)

	webapp.Get("/api/sessions/:id", func(c *fiber.Ctx) error {
		return a.withSession(c, func(ls *liveSession) error {
			return c.JSON(a.view(ls))
		})
	})

	webapp.Post("/api/sessions/:id/events", a.handleEvents)

	webapp.Post("/api/sessions/:id/fit", func(c *fiber.Ctx) error {
		return a.withSession(c, func(ls *liveSession) error {
			ls.session.Viewport().Fit()
			return c.JSON(a.view(ls))
		})
	})

	webapp.Post("/api/sessions/:id/reset", func(c *fiber.Ctx) error {
		return a.withSession(c, func(ls *liveSession) error {
			ls.session.Viewport().Reset()
			return c.JSON(a.view(ls))
		})
	})

	webapp.Get("/api/sessions/:id/preview", func(c *fiber.Ctx) error {
		var buf bytes.Buffer
		err := a.withSession(c, func(ls *liveSession) error {
			return imaging.Encode(&buf, ls.session.Preview(), imaging.PNG)
		})
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, "image/png")
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.Send(buf.Bytes())
	})

	webapp.Post("/api/sessions/:id/commit", a.commitSession)

	webapp.Delete("/api/sessions/:id", func(c *fiber.Ctx) error {
		err := a.withSession(c, func(ls *liveSession) error {
			ls.session.Cancel()
			a.sessions.remove(ls.id)
			log.Ctx(requestContext(c)).Info().Msg("cancelled editing session")
			return nil
		})
		if err != nil {
			return err
		}
		return c.SendStatus(http.StatusNoContent)
	})

	webapp.Get("/api/logo", func(c *fiber.Ctx) error {
		src, ok := a.config.Store.(logoSource)
		if !ok {
			return fiber.NewError(http.StatusNotFound, "logo storage is write-only")
		}
		logo, err := src.LoadLogo(requestContext(c))
		if errors.Is(err, ErrNoLogo) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, logo.MIMEType())
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.Send(logo.Data)
	})

	webapp.Post("/api/shutdown", func(c *fiber.Ctx) error {
		a.Shutdown()
		return nil
	})

	if isDebug {
		log.Debug().Msg("Debug mode enabled, serving static files from './static' directory")
		webapp.Static("/", "static")
	} else {
		log.Debug().Msg("Serving static files from embedded filesystem")
		webapp.Use("/", filesystem.New(filesystem.Config{
			Root:       http.FS(staticFS),
			PathPrefix: "/static",
		}))
	}

	return webapp
}

// sweepIdle discards abandoned sessions until ctx is done.
func (a *WebApp) sweepIdle(ctx context.Context) {
	ticker := time.NewTicker(a.config.SessionIdle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.sessions.expire(a.config.SessionIdle); n > 0 {
				log.Ctx(ctx).Info().Int("count", n).Msg("discarded idle editing sessions")
			}
		}
	}
}

func (a *WebApp) Run(ctx context.Context) error {
	webapp := a.routes()

	webapp.Hooks().OnListen(func(listen fiber.ListenData) error {
		if fn := a.config.OnReady; fn != nil {
			fn(fmt.Sprintf("http://%s:%s", listen.Host, listen.Port))
		}
		return nil
	})

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.sweepIdle(sweepCtx)

	go func() {
		select {
		case <-ctx.Done():
		case <-a.shutdownCh:
		}
		if fn := a.config.OnBeforeShutdown; fn != nil {
			fn()
		}
		a.sessions.closeAll()
		if err := webapp.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Failed to shutdown web application")
		}
	}()

	// Let the OS assign a random available port
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", 0))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	if err := webapp.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
