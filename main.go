package main

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"logocrop/editor"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run() error {
	var args cliArgs
	cliCtx := kong.Parse(
		&args,
		kong.Name("logocrop"),
		kong.Description("Crop, zoom and pan a logo into a fixed-size square."),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, "~/.config/logocrop.json"),
	)
	if err := cliCtx.Run(); err != nil {
		return err
	}

	return nil
}

type cliArgs struct {
	Config kong.ConfigFlag `help:"Load flags from a JSON file"`
	Serve  serveCmd        `cmd:"" default:"withargs" help:"Open the logo editor in the browser"`
	Apply  applyCmd        `cmd:"" help:"Replay saved crop operations from a JSON lines file"`
}

// editorFlags are shared by every command that extracts logos.
type editorFlags struct {
	ZoomMin    float64 `help:"Lowest zoom factor" default:"0.5"`
	ZoomMax    float64 `help:"Highest zoom factor" default:"3"`
	GuideRatio float64 `help:"Crop guide side as a fraction of the shorter display side" default:"0.8"`
	OutputSize int     `help:"Side length of the extracted logo in pixels" default:"300"`
	MaxDisplay int     `help:"Largest accepted display surface side in pixels" default:"4096"`
	WheelStep  float64 `help:"Zoom change per wheel notch" default:"0.1"`
	WheelPivot string  `help:"Wheel zoom anchor" enum:"center,cursor" default:"center"`
	Filter     string  `help:"Resampling filter" enum:"nearest,approx-bilinear,bilinear,catmull-rom" default:"bilinear"`
	Format     string  `help:"Output encoding" enum:"png,jpeg,webp" default:"png"`
	Quality    int     `help:"JPEG and WebP quality" default:"90"`
	Background string  `help:"Fill colour outside the image as #rrggbb or #rrggbbaa" default:""`
}

func (f editorFlags) config() (editor.Config, error) {
	bg, err := parseHexColor(f.Background)
	if err != nil {
		return editor.Config{}, err
	}
	cfg := editor.Config{
		ZoomMin:          f.ZoomMin,
		ZoomMax:          f.ZoomMax,
		GuideRatio:       f.GuideRatio,
		OutputResolution: f.OutputSize,
		MaxDisplay:       f.MaxDisplay,
		WheelStep:        f.WheelStep,
		WheelPivot:       editor.Pivot(f.WheelPivot),
		Filter:           editor.Filter(f.Filter),
		Format:           editor.Format(f.Format),
		Quality:          f.Quality,
		Background:       bg,
	}
	return cfg, cfg.Validate()
}

// parseHexColor accepts "", "#rgb", "#rrggbb" and "#rrggbbaa".
func parseHexColor(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(s) {
	case 0:
		return color.NRGBA{}, nil
	case 3:
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]}) + "ff"
	case 6:
		s += "ff"
	case 8:
	default:
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func setupLogging(verbose bool) context.Context {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.NewConsoleWriter()).Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	return log.Logger.WithContext(context.Background())
}

type serveCmd struct {
	RootDir   string        `arg:"" help:"Root directory to pick logos from" type:"existingdir"`
	Open      bool          `help:"Open the browser automatically when the server starts" default:"true" negatable:""`
	JSON      bool          `help:"Print committed logos as JSON lines instead of saving them"`
	Once      bool          `help:"Run the server once and exit after save" default:"true" negatable:""`
	Verbose   bool          `help:"Enable verbose logging" default:"false"`
	Settings  string        `help:"Directory the branding settings are saved to (default ROOT/output)" type:"path"`
	Width     int           `help:"Display surface width" default:"600"`
	Height    int           `help:"Display surface height" default:"600"`
	MaxUpload int64         `help:"Largest accepted upload in bytes" default:"2097152"`
	Idle      time.Duration `help:"Discard editing sessions untouched for this long" default:"30m"`

	Editor editorFlags `embed:""`
}

func (cmd *serveCmd) Run() error {
	ctx, cancel := signal.NotifyContext(setupLogging(cmd.Verbose), os.Interrupt)
	defer cancel()

	cfg, err := cmd.Editor.config()
	if err != nil {
		return err
	}
	ed, err := editor.New(cfg)
	if err != nil {
		return err
	}

	settingsDir := cmd.Settings
	if settingsDir == "" {
		settingsDir = filepath.Join(cmd.RootDir, "output")
	}
	var store editor.SettingsStore = NewFileStore(settingsDir)
	if cmd.JSON {
		store = NewJSONStore(os.Stdout)
	}

	app := NewWebApp(Config{
		RootDir:     cmd.RootDir,
		SkipDir:     settingsDir,
		Editor:      ed,
		Loader:      NewImageLoader(cmd.MaxUpload),
		Store:       store,
		Display:     editor.Size{Width: cmd.Width, Height: cmd.Height},
		SessionIdle: cmd.Idle,
		OnBeforeShutdown: func() {
			log.Ctx(ctx).Info().Msg("Shutting down web application...")
		},
		OnReady: func(addr string) {
			log.Ctx(ctx).Info().Msgf("Server started at %s", addr)
			if cmd.Open {
				if err := openBrowser(addr); err != nil {
					log.Error().Err(err).Msg("Failed to open browser")
				}
			}
		},
		OnCommit: func(logo editor.ExtractedImage) {
			log.Ctx(ctx).Info().
				Str("format", string(logo.Format)).
				Int("bytes", len(logo.Data)).
				Msg("Logo committed")
			if cmd.Once {
				cancel()
			}
		},
	})

	if err := app.Run(ctx); err != nil {
		return err
	}

	return nil
}

type applyCmd struct {
	Operations string `arg:"" help:"JSON lines file with operations, - for stdin"`
	BaseDir    string `help:"Directory operation filenames are relative to" default:"." type:"existingdir"`
	OutputDir  string `help:"Directory extracted logos are written to" default:"output" type:"path"`
	Width      int    `help:"Display surface width for operations without one" default:"600"`
	Height     int    `help:"Display surface height for operations without one" default:"600"`
	Verbose    bool   `help:"Enable verbose logging" default:"false"`

	Editor editorFlags `embed:""`
}

func (cmd *applyCmd) Run() error {
	ctx, cancel := signal.NotifyContext(setupLogging(cmd.Verbose), os.Interrupt)
	defer cancel()

	cfg, err := cmd.Editor.config()
	if err != nil {
		return err
	}
	ed, err := editor.New(cfg)
	if err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	if cmd.Operations != "-" {
		f, err := os.Open(cmd.Operations)
		if err != nil {
			return fmt.Errorf("failed to open operations file: %w", err)
		}
		defer f.Close()
		r = f
	}
	ops, err := ReadOperations(r)
	if err != nil {
		return err
	}

	executor := &OperationExecutor{
		BaseDir:   cmd.BaseDir,
		OutputDir: cmd.OutputDir,
		Loader:    NewImageLoader(0),
		Editor:    ed,
		Display:   editor.Size{Width: cmd.Width, Height: cmd.Height},
	}
	return executor.Exec(ctx, ops)
}
