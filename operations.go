package main

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"logocrop/editor"
)

type Operations = []Operation

// Operation replays a saved editor viewport against a file.
type Operation struct {
	Crop *CropOperation
	Fit  *FitOperation
}

// unmarshal
func (o *Operation) UnmarshalJSON(data []byte) error {
	var op struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &op); err != nil {
		return fmt.Errorf("failed to unmarshal operation: %w", err)
	}

	switch op.Type {
	case "crop":
		var crop CropOperation
		if err := json.Unmarshal(data, &crop); err != nil {
			return fmt.Errorf("failed to unmarshal crop operation: %w", err)
		}
		// a crop without a viewport replays the initial one
		if crop.Viewport.Zoom == 0 {
			crop.Viewport.Zoom = 1
		}
		o.Crop = &crop
	case "fit":
		var fit FitOperation
		if err := json.Unmarshal(data, &fit); err != nil {
			return fmt.Errorf("failed to unmarshal fit operation: %w", err)
		}
		o.Fit = &fit
	default:
		return fmt.Errorf("unknown operation %q", op.Type)
	}
	return nil
}

func (o Operation) MarshalJSON() ([]byte, error) {
	switch {
	case o.Crop != nil:
		return json.Marshal(struct {
			Type string `json:"type"`
			CropOperation
		}{"crop", *o.Crop})
	case o.Fit != nil:
		return json.Marshal(struct {
			Type string `json:"type"`
			FitOperation
		}{"fit", *o.Fit})
	}
	return []byte("null"), nil
}

// CropOperation is a viewport the user committed on a display surface.
type CropOperation struct {
	Filename string               `json:"filename"`
	Display  editor.Size          `json:"display"`
	Viewport editor.ViewportState `json:"viewport"`
}

func (c CropOperation) String() string {
	return fmt.Sprintf("crop(display=%s,%s)", c.Display, c.Viewport)
}

func (c CropOperation) ID() string {
	m := md5.New()
	_, err := m.Write([]byte(c.String()))
	if err != nil {
		log.Error().Err(err).Msg("failed to hash crop string")
		return ""
	}
	return fmt.Sprintf("%x", m.Sum(nil))
}

// FitOperation centres the whole image in the crop guide.
type FitOperation struct {
	Filename string      `json:"filename"`
	Display  editor.Size `json:"display"`
}

// ReadOperations parses one operation per line, skipping blank lines.
func ReadOperations(r io.Reader) (Operations, error) {
	var ops Operations
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var op Operation
		if err := json.Unmarshal([]byte(text), &op); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ops = append(ops, op)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read operations: %w", err)
	}
	return ops, nil
}

type OperationExecutor struct {
	BaseDir   string
	OutputDir string
	Loader    *ImageLoader
	Editor    *editor.Editor
	// Display is used by operations that do not carry one.
	Display editor.Size
}

func (r OperationExecutor) Exec(ctx context.Context, ops []Operation) error {
	if len(ops) == 0 {
		log.Ctx(ctx).Warn().Msg("no operations to execute")
		return nil
	}

	pooler := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(runtime.NumCPU())

	if err := os.MkdirAll(r.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", r.OutputDir, err)
	}
	for _, op := range ops {
		pooler.Go(func(ctx context.Context) error {
			if err := r.executeOperation(ctx, op); err != nil {
				log.Ctx(ctx).Error().Err(err).
					Interface("op", op).
					Msg("failed to execute operation")
				return err
			}
			return nil
		})
	}

	if err := pooler.Wait(); err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Msg("finished with errors")
		return err
	}

	return nil
}

func (r OperationExecutor) executeOperation(ctx context.Context, op Operation) error {
	if op.Crop != nil {
		return r.executeCrop(ctx, *op.Crop)
	} else if op.Fit != nil {
		return r.executeFit(ctx, *op.Fit)
	}
	return nil
}

func (r OperationExecutor) executeCrop(ctx context.Context, op CropOperation) error {
	log.Ctx(ctx).Info().Str("filename", op.Filename).Stringer("viewport", op.Viewport).Msg("cropping")
	session, err := r.open(ctx, op.Filename, op.Display)
	if err != nil {
		return err
	}
	session.Viewport().SetState(op.Viewport)
	return r.commit(ctx, session, fmt.Sprintf("%s-%s", filepath.Base(op.Filename), op.ID()))
}

func (r OperationExecutor) executeFit(ctx context.Context, op FitOperation) error {
	log.Ctx(ctx).Info().Str("filename", op.Filename).Msg("fitting")
	session, err := r.open(ctx, op.Filename, op.Display)
	if err != nil {
		return err
	}
	session.Viewport().Fit()
	return r.commit(ctx, session, filepath.Base(op.Filename)+"-fit")
}

func (r OperationExecutor) open(ctx context.Context, filename string, display editor.Size) (*editor.Session, error) {
	sourcePath, err := resolveInRoot(r.BaseDir, filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", sourcePath, err)
	}
	defer f.Close()

	src, err := r.Loader.Load(ctx, f, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", filename, err)
	}
	if display.Empty() {
		display = r.Display
	}
	return r.Editor.Open(src, display)
}

func (r OperationExecutor) commit(ctx context.Context, session *editor.Session, name string) error {
	store := editor.StoreFunc(func(ctx context.Context, logo editor.ExtractedImage) error {
		croppedPath := filepath.Join(r.OutputDir, name+"."+logo.Ext())
		if err := writeFileAtomic(croppedPath, logo.Data); err != nil {
			return fmt.Errorf("failed to write cropped file %s: %w", croppedPath, err)
		}
		log.Ctx(ctx).Debug().Str("path", croppedPath).Msg("wrote logo")
		return nil
	})
	_, err := session.Commit(ctx, store)
	return err
}
