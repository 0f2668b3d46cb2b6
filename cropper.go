package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"logocrop/editor"
)

const defaultMaxUploadBytes = 2 << 20

var (
	ErrNotImage      = errors.New("file is not an image")
	ErrImageTooLarge = errors.New("image exceeds the upload limit")
)

// ImageLoader decodes uploaded files into editor source images. It owns the
// upload constraints, so the editor never sees a file that breaks them.
type ImageLoader struct {
	MaxBytes int64
}

// NewImageLoader creates a loader enforcing the given byte limit. A
// non-positive limit falls back to 2 MiB.
func NewImageLoader(maxBytes int64) *ImageLoader {
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	return &ImageLoader{MaxBytes: maxBytes}
}

// Load reads r, checks size and type, and decodes it honouring EXIF
// orientation. contentType is the type declared by the client, if any.
func (l *ImageLoader) Load(ctx context.Context, r io.Reader, contentType string) (*editor.SourceImage, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > l.MaxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrImageTooLarge, l.MaxBytes)
	}

	sniffed := http.DetectContentType(data)
	if !isImageType(sniffed) && !isImageType(contentType) {
		return nil, fmt.Errorf("%w: detected %s", ErrNotImage, sniffed)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %v", ErrNotImage, err)
	}

	src, err := editor.NewSourceImage(img)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Debug().
		Stringer("size", src.Size()).
		Str("type", sniffed).
		Int("bytes", len(data)).
		Msg("decoded source image")
	return src, nil
}

func isImageType(mime string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mime)), "image/")
}
