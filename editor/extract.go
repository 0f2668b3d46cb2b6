package editor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// ErrEmptyImage is returned for source images without pixels.
var ErrEmptyImage = errors.New("source image is empty")

// SourceImage is a decoded raster loaded once per editing session.
type SourceImage struct {
	img  image.Image
	size Size
}

func NewSourceImage(img image.Image) (*SourceImage, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmptyImage, b.Dx(), b.Dy())
	}
	return &SourceImage{img: img, size: Size{Width: b.Dx(), Height: b.Dy()}}, nil
}

func (s *SourceImage) Size() Size         { return s.size }
func (s *SourceImage) Image() image.Image { return s.img }

// Extractor renders the contents of the crop guide into a fixed-size square.
type Extractor struct {
	cfg    Config
	interp draw.Interpolator
}

func NewExtractor(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{cfg: cfg, interp: interpolator(cfg.Filter)}, nil
}

func interpolator(f Filter) draw.Interpolator {
	switch f {
	case FilterNearest:
		return draw.NearestNeighbor
	case FilterApproxBiLinear:
		return draw.ApproxBiLinear
	case FilterCatmullRom:
		return draw.CatmullRom
	default:
		return draw.BiLinear
	}
}

// SourceRegion returns the square of source-image space that is visible through
// the crop guide. The region may extend past the source bounds.
func (e *Extractor) SourceRegion(src *SourceImage, s ViewportState, display Size) Rect {
	g := Guide(display, e.cfg.GuideRatio)
	return Rect{
		Min: inverseMap(s, display, src.size, g.Min),
		Max: inverseMap(s, display, src.size, g.Max),
	}
}

// Render resamples the guide contents into an OutputResolution square. Pixels
// outside the source image are left as the configured background.
func (e *Extractor) Render(src *SourceImage, s ViewportState, display Size) *image.NRGBA {
	n := e.cfg.OutputResolution
	dst := imaging.New(n, n, e.cfg.Background)

	g := Guide(display, e.cfg.GuideRatio)
	if g.Width() <= 0 || !finite(s.Zoom) || s.Zoom <= 0 {
		return dst
	}

	// source -> display -> output, folded into one uniform scale + translation
	k := float64(n) / g.Width()
	origin := display.center().Add(s.Offset).Sub(g.Min).Mul(k)
	e.transform(dst, src, k*s.Zoom, origin)
	return dst
}

// Preview renders the display surface as the user sees it: the image placed by
// the forward map and everything outside the crop guide shaded.
func (e *Extractor) Preview(src *SourceImage, s ViewportState, display Size) *image.NRGBA {
	dst := imaging.New(display.Width, display.Height, e.cfg.Background)
	if finite(s.Zoom) && s.Zoom > 0 {
		e.transform(dst, src, s.Zoom, display.center().Add(s.Offset))
	}
	shadeOutside(dst, Guide(display, e.cfg.GuideRatio))
	return dst
}

// transform draws src scaled by scale so that its centre lands on centre.
func (e *Extractor) transform(dst *image.NRGBA, src *SourceImage, scale float64, centre Point) {
	bmin := src.img.Bounds().Min
	ic := src.size.center().Add(pt(float64(bmin.X), float64(bmin.Y)))
	s2d := f64.Aff3{
		scale, 0, centre.X - scale*ic.X,
		0, scale, centre.Y - scale*ic.Y,
	}
	e.interp.Transform(dst, s2d, src.img, src.img.Bounds(), draw.Over, nil)
}

var shade = image.NewUniform(color.NRGBA{A: 128})

func shadeOutside(dst *image.NRGBA, guide Rect) {
	b := dst.Bounds()
	in := image.Rect(
		int(math.Round(guide.Min.X)), int(math.Round(guide.Min.Y)),
		int(math.Round(guide.Max.X)), int(math.Round(guide.Max.Y)),
	).Intersect(b)
	bands := []image.Rectangle{
		image.Rect(b.Min.X, b.Min.Y, b.Max.X, in.Min.Y),
		image.Rect(b.Min.X, in.Max.Y, b.Max.X, b.Max.Y),
		image.Rect(b.Min.X, in.Min.Y, in.Min.X, in.Max.Y),
		image.Rect(in.Max.X, in.Min.Y, b.Max.X, in.Max.Y),
	}
	for _, r := range bands {
		if !r.Empty() {
			draw.Draw(dst, r, shade, image.Point{}, draw.Over)
		}
	}
}

// Extract renders the guide contents and encodes them.
func (e *Extractor) Extract(src *SourceImage, s ViewportState, display Size) (ExtractedImage, error) {
	img := e.Render(src, s, display)
	data, err := encode(img, e.cfg.Format, e.cfg.Quality)
	if err != nil {
		return ExtractedImage{}, fmt.Errorf("failed to encode %s: %w", e.cfg.Format, err)
	}
	return ExtractedImage{
		Format: e.cfg.Format,
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
		Data:   data,
	}, nil
}
