package editor

import (
	"errors"
	"fmt"
	"image/color"
)

// ErrInvalidConfig is wrapped by every error returned from Config.Validate.
var ErrInvalidConfig = errors.New("invalid editor config")

// Pivot selects the anchor used by wheel zooming.
type Pivot string

const (
	// PivotCenter keeps the image centre-anchored while zooming.
	PivotCenter Pivot = "center"
	// PivotCursor keeps the source point under the pointer fixed on screen.
	PivotCursor Pivot = "cursor"
)

// Filter names the interpolator used when resampling.
type Filter string

const (
	FilterNearest        Filter = "nearest"
	FilterApproxBiLinear Filter = "approx-bilinear"
	FilterBiLinear       Filter = "bilinear"
	FilterCatmullRom     Filter = "catmull-rom"
)

// Format is the encoding of an extracted image.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

type Config struct {
	// ZoomMin and ZoomMax bound the zoom factor.
	ZoomMin float64 `json:"zoom_min"`
	ZoomMax float64 `json:"zoom_max"`
	// GuideRatio is the fraction of min(display width, display height) used as
	// the side of the crop guide.
	GuideRatio float64 `json:"guide_ratio"`
	// OutputResolution is the side length of the emitted square image.
	OutputResolution int `json:"output_resolution"`
	// MaxDisplay bounds each side of a session's display surface.
	MaxDisplay int `json:"max_display"`

	WheelStep  float64     `json:"wheel_step"`
	WheelPivot Pivot       `json:"wheel_pivot"`
	Filter     Filter      `json:"filter"`
	Format     Format      `json:"format"`
	Quality    int         `json:"quality"`
	Background color.NRGBA `json:"background"`
}

// DefaultConfig returns the settings used by the branding screen.
func DefaultConfig() Config {
	return Config{
		ZoomMin:          0.5,
		ZoomMax:          3.0,
		GuideRatio:       0.8,
		OutputResolution: 300,
		MaxDisplay:       4096,
		WheelStep:        0.1,
		WheelPivot:       PivotCenter,
		Filter:           FilterBiLinear,
		Format:           FormatPNG,
		Quality:          90,
	}
}

// Validate checks the configuration. The returned error wraps ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.OutputResolution <= 0:
		return fmt.Errorf("%w: output resolution must be positive, got %d", ErrInvalidConfig, c.OutputResolution)
	case c.MaxDisplay <= 0:
		return fmt.Errorf("%w: max display must be positive, got %d", ErrInvalidConfig, c.MaxDisplay)
	case c.ZoomMin <= 0:
		return fmt.Errorf("%w: zoom min must be positive, got %g", ErrInvalidConfig, c.ZoomMin)
	case c.ZoomMin > c.ZoomMax:
		return fmt.Errorf("%w: zoom min %g is greater than zoom max %g", ErrInvalidConfig, c.ZoomMin, c.ZoomMax)
	case c.GuideRatio <= 0 || c.GuideRatio > 1:
		return fmt.Errorf("%w: guide ratio must be in (0, 1], got %g", ErrInvalidConfig, c.GuideRatio)
	case c.WheelStep <= 0:
		return fmt.Errorf("%w: wheel step must be positive, got %g", ErrInvalidConfig, c.WheelStep)
	case c.Quality < 1 || c.Quality > 100:
		return fmt.Errorf("%w: quality must be between 1 and 100, got %d", ErrInvalidConfig, c.Quality)
	}

	switch c.WheelPivot {
	case PivotCenter, PivotCursor:
	default:
		return fmt.Errorf("%w: unknown wheel pivot %q", ErrInvalidConfig, c.WheelPivot)
	}
	switch c.Filter {
	case FilterNearest, FilterApproxBiLinear, FilterBiLinear, FilterCatmullRom:
	default:
		return fmt.Errorf("%w: unknown filter %q", ErrInvalidConfig, c.Filter)
	}
	switch c.Format {
	case FormatPNG, FormatJPEG, FormatWebP:
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, c.Format)
	}
	return nil
}

func (c Config) clampZoom(v float64) float64 {
	if v < c.ZoomMin {
		return c.ZoomMin
	}
	if v > c.ZoomMax {
		return c.ZoomMax
	}
	return v
}
