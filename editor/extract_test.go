package editor

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

var (
	red  = color.NRGBA{255, 0, 0, 255}
	blue = color.NRGBA{0, 0, 255, 255}
)

// createTestImage paints the left half red and the right half blue
func createTestImage(width, height int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < width/2 {
				img.SetNRGBA(x, y, red)
			} else {
				img.SetNRGBA(x, y, blue)
			}
		}
	}
	return img
}

func newTestSource(t *testing.T, width, height int) *SourceImage {
	t.Helper()
	src, err := NewSourceImage(createTestImage(width, height))
	require.NoError(t, err)
	return src
}

func newTestExtractor(t *testing.T, mutate func(*Config)) *Extractor {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	ex, err := NewExtractor(cfg)
	require.NoError(t, err)
	return ex
}

func requireRect(t *testing.T, want, got Rect) {
	t.Helper()
	for i, c := range want.Corners() {
		g := got.Corners()[i]
		require.InDelta(t, c.X, g.X, 1e-9, "corner %d of %s", i, got)
		require.InDelta(t, c.Y, g.Y, 1e-9, "corner %d of %s", i, got)
	}
}

func TestGuide(t *testing.T) {
	requireRect(t, Rect{Min: Point{60, 60}, Max: Point{540, 540}}, Guide(Size{600, 600}, 0.8))
	requireRect(t, Rect{Min: Point{240, 40}, Max: Point{560, 360}}, Guide(Size{800, 400}, 0.8))
	requireRect(t, Rect{Min: Point{0, 100}, Max: Point{300, 400}}, Guide(Size{300, 500}, 1))
}

func TestSourceRegionScenario(t *testing.T) {
	ex := newTestExtractor(t, nil)
	src := newTestSource(t, 1000, 500)
	display := Size{600, 600}

	region := ex.SourceRegion(src, ViewportState{Zoom: 1}, display)
	requireRect(t, Rect{Min: Point{260, 10}, Max: Point{740, 490}}, region)
	require.InDelta(t, 480, region.Width(), 1e-9)

	region = ex.SourceRegion(src, ViewportState{Zoom: 2}, display)
	requireRect(t, Rect{Min: Point{380, 130}, Max: Point{620, 370}}, region)
	require.InDelta(t, 240, region.Width(), 1e-9)
	require.InDelta(t, 240, region.Height(), 1e-9)
	require.Equal(t, Point{500, 250}, region.Center())
}

func TestSourceRegionFollowsOffset(t *testing.T) {
	ex := newTestExtractor(t, nil)
	src := newTestSource(t, 1000, 500)

	// dragging the image right by 100 display px at zoom 2 moves the
	// sampled window left by 50 source px
	region := ex.SourceRegion(src, ViewportState{Zoom: 2, Offset: Point{100, 0}}, Size{600, 600})
	requireRect(t, Rect{Min: Point{330, 130}, Max: Point{570, 370}}, region)
}

func TestRenderHasFixedSize(t *testing.T) {
	ex := newTestExtractor(t, nil)
	sources := []Size{{50, 50}, {4000, 3000}, {1, 1}, {3, 2000}, {1000, 500}}
	displays := []Size{{600, 600}, {320, 200}, {1920, 1080}, {1, 1}}
	states := []ViewportState{
		{Zoom: 0.5},
		{Zoom: 1, Offset: Point{12.5, -40}},
		{Zoom: 3, Offset: Point{-300, 300}},
	}

	for _, s := range sources {
		src := newTestSource(t, s.Width, s.Height)
		for _, d := range displays {
			for _, st := range states {
				out := ex.Render(src, st, d)
				require.Equal(t, image.Rect(0, 0, 300, 300), out.Bounds(), "source %s display %s %s", s, d, st)
			}
		}
	}
}

func TestRenderFollowsOutputResolution(t *testing.T) {
	for _, n := range []int{1, 64, 300, 512} {
		ex := newTestExtractor(t, func(c *Config) { c.OutputResolution = n })
		out := ex.Render(newTestSource(t, 640, 480), ViewportState{Zoom: 1}, Size{600, 600})
		require.Equal(t, image.Rect(0, 0, n, n), out.Bounds())
	}
}

func TestRenderSamplesGuideContents(t *testing.T) {
	ex := newTestExtractor(t, func(c *Config) { c.Filter = FilterNearest })
	src := newTestSource(t, 1000, 500)

	// output x maps to source x = 260 + x*480/300
	out := ex.Render(src, ViewportState{Zoom: 1}, Size{600, 600})
	require.Equal(t, red, out.NRGBAAt(10, 150))
	require.Equal(t, red, out.NRGBAAt(140, 10))
	require.Equal(t, blue, out.NRGBAAt(160, 290))
	require.Equal(t, blue, out.NRGBAAt(299, 150))
}

func TestRenderOutsideSourceIsBackground(t *testing.T) {
	ex := newTestExtractor(t, nil)
	src := newTestSource(t, 200, 200)

	// at zoom 0.5 the image covers display 250..350, well inside the
	// 60..540 guide, so the output corners see nothing
	out := ex.Render(src, ViewportState{Zoom: 0.5}, Size{600, 600})
	require.Equal(t, color.NRGBA{}, out.NRGBAAt(0, 0))
	require.Equal(t, color.NRGBA{}, out.NRGBAAt(299, 299))
	require.Equal(t, red, out.NRGBAAt(130, 150))
}

func TestRenderPannedFullyOutside(t *testing.T) {
	bg := color.NRGBA{10, 20, 30, 255}
	ex := newTestExtractor(t, func(c *Config) { c.Background = bg })
	src := newTestSource(t, 400, 300)

	for _, off := range []Point{{5000, 0}, {0, -5000}, {-1e6, 1e6}} {
		out := ex.Render(src, ViewportState{Zoom: 3, Offset: off}, Size{600, 600})
		require.Equal(t, image.Rect(0, 0, 300, 300), out.Bounds())
		for y := 0; y < 300; y += 23 {
			for x := 0; x < 300; x += 23 {
				require.Equal(t, bg, out.NRGBAAt(x, y), "offset %s pixel %d,%d", off, x, y)
			}
		}
	}
}

func TestRenderHonoursSourceOrigin(t *testing.T) {
	ex := newTestExtractor(t, func(c *Config) { c.Filter = FilterNearest })
	big := createTestImage(900, 700).(*image.NRGBA)
	window := image.Rect(250, 100, 750, 600)

	sub, err := NewSourceImage(big.SubImage(window))
	require.NoError(t, err)
	copied, err := NewSourceImage(imaging.Crop(big, window))
	require.NoError(t, err)

	st := ViewportState{Zoom: 1.3, Offset: Point{-20, 35}}
	a := ex.Render(sub, st, Size{500, 500})
	b := ex.Render(copied, st, Size{500, 500})
	require.Equal(t, b.Pix, a.Pix)
}

func TestExtractIsDeterministic(t *testing.T) {
	for _, f := range []Format{FormatPNG, FormatJPEG, FormatWebP} {
		ex := newTestExtractor(t, func(c *Config) { c.Format = f })
		src := newTestSource(t, 1000, 500)
		st := ViewportState{Zoom: 1.7, Offset: Point{33.3, -12.1}}

		first, err := ex.Extract(src, st, Size{600, 600})
		require.NoError(t, err)
		second, err := ex.Extract(src, st, Size{600, 600})
		require.NoError(t, err)

		require.Equal(t, f, first.Format)
		require.Equal(t, 300, first.Width)
		require.Equal(t, 300, first.Height)
		require.NotEmpty(t, first.Data)
		require.True(t, bytes.Equal(first.Data, second.Data), "format %s", f)

		require.Equal(t, ex.Render(src, st, Size{600, 600}).Pix, ex.Render(src, st, Size{600, 600}).Pix)
	}
}

func TestPreview(t *testing.T) {
	ex := newTestExtractor(t, func(c *Config) { c.Filter = FilterNearest })
	src := newTestSource(t, 1000, 500)

	out := ex.Preview(src, ViewportState{Zoom: 1}, Size{600, 600})
	require.Equal(t, image.Rect(0, 0, 600, 600), out.Bounds())

	// inside the guide the image is untouched
	require.Equal(t, red, out.NRGBAAt(100, 300))
	require.Equal(t, blue, out.NRGBAAt(500, 300))

	// above the image and outside the guide only the shade remains
	require.Equal(t, uint8(128), out.NRGBAAt(0, 0).A)

	// image outside the guide is darkened
	shaded := out.NRGBAAt(30, 300)
	require.Equal(t, uint8(255), shaded.A)
	require.Less(t, shaded.R, red.R)
}
