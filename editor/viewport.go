package editor

import (
	"fmt"
	"math"
)

// ViewportState is the zoom and pan applied to the source image inside the
// display surface. Offset is the translation of the image centre relative to
// the display centre, in display pixels.
type ViewportState struct {
	Zoom   float64 `json:"zoom"`
	Offset Point   `json:"offset"`
}

func (s ViewportState) String() string {
	return fmt.Sprintf("viewport(zoom=%.4f,offset=%s)", s.Zoom, s.Offset)
}

// Viewport converts pointer and wheel input into a ViewportState and maps
// source coordinates onto the display surface. It is owned by a single editing
// session and is not safe for concurrent use.
type Viewport struct {
	cfg     Config
	display Size
	source  Size
	state   ViewportState

	dragging    bool
	dragPointer Point
	dragOffset  Point
}

// NewViewport returns a viewport at zoom 1 with the image centred. The initial
// zoom is clamped into the configured range.
func NewViewport(cfg Config, display, source Size) *Viewport {
	v := &Viewport{cfg: cfg, display: display, source: source}
	v.Reset()
	return v
}

func (v *Viewport) State() ViewportState { return v.state }
func (v *Viewport) Display() Size        { return v.display }
func (v *Viewport) Source() Size         { return v.source }
func (v *Viewport) Dragging() bool       { return v.dragging }

// Guide returns the crop guide of the viewport's display surface.
func (v *Viewport) Guide() Rect {
	return Guide(v.display, v.cfg.GuideRatio)
}

// SetState replaces the state, clamping the zoom. Non-finite values are ignored.
func (v *Viewport) SetState(s ViewportState) {
	if finite(s.Zoom) {
		v.state.Zoom = v.cfg.clampZoom(s.Zoom)
	}
	if s.Offset.finite() {
		v.state.Offset = s.Offset
	}
}

// Reset restores zoom 1 and a centred image.
func (v *Viewport) Reset() {
	v.dragging = false
	v.state = ViewportState{Zoom: v.cfg.clampZoom(1)}
}

// Fit centres the image and zooms so its longer side spans the crop guide.
func (v *Viewport) Fit() {
	v.dragging = false
	longest := math.Max(float64(v.source.Width), float64(v.source.Height))
	zoom := 1.0
	if longest > 0 {
		zoom = v.Guide().Width() / longest
	}
	v.state = ViewportState{Zoom: v.cfg.clampZoom(zoom)}
}

func (v *Viewport) BeginDrag(p Point) {
	v.dragging = true
	v.dragPointer = p
	v.dragOffset = v.state.Offset
}

// UpdateDrag moves the image by the pointer travel since BeginDrag. Without an
// active drag it does nothing.
func (v *Viewport) UpdateDrag(p Point) {
	if !v.dragging || !p.finite() {
		return
	}
	v.state.Offset = v.dragOffset.Add(p.Sub(v.dragPointer))
}

func (v *Viewport) EndDrag() {
	v.dragging = false
}

// ApplyZoomDelta adds delta to the zoom and clamps it. A nil pivot keeps the
// image centre where it is; otherwise the source point under pivot stays put.
func (v *Viewport) ApplyZoomDelta(delta float64, pivot *Point) {
	if !finite(delta) {
		return
	}
	v.zoomTo(v.state.Zoom+delta, pivot)
}

// SetZoomAbsolute sets the zoom directly, clamped, anchored at the image centre.
func (v *Viewport) SetZoomAbsolute(value float64) {
	if !finite(value) {
		return
	}
	v.zoomTo(value, nil)
}

func (v *Viewport) zoomTo(zoom float64, pivot *Point) {
	prev, offset := v.state.Zoom, v.state.Offset
	next := v.cfg.clampZoom(zoom)
	if pivot != nil && pivot.finite() && prev > 0 {
		rel := pivot.Sub(v.display.center())
		v.state.Offset = rel.Sub(rel.Sub(offset).Mul(next / prev))
	}
	v.state.Zoom = next
	if v.dragging {
		// keep an in-flight drag continuous from the shifted offset
		v.dragOffset = v.dragOffset.Add(v.state.Offset.Sub(offset))
	}
}

// ForwardMap maps a source-image point onto the display surface.
func (v *Viewport) ForwardMap(src Point) Point {
	return forwardMap(v.state, v.display, v.source, src)
}

// InverseMap maps a display-surface point back into source-image space.
func (v *Viewport) InverseMap(disp Point) Point {
	return inverseMap(v.state, v.display, v.source, disp)
}

func forwardMap(s ViewportState, display, source Size, src Point) Point {
	return display.center().Add(s.Offset).Add(src.Sub(source.center()).Mul(s.Zoom))
}

func inverseMap(s ViewportState, display, source Size, disp Point) Point {
	return source.center().Add(disp.Sub(display.center()).Sub(s.Offset).Div(s.Zoom))
}
