package editor

// EventKind identifies a raw input gesture.
type EventKind string

const (
	PointerDown   EventKind = "pointer-down"
	PointerMove   EventKind = "pointer-move"
	PointerUp     EventKind = "pointer-up"
	PointerCancel EventKind = "pointer-cancel"
	Wheel         EventKind = "wheel"
	Slider        EventKind = "slider"
)

// Event is a pointer, wheel or slider input in display-surface coordinates.
// Delta carries the wheel scroll amount (positive scrolls down, which zooms
// out) and Value the slider zoom.
type Event struct {
	Kind  EventKind `json:"kind"`
	X     float64   `json:"x"`
	Y     float64   `json:"y"`
	Delta float64   `json:"delta,omitempty"`
	Value float64   `json:"value,omitempty"`
}

func (ev Event) Pos() Point { return pt(ev.X, ev.Y) }

// Gestures translates input events into viewport operations. Unknown kinds and
// moves outside a drag are dropped.
type Gestures struct {
	cfg  Config
	view *Viewport
}

func NewGestures(cfg Config, view *Viewport) *Gestures {
	return &Gestures{cfg: cfg, view: view}
}

func (g *Gestures) Handle(ev Event) {
	switch ev.Kind {
	case PointerDown:
		g.view.BeginDrag(ev.Pos())
	case PointerMove:
		g.view.UpdateDrag(ev.Pos())
	case PointerUp, PointerCancel:
		g.view.EndDrag()
	case Wheel:
		g.wheel(ev)
	case Slider:
		g.view.SetZoomAbsolute(ev.Value)
	}
}

func (g *Gestures) wheel(ev Event) {
	var delta float64
	switch {
	case ev.Delta < 0:
		delta = g.cfg.WheelStep
	case ev.Delta > 0:
		delta = -g.cfg.WheelStep
	default:
		return
	}
	var pivot *Point
	if g.cfg.WheelPivot == PivotCursor {
		p := ev.Pos()
		pivot = &p
	}
	g.view.ApplyZoomDelta(delta, pivot)
}
