package editor

import (
	"fmt"
	"math"
)

// Point is a position in display-surface or source-image pixel units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func pt(x, y float64) Point { return Point{X: x, Y: y} }

func (p Point) Add(q Point) Point   { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) Sub(q Point) Point   { return Point{p.X - q.X, p.Y - q.Y} }
func (p Point) Mul(k float64) Point { return Point{p.X * k, p.Y * k} }
func (p Point) Div(k float64) Point { return Point{p.X / k, p.Y / k} }

func (p Point) String() string {
	return fmt.Sprintf("(%.2f,%.2f)", p.X, p.Y)
}

func (p Point) finite() bool {
	return finite(p.X) && finite(p.Y)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Size is an integer pixel extent.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

func (s Size) center() Point {
	return pt(float64(s.Width)/2, float64(s.Height)/2)
}

// Rect is an axis-aligned rectangle with floating point corners.
type Rect struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

func (r Rect) Width() float64  { return r.Max.X - r.Min.X }
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }
func (r Rect) Center() Point   { return r.Min.Add(r.Max).Div(2) }

func (r Rect) String() string {
	return r.Min.String() + "-" + r.Max.String()
}

// Corners returns the corners clockwise from the top-left one.
func (r Rect) Corners() [4]Point {
	return [4]Point{r.Min, pt(r.Max.X, r.Min.Y), r.Max, pt(r.Min.X, r.Max.Y)}
}

// Guide returns the square crop guide centred in a display surface. Its side is
// min(width, height) * ratio.
func Guide(display Size, ratio float64) Rect {
	side := math.Min(float64(display.Width), float64(display.Height)) * ratio
	c := display.center()
	half := side / 2
	return Rect{Min: pt(c.X-half, c.Y-half), Max: pt(c.X+half, c.Y+half)}
}
