package clipper

import (
	"fmt"
	"math"
)

const (
	zoomInFactor  = 1.1
	zoomOutFactor = 0.9
)

// Point is a position in container or pointer coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Window describes the crop window of a session. ClipWidth and ClipHeight are
// the output pixel dimensions; OutlineWidth is the overscan margin drawn
// around the crop window.
type Window struct {
	ClipWidth    int `json:"clipWidth"`
	ClipHeight   int `json:"clipHeight"`
	OutlineWidth int `json:"outlineWidth"`
}

// Validate reports ErrInvalidOptions for a non-positive clip size or a
// negative outline.
func (w Window) Validate() error {
	if w.ClipWidth <= 0 || w.ClipHeight <= 0 {
		return fmt.Errorf("%w: clip size %dx%d", ErrInvalidOptions, w.ClipWidth, w.ClipHeight)
	}
	if w.OutlineWidth < 0 {
		return fmt.Errorf("%w: outline width %d", ErrInvalidOptions, w.OutlineWidth)
	}
	return nil
}

// Clip returns the crop window extent.
func (w Window) Clip() Dimensions {
	return Dimensions{Width: float64(w.ClipWidth), Height: float64(w.ClipHeight)}
}

// Container returns the extent of the crop window plus its outline.
func (w Window) Container() Dimensions {
	o := 2 * float64(w.OutlineWidth)
	return Dimensions{Width: float64(w.ClipWidth) + o, Height: float64(w.ClipHeight) + o}
}

// Center returns the offset that centers an image of the given size behind
// the crop window.
func (w Window) Center(size Dimensions) Point {
	o := float64(w.OutlineWidth)
	return Point{
		X: (float64(w.ClipWidth)-size.Width)/2 + o,
		Y: (float64(w.ClipHeight)-size.Height)/2 + o,
	}
}

// minOffset is the smallest offset that still keeps the image covering the
// right and bottom edges of the crop window.
func (w Window) minOffset(size Dimensions) Point {
	o := float64(w.OutlineWidth)
	return Point{
		X: o + float64(w.ClipWidth) - size.Width,
		Y: o + float64(w.ClipHeight) - size.Height,
	}
}

// Clamp pulls p inside the offset range valid for an image of the given size.
func (w Window) Clamp(p Point, size Dimensions) Point {
	lo := w.minOffset(size)
	hi := float64(w.OutlineWidth)
	return Point{
		X: math.Max(math.Min(p.X, hi), lo.X),
		Y: math.Max(math.Min(p.Y, hi), lo.Y),
	}
}

// Viewport is the interactive state of a crop session: where the image sits
// behind the crop window and how large it is drawn. Transitions return a new
// value and never modify the receiver.
type Viewport struct {
	Size     Dimensions `json:"size"`
	Offset   Point      `json:"offset"`
	Dragging bool       `json:"dragging"`
	// LastPointer is nil right after PointerDown, until the first move
	// calibrates it.
	LastPointer *Point `json:"lastPointer,omitempty"`
}

// NewViewport fits an image of the given natural size to the crop window and
// centers it.
func NewViewport(natural Dimensions, w Window) (Viewport, error) {
	if err := w.Validate(); err != nil {
		return Viewport{}, err
	}
	size, err := Fit(natural, w.Clip())
	if err != nil {
		return Viewport{}, err
	}
	return Viewport{
		Size:   size,
		Offset: w.Center(size),
	}, nil
}

// PointerDown starts a drag. The next move calibrates the pointer.
func (v Viewport) PointerDown() Viewport {
	v.Dragging = true
	v.LastPointer = nil
	return v
}

// PointerMove pans the image by the pointer delta since the previous move.
// The first move after PointerDown only records the pointer position.
func (v Viewport) PointerMove(w Window, p Point) Viewport {
	if !v.Dragging {
		return v
	}
	if v.LastPointer != nil {
		next := Point{
			X: v.Offset.X + p.X - v.LastPointer.X,
			Y: v.Offset.Y + p.Y - v.LastPointer.Y,
		}
		v.Offset = w.Clamp(next, v.Size)
	}
	v.LastPointer = &p
	return v
}

// PointerUp ends a drag. It also serves pointer-leave.
func (v Viewport) PointerUp() Viewport {
	v.Dragging = false
	return v
}

// Zoom scales the image one wheel step: 10% larger for a positive deltaY, 10%
// smaller for a negative one. The result never gets smaller than the crop
// window, and the offset is only moved as far as needed to keep the window
// covered.
func (v Viewport) Zoom(w Window, deltaY float64) (Viewport, error) {
	var factor float64
	switch {
	case deltaY > 0:
		factor = zoomInFactor
	case deltaY < 0:
		factor = zoomOutFactor
	default:
		return v, nil
	}

	size, err := Fit(v.Size.Scale(factor), w.Clip())
	if err != nil {
		return v, err
	}
	lo := w.minOffset(size)
	v.Size = size
	v.Offset = Point{
		X: math.Max(v.Offset.X, lo.X),
		Y: math.Max(v.Offset.Y, lo.Y),
	}
	return v, nil
}
