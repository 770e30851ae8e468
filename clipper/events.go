package clipper

import "fmt"

// EventType names a host input event, using the DOM event names.
type EventType string

const (
	EventPointerDown  EventType = "pointerdown"
	EventPointerMove  EventType = "pointermove"
	EventPointerUp    EventType = "pointerup"
	EventPointerLeave EventType = "pointerleave"
	EventWheel        EventType = "wheel"
)

// Event is a pointer or wheel input delivered by a host. X and Y are client
// coordinates of pointer moves; DeltaY is the signed wheel delta.
type Event struct {
	Type   EventType `json:"type"`
	X      float64   `json:"x,omitempty"`
	Y      float64   `json:"y,omitempty"`
	DeltaY float64   `json:"deltaY,omitempty"`
}

// PointerDown returns a pointerdown event.
func PointerDown() Event { return Event{Type: EventPointerDown} }

// PointerMove returns a pointermove event at client position (x, y).
func PointerMove(x, y float64) Event { return Event{Type: EventPointerMove, X: x, Y: y} }

// PointerUp returns a pointerup event.
func PointerUp() Event { return Event{Type: EventPointerUp} }

// PointerLeave returns a pointerleave event. It ends a drag like PointerUp.
func PointerLeave() Event { return Event{Type: EventPointerLeave} }

// Wheel returns a wheel event; only the sign of deltaY matters.
func Wheel(deltaY float64) Event { return Event{Type: EventWheel, DeltaY: deltaY} }

// Apply returns the viewport after ev.
func (v Viewport) Apply(w Window, ev Event) (Viewport, error) {
	switch ev.Type {
	case EventPointerDown:
		return v.PointerDown(), nil
	case EventPointerMove:
		return v.PointerMove(w, Point{X: ev.X, Y: ev.Y}), nil
	case EventPointerUp, EventPointerLeave:
		return v.PointerUp(), nil
	case EventWheel:
		return v.Zoom(w, ev.DeltaY)
	default:
		return v, fmt.Errorf("unknown event type %q", ev.Type)
	}
}
