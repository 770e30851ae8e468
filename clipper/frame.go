package clipper

// Rect is an axis-aligned rectangle in floating point coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Frame is everything a host needs to draw one state of a session. Container,
// Window and Image are in container coordinates; Source is in natural image
// pixels; Dest is in output pixels.
type Frame struct {
	Container Dimensions `json:"container"`
	Window    Rect       `json:"window"`
	Image     Rect       `json:"image"`
	Source    Rect       `json:"source"`
	Dest      Rect       `json:"dest"`
	ZoomRatio float64    `json:"zoomRatio"`
}

// Frame describes how v is drawn for an image of the given natural size.
func (v Viewport) Frame(w Window, natural Dimensions) Frame {
	o := float64(w.OutlineWidth)
	clip := w.Clip()
	ratio := natural.Width / v.Size.Width
	return Frame{
		Container: w.Container(),
		Window:    Rect{X: o, Y: o, Width: clip.Width, Height: clip.Height},
		Image:     Rect{X: v.Offset.X, Y: v.Offset.Y, Width: v.Size.Width, Height: v.Size.Height},
		Source: Rect{
			X:      (o - v.Offset.X) * ratio,
			Y:      (o - v.Offset.Y) * ratio,
			Width:  clip.Width * ratio,
			Height: clip.Height * ratio,
		},
		Dest:      Rect{Width: clip.Width, Height: clip.Height},
		ZoomRatio: ratio,
	}
}
