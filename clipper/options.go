package clipper

import (
	"fmt"
	"image"
)

// Defaults applied by DefaultOptions.
const (
	DefaultClipWidth    = 256
	DefaultClipHeight   = 256
	DefaultOutlineWidth = 32
	DefaultJPEGQuality  = 90
)

// Callback takes over artifact production on confirm. It receives the
// rendered crop and must settle the session through resolve or reject,
// possibly later and from another goroutine. Only the first call counts.
type Callback func(surface *image.RGBA, resolve func(*Artifact), reject func(error))

// Options configures a crop session. Labels and styles are not interpreted by
// the session; they are carried for the host that draws it.
type Options struct {
	Window      Window
	Callback    Callback
	OKText      string
	CancelText  string
	OKStyle     map[string]string
	CancelStyle map[string]string
	WindowStyle map[string]string
	JPEGQuality int
	Loader      Loader
}

// DefaultOptions returns a 256x256 window with a 32 pixel outline, "ok" and
// "cancel" labels, JPEG quality 90 and the DefaultLoader.
func DefaultOptions() Options {
	return Options{
		Window: Window{
			ClipWidth:    DefaultClipWidth,
			ClipHeight:   DefaultClipHeight,
			OutlineWidth: DefaultOutlineWidth,
		},
		OKText:      "ok",
		CancelText:  "cancel",
		JPEGQuality: DefaultJPEGQuality,
		Loader:      DefaultLoader{},
	}
}

// Validate reports ErrInvalidOptions for an invalid window, quality or a
// missing loader.
func (o Options) Validate() error {
	if err := o.Window.Validate(); err != nil {
		return err
	}
	if o.JPEGQuality < 1 || o.JPEGQuality > 100 {
		return fmt.Errorf("%w: jpeg quality %d", ErrInvalidOptions, o.JPEGQuality)
	}
	if o.Loader == nil {
		return fmt.Errorf("%w: nil loader", ErrInvalidOptions)
	}
	return nil
}

// Option changes one setting of a session.
type Option func(*Options)

// WithClipSize sets the output size of the crop window.
func WithClipSize(width, height int) Option {
	return func(o *Options) {
		o.Window.ClipWidth = width
		o.Window.ClipHeight = height
	}
}

// WithOutlineWidth sets the margin drawn around the crop window. Zero is
// allowed.
func WithOutlineWidth(width int) Option {
	return func(o *Options) { o.Window.OutlineWidth = width }
}

// WithWindow replaces the whole crop window.
func WithWindow(w Window) Option {
	return func(o *Options) { o.Window = w }
}

// WithCallback hands the rendered crop to cb instead of building the default
// artifact.
func WithCallback(cb Callback) Option {
	return func(o *Options) { o.Callback = cb }
}

// WithLabels sets the confirm and cancel labels. Empty values keep the
// defaults.
func WithLabels(ok, cancel string) Option {
	return func(o *Options) {
		if ok != "" {
			o.OKText = ok
		}
		if cancel != "" {
			o.CancelText = cancel
		}
	}
}

// WithStyles sets the opaque style maps a host applies to the buttons and
// the window.
func WithStyles(ok, cancel, window map[string]string) Option {
	return func(o *Options) {
		o.OKStyle = ok
		o.CancelStyle = cancel
		o.WindowStyle = window
	}
}

// WithJPEGQuality sets the quality of JPEG and WebP artifacts.
func WithJPEGQuality(q int) Option {
	return func(o *Options) { o.JPEGQuality = q }
}

// WithLoader replaces the strategy that fetches and decodes the image.
func WithLoader(l Loader) Option {
	return func(o *Options) { o.Loader = l }
}
