package clipper

import "errors"

var (
	// ErrInvalidInputType is returned by Open when the source is neither a
	// reference string nor a file with an image media type.
	ErrInvalidInputType = errors.New("invalid image input type")
	// ErrImageDecodeFailed settles a session whose image could not be loaded.
	ErrImageDecodeFailed = errors.New("image decode failed")
	// ErrInvalidImageDimensions is returned by Fit for zero-extent sizes.
	ErrInvalidImageDimensions = errors.New("invalid image dimensions")
	// ErrRenderUnavailable is returned when rendering is requested before the
	// image finished loading.
	ErrRenderUnavailable = errors.New("render unavailable: image not loaded")

	ErrInvalidOptions = errors.New("invalid clipper options")
	ErrCancelled      = errors.New("crop cancelled")
	ErrSessionClosed  = errors.New("crop session closed")
	ErrNotReady       = errors.New("crop session not ready")
)
