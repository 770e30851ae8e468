package main

import (
	"context"
	"fmt"

	"imageclipper/clipper"
)

// Cropper produces an artifact from an image and a recorded interaction
// script.
type Cropper interface {
	Crop(ctx context.Context, src clipper.Source, events []clipper.Event, opts ...clipper.Option) (*clipper.Artifact, error)
}

// SessionCropper replays a script against a headless crop session: it waits
// for the image, dispatches every event in order and confirms.
type SessionCropper struct {
	Options []clipper.Option
}

// NewSessionCropper creates a new instance of SessionCropper
func NewSessionCropper(opts ...clipper.Option) *SessionCropper {
	return &SessionCropper{Options: opts}
}

// Crop implements the Cropper interface. Options given here are applied after
// the cropper's own.
func (c *SessionCropper) Crop(ctx context.Context, src clipper.Source, events []clipper.Event, opts ...clipper.Option) (*clipper.Artifact, error) {
	all := append(append([]clipper.Option{}, c.Options...), opts...)
	s, err := clipper.Open(ctx, src, all...)
	if err != nil {
		return nil, err
	}
	defer s.Teardown()

	select {
	case <-s.Ready():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if s.State() != clipper.StateReady {
		// The load failed; Wait reports why.
		return s.Wait(ctx)
	}

	for i, ev := range events {
		if err := s.Dispatch(ev); err != nil {
			return nil, fmt.Errorf("failed to apply event %d (%s): %w", i, ev.Type, err)
		}
	}
	if err := s.Confirm(); err != nil {
		return nil, fmt.Errorf("failed to confirm crop: %w", err)
	}
	return s.Wait(ctx)
}
