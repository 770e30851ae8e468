package clipper

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/image/draw"
)

// State is the lifecycle stage of a Session.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateConfirmed
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateConfirmed:
		return "confirmed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateCancelled || s == StateFailed
}

// Result is the settlement of a session: an artifact or an error.
type Result struct {
	Artifact *Artifact
	Err      error
}

// Session is one interactive crop of one image. It is created by Open, fed
// with events by a host, and settles exactly once: on confirm, cancel,
// load failure or teardown.
type Session struct {
	id   string
	src  Source
	opts Options
	log  zerolog.Logger

	mu      sync.Mutex
	state   State
	view    Viewport
	img     image.Image
	natural Dimensions

	readyOnce  sync.Once
	ready      chan struct{}
	settleOnce sync.Once
	done       chan struct{}
	result     Result
}

// Open validates src and opts and starts loading the image in the
// background. Invalid input is reported synchronously; everything after that
// is reported through Wait.
func Open(ctx context.Context, src Source, opts ...Option) (*Session, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	s := newSession(src, o)
	s.log = zerolog.Ctx(ctx).With().Str("session", s.id).Logger()
	s.state = StateLoading
	s.log.Debug().Str("source", src.Identity()).Msg("loading image")
	go s.load(ctx)
	return s, nil
}

func newSession(src Source, opts Options) *Session {
	return &Session{
		id:    uuid.NewString(),
		src:   src,
		opts:  opts,
		log:   zerolog.Nop(),
		state: StateIdle,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// ID returns the session identifier, a random UUID.
func (s *Session) ID() string { return s.id }

func (s *Session) Source() Source { return s.src }

func (s *Session) Options() Options { return s.opts }

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Viewport returns a copy of the current viewport.
func (s *Session) Viewport() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Natural returns the natural size of the loaded image.
func (s *Session) Natural() (Dimensions, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.natural, s.img != nil
}

// Ready is closed once the session leaves the loading state, whether the
// image loaded or not.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Done is closed once the session has settled.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session settles and returns its artifact or error.
func (s *Session) Wait(ctx context.Context) (*Artifact, error) {
	select {
	case <-s.done:
		return s.result.Artifact, s.result.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) load(ctx context.Context) {
	var (
		img image.Image
		err error
		pc  panics.Catcher
	)
	pc.Try(func() {
		img, err = s.opts.Loader.Load(ctx, s.src)
	})
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLoading {
		s.log.Debug().Stringer("state", s.state).Msg("discarding image load for finished session")
		return
	}
	if err != nil {
		s.failLocked(err)
		return
	}

	b := img.Bounds()
	natural := Dimensions{Width: float64(b.Dx()), Height: float64(b.Dy())}
	view, err := NewViewport(natural, s.opts.Window)
	if err != nil {
		s.failLocked(err)
		return
	}
	s.img, s.natural, s.view = img, natural, view
	s.state = StateReady
	s.markReady()
	s.log.Debug().Stringer("natural", natural).Stringer("display", view.Size).Msg("image ready")
}

func (s *Session) failLocked(err error) {
	s.log.Error().Err(err).Msg("failed to load image")
	s.state = StateFailed
	s.markReady()
	s.settle(Result{Err: fmt.Errorf("%w: %w", ErrImageDecodeFailed, err)})
}

func (s *Session) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Session) settle(r Result) bool {
	settled := false
	s.settleOnce.Do(func() {
		s.result = r
		settled = true
		close(s.done)
	})
	if !settled {
		s.log.Warn().Msg("session already settled, ignoring result")
	}
	return settled
}

// Dispatch applies a host input event.
func (s *Session) Dispatch(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return fmt.Errorf("%w: %s", ErrNotReady, s.state)
	}
	next, err := s.view.Apply(s.opts.Window, ev)
	if err != nil {
		return err
	}
	s.view = next
	return nil
}

// Frame describes the current state for drawing.
func (s *Session) Frame() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return Frame{}, ErrRenderUnavailable
	}
	return s.view.Frame(s.opts.Window, s.natural), nil
}

// Preview renders the current crop at preview quality. Hosts call it once
// per drawn frame.
func (s *Session) Preview() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return nil, ErrRenderUnavailable
	}
	return renderWith(draw.ApproxBiLinear, s.img, s.view.Frame(s.opts.Window, s.natural)), nil
}

// Confirm renders the crop and settles the session with it, or hands it to
// the Callback option. Errors produced while building the artifact settle the
// session; only a missing image or a finished session are returned here.
func (s *Session) Confirm() error {
	s.mu.Lock()
	if s.state.Terminal() {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionClosed, state)
	}
	if s.img == nil {
		s.mu.Unlock()
		return ErrRenderUnavailable
	}
	surface := Render(s.img, s.view.Frame(s.opts.Window, s.natural))
	s.state = StateConfirmed
	s.mu.Unlock()

	s.log.Debug().Msg("confirmed")
	if cb := s.opts.Callback; cb != nil {
		cb(surface,
			func(a *Artifact) { s.settle(Result{Artifact: a}) },
			func(err error) { s.settle(Result{Err: rejection(err)}) },
		)
		return nil
	}

	a, err := Resolve(s.src, surface, s.opts.JPEGQuality)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to resolve artifact")
		s.settle(Result{Err: err})
		return nil
	}
	s.settle(Result{Artifact: a})
	return nil
}

// Cancel settles the session with ErrCancelled wrapping reason. Cancelling a
// finished session does nothing.
func (s *Session) Cancel(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.log.Debug().AnErr("reason", reason).Msg("cancelled")
	s.state = StateCancelled
	s.markReady()
	s.settle(Result{Err: rejection(reason)})
}

// Teardown releases the session. A session that has not settled yet settles
// with ErrSessionClosed, including one whose confirm is still waiting on its
// callback; a load still in flight is discarded when it ends.
func (s *Session) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.settled() {
		s.state = StateCancelled
		s.settle(Result{Err: ErrSessionClosed})
	}
	s.markReady()
	s.img = nil
}

func (s *Session) settled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func rejection(reason error) error {
	switch {
	case reason == nil:
		return ErrCancelled
	case errors.Is(reason, ErrCancelled):
		return reason
	default:
		return fmt.Errorf("%w: %w", ErrCancelled, reason)
	}
}
