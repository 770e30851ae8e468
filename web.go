package main

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/rs/zerolog/log"

	"imageclipper/clipper"
)

//go:embed static
var staticFS embed.FS
var isDebug = os.Getenv("DEBUG") == "1"

type Config struct {
	RootDir          string
	OutputDir        string
	Options          []clipper.Option
	OnBeforeShutdown func()
	OnReady          func(addr string)
	OnSave           func(artifact *clipper.Artifact, path string)
	// SettledRetention is how long a settled session stays queryable before
	// it is released. Zero means one minute.
	SettledRetention time.Duration
}

const defaultSettledRetention = time.Minute

// WebApp is a browser host for crop sessions. The page draws whatever frame
// the session describes and posts pointer and wheel events back.
type WebApp struct {
	config       Config
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	mu       sync.Mutex
	sessions map[string]*clipper.Session
}

func NewWebApp(config Config) *WebApp {
	return &WebApp{
		config:     config,
		shutdownCh: make(chan struct{}),
		sessions:   make(map[string]*clipper.Session),
	}
}

func (a *WebApp) Shutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdownCh)
	})
}

type createSessionRequest struct {
	File string `json:"file"`
	URL  string `json:"url"`
}

type sessionResponse struct {
	ID          string            `json:"id"`
	State       string            `json:"state"`
	Window      clipper.Window    `json:"window"`
	OKText      string            `json:"okText"`
	CancelText  string            `json:"cancelText"`
	OKStyle     map[string]string `json:"okStyle,omitempty"`
	CancelStyle map[string]string `json:"cancelStyle,omitempty"`
	WindowStyle map[string]string `json:"windowStyle,omitempty"`
	Frame       *clipper.Frame    `json:"frame,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func describeSession(s *clipper.Session) sessionResponse {
	opts := s.Options()
	resp := sessionResponse{
		ID:          s.ID(),
		State:       s.State().String(),
		Window:      opts.Window,
		OKText:      opts.OKText,
		CancelText:  opts.CancelText,
		OKStyle:     opts.OKStyle,
		CancelStyle: opts.CancelStyle,
		WindowStyle: opts.WindowStyle,
	}
	if f, err := s.Frame(); err == nil {
		resp.Frame = &f
	}
	select {
	case <-s.Done():
		if _, err := s.Wait(context.Background()); err != nil {
			resp.Error = err.Error()
		}
	default:
	}
	return resp
}

func errorStatus(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, clipper.ErrInvalidInputType), errors.Is(err, clipper.ErrInvalidOptions):
		return http.StatusBadRequest
	case errors.Is(err, clipper.ErrImageDecodeFailed), errors.Is(err, clipper.ErrInvalidImageDimensions):
		return http.StatusUnprocessableEntity
	case errors.Is(err, clipper.ErrNotReady), errors.Is(err, clipper.ErrRenderUnavailable),
		errors.Is(err, clipper.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, clipper.ErrCancelled):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func (a *WebApp) session(c *fiber.Ctx) (*clipper.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[c.Params("id")]
	if !ok {
		return nil, fiber.NewError(http.StatusNotFound, "session not found")
	}
	return s, nil
}

func (a *WebApp) release(s *clipper.Session) {
	s.Teardown()
	a.mu.Lock()
	delete(a.sessions, s.ID())
	a.mu.Unlock()
}

// track registers s and releases it once it has settled and the retention
// period has passed, however it settled.
func (a *WebApp) track(s *clipper.Session) {
	a.mu.Lock()
	a.sessions[s.ID()] = s
	a.mu.Unlock()

	retention := a.config.SettledRetention
	if retention <= 0 {
		retention = defaultSettledRetention
	}
	go func() {
		<-s.Done()
		time.AfterFunc(retention, func() { a.release(s) })
	}()
}

func (a *WebApp) releaseAll() {
	a.mu.Lock()
	sessions := a.sessions
	a.sessions = make(map[string]*clipper.Session)
	a.mu.Unlock()
	for _, s := range sessions {
		s.Teardown()
	}
}

// sourceFromRequest accepts a multipart upload in the "image" field, or a
// JSON body naming a file under the root directory or a URL.
func (a *WebApp) sourceFromRequest(c *fiber.Ctx) (clipper.Source, error) {
	if fh, err := c.FormFile("image"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return clipper.Source{}, fmt.Errorf("failed to open upload: %w", err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return clipper.Source{}, fmt.Errorf("failed to read upload: %w", err)
		}
		return clipper.FromFile(clipper.File{
			Name:       fh.Filename,
			MediaType:  fh.Header.Get(fiber.HeaderContentType),
			Data:       data,
			ModifiedAt: time.Now(),
		}), nil
	}

	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return clipper.Source{}, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	switch {
	case req.File != "":
		return openFileSource(http.Dir(a.config.RootDir), req.File)
	case req.URL != "":
		return clipper.FromString(req.URL), nil
	default:
		return clipper.Source{}, fmt.Errorf("%w: request names no image", clipper.ErrInvalidInputType)
	}
}

func (a *WebApp) newServer(ctx context.Context) *fiber.App {
	webapp := fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := errorStatus(err)
			if code == http.StatusNotFound && c.Path() == "/favicon.ico" {
				return nil
			}
			log.Ctx(ctx).Error().
				Err(err).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", code).
				Msg("Request failed")
			if code == http.StatusInternalServerError {
				return c.Status(code).JSON(fiber.Map{"error": "Internal Server Error"})
			}
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				return c.Status(code).JSON(fiber.Map{"error": fiberErr.Message})
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	filesRoot := http.Dir(a.config.RootDir)
	webapp.Get("/api/view", func(c *fiber.Ctx) error {
		filePath := c.Query("file")
		return filesystem.SendFile(c, filesRoot, filePath)
	})

	webapp.Get("/api/ls", func(c *fiber.Ctx) error {
		dir, err := walkImages(ctx, a.config.RootDir)
		if err != nil {
			return fmt.Errorf("failed to walk dir: %w", err)
		}

		for i := range dir.Files {
			dir.Files[i].URL = "/api/view?file=" + url.QueryEscape(dir.Files[i].Name)
		}

		var response struct {
			Name  string     `json:"name"`
			Files []FileInfo `json:"files"`
		}
		response.Name = dir.Name
		response.Files = dir.Files

		return c.JSON(response)
	})

	webapp.Post("/api/sessions", func(c *fiber.Ctx) error {
		src, err := a.sourceFromRequest(c)
		if err != nil {
			return err
		}
		// Sessions outlive the request that opened them.
		s, err := clipper.Open(ctx, src, a.config.Options...)
		if err != nil {
			return err
		}
		a.track(s)
		log.Ctx(ctx).Info().Str("session", s.ID()).Str("source", src.Identity()).Msg("Session opened")
		return c.Status(http.StatusCreated).JSON(describeSession(s))
	})

	webapp.Get("/api/sessions/:id", func(c *fiber.Ctx) error {
		s, err := a.session(c)
		if err != nil {
			return err
		}
		if c.QueryBool("wait") {
			select {
			case <-s.Ready():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return c.JSON(describeSession(s))
	})

	webapp.Post("/api/sessions/:id/events", func(c *fiber.Ctx) error {
		s, err := a.session(c)
		if err != nil {
			return err
		}
		var request struct {
			Events []clipper.Event `json:"events"`
		}
		if err := c.BodyParser(&request); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		for _, ev := range request.Events {
			if err := s.Dispatch(ev); err != nil {
				return err
			}
		}
		f, err := s.Frame()
		if err != nil {
			return err
		}
		return c.JSON(f)
	})

	webapp.Get("/api/sessions/:id/preview", func(c *fiber.Ctx) error {
		s, err := a.session(c)
		if err != nil {
			return err
		}
		preview, err := s.Preview()
		if err != nil {
			return err
		}
		var b bytes.Buffer
		if err := imaging.Encode(&b, preview, imaging.PNG); err != nil {
			return fmt.Errorf("failed to encode preview: %w", err)
		}
		c.Set(fiber.HeaderContentType, "image/png")
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.Send(b.Bytes())
	})

	webapp.Post("/api/sessions/:id/confirm", func(c *fiber.Ctx) error {
		s, err := a.session(c)
		if err != nil {
			return err
		}
		if err := s.Confirm(); err != nil {
			return err
		}
		artifact, err := s.Wait(ctx)
		a.release(s)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(a.config.OutputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", a.config.OutputDir, err)
		}
		path, err := writeArtifact(a.config.OutputDir, s.ID()+"-"+artifact.Name, artifact)
		if err != nil {
			return err
		}
		log.Ctx(ctx).Info().Str("session", s.ID()).Str("path", path).Msg("Artifact saved")
		if fn := a.config.OnSave; fn != nil {
			fn(artifact, path)
		}

		var response struct {
			*clipper.Artifact
			Path string `json:"path"`
		}
		response.Artifact = artifact
		response.Path = path
		return c.JSON(response)
	})

	webapp.Post("/api/sessions/:id/cancel", func(c *fiber.Ctx) error {
		s, err := a.session(c)
		if err != nil {
			return err
		}
		s.Cancel(nil)
		a.release(s)
		log.Ctx(ctx).Info().Str("session", s.ID()).Msg("Session cancelled")
		return c.SendStatus(http.StatusNoContent)
	})

	webapp.Delete("/api/sessions/:id", func(c *fiber.Ctx) error {
		s, err := a.session(c)
		if err != nil {
			return err
		}
		a.release(s)
		return c.SendStatus(http.StatusNoContent)
	})

	webapp.Post("/api/shutdown", func(c *fiber.Ctx) error {
		a.Shutdown()
		return nil
	})

	if isDebug {
		log.Debug().Msg("Debug mode enabled, serving static files from './static' directory")
		webapp.Static("/", "static")
	} else {
		log.Debug().Msg("Serving static files from embedded filesystem")
		webapp.Use("/", filesystem.New(filesystem.Config{
			Root:       http.FS(staticFS),
			PathPrefix: "/static",
		}))
	}

	return webapp
}

func (a *WebApp) Run(ctx context.Context) error {
	webapp := a.newServer(ctx)

	webapp.Hooks().OnListen(func(listen fiber.ListenData) error {
		if fn := a.config.OnReady; fn != nil {
			fn(fmt.Sprintf("http://%s:%s", listen.Host, listen.Port))
		}
		return nil
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-a.shutdownCh:
		}
		if fn := a.config.OnBeforeShutdown; fn != nil {
			fn()
		}
		a.releaseAll()
		if err := webapp.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Failed to shutdown web application")
		}
	}()

	// Let the OS assign a random available port
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", 0))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	// Use the listener that was already created
	if err := webapp.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
