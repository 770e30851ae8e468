package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"imageclipper/clipper"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run() error {
	var args cliArgs
	cliCtx := kong.Parse(
		&args,
		kong.Name("imageclipper"),
		kong.Description("Interactive pan-and-zoom image cropper."),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, "~/.config/imageclipper/config.json", ".imageclipper.json"),
	)
	if err := cliCtx.Run(&args.Globals); err != nil {
		return err
	}

	return nil
}

type Globals struct {
	Verbose bool `help:"Enable verbose logging" default:"false"`
}

// setup installs the console logger and returns a context that carries it
// and is cancelled on interrupt.
func (g *Globals) setup() (context.Context, context.CancelFunc) {
	level := zerolog.InfoLevel
	if g.Verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
	})).Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	return log.Logger.WithContext(ctx), cancel
}

type ClipFlags struct {
	ClipWidth    int    `help:"Width of the crop window in output pixels" default:"256"`
	ClipHeight   int    `help:"Height of the crop window in output pixels" default:"256"`
	OutlineWidth int    `help:"Overscan margin around the crop window" default:"32"`
	Quality      int    `help:"JPEG and WebP quality of the output" default:"90"`
	OkText       string `help:"Label of the confirm button" default:"ok"`
	CancelText   string `help:"Label of the cancel button" default:"cancel"`
}

func (f ClipFlags) options() []clipper.Option {
	return []clipper.Option{
		clipper.WithClipSize(f.ClipWidth, f.ClipHeight),
		clipper.WithOutlineWidth(f.OutlineWidth),
		clipper.WithJPEGQuality(f.Quality),
		clipper.WithLabels(f.OkText, f.CancelText),
	}
}

type serveCmd struct {
	ClipFlags `embed:""`

	RootDir   string `arg:"" help:"Root directory to serve images from" type:"existingdir"`
	OutputDir string `help:"Directory to save cropped images to (default: <root>/output)"`
	Open      bool   `help:"Open the browser automatically when the server starts" default:"true" negatable:""`
	Once      bool   `help:"Exit after the first saved crop" default:"false"`
}

func (cmd *serveCmd) Run(g *Globals) error {
	ctx, cancel := g.setup()
	defer cancel()

	outputDir := cmd.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(cmd.RootDir, "output")
	}

	app := NewWebApp(Config{
		RootDir:   cmd.RootDir,
		OutputDir: outputDir,
		Options:   cmd.options(),
		OnBeforeShutdown: func() {
			log.Ctx(ctx).Info().Msg("Shutting down web application...")
		},
		OnReady: func(addr string) {
			log.Ctx(ctx).Info().Msgf("Server started at %s", addr)
			if cmd.Open {
				if err := openBrowser(addr); err != nil {
					log.Error().Err(err).Msg("Failed to open browser")
				}
			}
		},
		OnSave: func(artifact *clipper.Artifact, path string) {
			if cmd.Once {
				cancel()
			}
		},
	})

	if err := app.Run(ctx); err != nil {
		return err
	}

	return nil
}

type cropCmd struct {
	ClipFlags `embed:""`

	Image  string `arg:"" help:"Image path or URL to crop"`
	Events string `help:"Interaction script as a JSON array or JSON lines; '-' reads stdin" default:"-"`
	Output string `short:"o" help:"Output file (default: artifact name in the current directory)"`
}

func (cmd *cropCmd) Run(g *Globals) error {
	ctx, cancel := g.setup()
	defer cancel()

	events, err := readEventsFrom(cmd.Events)
	if err != nil {
		return err
	}

	src := clipper.FromString(cmd.Image)
	if !strings.Contains(cmd.Image, "://") && !strings.HasPrefix(cmd.Image, "data:") {
		if src, err = openFileSource(http.Dir(filepath.Dir(cmd.Image)), filepath.Base(cmd.Image)); err != nil {
			return err
		}
	}

	artifact, err := NewSessionCropper(cmd.options()...).Crop(ctx, src, events)
	if err != nil {
		return err
	}

	out := cmd.Output
	if out == "" {
		out = artifact.Name
		if filepath.Ext(out) == "" {
			out += ".png"
		}
	}
	path, err := writeArtifact(filepath.Dir(out), filepath.Base(out), artifact)
	if err != nil {
		return err
	}
	log.Ctx(ctx).Info().
		Str("path", path).
		Int("width", artifact.Width).
		Int("height", artifact.Height).
		Msg("Saved crop")
	return nil
}

type batchCmd struct {
	ClipFlags `embed:""`

	Operations string `arg:"" help:"JSON lines file of clip and pick operations; '-' reads stdin"`
	BaseDir    string `help:"Directory operation filenames are relative to" default:"." type:"existingdir"`
	OutputDir  string `help:"Directory to save results to (default: <base>/output)"`
	JSON       bool   `help:"Output operations in JSON format without executing"`
}

func (cmd *batchCmd) Run(g *Globals) error {
	ctx, cancel := g.setup()
	defer cancel()

	r, closeFn, err := openInput(cmd.Operations)
	if err != nil {
		return err
	}
	defer closeFn()
	ops, err := readOperations(r)
	if err != nil {
		return err
	}

	if cmd.JSON {
		printJSONL(ops)
		return nil
	}

	outputDir := cmd.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(cmd.BaseDir, "output")
	}
	executor := &OperationExecutor{
		BaseDir:   cmd.BaseDir,
		OutputDir: outputDir,
		Cropper:   NewSessionCropper(cmd.options()...),
		OnSave: func(op Operation, path string) {
			log.Ctx(ctx).Info().Str("path", path).Msg("Saved")
		},
	}
	return executor.Exec(ctx, ops)
}

type cliArgs struct {
	Globals `embed:""`

	Serve serveCmd `cmd:"" default:"withargs" help:"Serve the browser cropper for a directory of images"`
	Crop  cropCmd  `cmd:"" help:"Replay an interaction script on one image"`
	Batch batchCmd `cmd:"" help:"Run clip and pick operations in parallel"`
}

func openInput(name string) (io.Reader, func(), error) {
	if name == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return f, func() { f.Close() }, nil
}

func readEventsFrom(name string) ([]clipper.Event, error) {
	r, closeFn, err := openInput(name)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return readEvents(r)
}

func printJSONL[T any](data []T) {
	enc := json.NewEncoder(os.Stdout)
	for _, item := range data {
		if err := enc.Encode(item); err != nil {
			log.Error().Err(err).Msg("Failed to encode item to JSON")
			continue
		}
	}
}
