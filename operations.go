package main

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"imageclipper/clipper"
)

type Operations = []Operation

type Operation struct {
	Clip *ClipOperation
	Pick *PickOperation
}

// unmarshal
func (o *Operation) UnmarshalJSON(data []byte) error {
	var op struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &op); err != nil {
		return fmt.Errorf("failed to unmarshal operation: %w", err)
	}

	switch op.Type {
	case "clip":
		var clip ClipOperation
		if err := json.Unmarshal(data, &clip); err != nil {
			return fmt.Errorf("failed to unmarshal clip operation: %w", err)
		}
		o.Clip = &clip
	case "pick":
		var pick PickOperation
		if err := json.Unmarshal(data, &pick); err != nil {
			return fmt.Errorf("failed to unmarshal pick operation: %w", err)
		}
		o.Pick = &pick
	default:
		return fmt.Errorf("unknown operation %q", op.Type)
	}
	return nil
}

func (o Operation) MarshalJSON() ([]byte, error) {
	switch {
	case o.Clip != nil:
		type clip ClipOperation
		return json.Marshal(struct {
			Type string `json:"type"`
			clip
		}{"clip", clip(*o.Clip)})
	case o.Pick != nil:
		type pick PickOperation
		return json.Marshal(struct {
			Type string `json:"type"`
			pick
		}{"pick", pick(*o.Pick)})
	default:
		return nil, errors.New("empty operation")
	}
}

// ClipOperation replays a recorded interaction script on an image. Window
// overrides the executor's crop window when set.
type ClipOperation struct {
	Filename string          `json:"filename"`
	Events   []clipper.Event `json:"events"`
	Window   *clipper.Window `json:"window,omitempty"`
}

func (c ClipOperation) String() string {
	var b strings.Builder
	if c.Window != nil {
		fmt.Fprintf(&b, "window(%dx%d+%d)", c.Window.ClipWidth, c.Window.ClipHeight, c.Window.OutlineWidth)
	}
	for _, ev := range c.Events {
		fmt.Fprintf(&b, "%s(%g,%g,%g)", ev.Type, ev.X, ev.Y, ev.DeltaY)
	}
	return b.String()
}

func (c ClipOperation) ID() string {
	m := md5.New()
	_, err := m.Write([]byte(c.String()))
	if err != nil {
		log.Error().Err(err).Msg("failed to hash clip script")
		return ""
	}
	return fmt.Sprintf("%x", m.Sum(nil))[:12]
}

type PickOperation struct {
	Filename string `json:"filename"`
}

type OperationExecutor struct {
	BaseDir   string
	OutputDir string
	Cropper   Cropper
	OnSave    func(op Operation, path string)
}

func (r OperationExecutor) Exec(ctx context.Context, ops []Operation) error {
	if len(ops) == 0 {
		log.Ctx(ctx).Warn().Msg("no operations to execute")
		return nil
	}

	pooler := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(runtime.NumCPU())

	if err := os.MkdirAll(r.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", r.OutputDir, err)
	}
	for _, op := range ops {
		pooler.Go(func(ctx context.Context) error {
			if err := r.executeOperation(ctx, op); err != nil {
				log.Ctx(ctx).Error().Err(err).
					Interface("op", op).
					Msg("failed to execute operation")
				return err
			}
			return nil
		})
	}

	if err := pooler.Wait(); err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Msg("finished with errors")
		return err
	}

	return nil
}

func (r OperationExecutor) executeOperation(ctx context.Context, op Operation) error {
	if op.Clip != nil {
		return r.executeClip(ctx, op)
	} else if op.Pick != nil {
		return r.executePick(ctx, op)
	}
	return nil
}

func (r OperationExecutor) executeClip(ctx context.Context, op Operation) error {
	clip := *op.Clip
	log.Ctx(ctx).Info().Str("filename", clip.Filename).Int("events", len(clip.Events)).Msg("clipping")

	src, err := openFileSource(http.Dir(r.BaseDir), clip.Filename)
	if err != nil {
		return err
	}
	var opts []clipper.Option
	if clip.Window != nil {
		opts = append(opts, clipper.WithWindow(*clip.Window))
	}
	artifact, err := r.Cropper.Crop(ctx, src, clip.Events, opts...)
	if err != nil {
		return fmt.Errorf("failed to clip %s: %w", clip.Filename, err)
	}

	ext := filepath.Ext(artifact.Name)
	newName := fmt.Sprintf("%s-%s%s", strings.TrimSuffix(artifact.Name, ext), clip.ID(), ext)
	croppedPath, err := writeArtifact(r.OutputDir, newName, artifact)
	if err != nil {
		return err
	}
	if r.OnSave != nil {
		r.OnSave(op, croppedPath)
	}
	return nil
}

func (r OperationExecutor) executePick(ctx context.Context, op Operation) error {
	pick := *op.Pick
	log.Ctx(ctx).Info().Str("filename", pick.Filename).Msg("picking")
	sourcePath := filepath.Join(r.BaseDir, pick.Filename)
	savePath := filepath.Join(r.OutputDir, filepath.Base(pick.Filename))
	if err := copyFile(sourcePath, savePath); err != nil {
		return fmt.Errorf("failed to pick file %s: %w", pick.Filename, err)
	}
	if r.OnSave != nil {
		r.OnSave(op, savePath)
	}
	return nil
}

func writeArtifact(dir, name string, artifact *clipper.Artifact) (string, error) {
	path := filepath.Join(dir, name)
	wf, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create cropped file %s: %w", name, err)
	}
	defer wf.Close()
	if _, err := artifact.WriteTo(wf); err != nil {
		return "", fmt.Errorf("failed to write cropped data to file %s: %w", name, err)
	}
	if !artifact.ModifiedAt.IsZero() {
		if err := os.Chtimes(path, artifact.ModifiedAt, artifact.ModifiedAt); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to carry over modification time")
		}
	}
	return path, nil
}

func copyFile(sourcePath, destPath string) error {
	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", sourcePath, err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", destPath, err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return fmt.Errorf("failed to copy file from %s to %s: %w", sourcePath, destPath, err)
	}

	return nil
}

// readOperations reads JSON lines of operations.
func readOperations(r io.Reader) (Operations, error) {
	var ops Operations
	dec := json.NewDecoder(r)
	for {
		var op Operation
		if err := dec.Decode(&op); errors.Is(err, io.EOF) {
			return ops, nil
		} else if err != nil {
			return nil, fmt.Errorf("failed to read operation %d: %w", len(ops)+1, err)
		}
		ops = append(ops, op)
	}
}

// readEvents reads an interaction script given either as a JSON array or as
// JSON lines.
func readEvents(r io.Reader) ([]clipper.Event, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var events []clipper.Event
	if data[0] == '[' {
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("failed to parse events: %w", err)
		}
		return events, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var ev clipper.Event
		if err := dec.Decode(&ev); errors.Is(err, io.EOF) {
			return events, nil
		} else if err != nil {
			return nil, fmt.Errorf("failed to parse event %d: %w", len(events)+1, err)
		}
		events = append(events, ev)
	}
}
