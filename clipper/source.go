package clipper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	"github.com/vincent-petithory/dataurl"
)

const (
	stringSourceIdentity = "string source"
	base64Marker         = ";base64"
)

// File is an in-memory image file handed over by a host, typically an upload.
type File struct {
	Name       string
	MediaType  string
	Data       []byte
	ModifiedAt time.Time
	Metadata   map[string]string
}

// Source is the image a crop session works on: either a reference string
// (http(s) URL, data URL, file URL or local path) or a File.
type Source struct {
	ref  string
	file *File
}

// FromString returns a Source for a URL or a local path.
func FromString(ref string) Source {
	return Source{ref: ref}
}

// FromFile returns a Source for an in-memory file.
func FromFile(f File) Source {
	return Source{file: &f}
}

// Ref returns the reference string, empty for file sources.
func (s Source) Ref() string { return s.ref }

// File returns the file of a file source, nil for reference sources.
func (s Source) File() *File { return s.file }

// Identity names the source: the file name for file sources and a fixed
// marker for reference sources.
func (s Source) Identity() string {
	if s.file != nil {
		return s.file.Name
	}
	return stringSourceIdentity
}

// Validate reports ErrInvalidInputType unless s is a non-empty reference or a
// file declaring an image media type.
func (s Source) Validate() error {
	if s.file != nil {
		if !strings.HasPrefix(baseMediaType(s.file.MediaType), "image/") {
			return fmt.Errorf("%w: media type %q", ErrInvalidInputType, s.file.MediaType)
		}
		return nil
	}
	if strings.TrimSpace(s.ref) == "" {
		return fmt.Errorf("%w: empty source", ErrInvalidInputType)
	}
	return nil
}

// Loader fetches and decodes the image of a Source.
type Loader interface {
	Load(ctx context.Context, src Source) (image.Image, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, src Source) (image.Image, error)

// Load implements the Loader interface.
func (f LoaderFunc) Load(ctx context.Context, src Source) (image.Image, error) {
	return f(ctx, src)
}

// DefaultLoader reads file sources from memory, fetches http(s) references
// with the fiber client, and reads data URLs, file URLs and paths directly.
type DefaultLoader struct{}

// Load implements the Loader interface.
func (DefaultLoader) Load(ctx context.Context, src Source) (image.Image, error) {
	data, err := fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode decodes an encoded image, applying its EXIF orientation.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return wimg, nil
	}
	return nil, fmt.Errorf("failed to decode image: %w", err)
}

func fetch(ctx context.Context, src Source) ([]byte, error) {
	if f := src.File(); f != nil {
		return f.Data, nil
	}
	ref := src.Ref()
	switch {
	case strings.HasPrefix(ref, "data:"):
		return parseDataURL(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return fetchRemote(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("failed to parse file url: %w", err)
		}
		return readFile(u.Path)
	default:
		return readFile(ref)
	}
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, nil
}

func fetchRemote(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	agent := fiber.Get(ref)
	if err := agent.Parse(); err != nil {
		return nil, fmt.Errorf("failed to prepare request for %s: %w", ref, err)
	}
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to fetch %s: %w", ref, errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: status %d", ref, code)
	}
	return body, nil
}

// parseDataURL decodes the payload of an RFC 2397 data URL. The base64
// marker is matched without regard to case, and a base64 payload may itself
// be percent-escaped.
func parseDataURL(ref string) ([]byte, error) {
	if meta, payload, ok := strings.Cut(ref, ","); ok && len(meta) >= len(base64Marker) &&
		strings.EqualFold(meta[len(meta)-len(base64Marker):], base64Marker) {
		unescaped, err := dataurl.UnescapeToString(payload)
		if err != nil {
			return nil, fmt.Errorf("malformed data url payload: %w", err)
		}
		ref = meta[:len(meta)-len(base64Marker)] + base64Marker + "," + unescaped
	}
	du, err := dataurl.DecodeString(ref)
	if err != nil {
		return nil, fmt.Errorf("malformed data url: %w", err)
	}
	return du.Data, nil
}
