package clipper

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"maps"
	"mime"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

const (
	clippedName      = "clipped"
	clippedMediaType = "image/png"
)

// Artifact is the result of a confirmed crop session.
type Artifact struct {
	Name       string            `json:"name"`
	MediaType  string            `json:"mediaType"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	ModifiedAt time.Time         `json:"modifiedAt,omitzero"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Data       []byte            `json:"-"`
}

// WriteTo writes the encoded artifact to w.
func (a *Artifact) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(a.Data)
	return int64(n), err
}

// Render draws the source rectangle of f from img into a new image of exactly
// the destination size.
func Render(img image.Image, f Frame) *image.RGBA {
	return renderWith(draw.CatmullRom, img, f)
}

func renderWith(interp draw.Transformer, img image.Image, f Frame) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, int(f.Dest.Width), int(f.Dest.Height)))
	b := img.Bounds()
	r := f.ZoomRatio
	s2d := f64.Aff3{
		1 / r, 0, -(f.Source.X + float64(b.Min.X)) / r,
		0, 1 / r, -(f.Source.Y + float64(b.Min.Y)) / r,
	}
	interp.Transform(dst, s2d, img, b, draw.Src, nil)
	return dst
}

// Resolve encodes a rendered surface into the default artifact for src.
// Reference sources produce a PNG named "clipped". File sources keep their
// name, media type, modification time and metadata; the pixels are encoded in
// the declared format when a codec for it exists and as PNG otherwise.
func Resolve(src Source, surface image.Image, jpegQuality int) (*Artifact, error) {
	b := surface.Bounds()
	a := &Artifact{
		Name:      clippedName,
		MediaType: clippedMediaType,
		Width:     b.Dx(),
		Height:    b.Dy(),
	}
	if f := src.File(); f != nil {
		a.Name = f.Name
		a.MediaType = f.MediaType
		a.ModifiedAt = f.ModifiedAt
		a.Metadata = maps.Clone(f.Metadata)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, surface, a.MediaType, jpegQuality); err != nil {
		return nil, err
	}
	a.Data = buf.Bytes()
	return a, nil
}

// Encode writes img to w in the format named by mediaType, falling back to
// PNG for media types without an encoder.
func Encode(w io.Writer, img image.Image, mediaType string, jpegQuality int) error {
	var err error
	switch baseMediaType(mediaType) {
	case "image/webp":
		err = webp.Encode(w, img, &webp.Options{Quality: float32(jpegQuality)})
	case "image/jpeg", "image/jpg", "image/pjpeg":
		err = imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality))
	case "image/gif":
		err = imaging.Encode(w, img, imaging.GIF)
	case "image/tiff":
		err = imaging.Encode(w, img, imaging.TIFF)
	case "image/bmp", "image/x-ms-bmp":
		err = imaging.Encode(w, img, imaging.BMP)
	default:
		err = imaging.Encode(w, img, imaging.PNG)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", mediaType, err)
	}
	return nil
}

func baseMediaType(mediaType string) string {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mediaType))
	}
	return mt
}
