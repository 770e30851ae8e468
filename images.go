package main

import (
	"context"
	"fmt"
	"image"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"imageclipper/clipper"
)

// imageMediaTypes lists the croppable extensions. Content sniffing misses
// some of them (TIFF), and the system MIME table may be missing.
var imageMediaTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

type ImageInfo struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

type FileInfo struct {
	Name       string    `json:"name"`
	IsDir      bool      `json:"is_dir"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
	URL        string    `json:"url"`
	Image      ImageInfo `json:"image"`
}

type Directory struct {
	Name  string     `json:"name"`
	Files []FileInfo `json:"files"`
}

func isImageFile(path string) bool {
	_, ok := imageMediaTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

func walkImages(ctx context.Context, rootPath string) (Directory, error) {
	var files []FileInfo

	if err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isImageFile(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to get file info: %w", err)
		}

		relPath, err := filepath.Rel(rootPath, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path: %w", err)
		}

		files = append(files, FileInfo{
			Name:       filepath.ToSlash(relPath),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	}); err != nil {
		return Directory{}, err
	}

	for i := range files {
		img, err := readImageInfo(filepath.Join(rootPath, files[i].Name))
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("filename", files[i].Name).Msg("cannot read image dimensions")
			continue
		}
		files[i].Image = img
	}

	return Directory{
		Name:  filepath.Base(rootPath),
		Files: files,
	}, nil
}

func readImageInfo(filePath string) (ImageInfo, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	cfg, format, err := image.DecodeConfig(file)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to read image header: %w", err)
	}
	return ImageInfo{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// detectMediaType sniffs the content first and falls back to the extension.
func detectMediaType(name string, data []byte) string {
	if mt := http.DetectContentType(data); strings.HasPrefix(mt, "image/") {
		return mt
	}
	ext := strings.ToLower(filepath.Ext(name))
	if mt, ok := imageMediaTypes[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

// openFileSource reads a file from fsys into a file source for a crop session.
func openFileSource(fsys http.FileSystem, name string) (clipper.Source, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return clipper.Source{}, fmt.Errorf("failed to open file %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return clipper.Source{}, fmt.Errorf("failed to stat file %s: %w", name, err)
	}
	if info.IsDir() {
		return clipper.Source{}, fmt.Errorf("%w: %s is a directory", clipper.ErrInvalidInputType, name)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return clipper.Source{}, fmt.Errorf("failed to read file %s: %w", name, err)
	}

	return clipper.FromFile(clipper.File{
		Name:       filepath.Base(name),
		MediaType:  detectMediaType(name, data),
		Data:       data,
		ModifiedAt: info.ModTime(),
		Metadata:   map[string]string{"path": filepath.ToSlash(name)},
	}), nil
}
