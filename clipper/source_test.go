package clipper

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, createQuadrantImage(width, height)); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return buf.Bytes()
}

func TestSource_Validate(t *testing.T) {
	tests := []struct {
		name    string
		src     Source
		wantErr bool
	}{
		{"url", FromString("https://example.com/a.png"), false},
		{"path", FromString("a.png"), false},
		{"empty string", FromString(""), true},
		{"blank string", FromString("  "), true},
		{"zero value", Source{}, true},
		{"image file", FromFile(File{Name: "a.png", MediaType: "image/png"}), false},
		{"image file with params", FromFile(File{Name: "a.svg", MediaType: "image/svg+xml; charset=utf-8"}), false},
		{"text file", FromFile(File{Name: "a.txt", MediaType: "text/plain"}), true},
		{"file without type", FromFile(File{Name: "a"}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.src.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidInputType) {
				t.Errorf("got %v, want ErrInvalidInputType", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSource_Identity(t *testing.T) {
	if got := FromString("https://example.com/a.png").Identity(); got != "string source" {
		t.Errorf("string identity: got %q", got)
	}
	if got := FromFile(File{Name: "me.png", MediaType: "image/png"}).Identity(); got != "me.png" {
		t.Errorf("file identity: got %q", got)
	}
}

func TestParseDataURL(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr bool
	}{
		{"base64", "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("hello")), "hello", false},
		{"percent encoded", "data:,a%20b", "a b", false},
		{"upper case marker", "data:image/png;BASE64,aGVsbG8=", "hello", false},
		{"escaped base64", "data:image/png;base64,aGVs%62G8%3D", "hello", false},
		{"no media type", "data:;base64,aGVsbG8=", "hello", false},
		{"missing comma", "data:image/png;base64", "", true},
		{"bad escape", "data:image/png;base64,aGVs%zz", "", true},
		{"bad base64", "data:image/png;base64,!!!", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDataURL(tt.ref)
			if (err != nil) != tt.wantErr {
				t.Fatalf("got error %v, wantErr %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultLoader(t *testing.T) {
	data := encodePNG(t, 40, 30)

	path := filepath.Join(t.TempDir(), "image.png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/image.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	tests := []struct {
		name string
		src  Source
	}{
		{"file", FromFile(File{Name: "image.png", MediaType: "image/png", Data: data})},
		{"path", FromString(path)},
		{"file url", FromString("file://" + path)},
		{"data url", FromString("data:image/png;base64," + base64.StdEncoding.EncodeToString(data))},
		{"http", FromString(srv.URL + "/image.png")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := DefaultLoader{}.Load(context.Background(), tt.src)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 30 {
				t.Errorf("dimensions: got %dx%d, want 40x30", b.Dx(), b.Dy())
			}
		})
	}

	t.Run("http not found", func(t *testing.T) {
		if _, err := (DefaultLoader{}).Load(context.Background(), FromString(srv.URL+"/missing.png")); err == nil {
			t.Error("Load should fail for a 404")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := (DefaultLoader{}).Load(context.Background(), FromString(filepath.Join(t.TempDir(), "nope.png"))); err == nil {
			t.Error("Load should fail for a missing file")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		src := FromFile(File{Name: "a.png", MediaType: "image/png", Data: []byte("not an image")})
		if _, err := (DefaultLoader{}).Load(context.Background(), src); err == nil {
			t.Error("Load should fail for undecodable data")
		}
	})
}
