package clipper

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func TestFit(t *testing.T) {
	tests := []struct {
		name    string
		natural Dimensions
		target  Dimensions
		want    Dimensions
	}{
		{"large enough is unchanged", Dimensions{800, 600}, Dimensions{256, 256}, Dimensions{800, 600}},
		{"exactly target", Dimensions{256, 256}, Dimensions{256, 256}, Dimensions{256, 256}},
		{"narrow portrait fits width", Dimensions{100, 200}, Dimensions{256, 256}, Dimensions{256, 512}},
		{"small landscape fits height", Dimensions{200, 100}, Dimensions{256, 256}, Dimensions{512, 256}},
		{"small square", Dimensions{100, 100}, Dimensions{256, 256}, Dimensions{256, 256}},
		{"wide but short", Dimensions{600, 100}, Dimensions{256, 256}, Dimensions{1536, 256}},
		{"tall but narrow", Dimensions{100, 600}, Dimensions{256, 256}, Dimensions{256, 1536}},
		{"non-square target", Dimensions{100, 100}, Dimensions{320, 180}, Dimensions{320, 320}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Fit(tt.natural, tt.target)
			if err != nil {
				t.Fatalf("Fit failed: %v", err)
			}
			if !approxDims(got, tt.want) {
				t.Errorf("Fit(%s, %s): got %s, want %s", tt.natural, tt.target, got, tt.want)
			}
		})
	}
}

func TestFit_InvalidDimensions(t *testing.T) {
	tests := []struct {
		name    string
		natural Dimensions
		target  Dimensions
	}{
		{"zero height", Dimensions{100, 0}, Dimensions{256, 256}},
		{"zero width", Dimensions{0, 100}, Dimensions{256, 256}},
		{"negative", Dimensions{-1, 100}, Dimensions{256, 256}},
		{"zero target", Dimensions{100, 100}, Dimensions{0, 256}},
		{"infinite", Dimensions{math.Inf(1), 100}, Dimensions{256, 256}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(tt.natural, tt.target)
			if !errors.Is(err, ErrInvalidImageDimensions) {
				t.Errorf("got error %v, want ErrInvalidImageDimensions", err)
			}
		})
	}
}

func TestFit_CoversAndKeepsAspect(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 5000; i++ {
		natural := Dimensions{1 + rng.Float64()*2000, 1 + rng.Float64()*2000}
		target := Dimensions{1 + rng.Float64()*1000, 1 + rng.Float64()*1000}

		got, err := Fit(natural, target)
		if err != nil {
			t.Fatalf("Fit(%s, %s) failed: %v", natural, target, err)
		}
		if got.Width < target.Width*(1-1e-9) || got.Height < target.Height*(1-1e-9) {
			t.Fatalf("Fit(%s, %s) = %s does not cover target", natural, target, got)
		}
		wantAspect := natural.Width / natural.Height
		if gotAspect := got.Width / got.Height; math.Abs(gotAspect-wantAspect) > wantAspect*1e-9 {
			t.Fatalf("Fit(%s, %s) = %s: aspect %g, want %g", natural, target, got, gotAspect, wantAspect)
		}

		again, _ := Fit(natural, target)
		if again != got {
			t.Fatalf("Fit(%s, %s) not deterministic: %s then %s", natural, target, got, again)
		}
	}
}

func approxDims(a, b Dimensions) bool {
	return approx(a.Width, b.Width) && approx(a.Height, b.Height)
}

func approxPoint(a, b Point) bool {
	return approx(a.X, b.X) && approx(a.Y, b.Y)
}

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
