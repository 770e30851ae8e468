package clipper

import (
	"fmt"
	"math"
)

// Dimensions is the extent of an image or a viewport.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (d Dimensions) valid() bool {
	return d.Width > 0 && d.Height > 0 &&
		!math.IsInf(d.Width, 0) && !math.IsInf(d.Height, 0)
}

// Scale returns d with both sides multiplied by f.
func (d Dimensions) Scale(f float64) Dimensions {
	return Dimensions{Width: d.Width * f, Height: d.Height * f}
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%gx%g", d.Width, d.Height)
}

// Fit returns the display size of an image of the given natural size inside
// target. An image at least as large as target on both axes is returned
// unchanged. Otherwise the image is scaled, keeping its aspect ratio, until it
// covers target on both axes.
func Fit(natural, target Dimensions) (Dimensions, error) {
	if !natural.valid() {
		return Dimensions{}, fmt.Errorf("%w: image %s", ErrInvalidImageDimensions, natural)
	}
	if !target.valid() {
		return Dimensions{}, fmt.Errorf("%w: target %s", ErrInvalidImageDimensions, target)
	}

	aspect := natural.Width / natural.Height
	fitWidth := Dimensions{Width: target.Width, Height: target.Width / aspect}
	fitHeight := Dimensions{Width: target.Height * aspect, Height: target.Height}

	switch {
	case natural.Width >= target.Width && natural.Height >= target.Height:
		return natural, nil
	case natural.Width < target.Width:
		if fitWidth.Height >= target.Height {
			return fitWidth, nil
		}
		return fitHeight, nil
	default:
		if fitHeight.Width >= target.Width {
			return fitHeight, nil
		}
		return fitWidth, nil
	}
}
