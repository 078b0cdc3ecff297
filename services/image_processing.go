package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// FlattenOptions tunes FlattenBackground.
//   - Lower: luminance (0-255) where whitening starts.
//   - Upper: luminance at which a pixel becomes pure white.
//   - ProtectCenter: share (0-1) of the centre left untouched, where the product sits.
//   - Feather: blur sigma applied to the whitening mask; 0 disables it.
type FlattenOptions struct {
	Lower         uint8
	Upper         uint8
	ProtectCenter float64
	Feather       float64
}

var DefaultFlattenOptions = FlattenOptions{Lower: 225, Upper: 245, ProtectCenter: 0.4, Feather: 2}

func (o FlattenOptions) validate() error {
	if o.Lower >= o.Upper {
		return fmt.Errorf("lower threshold must be less than upper threshold")
	}
	if o.ProtectCenter < 0 || o.ProtectCenter > 1 {
		return fmt.Errorf("protected centre must be between 0 and 1")
	}
	return nil
}

// FlattenBackground pushes near-white pixels to pure white with a soft
// transition so an isolated product sits on a clean studio backdrop.
func FlattenBackground(img image.Image, opts FlattenOptions) (*image.NRGBA, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	src := imaging.Clone(img)
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	protectedW := int(float64(width) * opts.ProtectCenter)
	protectedH := int(float64(height) * opts.ProtectCenter)
	x0, y0 := (width-protectedW)/2, (height-protectedH)/2
	x1, y1 := x0+protectedW, y0+protectedH

	// mask holds how far each pixel is pushed to white, 0 keeps it, 255 whitens it.
	mask := image.NewGray(bounds)
	transition := float64(opts.Upper - opts.Lower)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x >= x0 && x < x1 && y >= y0 && y < y1 {
				continue
			}
			c := src.NRGBAAt(x, y)
			luminance := 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
			switch {
			case luminance <= float64(opts.Lower):
			case luminance >= float64(opts.Upper):
				mask.SetGray(x, y, color.Gray{Y: 255})
			default:
				mask.SetGray(x, y, color.Gray{Y: uint8(math.Round(255 * (luminance - float64(opts.Lower)) / transition))})
			}
		}
	}

	var weights image.Image = mask
	if opts.Feather > 0 {
		weights = imaging.Blur(mask, opts.Feather)
	}

	out := image.NewNRGBA(bounds)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := src.NRGBAAt(x, y)
			m, _, _, _ := weights.At(x, y).RGBA()
			factor := float64(m) / 65535.0
			out.SetNRGBA(x, y, color.NRGBA{
				R: blendToWhite(c.R, factor),
				G: blendToWhite(c.G, factor),
				B: blendToWhite(c.B, factor),
				A: c.A,
			})
		}
	}
	return out, nil
}

func blendToWhite(v uint8, factor float64) uint8 {
	return uint8(math.Round(float64(v)*(1-factor) + 255*factor))
}

// FlattenBackgroundBytes decodes, flattens and re-encodes as png.
func FlattenBackgroundBytes(data []byte, opts FlattenOptions) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	flattened, err := FlattenBackground(img, opts)
	if err != nil {
		return nil, err
	}
	encoded, _, err := EncodeImage(flattened, FormatPNG)
	return encoded, err
}
