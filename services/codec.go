package services

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

type ImageFormat string

const (
	FormatJPEG ImageFormat = "jpeg"
	FormatPNG  ImageFormat = "png"
	FormatGIF  ImageFormat = "gif"
	FormatWEBP ImageFormat = "webp"
)

const (
	// DefaultMaxDimension is the longest side sent to image models.
	DefaultMaxDimension = 1536
	jpegQuality         = 90
)

type SniffResult struct {
	Format ImageFormat
	MIME   string
}

// SniffImage identifies an image from its magic bytes.
func SniffImage(head []byte) (SniffResult, error) {
	switch {
	case len(head) > 3 && head[0] == 0xff && head[1] == 0xd8 && head[2] == 0xff:
		return SniffResult{Format: FormatJPEG, MIME: "image/jpeg"}, nil
	case bytes.HasPrefix(head, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}):
		return SniffResult{Format: FormatPNG, MIME: "image/png"}, nil
	case bytes.HasPrefix(head, []byte("GIF87a")), bytes.HasPrefix(head, []byte("GIF89a")):
		return SniffResult{Format: FormatGIF, MIME: "image/gif"}, nil
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP")):
		return SniffResult{Format: FormatWEBP, MIME: "image/webp"}, nil
	}
	return SniffResult{}, ErrUnsupportedType
}

// FitDimensions returns the size that fits w x h inside a maxSide square while
// keeping the aspect ratio. Images already inside the box keep their size.
func FitDimensions(w, h, maxSide int) (int, int) {
	if w <= maxSide && h <= maxSide {
		return w, h
	}
	if w >= h {
		nh := int(float64(h)*float64(maxSide)/float64(w) + 0.5)
		if nh < 1 {
			nh = 1
		}
		return maxSide, nh
	}
	nw := int(float64(w)*float64(maxSide)/float64(h) + 0.5)
	if nw < 1 {
		nw = 1
	}
	return nw, maxSide
}

// ResizeToFit shrinks an encoded image so neither side exceeds maxSide. The
// output keeps the input format except webp and gif, which become png.
func ResizeToFit(data []byte, maxSide int) ([]byte, string, error) {
	if maxSide <= 0 {
		return nil, "", fmt.Errorf("max dimension must be positive, got %d", maxSide)
	}
	sniffed, err := SniffImage(data)
	if err != nil {
		return nil, "", err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := FitDimensions(bounds.Dx(), bounds.Dy(), maxSide)
	unchanged := w == bounds.Dx() && h == bounds.Dy()
	if unchanged && (sniffed.Format == FormatJPEG || sniffed.Format == FormatPNG) {
		return data, sniffed.MIME, nil
	}
	var resized image.Image = img
	if !unchanged {
		resized = imaging.Resize(img, w, h, imaging.Lanczos)
	}
	return EncodeImage(resized, sniffed.Format)
}

// EncodeImage writes jpeg as jpeg and everything else as png.
func EncodeImage(img image.Image, format ImageFormat) ([]byte, string, error) {
	var buf bytes.Buffer
	switch format {
	case FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, "", fmt.Errorf("failed to encode jpeg: %w", err)
		}
		return buf.Bytes(), "image/jpeg", nil
	}
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), "image/png", nil
}
