package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

var (
	ErrTooLarge     = errors.New("file too large")
	ErrInvalidImage = errors.New("invalid image")
	ErrUnsupported  = errors.New("unsupported image type")
)

// ProcessedImage is a normalized image attachment: re-encoded JPEG with
// known dimensions.
type ProcessedImage struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

type ImageOptions struct {
	MaxBytes    int64
	MaxDim      int
	JPEGQuality int
}

func DefaultImageOptions() ImageOptions {
	return ImageOptions{
		MaxBytes:    10 * 1024 * 1024,
		MaxDim:      2048,
		JPEGQuality: 85,
	}
}

// sniffImageType detects allowed image types by magic number.
func sniffImageType(header []byte) (string, error) {
	if len(header) < 12 {
		return "", ErrInvalidImage
	}
	switch {
	case header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return "image/jpeg", nil
	case bytes.HasPrefix(header, []byte("\x89PNG\r\n\x1a\n")):
		return "image/png", nil
	case bytes.HasPrefix(header, []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP")):
		return "image/webp", nil
	default:
		return "", ErrUnsupported
	}
}

// ProcessImageAttachment reads an uploaded image, validates it by magic
// number, downscales it to fit within MaxDim (never upscaling), and
// re-encodes as JPEG.
func ProcessImageAttachment(r io.Reader, opts ImageOptions) (*ProcessedImage, error) {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultImageOptions().MaxBytes
	}
	if opts.MaxDim <= 0 {
		opts.MaxDim = DefaultImageOptions().MaxDim
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultImageOptions().JPEGQuality
	}

	data, err := io.ReadAll(io.LimitReader(r, opts.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > opts.MaxBytes {
		return nil, ErrTooLarge
	}
	if len(data) < 12 {
		return nil, ErrInvalidImage
	}

	srcType, err := sniffImageType(data[:12])
	if err != nil {
		return nil, err
	}

	var img image.Image
	switch srcType {
	case "image/jpeg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	case "image/png":
		img, err = png.Decode(bytes.NewReader(data))
	case "image/webp":
		img, err = webp.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, ErrInvalidImage
	}

	// Fit within MaxDim, preserve aspect, never upscale.
	tw, th := w, h
	if w > opts.MaxDim || h > opts.MaxDim {
		if w >= h {
			tw = opts.MaxDim
			th = int(float64(h) * (float64(opts.MaxDim) / float64(w)))
		} else {
			th = opts.MaxDim
			tw = int(float64(w) * (float64(opts.MaxDim) / float64(h)))
		}
		if tw < 1 {
			tw = 1
		}
		if th < 1 {
			th = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: opts.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return &ProcessedImage{
		Data:        out.Bytes(),
		ContentType: "image/jpeg",
		Width:       tw,
		Height:      th,
	}, nil
}
