package frame

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WEBP decoder
)

// supportedFormats are the image.DecodeConfig format names we accept.
var supportedFormats = map[string]bool{
	"png":  true,
	"jpeg": true,
	"webp": true,
}

var supportedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// SupportedExtensions lists the file extensions offered by file pickers.
func SupportedExtensions() []string {
	return []string{".png", ".jpg", ".jpeg", ".webp"}
}

// Decode reads and decodes an image file. Failures are *LoadError values:
// KindRead when r fails, KindDecode for anything wrong with the data.
func Decode(ctx context.Context, name string, r io.Reader) (image.Image, string, error) {
	if err := checkContext(ctx); err != nil {
		return nil, "", err
	}
	if err := checkExtension(name); err != nil {
		return nil, "", newLoadError(KindDecode, name, err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", newLoadError(KindRead, name, fmt.Errorf("reading image: %w", err))
	}
	return DecodeBytes(ctx, name, data)
}

// DecodeBytes decodes an in-memory PNG, JPEG or WEBP image. EXIF orientation
// is applied so the pixels match what a browser displays.
func DecodeBytes(ctx context.Context, name string, data []byte) (image.Image, string, error) {
	if err := checkContext(ctx); err != nil {
		return nil, "", err
	}
	if err := checkExtension(name); err != nil {
		return nil, "", newLoadError(KindDecode, name, err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			err = fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		return nil, "", newLoadError(KindDecode, name, fmt.Errorf("decoding image config: %w", err))
	}
	if !supportedFormats[format] {
		return nil, format, newLoadError(KindDecode, name, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format))
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, format, newLoadError(KindDecode, name,
			fmt.Errorf("%w: image is %dx%d", ErrInvalidDimensions, cfg.Width, cfg.Height))
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, format, newLoadError(KindDecode, name, fmt.Errorf("decoding image: %w", err))
	}

	if err := checkContext(ctx); err != nil {
		return nil, "", err
	}
	return img, format, nil
}

// checkExtension rejects names with an extension we do not handle. A name
// without an extension is left to content sniffing.
func checkExtension(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || supportedExtensions[ext] {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
