package frame

import (
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"path/filepath"
	"strings"

	"github.com/dixieflatline76/squareframe/config"
)

// DefaultJPEGQuality is the export quality unless configured otherwise.
const DefaultJPEGQuality = config.DefaultJPEGQuality

// EncodeJPEG writes img as a JPEG. Quality is clamped to [1, 100].
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: clampQuality(quality)}); err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}
	return nil
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

// ExportFilename derives the download name from the source file name:
// directory and last extension are dropped and the frame size is appended,
// e.g. "beach.png" at 1040x1040 gives "beach_1040x1040.jpg".
func ExportFilename(source string, width, height int) string {
	// Browsers may hand over Windows paths.
	base := filepath.Base(strings.ReplaceAll(source, "\\", "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "image"
	}
	return fmt.Sprintf("%s_%dx%d.jpg", base, width, height)
}
