package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrNoImage is returned by operations that need a loaded image.
	ErrNoImage = errors.New("no image loaded")
	// ErrInvalidDimensions is returned when a source or target size is not positive.
	ErrInvalidDimensions = errors.New("invalid dimensions")
	// ErrUnsupportedFormat is returned for files that are not PNG, JPEG or WEBP.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrSampleFailed is reported when border pixels could not be read.
	ErrSampleFailed = errors.New("reading border pixels failed")
)

// ErrorKind classifies load failures for the user-facing error banner.
type ErrorKind int

const (
	// KindRead means the file bytes could not be read.
	KindRead ErrorKind = iota
	// KindDecode means the bytes were read but are not a usable image.
	KindDecode
	// KindSample means pixel data could not be sampled.
	KindSample
)

func (k ErrorKind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindDecode:
		return "decode"
	case KindSample:
		return "sample"
	default:
		return "unknown"
	}
}

// LoadError is a classified failure of loading an image.
type LoadError struct {
	Kind ErrorKind
	Name string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %q failed: %v", e.Kind, e.Name, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Message returns the text shown to the user for this failure.
func (e *LoadError) Message() string {
	switch e.Kind {
	case KindRead:
		return "The file could not be read. Please try again."
	case KindDecode:
		if errors.Is(e.Err, ErrUnsupportedFormat) {
			return "This file type is not supported. Please choose a PNG, JPEG or WEBP image."
		}
		return "The image could not be decoded. The file may be damaged."
	case KindSample:
		return "The image pixels could not be read."
	default:
		return "Something went wrong."
	}
}

// newLoadError wraps err unless it is already a *LoadError.
func newLoadError(kind ErrorKind, name string, err error) *LoadError {
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	return &LoadError{Kind: kind, Name: name, Err: err}
}
