// Package ocr turns screenshots into plain text for the contact parser.
package ocr

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
)

// SupportedExtensions lists the image types LoadImage accepts.
var SupportedExtensions = []string{".png", ".jpg", ".jpeg", ".tiff", ".tif", ".bmp"}

// Image is a preprocessed, PNG-encoded page ready for recognition.
type Image struct {
	Path   string
	PNG    []byte
	Width  int
	Height int
}

// Engine recognizes the text in one image.
type Engine interface {
	Name() string
	ExtractText(ctx context.Context, img Image) (string, error)
}

// Supported reports whether path has an accepted image extension.
func Supported(path string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(filepath.Ext(path)))
}
