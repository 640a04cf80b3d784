// Package extract turns policy documents into plain text.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for file types that are not policy documents.
var ErrUnsupported = errors.New("unsupported document type")

var supported = map[string]bool{
	".pdf": true,
	".txt": true,
	".md":  true,
}

// Supported reports whether path has an extension Extract understands.
func Supported(path string) bool {
	return supported[strings.ToLower(filepath.Ext(path))]
}

// Extract reads the file at path and returns its text.
func Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supported[ext] {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return Bytes(content, ext)
}

// Bytes extracts text from content. ext includes the leading dot; an empty
// ext is read as plain text.
func Bytes(content []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".txt", ".md", "":
		return extractPlain(content), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}
