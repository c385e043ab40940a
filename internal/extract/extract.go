// Package extract turns uploaded documents into plain text ready for chunking.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsupportedFormat is returned for file extensions no extractor handles.
var ErrUnsupportedFormat = errors.New("unsupported file format")

type extractorFunc func(ctx context.Context, path string) (string, error)

var extractors = map[string]extractorFunc{
	".pdf":      extractPDF,
	".docx":     extractDOCX,
	".txt":      extractText,
	".csv":      extractCSV,
	".md":       extractMarkdown,
	".markdown": extractMarkdown,
	".xlsx":     extractXLSX,
}

// Tabular formats keep one line per row.
var lineOriented = map[string]bool{
	".csv":  true,
	".xlsx": true,
}

// Supported reports whether filename has an extension that Extract can read.
func Supported(filename string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Extensions returns the supported extensions in sorted order.
func Extensions() []string {
	exts := make([]string, 0, len(extractors))
	for ext := range extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract reads the file at path and returns its cleaned text content.
// The extractor is chosen by the lower-cased file extension.
func Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	fn, ok := extractors[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	raw, err := fn(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", filepath.Base(path), err)
	}
	if lineOriented[ext] {
		return CleanLines(raw), nil
	}
	return Clean(raw), nil
}
