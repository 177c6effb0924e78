package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"studio/internal/imagegen"
)

// DefaultImageName is the file name used when saving without an explicit one.
const DefaultImageName = "generated-image.png"

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ImageDir writes generated images under a single directory.
type ImageDir struct {
	basePath string
}

// NewImageDir creates basePath when missing.
func NewImageDir(basePath string) (*ImageDir, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		basePath = "."
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &ImageDir{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (d *ImageDir) BasePath() string {
	if d == nil {
		return ""
	}
	return d.basePath
}

// SaveDataURI decodes uri and writes it as name inside the directory. A name
// without an extension gets one derived from the image MIME type. The written
// path is returned.
func (d *ImageDir) SaveDataURI(ctx context.Context, name, uri string) (string, error) {
	data, mimeType, err := imagegen.DecodeDataURI(uri)
	if err != nil {
		return "", fmt.Errorf("storage: %w", err)
	}
	if strings.TrimSpace(name) == "" {
		name = DefaultImageName
	}
	if filepath.Ext(name) == "" {
		if ext, ok := extensions[mimeType]; ok {
			name += ext
		}
	}
	return d.Write(ctx, name, data)
}

// Write persists data at the relative key and returns the full path. Keys are
// cleaned to prevent directory traversal.
func (d *ImageDir) Write(ctx context.Context, key string, data []byte) (string, error) {
	if d == nil {
		return "", errors.New("storage: no directory configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(d.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return fullPath, nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimLeft(strings.TrimPrefix(key, "./"), "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
