package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Uploads persists uploaded images under Dir.
type Uploads struct {
	Dir string
}

func NewUploads(dir string) *Uploads {
	return &Uploads{Dir: dir}
}

// Save writes data as <uuid>_<sanitized name> and returns the stored name.
// Every call gets its own file, so identical original names never collide.
func (u *Uploads) Save(originalName string, data []byte) (string, error) {
	if err := os.MkdirAll(u.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create uploads directory: %w", err)
	}

	name := uuid.NewString() + "_" + SanitizeFilename(originalName)
	if err := os.WriteFile(filepath.Join(u.Dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}

	slog.Info("Image saved", "filename", name, "bytes", len(data))
	return name, nil
}

// Path returns the on-disk location of a stored upload. Only the base name
// of storedName is used.
func (u *Uploads) Path(storedName string) string {
	return filepath.Join(u.Dir, filepath.Base(storedName))
}

// SanitizeFilename drops any directory part and replaces characters outside
// [A-Za-z0-9._-] with an underscore.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "_" {
		return "image"
	}
	return name
}
