package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// UploadStore persists user-provided attachments on disk under a base
// directory. Stored names are always of the form "<uuid>_<sanitized>".
type UploadStore struct {
	baseDir string
}

// NewUploadStore ensures the base directory exists and returns a handle.
func NewUploadStore(baseDir string) (*UploadStore, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	return &UploadStore{baseDir: baseDir}, nil
}

// Save validates and stores a multipart upload, returning the stored
// filename. The extension must be in allowedExts and the declared size
// must not exceed maxBytes.
func (s *UploadStore) Save(file *multipart.FileHeader, maxBytes int64, allowedExts []string) (string, error) {
	if file == nil {
		return "", fmt.Errorf("no file provided")
	}
	if maxBytes > 0 && file.Size > maxBytes {
		return "", appErrors.Clone(appErrors.ErrFileTooLarge, fmt.Sprintf("file exceeds %d bytes", maxBytes))
	}

	name := sanitizeFilename(file.Filename)
	if name == "" {
		return "", appErrors.Clone(appErrors.ErrFileType, "file has no usable name")
	}
	if !extAllowed(name, allowedExts) {
		return "", appErrors.Clone(appErrors.ErrFileType, "only document and image files are allowed")
	}

	stored := uuid.NewString() + "_" + name
	path := filepath.Join(s.baseDir, stored)

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close() //nolint:errcheck

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close() //nolint:errcheck

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	return stored, nil
}

// Open returns a read-only handle for a stored file.
func (s *UploadStore) Open(filename string) (*os.File, error) {
	file, err := os.Open(s.Path(filename))
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	return file, nil
}

// Exists reports whether a stored file is present on disk.
func (s *UploadStore) Exists(filename string) bool {
	if filename == "" {
		return false
	}
	_, err := os.Stat(s.Path(filename))
	return err == nil
}

// Delete removes a stored file if present.
func (s *UploadStore) Delete(filename string) error {
	if filename == "" {
		return nil
	}
	if err := os.Remove(s.Path(filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete stored file: %w", err)
	}
	return nil
}

// Path resolves the absolute on-disk location of a stored filename.
func (s *UploadStore) Path(filename string) string {
	// Stored names never contain separators; Base guards against
	// traversal via crafted database values.
	return filepath.Join(s.baseDir, filepath.Base(filename))
}

// OriginalName strips the uuid prefix from a stored filename.
func OriginalName(stored string) string {
	if idx := strings.Index(stored, "_"); idx >= 0 && idx < len(stored)-1 {
		return stored[idx+1:]
	}
	return stored
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	return name
}

func extAllowed(name string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, a := range allowed {
		if ext == strings.ToLower(strings.TrimPrefix(a, ".")) {
			return true
		}
	}
	return false
}
