package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrDocumentNotFound is returned when a reference does not resolve to a stored file.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore keeps uploaded documents on disk under opaque generated names.
// References are slash-separated paths relative to the storage root.
type DocumentStore struct {
	root   string
	folder string
}

// NewDocumentStore ensures root/folder exists and returns a handle.
func NewDocumentStore(root, folder string) (*DocumentStore, error) {
	if root == "" {
		root = "./data"
	}
	folder = strings.Trim(filepath.ToSlash(folder), "/")
	if folder == "" {
		folder = "soportes"
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(absRoot, filepath.FromSlash(folder)), 0o755); err != nil {
		return nil, fmt.Errorf("create documents directory: %w", err)
	}
	return &DocumentStore{root: absRoot, folder: folder}, nil
}

// Save writes content under a fresh unique name keeping the original extension
// and returns the root-relative reference.
func (s *DocumentStore) Save(content io.Reader, originalName string) (string, error) {
	if content == nil {
		return "", fmt.Errorf("document content missing")
	}
	ref := path.Join(s.folder, uuid.NewString()+normalizeExtension(originalName))
	target := s.absolute(ref)

	file, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create document file: %w", err)
	}
	if _, err := io.Copy(file, content); err != nil {
		file.Close() //nolint:errcheck
		_ = os.Remove(target)
		return "", fmt.Errorf("write document stream: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("flush document file: %w", err)
	}
	return ref, nil
}

// Resolve returns the absolute path of a stored document. References that are
// empty, escape the root, or point at nothing yield ErrDocumentNotFound.
func (s *DocumentStore) Resolve(ref string) (string, error) {
	clean, ok := s.clean(ref)
	if !ok {
		return "", ErrDocumentNotFound
	}
	target := s.absolute(clean)
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrDocumentNotFound
		}
		return "", fmt.Errorf("stat document: %w", err)
	}
	if info.IsDir() {
		return "", ErrDocumentNotFound
	}
	return target, nil
}

// Delete removes a stored document if present.
func (s *DocumentStore) Delete(ref string) error {
	clean, ok := s.clean(ref)
	if !ok {
		return nil
	}
	if err := os.Remove(s.absolute(clean)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete document file: %w", err)
	}
	return nil
}

func (s *DocumentStore) clean(ref string) (string, bool) {
	ref = strings.TrimSpace(filepath.ToSlash(ref))
	if ref == "" || path.IsAbs(ref) {
		return "", false
	}
	clean := path.Clean(ref)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}

func (s *DocumentStore) absolute(ref string) string {
	return filepath.Join(s.root, filepath.FromSlash(ref))
}

func normalizeExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	if len(ext) < 2 || len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		return ""
	}
	return ext
}
