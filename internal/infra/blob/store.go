package blob

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"printbroker/internal/domain"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// Store keeps uploaded documents as flat files under one directory.
type Store struct {
	dir      string
	allowed  map[string]bool
	maxBytes int64
}

// New creates dir if needed. Extensions are matched case-insensitively, without the dot.
func New(dir string, allowedExtensions []string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	allowed := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return &Store{dir: dir, allowed: allowed, maxBytes: maxBytes}, nil
}

// Allowed reports whether name carries an accepted extension.
func (s *Store) Allowed(name string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	return ext != "" && s.allowed[ext]
}

// sanitize keeps the base name and replaces anything outside [a-zA-Z0-9_.-].
func sanitize(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	return strings.Trim(base, "._")
}

// Store writes r under a collision-free name derived from suggestedName and returns the reference.
func (s *Store) Store(suggestedName string, r io.Reader) (string, error) {
	clean := sanitize(suggestedName)
	if clean == "" {
		return "", fmt.Errorf("%w: file name is required", domain.ErrValidation)
	}
	if !s.Allowed(clean) {
		return "", fmt.Errorf("%w: file type %q is not allowed", domain.ErrValidation, filepath.Ext(clean))
	}

	ref := uuid.NewString() + "-" + clean
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer os.Remove(tmp.Name())

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("%w: write upload: %v", domain.ErrStorage, err)
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		return "", fmt.Errorf("%w: file exceeds %d bytes", domain.ErrValidation, s.maxBytes)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: file is empty", domain.ErrValidation)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, ref)); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return ref, nil
}

func (s *Store) path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) || ref == "." || ref == ".." || strings.ContainsAny(ref, `/\`) {
		return "", fmt.Errorf("%w: invalid artifact reference", domain.ErrValidation)
	}
	return filepath.Join(s.dir, ref), nil
}

// Open returns the stored file for ref.
func (s *Store) Open(ref string) (io.ReadCloser, error) {
	p, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("artifact %s: %w", ref, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return f, nil
}

// DisplayName strips the generated prefix from ref.
func DisplayName(ref string) string {
	if len(ref) > 37 && ref[36] == '-' {
		if _, err := uuid.Parse(ref[:36]); err == nil {
			return ref[37:]
		}
	}
	return ref
}
