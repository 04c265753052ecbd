package blob

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printbroker/internal/domain"
)

func newTestStore(t *testing.T, max int64) (*Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "uploads")
	s, err := New(dir, []string{"pdf", ".DOCX"}, max)
	require.NoError(t, err)
	return s, dir
}

func TestStoreAndOpen(t *testing.T) {
	s, dir := newTestStore(t, 1024)

	ref, err := s.Store("../../My Thesis (final).PDF", strings.NewReader("%PDF-1.7 body"))
	require.NoError(t, err)
	assert.NotContains(t, ref, "/")
	assert.True(t, strings.HasSuffix(ref, "My_Thesis_final_.PDF"), ref)
	assert.Equal(t, "My_Thesis_final_.PDF", DisplayName(ref))

	_, err = os.Stat(filepath.Join(dir, ref))
	require.NoError(t, err)

	rc, err := s.Open(ref)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 body", string(body))
}

func TestStore_SameNameDoesNotCollide(t *testing.T) {
	s, _ := newTestStore(t, 0)

	a, err := s.Store("report.pdf", strings.NewReader("a"))
	require.NoError(t, err)
	b, err := s.Store("report.pdf", strings.NewReader("b"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestStore_RejectsDisallowedExtension(t *testing.T) {
	s, _ := newTestStore(t, 0)

	for _, name := range []string{"virus.exe", "noext", "", ".."} {
		_, err := s.Store(name, strings.NewReader("x"))
		assert.ErrorIs(t, err, domain.ErrValidation, name)
	}
	ref, err := s.Store("letter.docx", strings.NewReader("x"))
	require.NoError(t, err)
	assert.NotEmpty(t, ref)
}

func TestStore_RejectsOversizedAndEmpty(t *testing.T) {
	s, dir := newTestStore(t, 4)

	_, err := s.Store("big.pdf", bytes.NewReader([]byte("12345")))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.Store("empty.pdf", bytes.NewReader(nil))
	assert.ErrorIs(t, err, domain.ErrValidation)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads must not leave files behind")
}

func TestOpen_RejectsEscapesAndMissing(t *testing.T) {
	s, _ := newTestStore(t, 0)

	for _, ref := range []string{"../etc/passwd", "a/b.pdf", "..", ""} {
		_, err := s.Open(ref)
		assert.ErrorIs(t, err, domain.ErrValidation, ref)
	}
	_, err := s.Open("missing.pdf")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
