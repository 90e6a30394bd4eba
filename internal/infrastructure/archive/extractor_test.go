package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docbridge/backend/internal/domain/document"
)

// writeZip creates a zip file at path with the given entries.
func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestExtractor_Extract(t *testing.T) {
	tempRoot := t.TempDir()
	zipPath := filepath.Join(tempRoot, "upload.zip")
	writeZip(t, zipPath, map[string]string{
		"meta.xml":        "<Root/>",
		"docs/body.xml":   "<Body/>",
		"docs/nested.txt": "hello",
	})

	extractor := NewExtractor(tempRoot, zap.NewNop())
	dir, err := extractor.Extract(zipPath, "upload.zip")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	assert.FileExists(t, filepath.Join(dir, "meta.xml"))
	assert.FileExists(t, filepath.Join(dir, "docs", "body.xml"))

	content, err := os.ReadFile(filepath.Join(dir, "docs", "nested.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
}

func TestExtractor_Extract_UniqueDirs(t *testing.T) {
	tempRoot := t.TempDir()
	zipPath := filepath.Join(tempRoot, "upload.zip")
	writeZip(t, zipPath, map[string]string{"a.xml": "<A/>"})

	extractor := NewExtractor(tempRoot, zap.NewNop())

	first, err := extractor.Extract(zipPath, "upload.zip")
	require.NoError(t, err)
	second, err := extractor.Extract(zipPath, "upload.zip")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestExtractor_Extract_InvalidContainer(t *testing.T) {
	tempRoot := t.TempDir()
	badPath := filepath.Join(tempRoot, "not-a-zip.zip")
	require.NoError(t, os.WriteFile(badPath, []byte("this is not a zip file"), 0o644))

	extractor := NewExtractor(tempRoot, zap.NewNop())
	_, err := extractor.Extract(badPath, "not-a-zip.zip")

	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrInvalidContainer)
}

func TestExtractor_Extract_RejectsPathTraversal(t *testing.T) {
	tempRoot := t.TempDir()
	zipPath := filepath.Join(tempRoot, "evil.zip")

	f, err := os.Create(zipPath)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	entry, err := w.Create("../../escape.txt")
	require.NoError(t, err)
	_, err = entry.Write([]byte("escaped"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	extractor := NewExtractor(tempRoot, zap.NewNop())
	_, err = extractor.Extract(zipPath, "evil.zip")

	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrInvalidContainer)
}

func TestSanitizeHint(t *testing.T) {
	tests := []struct {
		name string
		hint string
		want string
	}{
		{"plain", "invoice.zip", "invoice"},
		{"cyrillic replaced", "счет.zip", "____"},
		{"keeps dashes", "doc-2024_01.zip", "doc-2024_01"},
		{"empty falls back", "", "archive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeHint(tt.hint))
		})
	}
}
