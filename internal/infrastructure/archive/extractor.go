// Package archive unpacks uploaded supplier containers and classifies the
// document schema they carry.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docbridge/backend/internal/domain/document"
)

// Extractor unpacks zip containers into per-archive scratch directories.
type Extractor struct {
	tempRoot string
	logger   *zap.Logger
}

// NewExtractor creates an extractor rooted at tempRoot.
func NewExtractor(tempRoot string, logger *zap.Logger) *Extractor {
	return &Extractor{
		tempRoot: tempRoot,
		logger:   logger,
	}
}

// Extract unpacks the container at zipPath into a fresh scratch directory
// and returns its path. The caller owns cleanup of the returned directory.
// Concurrent extractions never collide: every call gets a unique directory.
func (e *Extractor) Extract(zipPath, hint string) (string, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", document.ErrInvalidContainer, err)
	}
	defer reader.Close()

	dir := filepath.Join(e.tempRoot, sanitizeHint(hint)+"-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("archive: create scratch dir: %w", err)
	}

	for _, entry := range reader.File {
		if err := extractEntry(entry, dir); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
	}

	e.logger.Debug("archive extracted",
		zap.String("dir", dir),
		zap.Int("entries", len(reader.File)),
	)
	return dir, nil
}

func extractEntry(entry *zip.File, dir string) error {
	target := filepath.Join(dir, entry.Name)

	// Reject entries that escape the scratch directory.
	if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
		return fmt.Errorf("%w: entry %q escapes archive root", document.ErrInvalidContainer, entry.Name)
	}

	if entry.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("archive: create entry dir: %w", err)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("%w: open entry %q: %v", document.ErrInvalidContainer, entry.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", target, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("%w: extract entry %q: %v", document.ErrInvalidContainer, entry.Name, err)
	}
	return nil
}

// sanitizeHint reduces an upload filename to a safe directory name prefix.
func sanitizeHint(hint string) string {
	hint = strings.TrimSuffix(filepath.Base(hint), filepath.Ext(hint))
	var b strings.Builder
	for _, r := range hint {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if len(out) > 40 {
		out = out[:40]
	}
	if out == "" {
		out = "archive"
	}
	return out
}
