package kivaquery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

// Dump reads a zipped snapshot of kiva pages, one json page per entry
type Dump struct {
	path   string
	logger *zap.Logger
}

// NewDump opens the most recently modified file in dir
func NewDump(dir string, logger *zap.Logger) (Dump, error) {
	path, err := lastModifiedFile(dir)
	if err != nil {
		return Dump{}, err
	}

	return NewDumpFromFile(path, logger), nil
}

func NewDumpFromFile(path string, logger *zap.Logger) Dump {
	if logger == nil {
		logger = zap.NewNop()
	}

	return Dump{path: path, logger: logger}
}

func (d Dump) Path() string {
	return d.path
}

func lastModifiedFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("unable to read dump dir %q: %w", dir, err)
	}

	var latest string
	var latestMod int64
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}

		info, err := e.Info()
		if err != nil {
			return "", fmt.Errorf("unable to stat %q: %w", e.Name(), err)
		}

		if mod := info.ModTime().UnixNano(); latest == "" || mod > latestMod {
			latest = filepath.Join(dir, e.Name())
			latestMod = mod
		}
	}

	if latest == "" {
		return "", fmt.Errorf("%w in %q", NoDumpFoundError, dir)
	}

	return latest, nil
}

// RunQuery hands every page stored under qt to h, in zip order
func (d Dump) RunQuery(ctx context.Context, qt QueryType, h Handler) error {
	r, err := zip.OpenReader(d.path)
	if err != nil {
		return fmt.Errorf("unable to open dump %q: %w", d.path, err)
	}
	defer r.Close()

	pages := 0
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}

		entryType, ok := TypeForZipEntry(f.Name)
		if !ok || entryType != qt {
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := readZipEntry(f)
		if err != nil {
			return err
		}

		if _, err := HandleFile(ctx, qt, page, h); err != nil {
			return fmt.Errorf("unable to process dump entry %q: %w", f.Name, err)
		}
		pages++
	}

	d.logger.Debug("ran dump query", zap.String("dump", d.path), zap.Stringer("type", qt), zap.Int("pages", pages))
	return nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("unable to open dump entry %q: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("unable to read dump entry %q: %w", f.Name, err)
	}

	return data, nil
}
