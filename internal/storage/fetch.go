package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
)

// FetchToFile downloads an object into a temporary file under dir (or the
// system temp directory when dir is empty) and returns its path. The file
// keeps the object's extension so driver inference still works on it.
func FetchToFile(ctx context.Context, store ObjectStore, key, dir string) (string, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("fetch object %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	file, err := os.CreateTemp(dir, "askdb-*"+path.Ext(key))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(file.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return file.Name(), nil
}
