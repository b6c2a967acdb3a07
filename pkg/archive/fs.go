package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FSArchiver writes snapshot documents to a local directory. The locator is
// the absolute file path.
type FSArchiver struct {
	root string
}

func NewFSArchiver(root string) *FSArchiver {
	return &FSArchiver{root: strings.Replace(root, "file://", "", 1)}
}

func (a *FSArchiver) Store(ctx context.Context, requestID string, content []byte) (string, error) {
	if err := os.MkdirAll(a.root, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	// Timestamped name so a forced regeneration never reuses the old path.
	name := fmt.Sprintf("%s-%d.json", requestID, time.Now().UTC().UnixNano())
	path := filepath.Join(a.root, name)

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write archive document: %w", err)
	}

	return path, nil
}

func (a *FSArchiver) Delete(ctx context.Context, locator string) error {
	err := os.Remove(locator)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete archive document: %w", err)
	}

	return nil
}
