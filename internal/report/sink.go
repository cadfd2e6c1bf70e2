package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Sink delivers a finished document.
type Sink interface {
	Save(ctx context.Context, name string, data []byte) (location string, err error)
}

// DirSink writes documents into a directory.
type DirSink struct {
	Dir string
}

func (s DirSink) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir report dir: %w", err)
	}
	path := filepath.Join(s.Dir, filepath.Base(name))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("finalize report: %w", err)
	}
	return path, nil
}

// DiscardSink keeps nothing; the caller streams the bytes itself.
type DiscardSink struct{}

func (DiscardSink) Save(context.Context, string, []byte) (string, error) { return "", nil }
