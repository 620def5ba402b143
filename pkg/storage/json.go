package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"groupon-scraper/pkg/models"
)

// Repo writes the run artifact: one JSON array of deal records, indented
// for humans, written atomically via a temp file so a crash mid-write
// never leaves a truncated artifact behind.
type Repo struct {
	Path string
	Log  *slog.Logger
}

func New(path string, log *slog.Logger) *Repo {
	if log == nil {
		log = slog.Default()
	}
	return &Repo{Path: path, Log: log}
}

func (r *Repo) Save(ctx context.Context, result models.ScrapeResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Path == "" {
		return fmt.Errorf("storage: empty output path")
	}
	if result == nil {
		result = models.ScrapeResult{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}

	dir := filepath.Dir(r.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := r.Path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, r.Path); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	r.Log.Info("results saved", "path", r.Path, "count", len(result))
	return nil
}
