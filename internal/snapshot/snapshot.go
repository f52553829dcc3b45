// Package snapshot writes gzip-compressed JSON snapshots of a running
// example application's state (e.g. a stencil solver's grid) to the local
// filesystem, one file per checkpoint.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds snapshot writer configuration.
type Config struct {
	OutputDir string
}

// Writer periodically checkpoints an application's state to disk.
type Writer struct {
	config Config
}

// NewWriter creates a new snapshot writer with default settings.
func NewWriter(config Config) *Writer {
	if config.OutputDir == "" {
		config.OutputDir = "snapshots"
	}
	return &Writer{config: config}
}

// getFilePath returns the checkpoint's path:
// <OutputDir>/YYYY/MM/DD/<label>-<n, zero-padded to 4 digits>-HH-MM-SS.json.gz
func (w *Writer) getFilePath(label string, n int, t time.Time) string {
	fileName := fmt.Sprintf("%s-%04d-%s.json.gz", label, n, t.Format("15-04-05"))
	datePath := t.Format("2006/01/02")
	return filepath.Join(w.config.OutputDir, datePath, fileName)
}

func (w *Writer) compressData(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write to gzip writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Write marshals state to JSON, gzips it, and writes it to a checkpoint
// file named after label and the iteration number n.
func (w *Writer) Write(label string, n int, state interface{}) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	compressed, err := w.compressData(data)
	if err != nil {
		return err
	}

	path := w.getFilePath(label, n, time.Now())
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, compressed, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	return nil
}
