package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Manager handles file storage operations for downloaded assets. Paths are
// produced by TargetPath/CaptionPath; the manager only creates directories,
// writes atomically, and answers existence checks.
type Manager struct {
	baseDir string
	mu      sync.Mutex
	known   map[string]bool // paths confirmed present on disk
}

// NewManager creates a new storage manager rooted at baseDir
func NewManager(baseDir string) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Manager{
		baseDir: baseDir,
		known:   make(map[string]bool),
	}, nil
}

// BaseDir returns the root output directory
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// Exists reports whether the target file has already been written.
// An existing target is treated as a completed download, never refreshed.
func (m *Manager) Exists(path string) bool {
	m.mu.Lock()
	if m.known[path] {
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		m.mu.Lock()
		m.known[path] = true
		m.mu.Unlock()
		return true
	}

	return false
}

// SaveImage writes image bytes to path via a temporary file and an atomic
// rename. A failed write never leaves a partial file at the target.
func (m *Manager) SaveImage(r io.Reader, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	tempFile := path + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to save image data: %w", err)
	}

	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.known[path] = true
	m.mu.Unlock()

	return nil
}

// SaveCaption writes a caption file. Best-effort companion to the images;
// callers ignore failures beyond logging.
func (m *Manager) SaveCaption(text, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write caption: %w", err)
	}

	m.mu.Lock()
	m.known[path] = true
	m.mu.Unlock()

	return nil
}
