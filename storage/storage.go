// Package storage archives rendered search pages so failed extractions can be
// inspected later. Snapshots live on the local filesystem or in an
// S3-compatible bucket under snapshots/YYYY/MM/<slug>.html.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docutag/scout/slug"
)

// snapshotPrefix is the top-level directory (or key prefix) for snapshots
const snapshotPrefix = "snapshots"

// Archive stores and retrieves rendered page snapshots
type Archive interface {
	SaveSnapshot(ctx context.Context, content, slug string) (string, error)
	ReadSnapshot(ctx context.Context, key string) (string, error)
	DeleteSnapshot(ctx context.Context, key string) error
}

// Config contains storage configuration
type Config struct {
	BasePath string // Base directory for all stored files
}

// DefaultConfig returns default storage configuration
func DefaultConfig() Config {
	return Config{
		BasePath: "./storage",
	}
}

// Storage handles filesystem storage operations
type Storage struct {
	config Config
	now    func() time.Time
}

// New creates a new Storage instance
func New(config Config) (*Storage, error) {
	if strings.TrimSpace(config.BasePath) == "" {
		return nil, errors.New("storage base path is required")
	}

	// Create base directory if it doesn't exist
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory: %w", err)
	}

	return &Storage{
		config: config,
		now:    time.Now,
	}, nil
}

// SaveSnapshot writes a rendered page to the filesystem and returns its path
// relative to the base directory. An existing file is never overwritten; a
// numeric suffix is added instead.
func (s *Storage) SaveSnapshot(ctx context.Context, content, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dirPath := filepath.Join(s.config.BasePath, filepath.FromSlash(monthDir(s.now())))

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	// Add a counter suffix until the filename is free
	filePath := filepath.Join(dirPath, name+".html")
	for counter := 1; fileExists(filePath); counter++ {
		filePath = filepath.Join(dirPath, slug.MakeUnique(name, counter)+".html")
	}

	// Write file
	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot file: %w", err)
	}

	// Return relative path from base storage directory
	relPath, err := filepath.Rel(s.config.BasePath, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to get relative path: %w", err)
	}

	return filepath.ToSlash(relPath), nil
}

// ReadSnapshot reads a snapshot from the filesystem
func (s *Storage) ReadSnapshot(ctx context.Context, relPath string) (string, error) {
	fullPath, err := s.resolve(relPath)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to read snapshot file: %w", err)
	}

	return string(data), nil
}

// DeleteSnapshot deletes a snapshot from the filesystem; a missing file is not an error
func (s *Storage) DeleteSnapshot(ctx context.Context, relPath string) error {
	fullPath, err := s.resolve(relPath)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot file: %w", err)
	}

	return nil
}

// GetFullPath returns the full filesystem path for a relative path
func (s *Storage) GetFullPath(relPath string) string {
	return filepath.Join(s.config.BasePath, filepath.FromSlash(relPath))
}

// resolve maps relPath into the base directory, rejecting paths that escape it
func (s *Storage) resolve(relPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid snapshot path %q", relPath)
	}
	return s.GetFullPath(clean), nil
}

// monthDir returns snapshots/YYYY/MM for t
func monthDir(t time.Time) string {
	return fmt.Sprintf("%s/%04d/%02d", snapshotPrefix, t.Year(), int(t.Month()))
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
