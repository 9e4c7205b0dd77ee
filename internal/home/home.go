package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the pdfocr home directory.
	DefaultDirName = ".pdfocr"

	// ModelCacheDirName holds downloaded model weights shared with the vLLM container.
	ModelCacheDirName = "models"

	// RunsDirName holds run summaries.
	RunsDirName = "runs"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the pdfocr home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.pdfocr).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// ModelCacheDir returns the model cache directory.
func (d *Dir) ModelCacheDir() string {
	return filepath.Join(d.path, ModelCacheDirName)
}

// RunsDir returns the directory for run summaries.
func (d *Dir) RunsDir() string {
	return filepath.Join(d.path, RunsDirName)
}

// RunSummaryPath returns the summary file for a run.
func (d *Dir) RunSummaryPath(runID, format string) string {
	return filepath.Join(d.RunsDir(), fmt.Sprintf("%s.%s", runID, format))
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.ModelCacheDir(), d.RunsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
