// Package store persists page images and their extracted text under an output root.
//
// Layout:
//
//	<root>/<relative document path without extension>/image<N>.<ext>
//	<root>/<relative document path without extension>/image<N>.txt
package store

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Format is the encoding used for persisted page images.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// DefaultJPEGQuality is used when Config.JPEGQuality is unset.
const DefaultJPEGQuality = 90

// Ext returns the file extension for the format, including the dot.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	default:
		return ".png"
	}
}

// ParseFormat maps a config value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	default:
		return "", fmt.Errorf("unknown image format %q (want png or jpeg)", s)
	}
}

// Config configures a Store.
type Config struct {
	Root          string
	Format        Format
	JPEGQuality   int
	NormalizeText bool // NFC-normalize extracted text before writing
}

// Store writes result entries beneath an output root.
type Store struct {
	root        string
	format      Format
	jpegQuality int
	normalize   bool
}

// New creates a store. The root directory is not created until something is persisted.
func New(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, errors.New("output root is required")
	}
	if cfg.Format == "" {
		cfg.Format = FormatPNG
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = DefaultJPEGQuality
	}
	return &Store{
		root:        cfg.Root,
		format:      cfg.Format,
		jpegQuality: cfg.JPEGQuality,
		normalize:   cfg.NormalizeText,
	}, nil
}

// Root returns the output root.
func (s *Store) Root() string {
	return s.root
}

// DocumentDir returns the directory holding a document's entries.
// docRel is the document path relative to the input root.
func (s *Store) DocumentDir(docRel string) string {
	rel := filepath.FromSlash(docRel)
	return filepath.Join(s.root, strings.TrimSuffix(rel, filepath.Ext(rel)))
}

// ImagePath returns the path of the image at index within a document.
func (s *Store) ImagePath(docRel string, index int) string {
	return filepath.Join(s.DocumentDir(docRel), fmt.Sprintf("image%d%s", index, s.format.Ext()))
}

// Persist writes images as image0..imageN-1 and returns their paths in input order.
// Existing files with the same index are overwritten.
func (s *Store) Persist(docRel string, images []image.Image) ([]string, error) {
	dir := s.DocumentDir(docRel)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	paths := make([]string, len(images))
	for i, img := range images {
		path := s.ImagePath(docRel, i)
		if err := s.writeImage(path, img); err != nil {
			return nil, fmt.Errorf("failed to write image %d: %w", i, err)
		}
		paths[i] = path
	}
	return paths, nil
}

func (s *Store) writeImage(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	switch s.format {
	case FormatJPEG:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: s.jpegQuality})
	default:
		err = png.Encode(f, img)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// TextPath returns the text file that sits beside an image.
func TextPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".txt"
}

// WriteText writes extracted text beside its image as UTF-8.
func (s *Store) WriteText(imagePath, text string) error {
	if _, err := os.Stat(imagePath); err != nil {
		return fmt.Errorf("image missing for text entry: %w", err)
	}
	if s.normalize {
		text = norm.NFC.String(text)
	}
	if err := os.WriteFile(TextPath(imagePath), []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write text: %w", err)
	}
	return nil
}

// HasText reports whether the text entry for an image exists.
func HasText(imagePath string) bool {
	_, err := os.Stat(TextPath(imagePath))
	return err == nil
}

// RemoveText deletes a stale text entry. A missing file is not an error.
func RemoveText(imagePath string) error {
	err := os.Remove(TextPath(imagePath))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
