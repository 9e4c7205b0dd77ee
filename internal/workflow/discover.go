package workflow

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExtension is the document extension discovered when none is configured.
const DefaultExtension = ".pdf"

// Document is an input file found under the input root.
type Document struct {
	Path    string // Absolute or root-joined path
	RelPath string // Slash-separated path relative to the input root
}

// Discover walks root recursively and returns every file whose extension
// matches ext (case-insensitive), sorted by relative path.
func Discover(root, ext string) ([]Document, error) {
	ext = normalizeExt(ext)

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("input root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input root %s is not a directory", root)
	}

	var docs []Document
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !matchesExt(path, ext) {
			return nil
		}
		doc, err := newDocument(root, path)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].RelPath < docs[j].RelPath
	})
	return docs, nil
}

func newDocument(root, path string) (Document, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return Document{}, fmt.Errorf("relative path for %s: %w", path, err)
	}
	return Document{Path: path, RelPath: filepath.ToSlash(rel)}, nil
}

func matchesExt(path, ext string) bool {
	return strings.EqualFold(filepath.Ext(path), ext)
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		return DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
