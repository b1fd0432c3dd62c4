// Package fs discovers local source documents under the raw directory.
package fs

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"taxrag/internal/domain"
	"taxrag/internal/port"
)

// DefaultIncludes matches the document types the parsers understand.
var DefaultIncludes = []string{"**/*.pdf", "**/*.htm", "**/*.html"}

// Walker lists files whose slash-separated path relative to the root matches
// an include glob and no exclude glob. A directory matching an exclude glob,
// with or without a trailing slash, is not descended into.
type Walker struct {
	includes []string
	excludes []string
}

var _ port.FileWalker = (*Walker)(nil)

func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = DefaultIncludes
	}
	return &Walker{
		includes: includes,
		excludes: excludes,
	}
}

// Walk returns matches sorted by path. A missing root yields no files.
func (w *Walker) Walk(root string) ([]port.FileInfo, error) {
	const op = "fs.walk"

	for _, pattern := range append(append([]string(nil), w.includes...), w.excludes...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, domain.Errorf(domain.KindInvalidInput, op, "invalid glob pattern %q", pattern)
		}
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, domain.E(domain.KindInvalidInput, op, err)
	}

	var files []port.FileInfo
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if path == root {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if w.matchAny(w.excludes, relPath) || w.matchAny(w.excludes, relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !w.matchAny(w.includes, relPath) || w.matchAny(w.excludes, relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, port.FileInfo{
			Path:    path,
			ModTime: info.ModTime().Unix(),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, domain.E(domain.KindStorage, op, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (w *Walker) matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, path); err == nil && matched {
			return true
		}
	}
	return false
}
