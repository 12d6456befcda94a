// Package extractors turns source documents into raw key/value rows. The
// actual PDF table recognition happens upstream; these extractors read the
// tables it produces.
package extractors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Document identifies one source document of a run.
type Document struct {
	// SourceFile is the document's key in bronze: its base file name.
	SourceFile string
	// Path is where the document can be read from. Empty for in-memory sources.
	Path string
}

// NewDocument builds a Document for a file on disk.
func NewDocument(path string) Document {
	return Document{SourceFile: filepath.Base(path), Path: path}
}

// Extractor yields the raw rows of a document in their original order.
// Errors should wrap models.ErrExtraction.
type Extractor interface {
	Extract(ctx context.Context, doc Document) ([]map[string]any, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, doc Document) ([]map[string]any, error)

func (f ExtractorFunc) Extract(ctx context.Context, doc Document) ([]map[string]any, error) {
	return f(ctx, doc)
}

// DirectorySource lists the documents waiting in a directory.
type DirectorySource struct {
	Dir      string
	Patterns []string
}

// NewDirectorySource creates a source; no patterns means every regular file.
func NewDirectorySource(dir string, patterns []string) *DirectorySource {
	return &DirectorySource{Dir: dir, Patterns: patterns}
}

// List returns the matching documents sorted by file name.
func (s *DirectorySource) List(ctx context.Context) ([]Document, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory %s: %w", s.Dir, err)
	}

	var docs []Document
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ok, err := s.matches(entry.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			docs = append(docs, NewDocument(filepath.Join(s.Dir, entry.Name())))
		}
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].SourceFile < docs[j].SourceFile })
	return docs, nil
}

func (s *DirectorySource) matches(name string) (bool, error) {
	if len(s.Patterns) == 0 {
		return true, nil
	}
	for _, pattern := range s.Patterns {
		ok, err := filepath.Match(pattern, name)
		if err != nil {
			return false, fmt.Errorf("invalid source pattern %q: %w", pattern, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// StaticExtractor serves rows kept in memory, keyed by source file.
// Documents it does not know yield no rows.
type StaticExtractor map[string][]map[string]any

func (s StaticExtractor) Extract(ctx context.Context, doc Document) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s[doc.SourceFile], nil
}

// Documents lists the static documents sorted by name.
func (s StaticExtractor) Documents() []Document {
	docs := make([]Document, 0, len(s))
	for name := range s {
		docs = append(docs, Document{SourceFile: name})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].SourceFile < docs[j].SourceFile })
	return docs
}
