package corpus

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"cuebatch/internal/fileutil"
)

// ErrUnreadable marks a directory the scanner could not list. It aborts the scan.
var ErrUnreadable = errors.New("corpus directory unreadable")

// WorkItem is one media asset and the artifacts derived from it.
type WorkItem struct {
	// SourcePath is the absolute path to the asset.
	SourcePath string
	// RelativeID is the slash-separated path relative to the corpus root.
	RelativeID string
	// ArtifactPaths holds the source-language and target-language cue files.
	ArtifactPaths [2]string
	// Size in bytes at scan time.
	Size int64
	// Complete is true when both artifacts already exist.
	Complete bool
}

// SourceArtifact returns the source-language cue path.
func (w WorkItem) SourceArtifact() string { return w.ArtifactPaths[0] }

// TargetArtifact returns the target-language cue path.
func (w WorkItem) TargetArtifact() string { return w.ArtifactPaths[1] }

// Options controls which files count as assets and how artifacts are named.
type Options struct {
	Extensions   []string
	SourceSuffix string
	TargetSuffix string
}

// Scanner enumerates assets under a root directory.
type Scanner struct {
	root         string
	extensions   map[string]struct{}
	sourceSuffix string
	targetSuffix string
}

// NewScanner builds a scanner rooted at root.
func NewScanner(root string, opts Options) *Scanner {
	exts := make(map[string]struct{}, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	return &Scanner{
		root:         filepath.Clean(root),
		extensions:   exts,
		sourceSuffix: opts.SourceSuffix,
		targetSuffix: opts.TargetSuffix,
	}
}

// Root returns the cleaned corpus root.
func (s *Scanner) Root() string { return s.root }

// ArtifactPaths derives the two cue file paths for an asset.
func (s *Scanner) ArtifactPaths(assetPath string) [2]string {
	base := strings.TrimSuffix(assetPath, filepath.Ext(assetPath))
	return [2]string{base + s.sourceSuffix, base + s.targetSuffix}
}

// Walk yields every asset depth-first with entries in lexical order,
// complete or not. A listing failure is yielded once as an ErrUnreadable
// error and ends the sequence.
func (s *Scanner) Walk(ctx context.Context) iter.Seq2[WorkItem, error] {
	return func(yield func(WorkItem, error) bool) {
		s.walkDir(ctx, s.root, yield)
	}
}

// Pending yields only assets missing at least one artifact.
func (s *Scanner) Pending(ctx context.Context) iter.Seq2[WorkItem, error] {
	return func(yield func(WorkItem, error) bool) {
		for item, err := range s.Walk(ctx) {
			if err != nil {
				yield(WorkItem{}, err)
				return
			}
			if item.Complete {
				continue
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// walkDir returns false when iteration must stop.
func (s *Scanner) walkDir(ctx context.Context, dir string, yield func(WorkItem, error) bool) bool {
	if err := ctx.Err(); err != nil {
		yield(WorkItem{}, err)
		return false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		yield(WorkItem{}, fmt.Errorf("%w: %s: %w", ErrUnreadable, dir, err))
		return false
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if !s.walkDir(ctx, path, yield) {
				return false
			}
			continue
		}
		if !entry.Type().IsRegular() || !s.isAsset(entry.Name()) {
			continue
		}
		item, err := s.describe(path, entry)
		if err != nil {
			yield(WorkItem{}, err)
			return false
		}
		if !yield(item, nil) {
			return false
		}
	}
	return true
}

func (s *Scanner) isAsset(name string) bool {
	_, ok := s.extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

func (s *Scanner) describe(path string, entry os.DirEntry) (WorkItem, error) {
	info, err := entry.Info()
	if err != nil {
		return WorkItem{}, fmt.Errorf("stat %s: %w", path, err)
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return WorkItem{}, fmt.Errorf("relative path for %s: %w", path, err)
	}
	item := WorkItem{
		SourcePath:    path,
		RelativeID:    filepath.ToSlash(rel),
		ArtifactPaths: s.ArtifactPaths(path),
		Size:          info.Size(),
	}
	sourceOK, err := fileutil.Exists(item.SourceArtifact())
	if err != nil {
		return WorkItem{}, fmt.Errorf("check artifact %s: %w", item.SourceArtifact(), err)
	}
	targetOK, err := fileutil.Exists(item.TargetArtifact())
	if err != nil {
		return WorkItem{}, fmt.Errorf("check artifact %s: %w", item.TargetArtifact(), err)
	}
	item.Complete = sourceOK && targetOK
	return item, nil
}

// Collect drains a sequence into a slice, stopping at the first error.
func Collect(seq iter.Seq2[WorkItem, error]) ([]WorkItem, error) {
	var items []WorkItem
	for item, err := range seq {
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}
