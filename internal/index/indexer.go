// Package index turns source files into FileIndex entries and aggregates
// them into a ProjectIndex with cross-file associations.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync/atomic"

	"plainsight/internal/extract"
	"plainsight/internal/walker"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
)

// SymbolExtractor produces the symbols of one file.
type SymbolExtractor interface {
	Extract(ctx context.Context, path string, src []byte) ([]extract.Symbol, error)
	Language(path string) string
}

// FileIndex is the per-file cache entry. ContentHash determines Symbols;
// ArtifactHashes records, per stage, the output hash of the artifact last
// generated from this exact content.
type FileIndex struct {
	Path           string            `json:"path"`
	Language       string            `json:"language"`
	ContentHash    string            `json:"content_hash"`
	Symbols        []extract.Symbol  `json:"symbols"`
	ParseError     string            `json:"parse_error,omitempty"`
	ArtifactHashes map[string]string `json:"artifact_hashes,omitempty"`
}

// WithArtifactHashes returns a copy of fi carrying the given artifact hashes.
// The receiver is left untouched.
func (fi *FileIndex) WithArtifactHashes(hashes map[string]string) *FileIndex {
	cp := *fi
	cp.ArtifactHashes = make(map[string]string, len(hashes))
	for k, v := range hashes {
		cp.ArtifactHashes[k] = v
	}
	return &cp
}

// Config holds the indexer configuration.
type Config struct {
	Extractor SymbolExtractor
	Workers   int
	Logger    hclog.Logger
}

// Indexer hashes files and decides between reuse and re-extraction.
type Indexer struct {
	extractor SymbolExtractor
	workers   int
	logger    hclog.Logger
}

// BuildStats reports what a Build did.
type BuildStats struct {
	Files       int
	Reused      int
	Extracted   int
	ParseErrors int
	Unreadable  int
	Removed     []string
}

// NewIndexer creates an indexer.
func NewIndexer(cfg Config) *Indexer {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Indexer{extractor: cfg.Extractor, workers: workers, logger: logger.Named("index")}
}

// HashContent returns the hex sha256 of src.
func HashContent(src []byte) string {
	h := sha256.Sum256(src)
	return hex.EncodeToString(h[:])
}

// IndexFile indexes one file. When prev carries the same content hash it is
// returned unchanged and the extractor is not called (hit is true).
// Otherwise the file is extracted in full; the new entry has no artifact
// hashes, so every stage depending on it is stale.
func (ix *Indexer) IndexFile(ctx context.Context, f walker.FileInfo, prev *FileIndex) (fi *FileIndex, hit bool, err error) {
	src, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", f.RelPath, err)
	}
	hash := HashContent(src)
	if prev != nil && prev.ContentHash == hash {
		return prev, true, nil
	}

	fi = &FileIndex{
		Path:        f.RelPath,
		Language:    ix.extractor.Language(f.RelPath),
		ContentHash: hash,
	}
	syms, err := ix.extractor.Extract(ctx, f.RelPath, src)
	var perr *extract.ParseError
	switch {
	case errors.As(err, &perr):
		fi.ParseError = perr.Error()
		fi.Symbols = []extract.Symbol{}
	case err != nil:
		return nil, false, err
	default:
		fi.Symbols = syms
		if fi.Symbols == nil {
			fi.Symbols = []extract.Symbol{}
		}
	}
	return fi, false, nil
}

// Build indexes files concurrently, then builds the cross-file graph in a
// second pass over every symbol. Files in prev that are not part of files
// are pruned and reported in BuildStats.Removed. An unreadable file is
// skipped with a warning; a cancelled context aborts the build.
func (ix *Indexer) Build(ctx context.Context, files []walker.FileInfo, prev *ProjectIndex) (*ProjectIndex, BuildStats, error) {
	results := make([]*FileIndex, len(files))
	var reused, parseErrors, unreadable atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fi, hit, err := ix.IndexFile(gctx, f, prev.File(f.RelPath))
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
					ix.logger.Warn("skipping unreadable file", "file", f.RelPath, "error", err)
					unreadable.Add(1)
					return nil
				}
				return err
			}
			if hit {
				reused.Add(1)
			} else if fi.ParseError != "" {
				ix.logger.Warn("parse error", "file", f.RelPath, "error", fi.ParseError)
			}
			if fi.ParseError != "" {
				parseErrors.Add(1)
			}
			results[i] = fi
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, BuildStats{}, err
	}

	pi := &ProjectIndex{Files: make(map[string]*FileIndex, len(files))}
	for _, fi := range results {
		if fi != nil {
			pi.Files[fi.Path] = fi
		}
	}
	pi.Graph = BuildGraph(pi)

	stats := BuildStats{
		Files:       len(pi.Files),
		Reused:      int(reused.Load()),
		ParseErrors: int(parseErrors.Load()),
		Unreadable:  int(unreadable.Load()),
	}
	stats.Extracted = stats.Files - stats.Reused
	if prev != nil {
		for path := range prev.Files {
			if _, ok := pi.Files[path]; !ok {
				stats.Removed = append(stats.Removed, path)
			}
		}
		sort.Strings(stats.Removed)
	}
	ix.logger.Debug("index built", "files", stats.Files, "reused", stats.Reused,
		"extracted", stats.Extracted, "removed", len(stats.Removed))
	return pi, stats, nil
}
