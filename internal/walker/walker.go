package walker

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// FileInfo holds metadata about a discovered source file.
type FileInfo struct {
	Path    string
	RelPath string
	Size    int64
}

// IgnoreFile is the per-project ignore file, read with gitignore syntax.
const IgnoreFile = ".plainsightignore"

// DefaultMaxFileBytes is the largest file considered when no limit is set.
const DefaultMaxFileBytes = 1 << 20

// defaultIgnores are used when no .plainsightignore file exists.
var defaultIgnores = []string{
	".git",
	".svn",
	".hg",
	"node_modules",
	"vendor",
	"target",
	"__pycache__",
	".idea",
	".vscode",
	".plainsight",
	"dist",
	"build",
}

// Options controls which files a walk emits.
type Options struct {
	// Extensions are the allowed file extensions (without dot).
	Extensions map[string]bool
	// Exclude holds extra gitignore-style patterns, relative to the root.
	Exclude []string
	// MaxFileBytes skips larger files; zero means DefaultMaxFileBytes.
	MaxFileBytes int64
	// CreateIgnoreFile writes a default .plainsightignore when none exists.
	CreateIgnoreFile bool
}

// Walk traverses the directory tree rooted at root and sends discovered
// source files on the returned channel. It only emits files whose extension
// is allowed and skips paths matched by .plainsightignore, .gitignore or the
// extra exclude patterns.
func Walk(root string, opts Options) (<-chan FileInfo, <-chan error) {
	files := make(chan FileInfo, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(files)
		defer close(errs)

		absRoot, err := filepath.Abs(root)
		if err != nil {
			errs <- err
			return
		}

		matcher := loadMatcher(absRoot, opts)
		maxSize := opts.MaxFileBytes
		if maxSize <= 0 {
			maxSize = DefaultMaxFileBytes
		}

		err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // skip errors, keep walking
			}
			if path == absRoot {
				return nil
			}
			rel, err := filepath.Rel(absRoot, path)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if matcher.MatchesPath(rel) || matcher.MatchesPath(rel+"/") {
					return filepath.SkipDir
				}
				return nil
			}

			// Skip symlinks.
			if d.Type()&fs.ModeSymlink != 0 {
				return nil
			}

			ext := strings.TrimPrefix(filepath.Ext(path), ".")
			if !opts.Extensions[ext] {
				return nil
			}
			if matcher.MatchesPath(rel) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return nil
			}

			// Skip large or empty files.
			if info.Size() > maxSize || info.Size() == 0 {
				return nil
			}

			files <- FileInfo{
				Path:    path,
				RelPath: rel,
				Size:    info.Size(),
			}
			return nil
		})
		if err != nil {
			errs <- err
		}
	}()

	return files, errs
}

// Collect drains a walk and returns its files sorted by relative path.
func Collect(root string, opts Options) ([]FileInfo, error) {
	fileCh, errCh := Walk(root, opts)
	var out []FileInfo
	for f := range fileCh {
		out = append(out, f)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	return out, nil
}

func loadMatcher(root string, opts Options) *ignore.GitIgnore {
	patterns := loadIgnorePatterns(root, opts.CreateIgnoreFile)
	patterns = append(patterns, readPatterns(filepath.Join(root, ".gitignore"))...)
	patterns = append(patterns, opts.Exclude...)
	return ignore.CompileIgnoreLines(patterns...)
}

// loadIgnorePatterns reads .plainsightignore from the project root, falling
// back to the defaults (and optionally writing them) when it is missing.
func loadIgnorePatterns(root string, create bool) []string {
	ignorePath := filepath.Join(root, IgnoreFile)
	if _, err := os.Stat(ignorePath); err != nil {
		if create {
			createDefaultIgnoreFile(ignorePath)
		}
		return append([]string(nil), defaultIgnores...)
	}
	patterns := readPatterns(ignorePath)
	if len(patterns) == 0 {
		return append([]string(nil), defaultIgnores...)
	}
	return patterns
}

func readPatterns(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

func createDefaultIgnoreFile(path string) {
	var b strings.Builder
	b.WriteString("# Paths to exclude from documentation.\n")
	b.WriteString("# One pattern per line, gitignore syntax.\n\n")
	for _, p := range defaultIgnores {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	// Best-effort write; if it fails the defaults are still used in memory.
	os.WriteFile(path, []byte(b.String()), 0o644)
}
