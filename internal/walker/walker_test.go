package walker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func relPaths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func TestCollectFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/main.rs", "fn main() {}")
	writeFile(t, dir, "src/lib.rs", "pub fn lib() {}")
	writeFile(t, dir, "README.md", "# readme")
	writeFile(t, dir, "target/debug/build.rs", "fn build() {}")
	writeFile(t, dir, "empty.rs", "")

	files, err := Collect(dir, Options{Extensions: map[string]bool{"rs": true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/lib.rs", "src/main.rs"}, relPaths(files))
}

func TestCollectHonoursGitignoreAndExcludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "generated/\n*_gen.go\n")
	writeFile(t, dir, "a.go", "package a")
	writeFile(t, dir, "b_gen.go", "package a")
	writeFile(t, dir, "generated/c.go", "package generated")
	writeFile(t, dir, "docs/d.go", "package docs")

	files, err := Collect(dir, Options{
		Extensions: map[string]bool{"go": true},
		Exclude:    []string{"docs/"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, relPaths(files))
}

func TestCollectSkipsLargeFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "small.py", "x = 1")
	writeFile(t, dir, "big.py", "x = 100000000000")

	files, err := Collect(dir, Options{Extensions: map[string]bool{"py": true}, MaxFileBytes: 8})
	require.NoError(t, err)
	assert.Equal(t, []string{"small.py"}, relPaths(files))
}

func TestIgnoreFileIsCreatedOnRequest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.rs", "fn a() {}")

	_, err := Collect(dir, Options{Extensions: map[string]bool{"rs": true}, CreateIgnoreFile: true})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, IgnoreFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "node_modules")
}

func TestCustomIgnoreFileReplacesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, IgnoreFile, "skip/\n")
	writeFile(t, dir, "skip/a.rs", "fn a() {}")
	writeFile(t, dir, "vendor/b.rs", "fn b() {}")

	files, err := Collect(dir, Options{Extensions: map[string]bool{"rs": true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"vendor/b.rs"}, relPaths(files))
}
