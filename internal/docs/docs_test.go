package docs

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutPaths(t *testing.T) {
	l := Layout{Root: "out"}
	cases := map[string]string{
		"file_summary:src/a.rs": filepath.Join("out", "files", "src", "a.rs", "summary.md"),
		"file_docs:src/a.rs":    filepath.Join("out", "files", "src", "a.rs", "docs.md"),
		"project_summary":       filepath.Join("out", "summary.md"),
		"architecture":          filepath.Join("out", "architecture.md"),
	}
	for id, want := range cases {
		got, err := l.Path(id)
		require.NoError(t, err, id)
		assert.Equal(t, want, got, id)
	}

	for _, bad := range []string{"file_summary", "architecture:x", "nope:a.rs"} {
		_, err := l.Path(bad)
		assert.Error(t, err, bad)
	}
}

func TestRenderIsStableAndParses(t *testing.T) {
	a := Artifact{
		ID:         ID(StageFileSummary, "src/a.rs"),
		Source:     "src/a.rs",
		InputsHash: "abc",
		Status:     "done",
		Body:       "\n## Purpose\n\nDoes A.\n\n",
	}
	out := Render(a)
	assert.Equal(t, out, Render(a))

	s := string(out)
	assert.True(t, strings.HasPrefix(s, "---\nartifact: "))
	assert.Contains(t, s, "\ninputs_hash: abc\nstatus: done\n---\n")
	assert.Contains(t, s, Disclaimer)
	assert.NotContains(t, s, "Incomplete")
	assert.True(t, strings.HasSuffix(s, "## Purpose\n\nDoes A.\n"))

	back, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "## Purpose\n\nDoes A.", back.Body)
	assert.Equal(t, a.ID, back.ID)
	assert.Equal(t, "abc", back.InputsHash)
}

func TestRenderDegradedCarriesMarker(t *testing.T) {
	a := Artifact{
		ID:      StageArchitecture,
		Status:  "degraded",
		Body:    "## System Context\n\nPartial.",
		Missing: []string{"project_summary"},
	}
	out := string(Render(a))
	assert.Contains(t, out, "missing:\n    - project_summary\n")
	assert.Contains(t, out, "> **Incomplete:** generated without project_summary.")

	back, err := Parse([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, []string{"project_summary"}, back.Missing)
	assert.Equal(t, "## System Context\n\nPartial.", back.Body)
}

func TestParseRejectsPlainMarkdown(t *testing.T) {
	_, err := Parse([]byte("# Title\n"))
	assert.Error(t, err)
}

func TestWriteSkipsIdenticalContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "summary.md")

	changed, err := Write(path, []byte("one"))
	require.NoError(t, err)
	assert.True(t, changed)

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	changed, err = Write(path, []byte("one"))
	require.NoError(t, err)
	assert.False(t, changed)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.WithinDuration(t, old, info.ModTime(), time.Second)

	changed, err = Write(path, []byte("two"))
	require.NoError(t, err)
	assert.True(t, changed)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteErrorUnwraps(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := Write(filepath.Join(blocker, "child.md"), []byte("x"))
	require.Error(t, err)
	werr := &WriteError{Artifact: "architecture", Path: blocker, Err: err}
	assert.ErrorIs(t, werr, err)
	assert.Contains(t, werr.Error(), "architecture")
}

func TestRemoveDeletesOutputsAndEmptyDirs(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	for _, rel := range []string{"src/a.rs", "src/b.rs"} {
		for _, p := range l.FileOutputs(rel) {
			_, err := Write(p, []byte("x"))
			require.NoError(t, err)
		}
	}

	require.NoError(t, l.Remove("src/a.rs"))
	_, err := os.Stat(filepath.Join(l.Root, "files", "src", "a.rs"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(l.Root, "files", "src", "b.rs", "docs.md"))
	assert.NoError(t, err)

	require.NoError(t, l.Remove("src/b.rs"))
	_, err = os.Stat(filepath.Join(l.Root, "files"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, l.Remove("never/existed.rs"))
}

func TestLayoutRead(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	id := ID(StageFileDocs, "src/lib.rs")
	path, err := l.Path(id)
	require.NoError(t, err)
	_, err = Write(path, Render(Artifact{ID: id, Source: "src/lib.rs", InputsHash: "h", Status: "done", Body: "## Overview\n\nText."}))
	require.NoError(t, err)

	a, err := l.Read(id)
	require.NoError(t, err)
	assert.Equal(t, "src/lib.rs", a.Source)
	assert.Equal(t, "## Overview\n\nText.", a.Body)

	_, err = l.Read(ID(StageFileDocs, "missing.rs"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
