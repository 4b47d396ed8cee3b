package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"plainsight/internal/docs"
	"plainsight/internal/extract"
	"plainsight/internal/index"
	"plainsight/internal/memory"
	"plainsight/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T) cacheSource {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".plainsight", "cache.db")
	s, err := store.Open(context.Background(), path, nil)
	require.NoError(t, err)
	defer s.Close()

	st := store.NewState()
	st.Meta = store.Meta{ProjectName: "demo", LastRun: time.Now(), RunID: "run-1", SettingsFingerprint: "old"}
	st.Index.Files["src/lib.rs"] = &index.FileIndex{
		Path:     "src/lib.rs",
		Language: "rust",
		Symbols: []extract.Symbol{
			{Kind: extract.KindType, Name: "Config", Line: 1, Fields: []extract.Field{{Name: "port", Type: "u16"}}},
			{Kind: extract.KindFunction, Name: "load", Signature: "(path: &str)", Target: "Config", Line: 5},
		},
	}
	st.Index.Files["src/main.rs"] = &index.FileIndex{
		Path:     "src/main.rs",
		Language: "rust",
		Symbols: []extract.Symbol{
			{Kind: extract.KindImport, Name: "crate::Config", Line: 1},
			{Kind: extract.KindFunction, Name: "main", Line: 3},
		},
	}
	st.Index.Graph = index.BuildGraph(st.Index)
	st.Memory.Record(memory.StageProjectSummary, "run-1", "## Purpose\n\nA demo.", time.Now())
	st.Artifacts["file_summary:src/lib.rs"] = &store.CacheEntry{
		ID: "file_summary:src/lib.rs", Stage: docs.StageFileSummary, Target: "src/lib.rs",
		Status: "done", Content: "## Purpose\n\nLoads the configuration.",
	}
	st.Artifacts["project_summary"] = &store.CacheEntry{
		ID: "project_summary", Stage: docs.StageProjectSummary,
		Status: "degraded", Content: "## Purpose\n\nA demo.", Missing: []string{"file_summary:src/main.rs"},
	}
	require.NoError(t, s.Save(context.Background(), st))
	return cacheSource{path: path}
}

func callTool(t *testing.T, h mcpserver.ToolHandlerFunc, args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestListIndexedFiles(t *testing.T) {
	src := setupCache(t)
	out, isErr := callTool(t, makeListFilesHandler(src), nil)
	assert.False(t, isErr)
	assert.Contains(t, out, "## Indexed files (2)")
	assert.Contains(t, out, "**src/lib.rs** (rust, 2 symbols): Loads the configuration.")
	assert.Contains(t, out, "**src/main.rs** (rust, 2 symbols): (no summary)")

	out, _ = callTool(t, makeListFilesHandler(src), map[string]any{"language": "Go"})
	assert.Contains(t, out, "## Indexed files (0, language: go)")
}

func TestArtifactHandlers(t *testing.T) {
	src := setupCache(t)

	out, isErr := callTool(t, makeArtifactHandler(src, docs.StageFileSummary), map[string]any{"path": "src/lib.rs"})
	assert.False(t, isErr)
	assert.Contains(t, out, docs.Disclaimer)
	assert.Contains(t, out, "Loads the configuration.")

	out, isErr = callTool(t, makeArtifactHandler(src, docs.StageFileDocs), map[string]any{"path": "src/lib.rs"})
	assert.False(t, isErr)
	assert.Contains(t, out, "has not been generated yet")

	_, isErr = callTool(t, makeArtifactHandler(src, docs.StageFileSummary), map[string]any{"path": "nope.rs"})
	assert.True(t, isErr)

	_, isErr = callTool(t, makeArtifactHandler(src, docs.StageFileSummary), nil)
	assert.True(t, isErr)

	out, _ = callTool(t, makeArtifactHandler(src, docs.StageProjectSummary), nil)
	assert.Contains(t, out, "> **Incomplete:** generated without file_summary:src/main.rs.")
}

func TestQueryFileSymbols(t *testing.T) {
	src := setupCache(t)
	out, isErr := callTool(t, makeSymbolsHandler(src), map[string]any{"path": "src/lib.rs"})
	assert.False(t, isErr)
	assert.Contains(t, out, "- L1 type `Config` {port: u16}")
	assert.Contains(t, out, "- L5 function `load(path: &str)` on Config")

	out, _ = callTool(t, makeSymbolsHandler(src), map[string]any{"path": "src/lib.rs", "kind": "function"})
	assert.NotContains(t, out, "`Config`")
}

func TestQueryProjectMemory(t *testing.T) {
	src := setupCache(t)
	out, isErr := callTool(t, makeMemoryHandler(src), map[string]any{"section": "history"})
	assert.False(t, isErr)
	assert.Contains(t, out, "project_summary (run run-1)")
	assert.NotContains(t, out, "### Symbols")

	out, _ = callTool(t, makeMemoryHandler(src), map[string]any{"symbol": "conf"})
	assert.Contains(t, out, "`Config` in src/lib.rs")
	assert.NotContains(t, out, "`main`")

	_, isErr = callTool(t, makeMemoryHandler(src), map[string]any{"section": "everything"})
	assert.True(t, isErr)
}

func TestMissingCacheIsReported(t *testing.T) {
	src := cacheSource{path: filepath.Join(t.TempDir(), "cache.db")}
	out, isErr := callTool(t, makeListFilesHandler(src), nil)
	assert.True(t, isErr)
	assert.Contains(t, out, "plainsight generate")
}

func TestFormatStatus(t *testing.T) {
	src := setupCache(t)
	st, err := store.ReadState(context.Background(), src.path)
	require.NoError(t, err)

	out := formatStatus(st, "other")
	assert.Contains(t, out, "Project:   demo")
	assert.Contains(t, out, "Artifacts: 2 (1 degraded, 1 done)")
	assert.Contains(t, out, "Settings changed")
	assert.Contains(t, out, "file_summary:src/lib.rs")

	assert.NotContains(t, formatStatus(st, "old"), "Settings changed")
}

func TestArtifactID(t *testing.T) {
	assert.Equal(t, "architecture", artifactID("architecture"))
	assert.Equal(t, "file_summary:a.rs", artifactID("file_summary:a.rs"))
	assert.Equal(t, "file_docs:src/a.rs", artifactID("src/a.rs"))
}
