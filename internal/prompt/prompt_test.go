package prompt

import (
	"fmt"
	"strings"
	"testing"

	"plainsight/internal/extract"
	"plainsight/internal/index"
	"plainsight/internal/llm"
	"plainsight/internal/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanStripsFenceAndPreamble(t *testing.T) {
	raw := "```markdown\nSure, here it is.\n\n## Purpose\n\nParses config.\n```"
	out, err := Clean(llm.TaskSummarize, raw)
	require.NoError(t, err)
	assert.Equal(t, "## Purpose\n\nParses config.", out)
}

func TestCleanUnwrapsJSONWrapper(t *testing.T) {
	raw := `{"result":{"docs_markdown":"## Overview\n\nHandles IO."}}`
	out, err := Clean(llm.TaskDocumentation, raw)
	require.NoError(t, err)
	assert.Equal(t, "## Overview\n\nHandles IO.", out)
}

func TestCleanRejects(t *testing.T) {
	cases := map[string]string{
		"empty":   "   \n",
		"json":    `{"answer": 42}`,
		"array":   `[1, 2, 3]`,
		"refusal": "I'm unable to help with that request.",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Clean(llm.TaskArchitecture, raw)
			assert.ErrorIs(t, err, ErrUnusableOutput)
		})
	}
}

func TestCleanKeepsReplyWithoutHeading(t *testing.T) {
	out, err := Clean(llm.TaskProjectSummary, "\n  A plain paragraph.  \n")
	require.NoError(t, err)
	assert.Equal(t, "A plain paragraph.", out)
}

func TestHeading(t *testing.T) {
	assert.Equal(t, "## Purpose", Heading(llm.TaskSummarize))
	assert.Equal(t, "## Overview", Heading(llm.TaskDocumentation))
	assert.Equal(t, "## Overview", Heading(llm.TaskProjectSummary))
	assert.Equal(t, "## System Context", Heading(llm.TaskArchitecture))
}

func numbered(n int) []byte {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return []byte(b.String())
}

func TestWindowsOverlap(t *testing.T) {
	ws := Windows(numbered(250), "rust")
	require.Len(t, ws, 3)
	assert.Equal(t, 1, ws[0].StartLine)
	assert.Equal(t, 120, ws[0].EndLine)
	assert.Equal(t, 101, ws[1].StartLine)
	assert.Equal(t, 220, ws[1].EndLine)
	assert.Equal(t, 201, ws[2].StartLine)
	assert.Equal(t, 250, ws[2].EndLine)
	assert.True(t, strings.HasPrefix(ws[1].Content, "line 101\n"))
}

func TestWindowsCharBound(t *testing.T) {
	long := strings.Repeat(strings.Repeat("x", 999)+"\n", 20)
	ws := Windows([]byte(long), "rust")
	require.NotEmpty(t, ws)
	for _, w := range ws {
		assert.LessOrEqual(t, len(w.Content), 6000)
	}
	assert.Equal(t, 20, ws[len(ws)-1].EndLine)
}

func TestWindowsEmpty(t *testing.T) {
	assert.Nil(t, Windows(nil, "go"))
	assert.Nil(t, Windows([]byte("\n\n"), "go"))
}

func TestFileSummaryPrompt(t *testing.T) {
	fi := &index.FileIndex{
		Path:     "src/config.rs",
		Language: "rust",
		Symbols: []extract.Symbol{
			{Kind: extract.KindType, Name: "Config", Visibility: "pub", Fields: []extract.Field{{Name: "path", Type: "String"}}},
			{Kind: extract.KindFunction, Name: "load", Signature: "(p: &str) -> Config", Target: "Config"},
		},
	}
	pi := &index.ProjectIndex{Files: map[string]*index.FileIndex{
		fi.Path: fi,
		"src/other.rs": {Path: "src/other.rs", Symbols: []extract.Symbol{
			{Kind: extract.KindFunction, Name: "reload", Target: "Config"},
		}},
	}}
	req := FileSummary(FileInput{
		Path:     fi.Path,
		Language: fi.Language,
		Source:   []byte("pub struct Config { path: String }\n"),
		File:     fi,
		Graph:    index.BuildGraph(pi),
		Facts:    memory.FileFacts{Importers: []memory.Link{{From: "src/main.rs", To: fi.Path, Symbol: "Config"}}},
	})

	assert.Equal(t, llm.TaskSummarize, req.Task)
	assert.NotEmpty(t, req.System)
	assert.Contains(t, req.Prompt, "## Purpose")
	assert.Contains(t, req.Prompt, "File: src/config.rs")
	assert.Contains(t, req.Prompt, "pub type Config {path String}")
	assert.Contains(t, req.Prompt, "function load: (p: &str) -> Config (on Config)")
	assert.Contains(t, req.Prompt, "method reload in src/other.rs")
	assert.Contains(t, req.Prompt, "Config used by src/main.rs")
	assert.Contains(t, req.Prompt, "Source lines 1-1:")
}

func TestProjectPrompts(t *testing.T) {
	fi := &index.FileIndex{Path: "a.rs", Language: "rust", Symbols: []extract.Symbol{
		{Kind: extract.KindImport, Name: "std::io"},
		{Kind: extract.KindType, Name: "A"},
	}}
	in := ProjectInput{
		Name:    "demo",
		Files:   []FileDigest{Digest(fi, ""), {Path: "b.rs", Language: "rust", Summary: "## Purpose\n\nB things."}},
		Graph:   index.Graph{Implementors: map[string][]index.Implementor{"Run": {{Type: "A", File: "a.rs"}}}},
		Memory:  &memory.Memory{ProjectSummary: "old summary", Architecture: "old arch"},
		Missing: []string{"file_summary:a.rs"},
	}

	ps := ProjectSummary(in)
	assert.Equal(t, llm.TaskProjectSummary, ps.Task)
	assert.Contains(t, ps.Prompt, "Project: demo")
	assert.Contains(t, ps.Prompt, "Symbols: A")
	assert.Contains(t, ps.Prompt, "B things.")
	assert.Contains(t, ps.Prompt, "old summary")
	assert.Contains(t, ps.Prompt, "left out: file_summary:a.rs")
	assert.NotContains(t, ps.Prompt, "Run implemented by")

	in.ProjectSummary = "## Overview\n\nNew."
	arch := Architecture(in)
	assert.Equal(t, llm.TaskArchitecture, arch.Task)
	assert.Contains(t, arch.Prompt, "## System Context")
	assert.Contains(t, arch.Prompt, "Run implemented by A")
	assert.Contains(t, arch.Prompt, "old arch")
	assert.Contains(t, arch.Prompt, "New.")
}

func TestPromptsAreDeterministic(t *testing.T) {
	in := FileInput{Path: "x.go", Language: "go", Source: numbered(300), File: &index.FileIndex{Path: "x.go"}}
	assert.Equal(t, FileDocs(in), FileDocs(in))
}
