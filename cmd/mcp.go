package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"plainsight/internal/docs"
	"plainsight/internal/extract"
	"plainsight/internal/memory"
	"plainsight/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp [path]",
	Short: "Start an MCP server exposing the generated documentation",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	root, err := projectRoot(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, root)
	if err != nil {
		return err
	}
	src := cacheSource{path: cfg.CachePath(root)}
	if _, err := src.load(cmd.Context()); err != nil {
		return err
	}
	return mcpserver.ServeStdio(newMCPServer(src))
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func newMCPServer(src cacheSource) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("plainsight", "1.0.0", mcpserver.WithToolCapabilities(false))
	s.AddTool(listIndexedFilesTool(), makeListFilesHandler(src))
	s.AddTool(getFileSummaryTool(), makeArtifactHandler(src, docs.StageFileSummary))
	s.AddTool(getFileDocsTool(), makeArtifactHandler(src, docs.StageFileDocs))
	s.AddTool(getProjectSummaryTool(), makeArtifactHandler(src, docs.StageProjectSummary))
	s.AddTool(getArchitectureTool(), makeArtifactHandler(src, docs.StageArchitecture))
	s.AddTool(queryFileSymbolsTool(), makeSymbolsHandler(src))
	s.AddTool(queryProjectMemoryTool(), makeMemoryHandler(src))
	return s
}

// cacheSource reloads the cache on every call so a running server sees the
// results of later generate runs.
type cacheSource struct {
	path string
}

func (c cacheSource) load(ctx context.Context) (*store.State, error) {
	st, err := store.ReadState(ctx, c.path)
	if errors.Is(err, store.ErrNoCache) {
		return nil, fmt.Errorf("%w\nRun 'plainsight generate' first to build it", err)
	}
	return st, err
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func pathParam() mcp.ToolOption {
	return mcp.WithString("path",
		mcp.Required(),
		mcp.Description("File path as indexed (relative to the project root)"),
	)
}

func listIndexedFilesTool() mcp.Tool {
	return mcp.NewTool("list_indexed_files",
		mcp.WithDescription("List every indexed source file with its language, symbol count and summary snippet."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("language",
			mcp.Description("Optional language filter (e.g. 'rust', 'go'). Case-insensitive."),
		),
	)
}

func getFileSummaryTool() mcp.Tool {
	return mcp.NewTool("get_file_summary",
		mcp.WithDescription("Get the generated summary of one source file."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		pathParam(),
	)
}

func getFileDocsTool() mcp.Tool {
	return mcp.NewTool("get_file_docs",
		mcp.WithDescription("Get the generated reference documentation of one source file."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		pathParam(),
	)
}

func getProjectSummaryTool() mcp.Tool {
	return mcp.NewTool("get_project_summary",
		mcp.WithDescription("Get the project summary synthesized from every file summary."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	)
}

func getArchitectureTool() mcp.Tool {
	return mcp.NewTool("get_architecture",
		mcp.WithDescription("Get the generated architecture overview of the project."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	)
}

func queryFileSymbolsTool() mcp.Tool {
	return mcp.NewTool("query_file_symbols",
		mcp.WithDescription("List the symbols extracted from one source file: functions, types, traits, impls, imports and variables with their line numbers."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		pathParam(),
		mcp.WithString("kind",
			mcp.Description("Optional kind filter: function, type, trait, trait_member, variable, impl or import."),
		),
	)
}

func queryProjectMemoryTool() mcp.Tool {
	return mcp.NewTool("query_project_memory",
		mcp.WithDescription("Query project-wide facts: symbols defined across files, cross-file links, open items, and the history of project-level generations."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("symbol",
			mcp.Description("Optional substring filter on symbol names."),
		),
		mcp.WithString("section",
			mcp.Description("One of 'symbols', 'links', 'open_items', 'history' or 'all' (default)."),
		),
	)
}

// --- Handler factories ---

func makeListFilesHandler(src cacheSource) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		langFilter := strings.ToLower(req.GetString("language", ""))
		st, err := src.load(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read cache failed: %v", err)), nil
		}

		var sb strings.Builder
		var lines []string
		for _, path := range st.Index.Paths() {
			fi := st.Index.Files[path]
			if langFilter != "" && strings.ToLower(fi.Language) != langFilter {
				continue
			}
			snippet := "(no summary)"
			if e := st.Artifacts[docs.ID(docs.StageFileSummary, path)]; e != nil && e.Content != "" {
				snippet = firstLine(e.Content, 120)
			}
			lines = append(lines, fmt.Sprintf("- **%s** (%s, %d symbols): %s", path, fi.Language, len(fi.Symbols), snippet))
		}
		if langFilter != "" {
			fmt.Fprintf(&sb, "## Indexed files (%d, language: %s)\n\n", len(lines), langFilter)
		} else {
			fmt.Fprintf(&sb, "## Indexed files (%d)\n\n", len(lines))
		}
		sb.WriteString(strings.Join(lines, "\n"))
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func makeArtifactHandler(src cacheSource, stage string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var target string
		if stage == docs.StageFileSummary || stage == docs.StageFileDocs {
			target = req.GetString("path", "")
			if target == "" {
				return mcp.NewToolResultError("path is required"), nil
			}
		}
		st, err := src.load(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read cache failed: %v", err)), nil
		}
		if target != "" && st.Index.File(target) == nil {
			return mcp.NewToolResultError(fmt.Sprintf("file %q not found in index; call list_indexed_files to see available paths", target)), nil
		}

		id := docs.ID(stage, target)
		e := st.Artifacts[id]
		if e == nil || e.Content == "" {
			return mcp.NewToolResultText(fmt.Sprintf("%s has not been generated yet. Run 'plainsight generate' to create it.", id)), nil
		}
		text := docs.Body(docs.Artifact{ID: id, Source: target, Body: e.Content, Missing: e.Missing})
		if e.Status == "failed" {
			text = "> **Note:** the last attempt to regenerate this artifact failed; this is the previous version.\n\n" + text
		}
		return mcp.NewToolResultText(text), nil
	}
}

func makeSymbolsHandler(src cacheSource) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "")
		if path == "" {
			return mcp.NewToolResultError("path is required"), nil
		}
		kind := extract.Kind(strings.ToLower(req.GetString("kind", "")))
		st, err := src.load(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read cache failed: %v", err)), nil
		}
		fi := st.Index.File(path)
		if fi == nil {
			return mcp.NewToolResultError(fmt.Sprintf("file %q not found in index; call list_indexed_files to see available paths", path)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "## Symbols in %s (%s)\n\n", fi.Path, fi.Language)
		if fi.ParseError != "" {
			fmt.Fprintf(&sb, "Parse error: %s\n\n", fi.ParseError)
		}
		n := 0
		for _, sym := range fi.Symbols {
			if kind != "" && sym.Kind != kind {
				continue
			}
			n++
			sb.WriteString(formatSymbol(sym))
			sb.WriteString("\n")
		}
		if n == 0 {
			sb.WriteString("(no symbols)\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func makeMemoryHandler(src cacheSource) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filter := strings.ToLower(req.GetString("symbol", ""))
		section := req.GetString("section", "all")
		switch section {
		case "all", "symbols", "links", "open_items", "history":
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown section %q", section)), nil
		}
		st, err := src.load(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read cache failed: %v", err)), nil
		}
		facts := memory.Derive(st.Index)
		return mcp.NewToolResultText(formatMemory(st.Memory, facts, section, filter)), nil
	}
}

// --- Formatting helpers ---

func formatSymbol(sym extract.Symbol) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- L%d %s `%s", sym.Line, sym.Kind, sym.Name)
	if sym.Signature != "" {
		sb.WriteString(sym.Signature)
	}
	sb.WriteString("`")
	if sym.Visibility != "" {
		fmt.Fprintf(&sb, " (%s)", sym.Visibility)
	}
	if sym.Trait != "" && sym.Target != "" {
		fmt.Fprintf(&sb, " implements %s for %s", sym.Trait, sym.Target)
	} else if sym.Target != "" {
		fmt.Fprintf(&sb, " on %s", sym.Target)
	} else if sym.Trait != "" {
		fmt.Fprintf(&sb, " in %s", sym.Trait)
	}
	if len(sym.Fields) > 0 {
		fields := make([]string, len(sym.Fields))
		for i, f := range sym.Fields {
			fields[i] = f.Name
			if f.Type != "" {
				fields[i] += ": " + f.Type
			}
		}
		fmt.Fprintf(&sb, " {%s}", strings.Join(fields, ", "))
	}
	return sb.String()
}

func formatMemory(mem *memory.Memory, facts memory.Facts, section, filter string) string {
	match := func(name string) bool {
		return filter == "" || strings.Contains(strings.ToLower(name), filter)
	}
	want := func(s string) bool { return section == "all" || section == s }

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Project memory\n\n%d files, %d unique symbols\n\n", facts.FileCount, facts.UniqueSymbolCount)

	if want("symbols") {
		sb.WriteString("### Symbols\n\n")
		for _, g := range facts.GlobalSymbols {
			if match(g.Name) {
				fmt.Fprintf(&sb, "- %s `%s` in %s\n", g.Kind, g.Name, strings.Join(g.DefinedIn, ", "))
			}
		}
		sb.WriteString("\n")
	}
	if want("links") {
		sb.WriteString("### Links\n\n")
		for _, l := range facts.Links {
			if match(l.Symbol) {
				fmt.Fprintf(&sb, "- %s uses `%s` from %s\n", l.From, l.Symbol, l.To)
			}
		}
		sb.WriteString("\n")
	}
	if want("open_items") {
		sb.WriteString("### Open items\n\n")
		for _, item := range facts.OpenItems {
			if match(item.Symbol) {
				fmt.Fprintf(&sb, "- %s (%s)\n", item.Message, strings.Join(item.Files, ", "))
			}
		}
		sb.WriteString("\n")
	}
	if want("history") && mem != nil {
		sb.WriteString("### History\n\n")
		for i := len(mem.History) - 1; i >= 0; i-- {
			h := mem.History[i]
			fmt.Fprintf(&sb, "- %s %s (run %s): %s\n", h.At.Format("2006-01-02 15:04"), h.Stage, h.RunID, h.Excerpt)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func firstLine(s string, n int) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(line) > n {
			line = line[:n] + "..."
		}
		return line
	}
	return ""
}
