package cmd

import (
	"fmt"
	"os"

	"plainsight/internal/docs"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var (
	flagShowRoot string
	flagRaw      bool
)

var showCmd = &cobra.Command{
	Use:   "show <artifact>",
	Short: "Render a generated document",
	Long: `Render a generated document in the terminal.

Artifacts are named project_summary, architecture, file_summary:<path> or
file_docs:<path>. A bare source path shows its file docs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectRoot([]string{flagShowRoot})
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd, root)
		if err != nil {
			return err
		}
		id := artifactID(args[0])
		layout := docs.Layout{Root: cfg.DocsRoot(root)}
		a, err := layout.Read(id)
		if os.IsNotExist(err) {
			return fmt.Errorf("%s has not been generated yet; run 'plainsight generate'", id)
		}
		if err != nil {
			return err
		}

		if flagRaw || !isTerminal(os.Stdout) {
			fmt.Print(string(docs.Render(a)))
			return nil
		}
		out, err := renderMarkdown(docs.Body(a), 100)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	showCmd.Flags().StringVar(&flagShowRoot, "project", ".", "project root")
	showCmd.Flags().BoolVar(&flagRaw, "raw", false, "print the Markdown source")
	rootCmd.AddCommand(showCmd)
}

// artifactID accepts a full artifact id or a bare source path.
func artifactID(arg string) string {
	if _, _, err := docs.ParseID(arg); err == nil {
		return arg
	}
	return docs.ID(docs.StageFileDocs, arg)
}

func renderMarkdown(md string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}
