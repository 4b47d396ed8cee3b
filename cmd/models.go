package cmd

import (
	"fmt"
	"sort"
	"strings"

	"plainsight/internal/llm"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models [path]",
	Short: "List the models available on the generation service",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectRoot(args)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd, root)
		if err != nil {
			return err
		}
		client := llm.NewOllamaClient(cfg.ClientConfig())
		models, err := client.Models(cmd.Context())
		if err != nil {
			return fmt.Errorf("list models at %s: %w", cfg.Ollama.URL, err)
		}

		usedBy := make(map[string][]string)
		for _, task := range llm.Tasks {
			name := client.Options(task).Model
			usedBy[name] = append(usedBy[name], string(task))
		}

		sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
		fmt.Printf("Models at %s:\n", cfg.Ollama.URL)
		for _, m := range models {
			tasks := usedBy[m.Name]
			if tasks == nil {
				tasks = usedBy[strings.TrimSuffix(m.Name, ":latest")]
			}
			line := fmt.Sprintf("  %-32s %8s", m.Name, llm.FormatSize(m.Size))
			if len(tasks) > 0 {
				line += "  used for " + strings.Join(tasks, ", ")
			}
			fmt.Println(line)
		}
		names := make([]string, 0, len(usedBy))
		for name := range usedBy {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if !llm.HasModel(models, name) {
				fmt.Printf("  missing: %s (configured for %s)\n", name, strings.Join(usedBy[name], ", "))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
