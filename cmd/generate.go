package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"plainsight/internal/config"
	"plainsight/internal/llm"
	"plainsight/internal/pipeline"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

var flagNoPreflight bool

var generateCmd = &cobra.Command{
	Use:   "generate [path]",
	Short: "Generate or refresh the documentation for a project",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().BoolVar(&flagNoPreflight, "no-preflight", false, "skip checking that the configured models are available")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	root, err := projectRoot(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, root)
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	client := newClient(cfg, logger)
	if !flagNoPreflight {
		if err := preflight(ctx, client, cfg); err != nil {
			return err
		}
	}

	fmt.Printf("Generating docs for %s...\n", root)
	report, err := pipeline.New(pipeline.FromConfig(root, cfg, client, logger)).Run(ctx)
	if report != nil {
		printReport(report)
	}
	if err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("%d artifacts failed, %d writes failed", report.Failed, report.FailedWrites)
	}
	return nil
}

func newClient(cfg *config.Config, logger hclog.Logger) *llm.OllamaClient {
	cc := cfg.ClientConfig()
	cc.Logger = logger
	return llm.NewOllamaClient(cc)
}

// preflight checks that the service answers and has every configured model.
func preflight(ctx context.Context, client *llm.OllamaClient, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	missing, err := client.MissingModels(ctx)
	if err != nil {
		return fmt.Errorf("generation service at %s: %w", cfg.Ollama.URL, err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("models not available at %s: %s (run 'ollama pull <model>')",
			cfg.Ollama.URL, strings.Join(missing, ", "))
	}
	return nil
}

func printReport(r *pipeline.Report) {
	fmt.Printf("\nDone in %s\n", r.Duration.Round(time.Millisecond))
	fmt.Printf("  Files:      %d indexed, %d unchanged, %d removed\n",
		r.Index.Files, r.Index.Reused, len(r.Index.Removed))
	if r.Index.ParseErrors > 0 || r.Index.Unreadable > 0 {
		fmt.Printf("              %d with parse errors, %d unreadable\n", r.Index.ParseErrors, r.Index.Unreadable)
	}
	fmt.Printf("  Artifacts:  %d generated, %d reused, %d degraded, %d failed\n",
		r.Generated, r.Reused, r.Degraded, r.Failed)
	if r.CacheCorruption != nil {
		fmt.Printf("  Cache was unreadable and has been rebuilt: %v\n", r.CacheCorruption)
	}

	for _, id := range r.IDs() {
		a := r.Artifacts[id]
		switch a.State {
		case pipeline.Failed:
			fmt.Printf("  ✗ %s: %v\n", id, a.Err)
		case pipeline.Degraded:
			fmt.Printf("  ⚠ %s: generated without %s\n", id, strings.Join(a.Missing, ", "))
		}
	}
	if r.FailedWrites > 0 {
		fmt.Printf("  %d output files could not be written:\n", r.FailedWrites)
		var merr *multierror.Error
		if errors.As(r.WriteErrors, &merr) {
			for _, err := range merr.Errors {
				fmt.Printf("    %v\n", err)
			}
		}
	}
	fmt.Printf("  Output:     %s\n", r.DocsRoot)
}
