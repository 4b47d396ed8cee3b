package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"plainsight/internal/config"

	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagOllama   string
	flagModel    string
	flagWorkers  int
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:          "plainsight [path]",
	Short:        "Layered Markdown documentation for a source tree, generated locally",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isTerminal(os.Stdout) {
			return runGenerate(cmd, args)
		}
		return runTUI(cmd, args)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default <project>/"+config.FileName+")")
	rootCmd.PersistentFlags().StringVar(&flagOllama, "ollama", "", "ollama base URL (overrides the config file)")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "generation model for every task without its own model")
	rootCmd.PersistentFlags().IntVar(&flagWorkers, "workers", 0, "concurrent file-level generations")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "log level: trace, debug, info, warn, error")
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// projectRoot returns the absolute project root from the optional path
// argument, defaulting to the working directory.
func projectRoot(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", root)
	}
	return root, nil
}

// loadConfig reads the config file for root and applies flag overrides.
func loadConfig(cmd *cobra.Command, root string) (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = filepath.Join(root, config.FileName)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("ollama") {
		cfg.Ollama.URL = flagOllama
	}
	if flags.Changed("model") {
		cfg.Ollama.Model = flagModel
	}
	if flags.Changed("workers") {
		cfg.Pipeline.Workers = flagWorkers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger() (hclog.Logger, error) {
	level := hclog.LevelFromString(flagLogLevel)
	if level == hclog.NoLevel {
		return nil, fmt.Errorf("unknown log level %q", flagLogLevel)
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "plainsight",
		Level:  level,
		Output: os.Stderr,
		Color:  hclog.AutoColor,
	}), nil
}
