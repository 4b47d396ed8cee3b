package cmd

import (
	"os"
	"os/signal"

	"plainsight/internal/tui"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

func runTUI(cmd *cobra.Command, args []string) error {
	root, err := projectRoot(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, root)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	// Log lines would tear the alternate screen.
	return tui.Run(ctx, tui.Config{
		Root:     root,
		Settings: cfg,
		Logger:   hclog.NewNullLogger(),
	})
}
