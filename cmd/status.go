package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"plainsight/internal/pipeline"
	"plainsight/internal/store"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show what the cache knows about the last run",
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
		st, err := store.ReadState(cmd.Context(), cfg.CachePath(root))
		if errors.Is(err, store.ErrNoCache) {
			fmt.Printf("No cache found for %s\nRun 'plainsight generate' first.\n", root)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read cache: %w", err)
		}

		fp := pipeline.FromConfig(root, cfg, nil, nil).Fingerprint
		fmt.Print(formatStatus(st, fp))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func formatStatus(st *store.State, fingerprint string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Project:   %s\n", st.Meta.ProjectName)
	fmt.Fprintf(&sb, "Docs:      %s\n", st.Meta.DocsRoot)
	if !st.Meta.LastRun.IsZero() {
		fmt.Fprintf(&sb, "Last run:  %s (%s)\n", st.Meta.LastRun.Local().Format(time.DateTime), st.Meta.RunID)
	}
	fmt.Fprintf(&sb, "Files:     %d\n", len(st.Index.Files))
	if st.Meta.SettingsFingerprint != "" && st.Meta.SettingsFingerprint != fingerprint {
		sb.WriteString("Settings changed since the last run; every artifact will be regenerated.\n")
	}

	ids := make([]string, 0, len(st.Artifacts))
	counts := make(map[string]int)
	for id, e := range st.Artifacts {
		ids = append(ids, id)
		counts[e.Status]++
	}
	sort.Strings(ids)

	statuses := make([]string, 0, len(counts))
	for s, n := range counts {
		statuses = append(statuses, fmt.Sprintf("%d %s", n, s))
	}
	sort.Strings(statuses)
	fmt.Fprintf(&sb, "Artifacts: %d (%s)\n\n", len(ids), strings.Join(statuses, ", "))

	if len(ids) == 0 {
		return sb.String()
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ARTIFACT", "STATUS", "GENERATED", "MISSING")
	for _, id := range ids {
		e := st.Artifacts[id]
		generated := "-"
		if !e.GeneratedAt.IsZero() {
			generated = e.GeneratedAt.Local().Format(time.DateTime)
		}
		t.Row(id, e.Status, generated, strings.Join(e.Missing, ", "))
	}
	sb.WriteString(t.String())
	sb.WriteString("\n")
	return sb.String()
}
