package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"salesbot/internal/corpus"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the knowledge corpus from the catalog",
	Long: `Re-extracts every active product, promotion, collection and branch,
renders their documents, embeds them and replaces the stored corpus in
one transaction.`,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	store := corpus.NewStore(d)
	synchronizer := corpus.NewSynchronizer(d, store, embedder,
		time.Duration(cfg.EmbedTimeoutSeconds)*time.Second)

	report, err := synchronizer.Rebuild(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Corpus rebuilt in %s\n", report.Duration.Round(time.Millisecond))
	for typ, tr := range report.Types {
		fmt.Printf("  %-12s %d/%d persisted\n", typ, tr.Persisted, tr.Attempted)
	}
	if report.Skipped > 0 {
		fmt.Printf("  %d documents skipped\n", report.Skipped)
	}
	return nil
}
