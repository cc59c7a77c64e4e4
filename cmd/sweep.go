package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"salesbot/internal/session"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Finalize stale conversations",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	sessions := session.NewManager(d, time.Duration(cfg.SessionWindowMinutes)*time.Minute)
	n, err := sessions.SweepStale(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Finalized %d stale conversations\n", n)
	return nil
}
