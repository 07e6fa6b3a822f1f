package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kapsel-run/kapsel/internal/config"
	"github.com/kapsel-run/kapsel/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent executions from the ledger",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of executions to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.DBPath == ":memory:" {
		return errors.New("ledger is in-memory; set db_path (or KAPSEL_DB_PATH) to a file to keep history")
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	execs, err := st.ListExecutions(historyLimit)
	if err != nil {
		return fmt.Errorf("list executions: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tID\tLANG\tSTATUS\tMS\tERROR")
	for _, e := range execs {
		status := "ok"
		if !e.Success {
			status = "fail"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\t%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.RequestID, e.Language, status, e.DurationMs, e.Error)
	}
	tw.Flush()

	succeeded, failed, err := st.Counts()
	if err != nil {
		return fmt.Errorf("count executions: %w", err)
	}
	fmt.Printf("\n%d succeeded, %d failed\n", succeeded, failed)
	return nil
}
