package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/FranksOps/blight/internal/history"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previously recorded scans",
		RunE:  runHistoryCmd,
	}

	cmd.Flags().String("history-db", "blight-history.db", "SQLite file recording scan history")
	cmd.Flags().Int("limit", 20, "maximum entries to list")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("history-db")
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := history.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no scans recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCAN ID\tSITE\tPAGES\tMATCHED\tSTARTED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			e.ScanID, e.SiteRoot, e.PagesScanned, e.MatchedPages,
			e.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
