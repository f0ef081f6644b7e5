package diego

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/varalys/diego/internal/audit"
	"github.com/varalys/diego/internal/observability"
)

var (
	historyJSON   bool
	historyDelete int
	historyLimit  int
	historyTUI    bool
)

func init() {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded build runs",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	cmd.Flags().BoolVar(&historyJSON, "json", false, "print records as JSON")
	cmd.Flags().IntVar(&historyDelete, "delete", -1, "delete the record at this index (0 = newest)")
	cmd.Flags().IntVar(&historyLimit, "limit", 20, "show at most this many records (0 = all)")
	cmd.Flags().BoolVar(&historyTUI, "tui", false, "browse and delete records interactively")
	rootCmd.AddCommand(cmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	l, err := layout()
	if err != nil {
		return err
	}
	log := audit.NewAuditLog(l.AuditLog())
	out := cmd.OutOrStdout()

	if historyDelete >= 0 {
		if err := log.DeleteRecord(historyDelete); err != nil {
			return err
		}
		_, err := fmt.Fprintf(out, "Deleted record %d\n", historyDelete)
		return err
	}

	records, err := log.LoadHistory()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if n := log.Skipped(); n > 0 {
		observability.GetLogger().Warn("Skipped malformed audit records.", zap.Int("lines", n), zap.String("path", log.Path()))
	}
	if historyTUI {
		return runHistoryTUI(records, log, !noColor())
	}
	if historyLimit > 0 && len(records) > historyLimit {
		records = records[:historyLimit]
	}
	if historyJSON {
		if records == nil {
			records = []audit.BuildRecord{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "No builds recorded.")
		return err
	}

	table := tablewriter.NewWriter(out)
	table.Header("#", "Time", "Target", "Status", "Duration", "Detail")
	for i, r := range records {
		detail := r.Fingerprint
		if r.Status == audit.StatusFailed {
			detail = r.FailedStage
			if detail == "" {
				detail = r.Error
			} else if r.Interrupted {
				detail += " (interrupted)"
			}
		}
		if err := table.Append([]string{
			fmt.Sprint(i),
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			r.Target,
			r.Status,
			r.Duration,
			detail,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}
