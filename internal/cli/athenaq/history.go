package athenaq

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	historypostgres "github.com/athenaq/athenaq/internal/history/postgres"
	"github.com/athenaq/athenaq/internal/migrations"
	"github.com/athenaq/athenaq/internal/output"
	"github.com/athenaq/athenaq/internal/table"
)

const maxHistoryQueryWidth = 60

func (a *app) historyCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently finished queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageErrorf("history takes no arguments")
			}
			store, err := a.historyStore(cmd.Context())
			if err != nil {
				return err
			}
			if store == nil {
				return usageErrorf("history is not configured; set ATHENAQ_HISTORY_DSN")
			}
			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			columns := []string{"recorded_at", "state", "database", "cached", "duration", "execution_id", "query"}
			rows := make([][]sql.NullString, 0, len(entries))
			for _, entry := range entries {
				query := oneLine(entry.Query)
				if len(query) > maxHistoryQueryWidth {
					query = query[:maxHistoryQueryWidth-3] + "..."
				}
				rows = append(rows, []sql.NullString{
					cell(entry.RecordedAt.Local().Format(time.DateTime)),
					cell(entry.State),
					cell(entry.Database),
					cell(strconv.FormatBool(entry.Cached)),
					cell(entry.Duration.Round(time.Millisecond).String()),
					cell(entry.ExecutionID),
					cell(query),
				})
			}
			rendered, err := output.Render(table.New(columns, rows), 0)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), rendered)
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "limit", historypostgres.DefaultRecentLimit, "number of entries to list")
	cmd.AddCommand(a.historyMigrateCommand())
	return cmd
}

func (a *app) historyMigrateCommand() *cobra.Command {
	var down int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply history schema migrations, or roll back with --down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.historyDB(cmd.Context())
			if err != nil {
				return err
			}
			if db == nil {
				return usageErrorf("history is not configured; set ATHENAQ_HISTORY_DSN")
			}
			runner := migrations.NewRunner()
			if down > 0 {
				count, err := runner.Down(cmd.Context(), db, down)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migrations\n", count)
				return err
			}
			count, err := runner.Up(cmd.Context(), db, 0)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "applied %d migrations\n", count)
			return err
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "roll back this many migrations")
	return cmd
}

func cell(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
