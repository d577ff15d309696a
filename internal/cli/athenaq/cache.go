package athenaq

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/athenaq/athenaq/internal/cache"
	"github.com/athenaq/athenaq/internal/output"
)

func (a *app) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the local result cache",
	}
	cmd.AddCommand(a.cacheShowCommand(), a.cacheKeyCommand())
	return cmd
}

func (a *app) cacheShowCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "show [SQL]",
		Short: "Print the cached result and execution record for a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readQuery(cmd.InOrStdin(), args, file)
			if err != nil {
				return err
			}
			c := cache.New(a.cfg.Cache.Dir)
			key := cache.Key(a.cfg.Query.Database, query)
			entry, found, err := c.Lookup(key)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no cache entry for digest %s", cache.Digest(key))
			}

			out := cmd.OutOrStdout()
			record := entry.Record
			_, _ = fmt.Fprintf(out, "digest:        %s\n", entry.Digest)
			if record.ID != "" {
				_, _ = fmt.Fprintf(out, "execution id:  %s\n", record.ID)
				_, _ = fmt.Fprintf(out, "state:         %s\n", record.State)
				_, _ = fmt.Fprintf(out, "output:        %s\n", record.OutputLocation)
				if record.CompletedAt != nil {
					_, _ = fmt.Fprintf(out, "completed at:  %s\n", record.CompletedAt.Format("2006-01-02 15:04:05 MST"))
				}
			}
			rendered, err := output.Render(entry.Table, a.cfg.Output.MaxRows)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(out, rendered)
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read SQL from file")
	return cmd
}

func (a *app) cacheKeyCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "key [SQL]",
		Short: "Print the cache key, digest and file paths for a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readQuery(cmd.InOrStdin(), args, file)
			if err != nil {
				return err
			}
			key := cache.Key(a.cfg.Query.Database, query)
			digest := cache.Digest(key)
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "key:      %q\n", key)
			_, _ = fmt.Fprintf(out, "digest:   %s\n", digest)
			_, _ = fmt.Fprintf(out, "metadata: %s\n", filepath.Join(a.cfg.Cache.Dir, digest+".json"))
			_, err = fmt.Fprintf(out, "table:    %s\n", filepath.Join(a.cfg.Cache.Dir, digest+".parquet"))
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read SQL from file")
	return cmd
}

func oneLine(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
