package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/exac-annotator/internal/duckdb"
)

func newCacheCmd(stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or empty the annotation cache",
		Long: `Inspect or empty the DuckDB annotation cache. The file is taken from the
argument when given, otherwise from the cache.path setting.`,
		Example: `  exac-annotator cache stats
  exac-annotator cache stats ~/.exac-annotator/cache.duckdb
  exac-annotator cache clear`,
		Args: cobra.NoArgs,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats [path]",
		Short: "Show the number of cached answers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(args, func(store *duckdb.Store) error {
				n, err := store.CountAnnotations(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "%s: %d cached answers\n", store.Path(), n)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear [path]",
		Short: "Remove every cached answer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(args, func(store *duckdb.Store) error {
				n, err := store.CountAnnotations(cmd.Context())
				if err != nil {
					return err
				}
				if err := store.ClearAnnotations(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Removed %d cached answers from %s\n", n, store.Path())
				return nil
			})
		},
	})

	return cmd
}

// withCache opens the cache named by args or cache.path for the duration of fn.
func withCache(args []string, fn func(*duckdb.Store) error) error {
	path := viper.GetString("cache.path")
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return &usageError{fmt.Errorf("no cache file: pass a path or run 'config set cache.path <file>'")}
	}

	store, err := duckdb.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}
