package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/JonMunkholm/simplestruct/internal/application"
	"github.com/JonMunkholm/simplestruct/internal/config"
	"github.com/JonMunkholm/simplestruct/internal/core"
	"github.com/JonMunkholm/simplestruct/internal/core/tables"
	"github.com/spf13/cobra"
)

func newReportsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reports",
		Short: "List registered reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GROUP\tTABLE\tLABEL\tCOLUMNS")
			for _, group := range core.Groups() {
				for _, def := range core.ByGroup(group) {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", group, def.Info.Key, def.Info.Label, len(def.Columns))
				}
			}
			return tw.Flush()
		},
	}
}

func newRunCmd(a *app) *cobra.Command {
	var (
		rootType  string
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "run [table]",
		Short: "Truncate and rebuild a report table",
		Long: "Truncate the report table and rebuild it from every published root node.\n" +
			"The table defaults to " + tables.PredesTable + ".",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rootType != "" {
				a.cfg.Flatten.RootType = rootType
			}
			if batchSize > 0 {
				a.cfg.Flatten.BatchSize = batchSize
			}

			svc, b, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			result, err := svc.RunSync(cmd.Context(), tableArg(args))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, msg := range svc.DrainMessages() {
				fmt.Fprintf(out, "[%s] %s\n", msg.Type, msg.Text)
			}
			fmt.Fprintf(out, "run %s: %d rows from %d/%d roots in %s\n",
				result.RunID, result.Rows, result.Processed, result.TotalRoots, result.Duration.Round(time.Millisecond))
			if !result.Success {
				return fmt.Errorf("%w: %s", errRunFailed, result.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rootType, "root-type", "", "Content type whose nodes are flattened (overrides FLATTEN_ROOT_TYPE)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Rows per bulk insert (overrides FLATTEN_BATCH_SIZE)")
	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "reset [table]",
		Short: "Delete every row of a report table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("--all does not take a table")
			}

			svc, b, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			if all {
				if err := svc.ResetAll(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset %d tables\n", core.ReportCount())
				return nil
			}

			table := tableArg(args)
			if err := svc.Reset(cmd.Context(), table); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", table)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Reset every registered report table")
	return cmd
}

func newSeedCmd(a *app) *cobra.Command {
	var fixtures string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Save YAML fixtures into the configured entity store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Store.Driver == config.DriverMemory {
				return errors.New("seed needs a database driver, STORE_DRIVER is memory")
			}

			// Open without the configured fixtures so they are not saved twice.
			cfg := *a.cfg
			cfg.Store.FixturesPath = ""
			b, err := application.Open(cmd.Context(), &cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			n, err := application.Seed(cmd.Context(), b.Writer, fixtures)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d entities into %s\n", n, b.Driver)
			return nil
		},
	}

	cmd.Flags().StringVar(&fixtures, "fixtures", "fixtures", "YAML file or directory of entities")
	return cmd
}

func newVocabCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "vocab <vocabulary>",
		Short: "Print the terms of a vocabulary in tree order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, b, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME")
			for _, t := range svc.Resolver().TaxonomyList(cmd.Context(), args[0]) {
				fmt.Fprintf(tw, "%d\t%s\n", t.ID, t.Name)
			}
			return tw.Flush()
		},
	}
}

func tableArg(args []string) string {
	if len(args) == 0 {
		return tables.PredesTable
	}
	return strings.TrimSpace(args[0])
}
