package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

const defaultSearchK = 10

type searchOptions struct {
	k       int
	jsonOut bool
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	opts := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search <url>",
		Short: "Find stored sites that look like the given URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.k <= 0 {
				return fmt.Errorf("-k must be positive, got %d", opts.k)
			}
			cfg, logger, err := loadRuntime(root, nil)
			if err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			defer closeApp(appInstance, logger)

			matches, err := appInstance.Search(cmd.Context(), args[0], opts.k)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), matches)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tSIMILARITY\tURL\tSCREENSHOT")
			for i, m := range matches {
				fmt.Fprintf(tw, "%d\t%.4f\t%s\t%s\n", i+1, m.Similarity, m.URL, m.ScreenshotURL)
			}
			if err := tw.Flush(); err != nil {
				return fmt.Errorf("write matches: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&opts.k, "top-k", "k", defaultSearchK, "number of matches to return")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print matches as JSON")
	return cmd
}
