package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/config"
	"github.com/JakeFAU/sitelens/internal/ingest"
)

// errNoTargets is returned when no argument yields a valid URL.
var errNoTargets = errors.New("no valid urls to process")

type runOptions struct {
	jsonOut     bool
	metricsAddr string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <url|file> [url...]",
		Short: "Filter, render, embed and store a batch of URLs",
		Long: `Processes URLs in chunks: parked domains are filtered, the rest are
rendered to JPEG screenshots, embedded and written to the vector store.
A single argument naming an existing file is read as one URL per line.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, root, opts, args)
		},
	}
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print the report as JSON")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /healthz, /readyz and /metrics on this address during the run")
	return cmd
}

func runBatch(cmd *cobra.Command, root *rootOptions, opts *runOptions, args []string) error {
	cfg, logger, err := loadRuntime(root, func(c *config.Config) {
		if cmd.Flags().Changed("metrics-addr") {
			c.Metrics.Addr = opts.metricsAddr
		}
	})
	if err != nil {
		return err
	}

	urls, err := ingest.ParseTargets(args, logger)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return errNoTargets
	}

	appInstance, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer closeApp(appInstance, logger)

	report := appInstance.Run(cmd.Context(), urls)
	appInstance.Publish(cmd.Context(), report)
	logger.Info("run finished",
		zap.String("run_id", report.RunID),
		zap.Int("persisted", report.Totals.Persisted),
		zap.Int("failed", report.Totals.Failed()),
	)

	if opts.jsonOut {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	return writeReport(cmd.OutOrStdout(), report)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func writeReport(w io.Writer, report ingest.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	t := report.Totals
	fmt.Fprintf(tw, "run\t%s\n", report.RunID)
	fmt.Fprintf(tw, "duration\t%s\n", report.Finished.Sub(report.Started).Round(time.Millisecond))
	fmt.Fprintf(tw, "input\t%d\n", t.Input)
	fmt.Fprintf(tw, "persisted\t%d\n", t.Persisted)
	fmt.Fprintf(tw, "filtered (parked)\t%d\n", t.Filtered)
	fmt.Fprintf(tw, "filter failed\t%d\n", t.FilterFailed)
	fmt.Fprintf(tw, "render failed\t%d\n", t.RenderFailed)
	fmt.Fprintf(tw, "embed failed\t%d\n", t.EmbedFailed)
	fmt.Fprintf(tw, "persist failed\t%d\n", t.PersistFailed)

	if failures := report.Failures(); len(failures) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "URL\tSTAGE\tREASON")
		for _, o := range failures {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", o.URL, o.Stage, o.Reason)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
