package main

import (
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dan-strohschein/aql-driver/cursor"
	"github.com/dan-strohschein/aql-driver/mapper"
)

func registerAllCmd(rootCmd *cobra.Command, v *viper.Viper) {
	allCmd := &cobra.Command{
		Use:   "all <collection>",
		Short: "prints every document of a collection as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(v)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			coll, err := c.Collection(ctx, args[0])
			if err != nil {
				return err
			}
			cur, err := c.AllDocuments(ctx, coll, queryFlags(cmd))
			if err != nil {
				return err
			}
			noun := "documents"
			if coll.IsEdge() {
				noun = "edges"
			}
			return streamRows(ctx, cmd, cur, noun)
		},
	}

	addQueryFlags(allCmd)
	rootCmd.AddCommand(allCmd)
}

func registerExportCmd(rootCmd *cobra.Command, v *viper.Viper) {
	exportCmd := &cobra.Command{
		Use:   "export <collection>",
		Short: "bulk exports a collection as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			flushWait, _ := cmd.Flags().GetInt("flush-wait")
			batchSize, _ := cmd.Flags().GetInt("batch-size")
			maxRows, _ := cmd.Flags().GetInt("max")
			quiet, _ := cmd.Flags().GetBool("quiet")

			c, err := newClient(v)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			start := time.Now()
			cur, err := c.Export(ctx, args[0], &cursor.ExportOptions{
				Limit:     limit,
				FlushWait: flushWait,
				BatchSize: batchSize,
			})
			if err != nil {
				return err
			}

			bar := newProgressBar(cur, args[0], quiet)
			n, err := writeRows(ctx, cmd.OutOrStdout(), cur, maxRows, func() { _ = bar.Add(1) })
			_ = bar.Finish()
			if releaseErr := release(cur); releaseErr != nil && err == nil {
				err = releaseErr
			}
			if err != nil {
				return err
			}

			printSuccess("exported " + humanize.Comma(int64(n)) + " documents from " + args[0] +
				" in " + time.Since(start).Round(time.Millisecond).String())
			return nil
		},
	}

	exportCmd.Flags().Int("limit", 0, "maximum documents the server exports; 0 exports all")
	exportCmd.Flags().Int("flush-wait", 10, "seconds the server waits for a WAL flush")
	exportCmd.Flags().Int("batch-size", 0, "rows per round trip; 0 uses the server default")
	exportCmd.Flags().Int("max", 0, "stop after this many rows and release the cursor; 0 reads everything")
	exportCmd.Flags().Bool("quiet", false, "hide the progress bar")
	rootCmd.AddCommand(exportCmd)
}

// newProgressBar sizes the bar by the server-reported count, or shows a
// spinner when the count is unknown.
func newProgressBar(cur *cursor.Cursor[mapper.Row], collection string, quiet bool) *progressbar.ProgressBar {
	total := int64(-1)
	if count, ok := cur.Count(); ok {
		total = int64(count)
	}

	var w io.Writer = stderr
	if quiet {
		w = io.Discard
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("exporting "+collection),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
