package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/people-pager/pkg/listview"
	"github.com/Sternrassler/people-pager/pkg/pagination"
)

type listOptions struct {
	Limit    int
	Viewport int
	Static   staticOptions
}

func newListCmd(v *viper.Viper) *cobra.Command {
	var opts listOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Scroll through a source one row at a time, loading pages near the end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}

			fetcher, closeSource, err := openSource(cmd.Context(), s, opts.Static)
			if err != nil {
				return err
			}
			defer closeSource()

			return runList(cmd.Context(), cmd.OutOrStdout(), fetcher, s, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "stop after this many rows (0 = until the source is exhausted)")
	cmd.Flags().IntVar(&opts.Viewport, "viewport", 10, "visible rows")
	cmd.Flags().IntVar(&opts.Static.Records, "records", 100, "records generated by the static source")
	cmd.Flags().IntVar(&opts.Static.FailFirst, "fail-first", 0, "static source fails this many fetches first")
	cmd.Flags().IntVar(&opts.Static.FailEvery, "fail-every", 0, "static source fails every n-th fetch")

	return cmd
}

// runList prints rows as a scrolling list would display them. Each printed
// row is reported to the feed, which loads the next page when the row is
// within the load threshold of the end.
func runList(ctx context.Context, out io.Writer, fetcher pagination.PageFetcher, s settings, opts listOptions) error {
	ctrlCfg := pagination.DefaultConfig()
	ctrlCfg.MaxRetries = s.MaxRetries
	ctrl := pagination.NewController(fetcher, ctrlCfg, logger)
	defer ctrl.Close()

	feed := listview.NewFeed(ctrl, listview.Config{
		LoadThreshold: s.LoadThreshold,
		ViewportRows:  opts.Viewport,
	}, logger)
	defer feed.Close()

	changed := make(chan struct{}, 1)
	notify := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	feed.OnUpdate(func(listview.Update) { notify() })
	feed.OnError(func(error) { notify() })
	feed.OnLoading(func(loading bool) {
		if loading {
			logger.Debug().Int("loaded", feed.Len()).Msg("Loading more rows")
		}
	})

	if !feed.Start(ctx) {
		return errors.New("could not start loading")
	}

	shown := 0
	for {
		items := feed.Items()
		for shown < len(items) && (opts.Limit == 0 || shown < opts.Limit) {
			if _, err := fmt.Fprintln(out, items[shown].Label); err != nil {
				return err
			}
			feed.WillDisplay(ctx, shown)
			shown++
		}

		if opts.Limit > 0 && shown >= opts.Limit {
			break
		}
		if err := feed.Err(); err != nil {
			return reportFetchError(ctrl, err)
		}
		if feed.Done() && shown >= feed.Len() {
			break
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	logger.Info().Int("rows", shown).Bool("exhausted", feed.Done()).Msg("List finished")
	return nil
}

func reportFetchError(ctrl *pagination.Controller, err error) error {
	var fetchErr *pagination.FetchError
	if errors.As(err, &fetchErr) {
		logger.Error().
			Err(fetchErr.Err).
			Str("cursor", string(fetchErr.Cursor)).
			Int("attempts", fetchErr.Attempts).
			Int("retry_count", ctrl.RetryCount()).
			Msg("Loading stopped")
		return fmt.Errorf("loading stopped at cursor %q after %d attempts: %s",
			fetchErr.Cursor, fetchErr.Attempts, fetchErr.Description())
	}
	return err
}
