package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/people-pager/internal/peopleapi"
	"github.com/Sternrassler/people-pager/pkg/metrics"
	"github.com/Sternrassler/people-pager/pkg/source"
)

type serveOptions struct {
	Addr        string
	MetricsAddr string
	PageSize    int
	Delay       time.Duration
	Budget      int
	Window      time.Duration
	Static      staticOptions
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve generated people as a paginated JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			opts.PageSize = s.PageSize
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "people API listen address")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", ":9090", "metrics listen address")
	cmd.Flags().DurationVar(&opts.Delay, "delay", 0, "delay added to every page")
	cmd.Flags().IntVar(&opts.Budget, "budget", 0, "requests allowed per window (0 = unlimited)")
	cmd.Flags().DurationVar(&opts.Window, "window", time.Minute, "rate limit window")
	cmd.Flags().IntVar(&opts.Static.Records, "records", 1000, "number of generated people")
	cmd.Flags().IntVar(&opts.Static.FailFirst, "fail-first", 0, "fail this many requests first")
	cmd.Flags().IntVar(&opts.Static.FailEvery, "fail-every", 0, "fail every n-th request")

	return cmd
}

func newAPIServer(opts serveOptions) *http.Server {
	static := source.NewStatic(source.GeneratePeople(opts.Static.Records), source.StaticConfig{
		PageSize:  opts.PageSize,
		FailFirst: opts.Static.FailFirst,
		FailEvery: opts.Static.FailEvery,
		Delay:     opts.Delay,
	})
	handler := peopleapi.NewHandler(static, peopleapi.Config{
		Budget: opts.Budget,
		Window: opts.Window,
	}, logger)

	return &http.Server{
		Addr:              opts.Addr,
		Handler:           peopleapi.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", peopleapi.Health)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// runServe runs the API and metrics servers until ctx is cancelled or one
// of them fails.
func runServe(ctx context.Context, opts serveOptions) error {
	servers := []*http.Server{newAPIServer(opts), newMetricsServer(opts.MetricsAddr)}

	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info().Str("addr", srv.Addr).Msg("Starting server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		logger.Info().Msg("Servers stopped")
		return errors.Join(errs...)
	})

	return g.Wait()
}
