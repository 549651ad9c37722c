package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kjstillabower/weather-engine/internal/app"
)

type appLoader func(ctx context.Context, verbose bool) (*app.App, error)

type rootOptions struct {
	verbose bool
	timeout time.Duration
	load    appLoader
}

func newRootCmd(load appLoader) *cobra.Command {
	opts := &rootOptions{load: load}
	root := &cobra.Command{
		Use:           "weatherctl",
		Short:         "Query the multi-source weather engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "write structured logs to stderr")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall command timeout")

	root.AddCommand(
		newCurrentCmd(opts),
		newRangeCmd(opts, "history", "Daily history merged across sources", func(ctx context.Context, a *app.App, lat, lon float64, start, end string) (interface{}, error) {
			return a.Engine.LoadHistory(ctx, lat, lon, start, end)
		}),
		newRangeCmd(opts, "hourly", "Hourly history merged across sources", func(ctx context.Context, a *app.App, lat, lon float64, start, end string) (interface{}, error) {
			return a.Engine.LoadHourlyHistory(ctx, lat, lon, start, end)
		}),
		newSourcesCmd(opts),
		newSweepCmd(opts),
	)
	return root
}

// run loads the app, calls fn with a bounded context, and closes the app.
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) (interface{}, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	a, err := o.load(ctx, o.verbose)
	if err != nil {
		return err
	}
	defer a.Close()

	v, err := fn(ctx, a)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), v)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func addCoordinateFlags(cmd *cobra.Command, lat, lon *float64) {
	cmd.Flags().Float64Var(lat, "lat", 0, "latitude in decimal degrees")
	cmd.Flags().Float64Var(lon, "lon", 0, "longitude in decimal degrees")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
}

func newCurrentCmd(opts *rootOptions) *cobra.Command {
	var lat, lon float64
	cmd := &cobra.Command{
		Use:   "current",
		Short: "Current conditions merged across sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.Engine.LoadCurrentWeather(ctx, lat, lon)
			})
		},
	}
	addCoordinateFlags(cmd, &lat, &lon)
	return cmd
}

type rangeLoader func(ctx context.Context, a *app.App, lat, lon float64, start, end string) (interface{}, error)

func newRangeCmd(opts *rootOptions, use, short string, load rangeLoader) *cobra.Command {
	var (
		lat, lon   float64
		start, end string
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				return load(ctx, a, lat, lon, start, end)
			})
		},
	}
	addCoordinateFlags(cmd, &lat, &lon)
	cmd.Flags().StringVar(&start, "start", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last day, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newSourcesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List sources in merge priority order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				return map[string]interface{}{
					"sources":         a.Engine.Sources(),
					"historyFallback": a.Engine.HasHistoryProvider(),
				}, nil
			})
		},
	}
}

// newSweepCmd reports cache maintenance. Stale versions are swept while the
// app loads; this adds the expired-row purge for backends that need one.
func newSweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove stale cache versions and expired entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				purged, supported, err := a.Purge(ctx)
				if err != nil {
					return nil, fmt.Errorf("purge: %w", err)
				}
				return map[string]interface{}{
					"backend":       a.Config.CacheBackend,
					"version":       a.Store.Version(),
					"purged":        purged,
					"purgeRequired": supported,
				}, nil
			})
		},
	}
}
