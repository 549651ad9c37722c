// Command weatherctl queries the weather engine from the command line using
// the same configuration, cache and sources as the HTTP service.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-engine/internal/app"
	"github.com/kjstillabower/weather-engine/internal/config"
	"github.com/kjstillabower/weather-engine/internal/observability"
)

func main() {
	if err := newRootCmd(loadApp).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadApp builds the engine from config/{ENV_NAME}.yaml in the working directory.
// Logs are discarded unless verbose is set.
func loadApp(ctx context.Context, verbose bool) (*app.App, error) {
	logger := zap.NewNop()
	if verbose {
		l, err := observability.NewLogger()
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		logger = l
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger)
}
