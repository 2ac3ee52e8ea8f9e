package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ldfmock "github.com/William9923/go-ldfmock"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveFlags struct {
	configPath  string
	port        int
	mockFolder  string
	sources     []string
	metricsAddr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run one mock server until interrupted",
	Example: `  ldfmock serve --mock-folder https://fixtures.example/set1 \
    --source TPF=http://fragments.example/dataset \
    --source File=http://real.example/data.ttl`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveFlags.configPath, "config", "c", "", "YAML config file")
	serveCmd.Flags().IntVarP(&serveFlags.port, "port", "p", 0, "first port to try (default 3000)")
	serveCmd.Flags().StringVar(&serveFlags.mockFolder, "mock-folder", "", "base URI or directory of the fixtures")
	serveCmd.Flags().StringArrayVar(&serveFlags.sources, "source", nil, "data source as TYPE=VALUE, repeatable")
	serveCmd.Flags().StringVar(&serveFlags.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
}

func loadConfig(cmd *cobra.Command) (ldfmock.Config, error) {
	var cfg ldfmock.Config
	if serveFlags.configPath != "" {
		loaded, err := ldfmock.LoadConfig(serveFlags.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	cfg, err := applyEnv(cfg, os.LookupEnv)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("port") {
		cfg.StartPort = serveFlags.port
	}
	return cfg, nil
}

// parseSources reads TYPE=VALUE pairs. TYPE is a source type name or term.
func parseSources(raw []string) ([]ldfmock.DataSource, error) {
	sources := make([]ldfmock.DataSource, 0, len(raw))
	for _, entry := range raw {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || value == "" {
			return nil, errors.Wrapf(ldfmock.ErrInvalidConfig, "source %q is not TYPE=VALUE", entry)
		}
		sourceType, err := ldfmock.ParseSourceType(name)
		if err != nil {
			return nil, err
		}
		sources = append(sources, ldfmock.DataSource{Value: value, Type: sourceType})
	}
	return sources, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sources, err := parseSources(serveFlags.sources)
	if err != nil {
		return err
	}
	mockFolder := serveFlags.mockFolder
	if mockFolder == "" {
		mockFolder = os.Getenv(envPrefix + "MOCK_FOLDER")
	}

	reg := prometheus.NewRegistry()
	metrics, err := ldfmock.NewMetrics(reg)
	if err != nil {
		return err
	}
	factory, err := ldfmock.NewMockerFactory(cfg, ldfmock.WithLogger(logger), ldfmock.WithMetrics(metrics))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveFlags.metricsAddr != "" {
		srv := &http.Server{
			Addr:              serveFlags.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}

	mocker, err := factory.StartMocker(ctx, &ldfmock.TestCase{
		DataSources: sources,
		MockFolder:  mockFolder,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), mocker.ProxyAddress())

	<-ctx.Done()
	return mocker.TearDownServer(context.WithoutCancel(ctx))
}
