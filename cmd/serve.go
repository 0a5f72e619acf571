package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/cybersafe/internal/api"
	"github.com/khanhnv2901/cybersafe/internal/application"
)

type serveOptions struct {
	addr            string
	authToken       string
	corsOrigins     []string
	rateLimit       int
	rateBurst       int
	maxScans        int
	scanTimeout     time.Duration
	shutdownTimeout time.Duration
	noCache         bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scanner as a REST API service",
		Long: `Serve the scan pipeline over HTTP. Scans are submitted as jobs with
POST /api/v1/scans and polled with GET /api/v1/scans/{id}; finished scans
can be rendered with GET /api/v1/scans/{id}/report?format=html.

Active checks follow the same consent rules as the scan command: the
request must set active_requested, consent_confirmed and a
typed_confirmation equal to the target host.`,
		Example: `  cybersafe serve
  cybersafe serve --addr 0.0.0.0:8080 --auth-token "$TOKEN" --max-scans 8
  CYBERSAFE_API_TOKEN=secret cybersafe serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.app.Config.API
			flags := cmd.Flags()
			applyIntDefault(flags, "rate-limit", cfg.RateLimit, func(v int) { opts.rateLimit = v })
			applyIntDefault(flags, "rate-burst", cfg.RateBurst, func(v int) { opts.rateBurst = v })
			applyIntDefault(flags, "max-scans", cfg.MaxScans, func(v int) { opts.maxScans = v })
			applyDurationDefault(flags, "scan-timeout", cfg.ScanTimeout, func(v time.Duration) { opts.scanTimeout = v })
			applyDurationDefault(flags, "shutdown-timeout", cfg.ShutdownTimeout, func(v time.Duration) { opts.shutdownTimeout = v })
			if !flags.Changed("addr") {
				opts.addr = cfg.Addr
			}
			if !flags.Changed("auth-token") {
				opts.authToken = cfg.Token
			}
			if !flags.Changed("cors-origins") {
				opts.corsOrigins = cfg.CORSOrigins
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			container, err := root.newContainer(ctx, opts.noCache)
			if err != nil {
				return err
			}
			defer root.closeContainer(container)
			defer root.flushMetrics(container)

			return runAPIServer(ctx, cmd, root, container, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.addr, "addr", defaultAPIAddr, "address for the API server")
	flags.StringVar(&opts.authToken, "auth-token", "", "shared secret required in the X-Auth-Token header (or set api.token)")
	flags.StringSliceVar(&opts.corsOrigins, "cors-origins", nil, "allowed CORS origins (empty = allow all)")
	flags.IntVar(&opts.rateLimit, "rate-limit", defaultAPIRateLimit, "requests per second per client IP (0 = disabled)")
	flags.IntVar(&opts.rateBurst, "rate-burst", defaultAPIRateBurst, "rate limit burst size")
	flags.IntVar(&opts.maxScans, "max-scans", defaultAPIMaxScans, "scans running at once; extra jobs wait (0 = unlimited)")
	flags.DurationVar(&opts.scanTimeout, "scan-timeout", defaultAPIScanTimeout, "timeout for each scan job")
	flags.DurationVar(&opts.shutdownTimeout, "shutdown-timeout", defaultAPIShutdownTimeout, "graceful shutdown timeout")
	flags.BoolVar(&opts.noCache, "no-cache", false, "neither read nor store cached results")
	return cmd
}

// runAPIServer serves until ctx is cancelled, then drains HTTP connections
// and running scan jobs.
func runAPIServer(ctx context.Context, cmd *cobra.Command, root *rootOptions, container *application.Container, opts *serveOptions) error {
	logger := root.app.Logger
	apiCfg := api.Config{
		Scanner:     container.ScanService,
		Metrics:     container.Metrics.Registry(),
		Jobs:        api.NewJobManager(),
		AuthToken:   opts.authToken,
		Logger:      logger.Desugar(),
		CORSOrigins: opts.corsOrigins,
		RateLimit:   opts.rateLimit,
		RateBurst:   opts.rateBurst,
		ScanTimeout: opts.scanTimeout,
		MaxScans:    opts.maxScans,
		Version:     Version,
	}
	if container.Cache != nil {
		apiCfg.Cache = container.ScanService
	}
	server := api.NewServer(apiCfg)

	ln, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", opts.addr, err)
	}
	httpServer := &http.Server{
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Serve(ln)
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s API server listening on %s\n", colorInfo("->"), ln.Addr())
	if opts.authToken == "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s no auth token set; the API is open to anyone who can reach %s\n", colorWarn("Warning:"), ln.Addr())
	}
	logger.Infow("api server started", "addr", ln.Addr().String(), "max_scans", opts.maxScans, "rate_limit", opts.rateLimit)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	fmt.Fprintf(out, "%s shutting down\n", colorInfo("->"))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.shutdownTimeout)
	defer cancel()

	var errs []error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		_ = httpServer.Close()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("scan jobs: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s server stopped\n", colorSuccess("OK"))
	return nil
}
