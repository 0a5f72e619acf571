package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanhnv2901/cybersafe/internal/application"
)

// AppContext is the per-invocation state shared by every subcommand.
type AppContext struct {
	Logger   *zap.SugaredLogger
	Operator string
	DataDir  string
	Config   *CLIConfig
}

type rootOptions struct {
	cfgFile  string
	debug    bool
	operator string

	app *AppContext
}

// newContainer assembles the scan pipeline from the loaded configuration.
func (o *rootOptions) newContainer(ctx context.Context, noCache bool) (*application.Container, error) {
	if o.app == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return application.NewContainer(ctx, o.app.Config.containerConfig(noCache, Version), o.app.Logger)
}

// flushMetrics writes the metrics textfile when one is configured.
func (o *rootOptions) flushMetrics(c *application.Container) {
	if c == nil || o.app.Config.MetricsTextfile == "" {
		return
	}
	if err := c.Metrics.WriteTextfile(o.app.Config.MetricsTextfile); err != nil {
		o.app.Logger.Warnw("failed to write metrics textfile", "path", o.app.Config.MetricsTextfile, "error", err)
	}
}

// closeContainer flushes traces and releases the cache with a bounded wait.
func (o *rootOptions) closeContainer(c *application.Container) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		o.app.Logger.Warnw("shutdown incomplete", "error", err)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "cybersafe",
		Short: "Web security hygiene scanner (scan only sites you own or are authorized to test)",
		Long: `Cybersafe grades the security hygiene of a website: response headers, TLS,
CORS policy and allowed HTTP methods. An active port scan runs only when
ownership is confirmed with --active --consent --confirm <domain>.

Use "cybersafe serve" to run the same scans behind a REST API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init()
		},
	}

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.cybersafe.yaml)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable development logging")
	root.PersistentFlags().StringVarP(&opts.operator, "operator", "o", detectOperatorFromEnv(), "operator name recorded in the audit log (or set via USER env)")

	root.AddCommand(
		newScanCmd(opts),
		newBatchCmd(opts),
		newCacheCmd(opts),
		newAuditCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return root
}

// init loads configuration and builds the logger.
func (o *rootOptions) init() error {
	dataDir, err := getDataDir()
	if err != nil {
		return err
	}

	v := newViper(dataDir)
	if err := readConfigFile(v, o.cfgFile); err != nil {
		return err
	}
	cfg, err := loadCLIConfig(v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var l *zap.Logger
	if o.debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger := l.Sugar()

	if used := v.ConfigFileUsed(); used != "" {
		logger.Debugw("config loaded", "file", used)
	}

	o.app = &AppContext{
		Logger:   logger,
		Operator: o.operator,
		DataDir:  dataDir,
		Config:   cfg,
	}
	return nil
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", colorError("Error:"), err)
		os.Exit(1)
	}
}
