// Package cli is the optrisk command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bcdannyboy/optrisk/api"
	"github.com/bcdannyboy/optrisk/config"
	"github.com/bcdannyboy/optrisk/logger"
	"github.com/bcdannyboy/optrisk/marketdata"
	"github.com/bcdannyboy/optrisk/screener"
	"github.com/bcdannyboy/optrisk/tradier"
	"github.com/bcdannyboy/optrisk/treasury"
	"github.com/spf13/cobra"
	"github.com/xhhuango/json"
)

var version = "0.1.0"

// app carries what every subcommand needs once the root has loaded the
// configuration.
type app struct {
	cfg *config.Config

	configFile string
	logLevel   string
	logFile    string
	useMock    bool
	asJSON     bool

	// provider overrides the configured data source in tests.
	provider marketdata.Provider
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "optrisk",
		Short: "Options pricing, risk and screening toolkit",
		Long: `optrisk prices options with Black-Scholes, measures the risk of common
option strategies, sweeps underlying-price scenarios and screens option
chains with filters and strategy templates.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "YAML config file (default: $CONFIG_FILE or config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: error, warn, info, debug, verbose")
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "Log file (default: stderr)")
	root.PersistentFlags().BoolVar(&a.useMock, "mock", false, "Use the synthetic market data provider")
	root.PersistentFlags().BoolVar(&a.asJSON, "json", false, "Print results as JSON")

	root.AddCommand(versionCmd())
	root.AddCommand(priceCmd(a))
	root.AddCommand(riskCmd(a))
	root.AddCommand(sweepCmd(a))
	root.AddCommand(screenCmd(a))
	root.AddCommand(spreadsCmd(a))
	root.AddCommand(templatesCmd(a))
	root.AddCommand(updateCmd(a))
	root.AddCommand(serveCmd(a))
	return root
}

// Execute runs the command line and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "optrisk version %s\n", version)
		},
	}
}

func (a *app) init(cmd *cobra.Command) error {
	if a.configFile != "" {
		a.cfg = config.LoadFrom(a.configFile)
	} else {
		a.cfg = config.Load()
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	level := a.cfg.Logging.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	// Only the server logs to the configured file by default; one-shot
	// commands keep their logs on stderr.
	file := a.logFile
	if file == "" && cmd.Name() == "serve" {
		file = a.cfg.Logging.LogFile
	}
	return logger.InitWithConfig(level, file)
}

// marketData returns the provider every command fetches through: throttled,
// then logged.
func (a *app) marketData() (marketdata.Provider, error) {
	if a.provider != nil {
		return marketdata.NewManager(marketdata.NewThrottled(a.provider, 0)), nil
	}
	if a.useMock {
		return marketdata.NewManager(marketdata.NewThrottled(marketdata.NewMockProvider(), 0)), nil
	}
	if a.cfg.TradierToken == "" {
		return nil, fmt.Errorf("TRADIER_KEY is not set; use --mock for synthetic data")
	}
	client := tradier.NewClient(a.cfg.TradierBaseURL, a.cfg.TradierToken)
	return marketdata.NewManager(marketdata.NewThrottled(client, a.cfg.RateLimitDelay)), nil
}

// rates returns the Treasury client when enabled, else the configured rate.
func (a *app) rates() api.RateSource {
	if a.cfg.UseTreasury && !a.useMock && a.provider == nil {
		return treasury.NewClient(a.cfg.TreasuryURL, a.cfg.RiskFreeRate)
	}
	return api.FixedRate(a.cfg.RiskFreeRate)
}

func (a *app) riskFreeRate(ctx context.Context) float64 {
	return a.rates().RiskFreeRateWithLastKnown(ctx)
}

func (a *app) templates() (screener.Templates, error) {
	return screener.LoadTemplates(a.cfg.TemplatesFile)
}

func printJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
