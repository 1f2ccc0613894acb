package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bcdannyboy/optrisk/api"
	"github.com/bcdannyboy/optrisk/logger"
	"github.com/bcdannyboy/optrisk/store"
	"github.com/shirou/gopsutil/cpu"
	"github.com/spf13/cobra"
)

func updateCmd(a *app) *cobra.Command {
	var (
		force     bool
		frequency time.Duration
	)
	cmd := &cobra.Command{
		Use:   "update [symbols...]",
		Short: "Refresh quotes, chains and volatility history for symbols or the watchlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := a.marketData()
			if err != nil {
				return err
			}
			mem := store.NewMemory()
			for _, s := range a.cfg.Watchlist {
				mem.AddToWatchlist(s, frequency)
			}
			if len(args) == 0 && len(a.cfg.Watchlist) == 0 {
				return fmt.Errorf("no symbols given and WATCHLIST is empty")
			}
			if len(args) == 0 {
				// entries added to a new store count as just updated
				force = true
			}

			u := store.NewUpdater(provider, mem, a.cfg.MaxExpirations, a.cfg.HistoryLookbackDays)
			u.Force = force
			u.Progress = cmd.ErrOrStderr()
			start := time.Now()
			report, err := u.Update(cmd.Context(), args)
			if err != nil {
				return err
			}
			logCPUUsage()

			out := cmd.OutOrStdout()
			if a.asJSON {
				if err := printJSON(out, report); err != nil {
					return err
				}
				return report.Err()
			}
			fmt.Fprintf(out, "Updated %d symbols in %v: %s\n", len(report.Updated), time.Since(start).Round(time.Millisecond), strings.Join(report.Updated, ", "))
			for _, s := range report.Updated {
				for _, v := range mem.Volatility(s, time.Time{}) {
					fmt.Fprintf(out, "  %s HV30 %.2f%% YZ %.2f%% GARCH %.2f%% IV rank %.1f\n", s, v.HistoricalVolatility*100, v.YangZhang*100, v.GARCH*100, v.IVRank)
				}
			}
			for s, msg := range report.Failed {
				fmt.Fprintf(out, "  %s failed: %s\n", s, msg)
			}
			return report.Err()
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Refresh even if the update interval has not elapsed")
	cmd.Flags().DurationVar(&frequency, "frequency", store.DefaultUpdateFrequency, "Watchlist refresh interval")
	return cmd
}

func logCPUUsage() {
	percentage, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil || len(percentage) == 0 {
		logger.Debug.Printf("CPU usage unavailable: %v", err)
		return
	}
	logger.Info.Printf("CPU Usage: %.2f%%", percentage[0])
}

func serveCmd(a *app) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := a.marketData()
			if err != nil {
				return err
			}
			templates, err := a.templates()
			if err != nil {
				return err
			}
			mem := store.NewMemory()
			for _, s := range a.cfg.Watchlist {
				mem.AddToWatchlist(s, 0)
			}
			if port != "" {
				a.cfg.Port = port
			}

			srv := api.NewServer(a.cfg, provider, a.rates(), templates, mem)
			httpServer := &http.Server{
				Addr:              "0.0.0.0:" + a.cfg.Port,
				Handler:           srv.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			errCh := make(chan error, 1)
			go func() {
				logger.Info.Printf("HTTP server started on port %s (provider %s)", a.cfg.Port, provider.Name())
				errCh <- httpServer.ListenAndServe()
			}()
			fmt.Fprintf(cmd.OutOrStdout(), "Server starting on http://localhost:%s\n", a.cfg.Port)

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			logger.Info.Printf("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "Listen port (default: configured PORT)")
	return cmd
}
