package cli

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bcdannyboy/optrisk/models"
	"github.com/bcdannyboy/optrisk/pricing"
	"github.com/bcdannyboy/optrisk/probability"
	"github.com/bcdannyboy/optrisk/risk"
	"github.com/bcdannyboy/optrisk/scenario"
	"github.com/bcdannyboy/optrisk/screener"
	"github.com/spf13/cobra"
)

func priceCmd(a *app) *cobra.Command {
	var (
		spot, strike, days, vol, market float64
		optionType                      string
		rate                            float64
	)
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price one option and its Greeks with Black-Scholes",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := models.ParseOptionType(optionType)
			if err != nil {
				return err
			}
			r := rate
			if !cmd.Flags().Changed("rate") {
				r = a.riskFreeRate(cmd.Context())
			}
			T := days / pricing.DaysPerYear
			price, err := pricing.Price(spot, strike, T, r, vol, t)
			if err != nil {
				return err
			}
			g, err := pricing.Greeks(spot, strike, T, r, vol, t)
			if err != nil {
				return err
			}
			var iv float64
			if market > 0 {
				if iv, err = pricing.ImpliedVolatility(market, spot, strike, T, r, t); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if a.asJSON {
				return printJSON(out, map[string]interface{}{
					"price": price, "greeks": g, "risk_free_rate": r, "implied_volatility": iv,
				})
			}
			fmt.Fprintf(out, "%s %.2f @ %.2f, %.0f days, vol %.2f%%, r %.3f%%\n", t, strike, spot, days, vol*100, r*100)
			fmt.Fprintf(out, "Price: %.4f\n", price)
			fmt.Fprintf(out, "Delta: %.4f  Gamma: %.4f  Theta: %.4f  Vega: %.4f\n", g.Delta, g.Gamma, g.Theta, g.Vega)
			fmt.Fprintf(out, "Vanna: %.4f  Charm: %.4f\n", g.Vanna, g.Charm)
			if iv > 0 {
				fmt.Fprintf(out, "Implied volatility at %.4f: %.4f\n", market, iv)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&spot, "spot", 0, "Underlying price")
	cmd.Flags().Float64Var(&strike, "strike", 0, "Strike price")
	cmd.Flags().Float64Var(&days, "days", 30, "Calendar days to expiry")
	cmd.Flags().Float64Var(&vol, "vol", 0.2, "Annualised volatility (0.2 = 20%)")
	cmd.Flags().StringVar(&optionType, "type", "call", "call or put")
	cmd.Flags().Float64Var(&rate, "rate", 0, "Risk-free rate (default: configured source)")
	cmd.Flags().Float64Var(&market, "market", 0, "Market price to solve implied volatility for")
	_ = cmd.MarkFlagRequired("spot")
	_ = cmd.MarkFlagRequired("strike")
	return cmd
}

// parseLeg reads type:strike:quantity:premium[:expiration], e.g.
// put:95:-1:1.5 or call:100:1:3.2:2026-12-18.
func parseLeg(s string) (models.Position, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 && len(parts) != 5 {
		return models.Position{}, fmt.Errorf("leg %q: want type:strike:quantity:premium[:expiration]: %w", s, models.ErrInvalidParameter)
	}
	t, err := models.ParseOptionType(parts[0])
	if err != nil {
		return models.Position{}, err
	}
	var nums [3]float64
	for i, p := range parts[1:4] {
		if nums[i], err = strconv.ParseFloat(p, 64); err != nil {
			return models.Position{}, fmt.Errorf("leg %q: %v: %w", s, err, models.ErrInvalidParameter)
		}
	}
	pos := models.Position{
		Contract:     models.OptionContract{Type: t, Strike: nums[0]},
		Quantity:     nums[1],
		EntryPremium: nums[2],
	}
	if len(parts) == 5 {
		exp, err := time.Parse(models.DateLayout, parts[4])
		if err != nil {
			return models.Position{}, fmt.Errorf("leg %q: %v: %w", s, err, models.ErrInvalidParameter)
		}
		pos.Contract.Expiration = exp
	}
	return pos, nil
}

func riskCmd(a *app) *cobra.Command {
	var (
		strategy        string
		legs            []string
		spot, days, vol float64
	)
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Measure one unit of an option strategy",
		Long: `Measure probability of profit, max profit and loss, break-evens, expected
value and net theta/vega for one unit of a strategy. Legs are given as
type:strike:quantity:premium[:expiration], negative quantity for short.`,
		Example: `  optrisk risk --strategy iron_condor --spot 100 --days 30 --vol 0.2 \
    --leg put:90:1:0.5 --leg put:95:-1:1.5 --leg call:105:-1:1.5 --leg call:110:1:0.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := risk.ParseKind(strategy)
			if err != nil {
				return err
			}
			positions := make([]models.Position, 0, len(legs))
			for _, l := range legs {
				p, err := parseLeg(l)
				if err != nil {
					return err
				}
				positions = append(positions, p)
			}

			calc := risk.NewCalculator(a.riskFreeRate(cmd.Context()))
			m, err := calc.MetricsForStrategy(kind, positions, spot, days, vol)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.asJSON {
				return printJSON(out, m)
			}
			maxLoss := fmt.Sprintf("%.4f", m.MaxLoss)
			if m.IsUnbounded() {
				maxLoss = "unbounded"
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Strategy\t%s\n", m.Strategy)
			fmt.Fprintf(w, "Probability of profit\t%.2f%%\n", m.ProbabilityOfProfit*100)
			fmt.Fprintf(w, "Max profit\t%.4f\n", m.MaxProfit)
			fmt.Fprintf(w, "Max loss\t%s\n", maxLoss)
			fmt.Fprintf(w, "Break-evens\t%s\n", formatFloats(m.BreakEvenPoints))
			fmt.Fprintf(w, "Risk/reward\t%.4f\n", m.RiskRewardRatio)
			fmt.Fprintf(w, "Expected value\t%.4f\n", m.ExpectedValue)
			fmt.Fprintf(w, "Theta per day\t%.4f\n", m.ThetaPerDay)
			fmt.Fprintf(w, "Vega\t%.4f\n", m.VegaExposure)
			fmt.Fprintf(w, "Sizing multiplier\t%.2f\n", kind.Multiplier())
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "", "One of: "+strings.Join(kindNames(), ", "))
	cmd.Flags().StringArrayVar(&legs, "leg", nil, "Position leg, repeatable")
	cmd.Flags().Float64Var(&spot, "spot", 0, "Underlying price")
	cmd.Flags().Float64Var(&days, "days", 30, "Calendar days to the (front) expiry")
	cmd.Flags().Float64Var(&vol, "vol", 0.2, "Annualised volatility")
	_ = cmd.MarkFlagRequired("strategy")
	_ = cmd.MarkFlagRequired("spot")
	return cmd
}

func kindNames() []string {
	var names []string
	for _, k := range risk.Kinds() {
		names = append(names, string(k))
	}
	return names
}

func formatFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'f', 2, 64)
	}
	return strings.Join(parts, ", ")
}

func sweepCmd(a *app) *cobra.Command {
	var (
		minPct, maxPct, step float64
		expirations, top     int
	)
	cmd := &cobra.Command{
		Use:   "sweep <ticker>",
		Short: "Reprice a chain across a grid of underlying price changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			provider, err := a.marketData()
			if err != nil {
				return err
			}
			ticker := strings.ToUpper(args[0])
			quote, err := provider.GetQuote(ctx, ticker)
			if err != nil {
				return err
			}
			chain, err := provider.GetOptionsChain(ctx, ticker, expirations)
			if err != nil {
				return err
			}
			results, err := scenario.Sweep(quote.Price, chain, minPct, maxPct, step, a.riskFreeRate(ctx))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.asJSON {
				return printJSON(out, results)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "%s at %.2f\n", ticker, quote.Price)
			fmt.Fprintln(w, "CHANGE\tPRICE\tEXPIRATION\tCONTRACT\tTHEO\tPROFIT %")
			for _, b := range results {
				for i, o := range b.Options {
					if i == top {
						break
					}
					fmt.Fprintf(w, "%+.1f%%\t%.2f\t%s\t%s\t%.2f\t%.1f\n",
						b.ChangePercent, b.UnderlyingPrice, b.Expiration, o.Contract.Symbol, o.TheoreticalValue, o.ProfitPotential)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().Float64Var(&minPct, "min", -10, "Smallest price change in percent")
	cmd.Flags().Float64Var(&maxPct, "max", 10, "Largest price change in percent")
	cmd.Flags().Float64Var(&step, "step", 5, "Step in percent")
	cmd.Flags().IntVar(&expirations, "expirations", 3, "Number of expirations to fetch")
	cmd.Flags().IntVar(&top, "top", 3, "Contracts shown per scenario and expiration")
	return cmd
}

func screenCmd(a *app) *cobra.Command {
	var (
		template string
		limit    int
		p        = screener.DefaultFilterParameters()
	)
	cmd := &cobra.Command{
		Use:   "screen <ticker>",
		Short: "Filter a chain by liquidity, moneyness, Greeks, volatility, spread and expiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := p.Validate(); err != nil {
				return err
			}
			provider, err := a.marketData()
			if err != nil {
				return err
			}
			ticker := strings.ToUpper(args[0])
			quote, err := provider.GetQuote(ctx, ticker)
			if err != nil {
				return err
			}
			chain, err := provider.GetOptionsChain(ctx, ticker, a.cfg.MaxExpirations)
			if err != nil {
				return err
			}
			var hv30 float64
			if history, err := provider.GetHistoricalPrices(ctx, ticker, a.cfg.HistoryLookbackDays); err == nil {
				hv30, _ = probability.HistoricalVolatility(models.Closes(history), 30)
			}

			r := a.riskFreeRate(ctx)
			now := time.Now()
			rows, err := screener.Enrich(chain, quote.Price, hv30, r, now)
			if err != nil {
				return err
			}
			if template != "" {
				ts, err := a.templates()
				if err != nil {
					return err
				}
				if rows, err = ts.Apply(template, rows, now, r); err != nil {
					return err
				}
			} else {
				rows = screener.ApplyAll(p, rows, now)
			}
			if limit > 0 && len(rows) > limit {
				rows = rows[:limit]
			}

			out := cmd.OutOrStdout()
			if a.asJSON {
				return printJSON(out, rows)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "%s at %.2f, HV30 %.2f%%: %d contracts\n", ticker, quote.Price, hv30*100, len(rows))
			fmt.Fprintln(w, "CONTRACT\tTYPE\tSTRIKE\tDTE\tBID\tASK\tIV\tDELTA\tTHETA\tGREEKS")
			for _, row := range rows {
				c := row.Contract
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%.0f\t%.2f\t%.2f\t%.3f\t%.3f\t%.3f\t%s\n",
					c.Symbol, c.Type, c.Strike, row.DTE(now), c.Bid, c.Ask, c.ImpliedVolatility, row.Greeks.Delta, row.Greeks.Theta, row.GreekSource)
			}
			return w.Flush()
		},
	}
	f := cmd.Flags()
	f.StringVar(&template, "template", "", "Apply a named strategy template instead of the filter flags")
	f.IntVar(&limit, "limit", 0, "Show at most this many rows")
	f.Float64Var(&p.MinVolume, "min-volume", 0, "Minimum volume")
	f.Float64Var(&p.MinOpenInterest, "min-oi", 0, "Minimum open interest")
	f.Float64Var(&p.MinIV, "min-iv", p.MinIV, "Minimum implied volatility")
	f.Float64Var(&p.MaxIV, "max-iv", p.MaxIV, "Maximum implied volatility")
	f.Float64Var(&p.MinDelta, "min-delta", p.MinDelta, "Minimum delta")
	f.Float64Var(&p.MaxDelta, "max-delta", p.MaxDelta, "Maximum delta")
	f.BoolVar(&p.AbsoluteDelta, "abs-delta", false, "Apply the delta range to |delta|")
	f.Float64Var(&p.MinDTE, "min-dte", p.MinDTE, "Minimum days to expiry")
	f.Float64Var(&p.MaxDTE, "max-dte", p.MaxDTE, "Maximum days to expiry")
	f.Float64Var(&p.MinStrikeRatio, "min-strike-ratio", p.MinStrikeRatio, "Minimum strike/underlying")
	f.Float64Var(&p.MaxStrikeRatio, "max-strike-ratio", p.MaxStrikeRatio, "Maximum strike/underlying")
	f.Float64Var(&p.MaxSpreadPercent, "max-spread", p.MaxSpreadPercent, "Maximum bid/ask width relative to the underlying")
	f.StringVar(&p.OptionType, "type", "", "call or put")
	return cmd
}

func spreadsCmd(a *app) *cobra.Command {
	var (
		kind   string
		minRoR float64
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "spreads <ticker>",
		Short: "Find credit verticals meeting a minimum return on risk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			k, err := risk.ParseKind(kind)
			if err != nil {
				return err
			}
			if k != risk.BullPutSpread && k != risk.BearCallSpread {
				return fmt.Errorf("spreads supports %s and %s: %w", risk.BullPutSpread, risk.BearCallSpread, models.ErrInvalidParameter)
			}
			provider, err := a.marketData()
			if err != nil {
				return err
			}
			ticker := strings.ToUpper(args[0])
			quote, err := provider.GetQuote(ctx, ticker)
			if err != nil {
				return err
			}
			chain, err := provider.GetOptionsChain(ctx, ticker, a.cfg.MaxExpirations)
			if err != nil {
				return err
			}

			calc := risk.NewCalculator(a.riskFreeRate(ctx))
			spreads := calc.IdentifyVerticalSpreads(chain, quote.Price, k, minRoR)
			if limit > 0 && len(spreads) > limit {
				spreads = spreads[:limit]
			}

			out := cmd.OutOrStdout()
			if a.asJSON {
				return printJSON(out, spreads)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Identified %d %s spreads on %s at %.2f\n", len(spreads), k, ticker, quote.Price)
			fmt.Fprintln(w, "EXPIRATION\tSHORT\tLONG\tCREDIT\tROR\tPOP\tEV")
			for _, s := range spreads {
				fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.3f\t%.2f%%\t%.4f\n",
					s.Expiration, s.Short.Strike, s.Long.Strike, s.Credit, s.ReturnOnRisk, s.Metrics.ProbabilityOfProfit*100, s.Metrics.ExpectedValue)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(risk.BullPutSpread), "bull_put_spread or bear_call_spread")
	cmd.Flags().Float64Var(&minRoR, "min-ror", 0.175, "Minimum return on risk")
	cmd.Flags().IntVar(&limit, "limit", 20, "Show at most this many spreads")
	return cmd
}

func templatesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List strategy templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := a.templates()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.asJSON {
				return printJSON(out, ts)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, name := range ts.Names() {
				fmt.Fprintf(w, "%s\t%s\n", name, ts[name].Description)
			}
			return w.Flush()
		},
	}
}
