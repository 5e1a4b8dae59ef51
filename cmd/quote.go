package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"crypto-trading-bot/internal/engine"
	"crypto-trading-bot/internal/executor"
	"crypto-trading-bot/internal/notify"
	"crypto-trading-bot/internal/service"
	"crypto-trading-bot/internal/strategy"

	"github.com/spf13/cobra"
)

var quoteCmd = &cobra.Command{
	Use:   "quote [instance...]",
	Short: "Compute the current quotes without placing orders",
	Long: `Fetch one snapshot per instance and print the proposed prices, amounts
and the decision each side would take. Nothing is executed or cancelled.

Example:
  trading-bot quote btc`,
	RunE: runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
}

func runQuote(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	names, err := selectInstances(cfg, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, name := range names {
		inst := cfg.Instances[name]
		client, err := executor.NewExchangeClient(cfg.Exchange, inst, service.Logger)
		if err != nil {
			return fmt.Errorf("instance %s: %w", name, err)
		}
		e := engine.New(engine.Options{
			Instance: name,
			Config:   inst,
			Client:   client,
			Sink:     notify.NewLogSink(service.Logger),
			Confirm:  engine.AutoConfirm{},
			Logger:   service.Logger,
		})
		if err := e.Init(cmd.Context()); err != nil {
			return fmt.Errorf("instance %s: %w", name, err)
		}
		ev, err := e.Preview(cmd.Context())
		if err != nil {
			return fmt.Errorf("instance %s: %w", name, err)
		}
		printEvaluation(out, name, inst, ev)
	}
	return nil
}

func printEvaluation(w io.Writer, name string, inst service.InstanceConfig, ev strategy.Evaluation) {
	pair := inst.Pair()
	fmt.Fprintf(w, "[%s] %s  state=%s  change=%.4f\n", name, pair, ev.Trend.State, ev.Trend.AverageTradingChangeRatio)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  SIDE\tPRICE\tAMOUNT\tMAX BY RESERVE\tDECISION\tREASON\tVALUE")
	for _, row := range []struct {
		q strategy.Quote
		d strategy.Decision
	}{{ev.Buy, ev.BuyDecision}, {ev.Sell, ev.SellDecision}} {
		fmt.Fprintf(tw, "  %s\t%.8f\t%.8f\t%.8f\t%s\t%s\t%.2f -> %.2f\n",
			row.q.Side, row.q.Price, row.q.Amount, row.q.MaxByReserve,
			row.d.Label(), row.d.Reason, row.d.OriginalPortfolioValue, row.d.FinalPortfolioValue)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "  balance: %.8f %s (+%.8f in orders), %.2f %s (+%.2f in orders)\n",
		ev.Portfolio.Exchange.Available, pair.ExchangeCurrency, ev.Portfolio.Exchange.InOrders,
		ev.Portfolio.Target.Available, pair.TargetCurrency, ev.Portfolio.Target.InOrders)
	for _, c := range ev.ImmediateCancellations() {
		fmt.Fprintf(w, "  would cancel: %s (%s)\n", c.Order, c.Reason)
	}
	fmt.Fprintln(w)
}
