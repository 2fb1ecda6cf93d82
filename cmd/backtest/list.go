package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seantiz/backtest/internal/store"
)

var flagLimit int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored backtest results",
	Args:  cobra.NoArgs,
	RunE:  doList,
}

func doList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	s, err := store.Open(ctx, cfg.StoreURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFINAL EQUITY\tTRADES\tWINS\tLOSSES\tWIN RATE\tAVG PNL")

	n := 0
	for sum, err := range store.Summaries(ctx, s, logger) {
		if err != nil {
			return fmt.Errorf("list results: %w", err)
		}
		fmt.Fprintf(w, "%s\t%.2f\t%d\t%d\t%d\t%.2f\t%.2f\n",
			sum.BacktestID, sum.FinalEquity, sum.TotalTrades, sum.Wins, sum.Losses, sum.WinRate, sum.AvgPnL)
		n++
		if flagLimit > 0 && n == flagLimit {
			break
		}
	}
	return w.Flush()
}
