// stubcompute is a self-contained stand-in for the Python backtester. It
// accepts the same invocation, so a server configured with
// "executable: stubcompute" runs end to end without a Python toolchain.
//
// Usage: stubcompute --filepath prices.txt --atr_mult_sl 1.1 --atr_mult_trail 4 --rr_target 4 [--stream]
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/backtest/internal/model"
)

type options struct {
	filepath string
	stream   bool
	delay    time.Duration
	params   map[string]*float64
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	opts := &options{params: make(map[string]*float64)}
	cmd := &cobra.Command{
		Use:          "stubcompute",
		Short:        "Moving-average crossover backtest over an OHLCV dataset",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		// Deployments may configure extra parameters this stub ignores.
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, stdout, opts)
		},
	}
	cmd.SetOut(stdout)

	cmd.Flags().StringVar(&opts.filepath, "filepath", "", "dataset to read")
	cmd.Flags().BoolVar(&opts.stream, "stream", false, "write one event per bar instead of a summary")
	cmd.Flags().DurationVar(&opts.delay, "delay", 0, "pause between streamed events")
	for _, spec := range model.DefaultParamSpecs {
		opts.params[spec.Name] = cmd.Flags().Float64(spec.Name, spec.Default, "strategy parameter")
	}
	_ = cmd.MarkFlagRequired("filepath")
	return cmd
}

func run(cmd *cobra.Command, stdout io.Writer, opts *options) error {
	f, err := os.Open(opts.filepath)
	if err != nil {
		return err
	}
	bars, err := readBars(f)
	f.Close()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "stubcompute: %d bars from %s\n", len(bars), opts.filepath)

	s := Settings{
		ATRMultSL:    *opts.params["atr_mult_sl"],
		ATRMultTrail: *opts.params["atr_mult_trail"],
		RRTarget:     *opts.params["rr_target"],
	}

	if opts.stream {
		return stream(stdout, bars, s, opts.delay)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "    ")
	return enc.Encode(backtest(bars, s))
}

// stream writes one JSON line per bar.
func stream(w io.Writer, bars []Bar, s Settings, delay time.Duration) error {
	sim := newSimulator(s)
	enc := json.NewEncoder(w)
	for i, b := range bars {
		if i > 0 && delay > 0 {
			time.Sleep(delay)
		}
		trade := sim.step(b)
		ev := model.StreamEvent{
			Type:       model.EventPriceUpdate,
			Timestamp:  b.Time.Format(timeLayout),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			Equity:     sim.equity,
			TradeEvent: trade,
		}
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}
