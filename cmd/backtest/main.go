package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/seantiz/backtest/internal/config"
	"github.com/seantiz/backtest/internal/engine"
)

var (
	cfg    config.Config
	logger *slog.Logger

	flagConfigPath string
	flagStoreURL   string
	flagLogLevel   string
)

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "YAML config file to load (default $BACKTEST_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&flagStoreURL, "store-url", "", "result store: SQLite path, bolt://path or a blob bucket URL")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn or error")

	serveCmd.Flags().StringVar(&flagListenAddr, "listen", "", "HTTP listen address")
	serveCmd.Flags().StringVar(&flagDataDir, "data-dir", "", "directory of datasets available to streaming runs")
	runCmd.Flags().StringToStringVarP(&flagParams, "param", "p", nil, "parameter as name=value; omitted parameters take their defaults")
	listCmd.Flags().IntVar(&flagLimit, "limit", 0, "maximum number of results to print (0 for all)")

	// errors are logged below
	rootCmd.SilenceErrors = true
	rootCmd.PersistentPreRunE = initBacktest

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		if logger == nil {
			logger = config.NewLogger(os.Stderr, slog.LevelInfo)
		}
		logger.Error("backtest failed", "error", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "backtest",
	Short:        "Run trading backtests and broadcast streaming runs",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("backtest: version info not available")
			return
		}
		fmt.Printf("backtest: %s\n", info.Main.Version)
		fmt.Printf("go:       %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:   %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:     %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:    %s\n", s.Value)
			}
		}
	},
}

// initBacktest loads the configuration, applies flags given on the command
// line on top of it, and sets up logging.
func initBacktest(cmd *cobra.Command, _ []string) error {
	if cmd == versionCmd {
		return nil
	}

	var err error
	cfg, err = config.Load(flagConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("store-url") {
		cfg.StoreURL = flagStoreURL
	}
	if flags.Changed("log-level") {
		if err := cfg.LogLevel.UnmarshalText([]byte(flagLogLevel)); err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
	}
	if flags.Changed("listen") {
		cfg.ListenAddr = flagListenAddr
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = flagDataDir
	}

	// The server logs to stdout; one-shot commands keep stdout for output.
	out := os.Stderr
	if cmd == serveCmd {
		out = os.Stdout
	}
	logger = config.NewLogger(out, cfg.LogLevel)
	return nil
}

func engineConfig(c config.Config) engine.Config {
	return engine.Config{
		Executable: c.Executable,
		ScriptArgs: c.ScriptArgs,
		DataDir:    c.DataDir,
		Params:     c.Params,
		StrictExit: c.StrictExit,
	}
}
