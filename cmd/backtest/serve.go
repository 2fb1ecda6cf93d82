package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seantiz/backtest/internal/api"
	"github.com/seantiz/backtest/internal/engine"
	"github.com/seantiz/backtest/internal/store"
)

var (
	flagListenAddr string
	flagDataDir    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  doServe,
}

func doServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	logger.Info("backtest: starting",
		"listen_addr", cfg.ListenAddr,
		"store_url", cfg.StoreURL,
		"executable", cfg.Executable,
		"data_dir", cfg.DataDir,
	)

	s, err := store.Open(ctx, cfg.StoreURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	eng := engine.NewEngine(s, engineConfig(cfg), logger)
	srv := api.NewServer(api.Options{
		Addr:           cfg.ListenAddr,
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadMB << 20,
		CORSOrigins:    cfg.CORSOrigins,
	}, s, eng, logger)

	return srv.Run(ctx)
}
