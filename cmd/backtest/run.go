package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/seantiz/backtest/internal/engine"
	"github.com/seantiz/backtest/internal/model"
	"github.com/seantiz/backtest/internal/store"
)

var flagParams map[string]string

var runCmd = &cobra.Command{
	Use:   "run <dataset.csv>",
	Short: "Run one batch backtest and print the stored result",
	Args:  cobra.ExactArgs(1),
	RunE:  doRun,
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	values := make(map[string]float64, len(flagParams))
	for name, raw := range flagParams {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%w: parameter %s must be a number", model.ErrMalformedInput, name)
		}
		values[name] = v
	}
	params, err := model.ResolveParams(cfg.Params, values, true)
	if err != nil {
		return err
	}

	s, err := store.Open(ctx, cfg.StoreURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	// The run consumes its dataset, so it gets a copy.
	path, err := copyDataset(args[0], cfg.UploadDir)
	if err != nil {
		return err
	}

	eng := engine.NewEngine(s, engineConfig(cfg), logger)
	out, err := eng.RunBatch(ctx, engine.BatchRequest{DatasetPath: path, Params: params})
	var parseErr *engine.OutputParseError
	if errors.As(err, &parseErr) {
		cmd.PrintErrf("computation output (exit code %d):\n%s%s", parseErr.ExitCode, parseErr.Stdout, parseErr.Stderr)
	}
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, out.Document, "", "  "); err != nil {
		return fmt.Errorf("format result: %w", err)
	}
	pretty.WriteByte('\n')

	cmd.PrintErrf("backtest %s stored (exit code %d)\n", out.ID, out.ExitCode)
	_, err = cmd.OutOrStdout().Write(pretty.Bytes())
	return err
}

func copyDataset(src, dir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open dataset: %w", err)
	}
	defer in.Close()

	out, err := os.CreateTemp(dir, "run-*"+filepath.Ext(src))
	if err != nil {
		return "", fmt.Errorf("create dataset copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", fmt.Errorf("copy dataset: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("copy dataset: %w", err)
	}
	return out.Name(), nil
}
