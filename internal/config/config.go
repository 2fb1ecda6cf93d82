package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/drone/envsubst"
	"gopkg.in/yaml.v3"

	"github.com/seantiz/backtest/internal/model"
)

const (
	defaultListenAddr  = ":8080"
	defaultStoreURL    = "backtest.db"
	defaultExecutable  = "python3"
	defaultScript      = "backtester.py"
	defaultDataDir     = "data"
	defaultMaxUploadMB = 64

	envConfig      = "BACKTEST_CONFIG"
	envListenAddr  = "BACKTEST_LISTEN_ADDR"
	envStoreURL    = "BACKTEST_STORE_URL"
	envLogLevel    = "BACKTEST_LOG_LEVEL"
	envExecutable  = "BACKTEST_EXECUTABLE"
	envScriptArgs  = "BACKTEST_SCRIPT_ARGS"
	envDataDir     = "BACKTEST_DATA_DIR"
	envUploadDir   = "BACKTEST_UPLOAD_DIR"
	envMaxUploadMB = "BACKTEST_MAX_UPLOAD_MB"
	envStrictExit  = "BACKTEST_STRICT_EXIT"
	envCORSOrigins = "BACKTEST_CORS_ORIGINS"
)

// Config holds application configuration. Values come from built-in
// defaults, then an optional YAML file, then environment variables.
type Config struct {
	ListenAddr string     `yaml:"listen_addr"`
	StoreURL   string     `yaml:"store_url"`
	LogLevel   slog.Level `yaml:"log_level"`

	// Executable and ScriptArgs prefix every computation invocation.
	Executable string   `yaml:"executable"`
	ScriptArgs []string `yaml:"script_args"`
	// DataDir holds datasets available to streaming runs.
	DataDir string `yaml:"data_dir"`
	// UploadDir receives uploaded datasets until their batch run ends.
	UploadDir   string `yaml:"upload_dir"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
	StrictExit  bool   `yaml:"strict_exit"`

	CORSOrigins []string          `yaml:"cors_origins"`
	Params      []model.ParamSpec `yaml:"params"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:  defaultListenAddr,
		StoreURL:    defaultStoreURL,
		LogLevel:    slog.LevelInfo,
		Executable:  defaultExecutable,
		ScriptArgs:  []string{defaultScript},
		DataDir:     defaultDataDir,
		UploadDir:   os.TempDir(),
		MaxUploadMB: defaultMaxUploadMB,
		CORSOrigins: []string{"*"},
		Params:      slices.Clone(model.DefaultParamSpecs),
	}
}

// Load builds the configuration. If path is empty, BACKTEST_CONFIG names the
// YAML file, if any. The file may reference environment variables as ${VAR}.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(envConfig)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	expanded, err := envsubst.EvalEnv(string(raw))
	if err != nil {
		return fmt.Errorf("expand config: %w", err)
	}
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	if v := os.Getenv(envListenAddr); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv(envStoreURL); v != "" {
		c.StoreURL = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		if err := c.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", envLogLevel, err)
		}
	}
	if v := os.Getenv(envExecutable); v != "" {
		c.Executable = v
	}
	if v := os.Getenv(envScriptArgs); v != "" {
		c.ScriptArgs = strings.Fields(v)
	}
	if v := os.Getenv(envDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(envUploadDir); v != "" {
		c.UploadDir = v
	}
	if v := os.Getenv(envMaxUploadMB); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", envMaxUploadMB, err)
		}
		c.MaxUploadMB = n
	}
	if v := os.Getenv(envStrictExit); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envStrictExit, err)
		}
		c.StrictExit = b
	}
	if v := os.Getenv(envCORSOrigins); v != "" {
		c.CORSOrigins = splitList(v)
	}
	return nil
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if c.Executable == "" {
		return errors.New("executable must be set")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be positive, got %d", c.MaxUploadMB)
	}
	if err := model.ValidateSpecs(c.Params); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
