package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/sushant-115/rowdb/core/executor"
	"github.com/sushant-115/rowdb/core/storage_engine/table"
	internaltelemetry "github.com/sushant-115/rowdb/internal/telemetry"
	"github.com/sushant-115/rowdb/pkg/config"
	"github.com/sushant-115/rowdb/pkg/logger"
	"github.com/sushant-115/rowdb/pkg/telemetry"
)

// CLI defines the command-line interface.
type CLI struct {
	Config      string `name:"config" short:"c" help:"YAML config file." type:"path"`
	DataDir     string `name:"data-dir" help:"Directory holding the data file (overrides storage.data_dir)." type:"path"`
	LogLevel    string `name:"log-level" help:"Log level: debug, info, warn, error."`
	LogFormat   string `name:"log-format" help:"Log format: console or json."`
	MetricsPort int    `name:"metrics-port" help:"Serve Prometheus metrics on this port; enables telemetry."`

	Filename string `arg:"" optional:"" help:"Data file name, or a path to it."`
}

// resolve merges the config file, if any, with flag overrides.
func (c *CLI) resolve() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if c.Config != "" {
		var err error
		if cfg, err = config.Load(c.Config); err != nil {
			return nil, err
		}
	}
	if c.DataDir != "" {
		cfg.Storage.DataDir = c.DataDir
	}
	if c.Filename != "" {
		if dir := filepath.Dir(c.Filename); dir != "." {
			cfg.Storage.DataDir = dir
		}
		cfg.Storage.Filename = filepath.Base(c.Filename)
	}
	if c.LogLevel != "" {
		cfg.Logger.Level = c.LogLevel
	}
	if c.LogFormat != "" {
		cfg.Logger.Format = c.LogFormat
	}
	if c.MetricsPort > 0 {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.PrometheusPort = c.MetricsPort
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *CLI) Run() (int, error) {
	cfg, err := c.resolve()
	if err != nil {
		return 1, err
	}

	zlogger, err := logger.New(cfg.Logger)
	if err != nil {
		return 1, err
	}
	defer func() { _ = zlogger.Sync() }()

	tel, shutdown, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return 1, fmt.Errorf("failed to start telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			zlogger.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}()
	if tel.MetricsAddr != "" {
		zlogger.Info("Serving metrics", zap.String("addr", tel.MetricsAddr))
	}
	metrics, err := internaltelemetry.NewStorageMetrics(tel.Meter)
	if err != nil {
		return 1, fmt.Errorf("failed to register metrics: %w", err)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return 1, err
	}
	tbl, err := table.Open(cfg.DataPath(), zlogger, metrics)
	if err != nil {
		return 1, err
	}

	r := &repl{
		table:      tbl,
		exec:       executor.New(tbl, zlogger, tel, metrics),
		out:        os.Stdout,
		logger:     zlogger,
		backupRate: cfg.Storage.BackupRateBytes,
	}

	in, closeIn, err := newLineReader(os.Stdin, os.Stdout)
	if err != nil {
		_ = tbl.Close()
		return 1, err
	}
	defer closeIn()

	return r.run(context.Background(), in), nil
}

// newLineReader uses readline for terminals and a plain scanner otherwise.
func newLineReader(in io.Reader, out io.Writer) (lineReader, func(), error) {
	if !readline.DefaultIsTerminal() {
		return newScanReader(in, out), func() {}, nil
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       ".exit",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start line editor: %w", err)
	}
	return rl, func() { _ = rl.Close() }, nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("rowdb"),
		kong.Description("A single-table persistent row store with an interactive prompt."),
		kong.UsageOnError(),
	)

	code, err := cli.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rowdb: %v\n", err)
	}
	ctx.Exit(code)
}
