package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/vitos/quicky/internal/config"
	"github.com/vitos/quicky/internal/domain"
	"github.com/vitos/quicky/internal/infrastructure/exchange"
	"github.com/vitos/quicky/internal/infrastructure/logger"
	"github.com/vitos/quicky/internal/usecase"
)

const (
	exitOK          = 0
	exitFailure     = 1 // nothing was opened
	exitUsage       = 2
	exitAmbiguous   = 3 // entry may be live
	exitUnprotected = 4 // entry is live without a stop-loss
)

type options struct {
	symbol      string
	qty         int64
	slPct       float64
	testnet     bool
	configPath  string
	priceSource string
	syncTime    bool
	logLevel    string
	logFile     string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*options, int, bool) {
	var opts options
	fs := pflag.NewFlagSet("quicky", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.symbol, "symbol", "s", "", "instrument symbol, e.g. XRPUSD")
	fs.Int64VarP(&opts.qty, "qty", "q", 0, "contracts; positive buys, negative sells")
	fs.Float64Var(&opts.slPct, "sl-pcnt", usecase.DefaultStopLossPercent, "stop-loss distance from the entry price, percent")
	fs.BoolVar(&opts.testnet, "testnet", false, "trade on testnet with the BYBIT_TESTNET_* keys")
	fs.StringVar(&opts.configPath, "config", "", "optional YAML config file")
	fs.StringVar(&opts.priceSource, "price-source", "", "where to read the last price: rest or ws")
	fs.BoolVar(&opts.syncTime, "sync-time", false, "sign requests with the exchange clock")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&opts.logFile, "log-file", "", "write JSON logs to this rotated file instead of stderr")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, exitOK, false
		}
		return nil, exitUsage, false
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return nil, exitUsage, false
	}
	if opts.symbol == "" || !fs.Changed("qty") {
		fmt.Fprintln(stderr, "--symbol and --qty are required")
		fs.PrintDefaults()
		return nil, exitUsage, false
	}
	opts.symbol = strings.ToUpper(strings.TrimSpace(opts.symbol))
	return &opts, exitOK, true
}

func run(args []string, stdout, stderr io.Writer) int {
	start := time.Now()

	opts, code, ok := parseFlags(args, stderr)
	if !ok {
		return code
	}

	// 1. Load Config
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(stderr, "❌ %v\n", err)
		return exitFailure
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "❌ Failed to load config: %v\n", err)
		return exitFailure
	}
	applyOverrides(cfg, opts)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "❌ Invalid settings: %v\n", err)
		return exitUsage
	}

	// 2. Init Logger
	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "❌ Failed to init logger: %v\n", err)
		return exitFailure
	}
	defer func() { _ = log.Sync() }()

	// 3. Instruments
	extra, err := cfg.InstrumentList()
	if err != nil {
		fmt.Fprintf(stderr, "❌ %v\n", err)
		return exitFailure
	}
	ticks, err := usecase.NewTickTable(extra...)
	if err != nil {
		fmt.Fprintf(stderr, "❌ %v\n", err)
		return exitFailure
	}

	// 4. Credentials for exactly one network
	mode := domain.Mainnet
	if opts.testnet {
		mode = domain.Testnet
	}
	env, err := config.ResolveEnvironment(mode, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "❌ %v\n", err)
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Init Exchange
	adapter := exchange.NewBybitAdapter(env,
		exchange.WithTimeout(cfg.HTTPTimeout),
		exchange.WithRecvWindow(cfg.RecvWindowMS),
		exchange.WithRateLimit(cfg.RateLimitPerSec),
		exchange.WithLogger(log),
	)
	if cfg.SyncServerTime {
		if _, err := adapter.SyncServerTime(ctx); err != nil {
			log.Warn("Server time sync failed, using local clock", zap.Error(err))
		}
	}

	var prices domain.PriceFeed = adapter
	if cfg.PriceSource == config.PriceSourceWS {
		prices = exchange.NewBybitWSFeed(env, log)
	}

	svc := usecase.NewQuickOrderService(prices, adapter, ticks, log,
		usecase.WithRetryPolicy(usecase.RetryPolicy{
			MaxRetries:      cfg.Retry.MaxRetries,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
		}),
	)

	// 6. Place
	fmt.Fprintf(stdout, "Network: %s\n", env.Mode)
	res, err := svc.Place(ctx, usecase.QuickOrderRequest{
		Symbol:      opts.symbol,
		Qty:         opts.qty,
		StopLossPct: opts.slPct,
	})
	report(stdout, stderr, res, err)
	fmt.Fprintf(stdout, "Elapsed: %s\n", time.Since(start).Round(time.Millisecond))
	return exitCode(err)
}

func applyOverrides(cfg *config.Config, opts *options) {
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.logFile != "" {
		cfg.LogFile = opts.logFile
	}
	if opts.priceSource != "" {
		cfg.PriceSource = opts.priceSource
	}
	if opts.syncTime {
		cfg.SyncServerTime = true
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.LogFile != "" {
		return logger.NewFileLogger(cfg.LogFile, cfg.LogLevel)
	}
	return logger.NewLogger(cfg.LogLevel)
}

func report(stdout, stderr io.Writer, res *usecase.QuickOrderResult, err error) {
	if res != nil && res.Entry != nil {
		fmt.Fprintf(stdout, "✅ Entry    %s %d %s @ %s (last %s, PostOnly) order=%s link=%s\n",
			res.Side, abs(res.Qty), res.Instrument.Symbol, res.LimitPrice, res.MarketPrice,
			res.Entry.OrderID, res.Entry.LinkID)
	}
	if res != nil && res.StopLoss != nil {
		fmt.Fprintf(stdout, "✅ StopLoss %s %d %s trigger %s (LastPrice, reduce-only) order=%s link=%s\n",
			res.Side.Opposite(), abs(res.Qty), res.Instrument.Symbol, res.StopLossPrice,
			res.StopLoss.OrderID, res.StopLoss.LinkID)
	}
	if err == nil {
		return
	}

	fmt.Fprintf(stderr, "❌ %v\n", err)

	var unprotected *domain.UnprotectedPositionError
	var ambiguous *domain.AmbiguousOrderStateError
	switch {
	case errors.As(err, &unprotected):
		fmt.Fprintf(stderr, "⚠️  UNPROTECTED POSITION: entry order %s is live without a stop-loss at %s\n",
			unprotected.EntryOrderID, res.StopLossPrice)
	case errors.As(err, &ambiguous):
		fmt.Fprintf(stderr, "⚠️  Entry order state unknown, check orderLinkId %s (check_exchange --link-id)\n", ambiguous.LinkID)
	}
}

func exitCode(err error) int {
	var unprotected *domain.UnprotectedPositionError
	var ambiguous *domain.AmbiguousOrderStateError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &unprotected):
		return exitUnprotected
	case errors.As(err, &ambiguous):
		return exitAmbiguous
	}
	return exitFailure
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
