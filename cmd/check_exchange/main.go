package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/pflag"

	"github.com/vitos/quicky/internal/config"
	"github.com/vitos/quicky/internal/domain"
	"github.com/vitos/quicky/internal/infrastructure/exchange"
	"github.com/vitos/quicky/internal/usecase"
)

// check_exchange is a read-only probe: it never places or cancels orders.
func main() {
	symbol := pflag.StringP("symbol", "s", "XRPUSD", "symbol to query")
	testnet := pflag.Bool("testnet", false, "query testnet")
	cfgPath := pflag.String("config", "", "optional YAML config file")
	linkID := pflag.String("link-id", "", "look up an order by orderLinkId (needs API keys)")
	pflag.Parse()

	// 1. Load Config
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	extra, err := cfg.InstrumentList()
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	ticks, err := usecase.NewTickTable(extra...)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	mode := domain.Mainnet
	if *testnet {
		mode = domain.Testnet
	}
	sym := strings.ToUpper(*symbol)
	inst, err := ticks.Instrument(sym)
	if err != nil {
		fmt.Printf("❌ %v (known: %s)\n", err, strings.Join(ticks.Symbols(), ", "))
		os.Exit(1)
	}

	// Public endpoints work without keys.
	env, err := config.ResolveEnvironment(mode, cfg)
	if err != nil {
		var missing *domain.MissingCredentialsError
		if !errors.As(err, &missing) {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}
		ep := cfg.EndpointFor(mode)
		env = domain.Environment{Mode: mode, RESTEndpoint: ep.REST, WSEndpoint: ep.WS}
		fmt.Printf("⚠️  %v, private checks skipped\n", err)
	}

	fmt.Printf("Testing Bybit %s...\n", mode)
	fmt.Printf("Endpoint: %s\n", env.RESTEndpoint)
	if len(env.Credentials.APIKey) >= 4 {
		fmt.Printf("API Key: %s...\n", env.Credentials.APIKey[:4])
	}

	adapter := exchange.NewBybitAdapter(env, exchange.WithTimeout(cfg.HTTPTimeout), exchange.WithRecvWindow(cfg.RecvWindowMS))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 2. Server time
	offset, err := adapter.SyncServerTime(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to get server time: %v\n", err)
	} else {
		fmt.Printf("✅ Server time offset: %s\n", offset)
	}

	// 3. Last price over REST and WS
	price, err := adapter.GetCurrentPrice(ctx, inst.Category, inst.Symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get price: %v\n", err)
	} else {
		fmt.Printf("✅ Current Price (%s, REST): %s tick=%s\n", inst.Symbol, price, inst.TickSize)
	}

	wsPrice, err := exchange.NewBybitWSFeed(env, nil).GetCurrentPrice(ctx, inst.Category, inst.Symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get price over WS: %v\n", err)
	} else {
		fmt.Printf("✅ Current Price (%s, WS): %s\n", inst.Symbol, wsPrice)
	}

	// 4. Private order lookup
	if *linkID == "" {
		return
	}
	if env.Credentials.APIKey == "" {
		fmt.Println("❌ --link-id needs API keys")
		os.Exit(1)
	}
	order, err := adapter.GetOrderByLinkID(ctx, inst.Category, inst.Symbol, *linkID)
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		fmt.Printf("✅ No order with orderLinkId %s\n", *linkID)
	case err != nil:
		fmt.Printf("❌ Failed to get order: %v\n", err)
		os.Exit(1)
	default:
		fmt.Printf("✅ Order %s: %s %s %s qty=%s price=%s trigger=%s status=%s created=%s\n",
			order.ID, order.Side, order.Type, order.Symbol, order.Qty, order.Price, order.TriggerPrice,
			order.Status, order.CreatedAt.Format(time.RFC3339))
	}
}
