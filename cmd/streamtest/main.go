// streamtest subscribes to vendor symbols and prints live events to the
// console for a bounded duration. Smoke tool for feed connectivity.
//
// Usage: go run ./cmd/streamtest --config configs/downloader.yaml --tickers AAPL,MSFT
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/openquant/feedbridge/internal/config"
	"github.com/openquant/feedbridge/internal/feed"
	"github.com/openquant/feedbridge/internal/live"
	"github.com/openquant/feedbridge/internal/logx"
	"github.com/openquant/feedbridge/internal/model"
	"github.com/openquant/feedbridge/internal/sink"
	"github.com/openquant/feedbridge/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "configs/downloader.yaml", "path to config file")
	tickers := flag.String("tickers", "AAPL", "comma-separated tickers to stream")
	kindFlag := flag.String("kind", "equity", "security kind: equity, option, future or forex")
	duration := flag.Duration("duration", 30*time.Second, "how long to stream before exiting")
	flag.Parse()

	godotenv.Load()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return 1
	}

	logger := logx.New(cfg.Log.Level)
	slog.SetDefault(logger)

	logger.Info("starting streamtest", "version", version.Version, "duration", *duration)

	kind, err := parseKind(*kindFlag)
	if err != nil {
		logger.Error("bad kind flag", "error", err)
		return 1
	}

	vendorZone, err := time.LoadLocation(cfg.Vendor.TimeZone)
	if err != nil {
		logger.Error("bad vendor time zone", "error", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	client := feed.NewClient(feedConfig(cfg), logger)

	var agg sink.Aggregator = sink.NewFanout(logger)
	if cfg.Sink.NATSURL != "" {
		nats, err := sink.NewNATSPublisher(cfg.Sink.NATSURL, cfg.Sink.NATSSubjectPrefix, agg, logger)
		if err != nil {
			logger.Error("failed to connect to nats", "error", err)
			return 1
		}
		agg = nats
	}

	// The session must hook connection state before the client dials.
	session := live.NewSession(client, agg, vendorZone, logger)

	if err := client.Start(ctx); err != nil {
		logger.Error("failed to connect to vendor", "error", err)
		return 1
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		client.Stop(stopCtx)
	}()

	session.Start(ctx)

	var wg sync.WaitGroup
	for _, ticker := range strings.Split(*tickers, ",") {
		ticker = strings.TrimSpace(ticker)
		if ticker == "" {
			continue
		}

		inst := buildInstrument(ticker, kind)
		ch, err := session.Subscribe(inst)
		if err != nil {
			logger.Error("subscribe failed", "ticker", ticker, "error", err)
			return 1
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			printStream(inst, ch)
		}()
	}

	<-ctx.Done()

	// Closing the session tears down the sink streams, which ends the
	// printer goroutines.
	session.Close()
	wg.Wait()
	logger.Info("streamtest done")
	return 0
}

func printStream(inst model.Instrument, ch <-chan model.BaseData) {
	for d := range ch {
		switch v := d.(type) {
		case *model.Tick:
			fmt.Printf("%s %-12s %s price=%g size=%d bid=%g ask=%g value=%d\n",
				v.TS.Format(time.RFC3339), v.Kind, inst.Ticker, v.Price, v.Size, v.Bid, v.Ask, v.Value)
		case *model.SplitEvent:
			fmt.Printf("%s split        %s factor=%g\n",
				v.TS.Format(time.RFC3339), inst.Ticker, v.Factor)
		}
	}
}

func buildInstrument(ticker string, kind model.SecurityKind) model.Instrument {
	switch kind {
	case model.KindForex:
		return model.NewForex(ticker, "fxcm")
	case model.KindOption, model.KindFuture:
		return model.NewCanonical(ticker, "usa", kind)
	}
	return model.NewEquity(ticker, "usa")
}

func parseKind(s string) (model.SecurityKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equity":
		return model.KindEquity, nil
	case "option":
		return model.KindOption, nil
	case "future":
		return model.KindFuture, nil
	case "forex":
		return model.KindForex, nil
	}
	return 0, fmt.Errorf("unknown security kind %q", s)
}

func feedConfig(cfg *config.Config) feed.Config {
	fc := feed.DefaultConfig()
	fc.Host = cfg.Vendor.Host
	if cfg.Vendor.Product != "" {
		fc.Product = cfg.Vendor.Product
	}
	if cfg.Vendor.LookupClients > 0 {
		fc.LookupClients = cfg.Vendor.LookupClients
	}
	if cfg.Vendor.LookupTimeout > 0 {
		fc.LookupTimeout = cfg.Vendor.LookupTimeout
	}
	if cfg.Vendor.ReconnectBaseDelay > 0 {
		fc.ReconnectBaseDelay = cfg.Vendor.ReconnectBaseDelay
	}
	if cfg.Vendor.ReconnectMaxDelay > 0 {
		fc.ReconnectMaxDelay = cfg.Vendor.ReconnectMaxDelay
	}
	if cfg.Live.EventBuffer > 0 {
		fc.BufferSize = cfg.Live.EventBuffer
	}
	return fc
}
