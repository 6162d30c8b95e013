// downloader fetches historical market data from the vendor feed and writes
// it to the configured output target.
//
// Usage:
//
//	downloader --tickers AAPL,MSFT --resolution minute \
//	    --from-date 20250102-00:00:00 --to-date 20250103-00:00:00 \
//	    --config configs/downloader.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/openquant/feedbridge/internal/config"
	"github.com/openquant/feedbridge/internal/feed"
	"github.com/openquant/feedbridge/internal/history"
	"github.com/openquant/feedbridge/internal/logx"
	"github.com/openquant/feedbridge/internal/model"
	"github.com/openquant/feedbridge/internal/saver"
	"github.com/openquant/feedbridge/internal/universe"
	"github.com/openquant/feedbridge/internal/version"
)

// dateLayout is the CLI date format, yyyyMMdd-HH:mm:ss.
const dateLayout = "20060102-15:04:05"

func main() {
	os.Exit(run())
}

func run() int {
	tickers := flag.String("tickers", "", "comma-separated tickers to download")
	kindFlag := flag.String("kind", "equity", "security kind: equity, option, future or forex")
	resFlag := flag.String("resolution", "daily", "tick, second, minute, hour or daily")
	fromDate := flag.String("from-date", "", "range start, "+dateLayout)
	toDate := flag.String("to-date", "", "range end, "+dateLayout+" (default: now)")
	configPath := flag.String("config", "configs/downloader.yaml", "path to config file")
	output := flag.String("output", "", "override the configured output format")
	flag.Parse()

	// Optional .env for config expansion (DB credentials and the like).
	godotenv.Load()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return 1
	}

	logger := logx.New(cfg.Log.Level)
	slog.SetDefault(logger)

	runID := uuid.New().String()
	logger.Info("starting downloader",
		"version", version.Version,
		"run_id", runID,
		"config", *configPath,
	)

	if *tickers == "" {
		logger.Error("no tickers given")
		return 1
	}

	kind, err := parseKind(*kindFlag)
	if err != nil {
		logger.Error("bad kind flag", "error", err)
		return 1
	}

	resolution, err := model.ParseResolution(*resFlag)
	if err != nil {
		logger.Error("bad resolution flag", "error", err)
		return 1
	}

	start, err := time.Parse(dateLayout, *fromDate)
	if err != nil {
		logger.Error("bad from-date flag", "error", err)
		return 1
	}
	end := time.Now().UTC()
	if *toDate != "" {
		end, err = time.Parse(dateLayout, *toDate)
		if err != nil {
			logger.Error("bad to-date flag", "error", err)
			return 1
		}
	}

	vendorZone, err := time.LoadLocation(cfg.Vendor.TimeZone)
	if err != nil {
		logger.Error("bad vendor time zone", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	client := feed.NewClient(feedConfig(cfg), logger)
	if err := client.Start(ctx); err != nil {
		logger.Error("failed to connect to vendor", "error", err)
		return 1
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		client.Stop(stopCtx)
	}()

	provider := universe.NewProvider(client, logger)
	retriever := history.NewRetriever(client, provider, history.Options{
		VendorZone: vendorZone,
		Workers:    cfg.History.Workers,
		SpoolDir:   cfg.History.SpoolDir,
	}, logger)
	defer retriever.Close()

	downloader := history.NewDownloader(retriever, logger)

	outCfg := cfg.Output
	if *output != "" {
		outCfg.Format = *output
	}
	out, err := saver.New(ctx, outCfg, logger)
	if err != nil {
		logger.Error("failed to open output target", "error", err)
		return 1
	}
	defer out.Close()

	failed := false
	for _, ticker := range strings.Split(*tickers, ",") {
		ticker = strings.TrimSpace(ticker)
		if ticker == "" {
			continue
		}

		data, err := downloader.Get(ctx, history.DownloadParams{
			Instruments:  []model.Instrument{buildInstrument(ticker, kind)},
			Resolution:   resolution,
			TickKind:     model.TickTrade,
			Start:        start,
			End:          end,
			DataTimeZone: vendorZone,
		})
		if err != nil {
			logger.Error("download failed", "ticker", ticker, "error", err)
			failed = true
			continue
		}
		if len(data) == 0 {
			logger.Warn("no data returned", "ticker", ticker)
			continue
		}

		if err := out.Save(ctx, ticker, data); err != nil {
			logger.Error("save failed", "ticker", ticker, "error", err)
			failed = true
		}
	}

	if failed {
		return 1
	}
	logger.Info("download complete", "run_id", runID)
	return 0
}

// buildInstrument maps a CLI ticker to an instrument. Derivative tickers
// are canonical chain symbols; concrete contracts come from chain expansion.
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
