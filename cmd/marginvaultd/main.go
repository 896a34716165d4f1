package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"marginvault/config"
	"marginvault/core"
	"marginvault/integrations/journal"
	"marginvault/observability/logging"
	"marginvault/observability/metrics"
	"marginvault/rpc"
	"marginvault/storage"
	"marginvault/wallet"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("marginvaultd", cfg.NetworkName)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	sink, err := journal.Open(cfg.JournalPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to open event journal: %v", err))
	}
	defer sink.Close()

	var feeCollector [20]byte
	if strings.TrimSpace(cfg.FeeCollector) != "" {
		feeCollector, err = config.ParseAddress(cfg.FeeCollector)
		if err != nil {
			logger.Error("Invalid fee collector address", slog.Any("error", err))
			os.Exit(1)
		}
	}

	node, err := core.NewNode(db, core.Options{
		Protocol:      cfg.Protocol,
		FeeCollector:  feeCollector,
		AllowedVenues: cfg.AllowedVenues,
		AllowedTokens: cfg.AllowedTokens,
		Router:        wallet.NewV2Router(),
		Pauses:        cfg.Pauses,
		Sink:          sink,
		Metrics:       metrics.Lending(),
		Logger:        logger,
	})
	if err != nil {
		logger.Error("Failed to initialise node", slog.Any("error", err))
		os.Exit(1)
	}

	allocations, err := parseAllocations(cfg.Genesis)
	if err != nil {
		logger.Error("Invalid genesis allocation", slog.Any("error", err))
		os.Exit(1)
	}
	if err := node.ApplyGenesis(allocations); err != nil {
		logger.Error("Failed to apply genesis allocations", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := rpc.NewServer(node, metrics.Lending())
	logger.Info("Starting JSON-RPC server", slog.String("address", cfg.RPCAddress))
	if err := server.Start(ctx, cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

func parseAllocations(entries []config.Allocation) (map[[20]byte]*big.Int, error) {
	allocations := make(map[[20]byte]*big.Int, len(entries))
	for i, entry := range entries {
		addr, err := config.ParseAddress(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("allocation %d: %w", i, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(entry.Amount), 10)
		if !ok || amount.Sign() <= 0 {
			return nil, fmt.Errorf("allocation %d: invalid amount %q", i, entry.Amount)
		}
		allocations[addr] = amount
	}
	return allocations, nil
}
