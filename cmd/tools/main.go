package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init-db":
		if err := runInitDB(os.Args[2:]); err != nil {
			sugar.Fatalf("init-db: %v", err)
		}
	case "list":
		if err := runList(os.Args[2:]); err != nil {
			sugar.Fatalf("list: %v", err)
		}
	case "sync":
		if err := runSync(os.Args[2:]); err != nil {
			sugar.Fatalf("sync: %v", err)
		}
	default:
		sugar.Errorf("unknown command %q", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	logger := zap.S()
	logger.Info("Usage: tabula-tools <command> [options]")
	logger.Info("")
	logger.Info("Commands:")
	logger.Info("  init-db   Create the PostgreSQL metadata tables and indexes for Tabula")
	logger.Info("  list      List registered templates and their fields")
	logger.Info("  sync      Converge generated tables with their template definitions")
}
