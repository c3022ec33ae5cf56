package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-job-crawler/internal/config"
	"github.com/JakeFAU/sitemap-job-crawler/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	once := flag.Bool("once", false, "Run a single crawl, print its report and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	app, err := server.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build app failed: %v\n", err)
		os.Exit(1)
	}

	if *once {
		os.Exit(runOnce(ctx, app))
	}

	if err := app.Run(ctx); err != nil {
		zap.L().Error("application exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func runOnce(ctx context.Context, app *server.App) int {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer app.Close(context.Background())

	snap, err := app.RunOnce(ctx)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(snap); encErr != nil {
		fmt.Fprintf(os.Stderr, "encode report failed: %v\n", encErr)
	}
	if err != nil {
		zap.L().Error("crawl failed", zap.Error(err))
		return 1
	}
	return 0
}
