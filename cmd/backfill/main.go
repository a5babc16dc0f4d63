package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"investsim-api/internal/config"
	"investsim-api/internal/svc"
)

var (
	configFile = flag.String("f", "etc/investsim.yaml", "the config file")
	class      = flag.String("class", "", "restrict backfill to one asset class (crypto|stock|etf|fx|metal)")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.MustLoad(*configFile)
	svcCtx := svc.NewServiceContext(*cfg)
	if svcCtx.Backfiller == nil || svcCtx.AssetsModel == nil {
		log.Fatalf("[main] backfill requires postgres and provider config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scope := *class
	if scope == "" {
		log.Println("[main] Backfilling history for all active assets...")
	} else {
		log.Printf("[main] Backfilling history for class %s...", scope)
	}

	start := time.Now()
	stats, err := svcCtx.Backfiller.Run(ctx, scope)
	elapsed := time.Since(start)
	if err != nil {
		log.Fatalf("[main] Backfill failed after %s: %v (inserted=%d skipped=%d errored=%d)",
			elapsed.Round(time.Millisecond), err, stats.Inserted, stats.Skipped, stats.Errored)
	}

	log.Printf("[main] Backfill complete in %s: inserted=%d skipped=%d errored=%d",
		elapsed.Round(time.Millisecond), stats.Inserted, stats.Skipped, stats.Errored)
}
