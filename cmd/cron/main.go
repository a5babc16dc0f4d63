package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"investsim-api/internal/cli"
	"investsim-api/internal/config"
	"investsim-api/internal/engine"
	"investsim-api/internal/svc"
)

const shutdownTimeout = 10 * time.Second

var configFile = flag.String("f", "etc/investsim.yaml", "the config file")

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[main] Starting refresh scheduler...")

	cfg := config.MustLoad(*configFile)
	svcCtx := svc.NewServiceContext(*cfg)
	if svcCtx.Refresher == nil || svcCtx.AssetsModel == nil {
		log.Fatalf("[main] refresh scheduler requires postgres and provider config")
	}

	schedules := classSchedules(cfg.Refresh)
	log.Printf("[main] Configuration loaded:")
	for _, line := range cli.ConfigSummaryLines(cfg) {
		log.Printf("  - %s", line)
	}
	for _, s := range schedules {
		log.Printf("  - %s: every %s", s.class, s.interval)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for _, schedule := range schedules {
		wg.Add(1)
		go func(class string, interval time.Duration) {
			defer wg.Done()
			runClassRefresh(ctx, svcCtx.Refresher, class, interval)
		}(schedule.class, schedule.interval)
	}

	log.Println("[main] Refresh scheduler started. Press Ctrl+C to stop.")
	<-ctx.Done()
	log.Println("[main] Shutdown signal received, stopping tasks...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[main] All tasks stopped cleanly")
	case <-shutdownCtx.Done():
		log.Println("[main] Shutdown timeout exceeded, forcing exit")
	}

	log.Println("[main] Refresh scheduler stopped")
}

type schedule struct {
	class    string
	interval time.Duration
}

// classSchedules builds one refresh loop per asset class. A zero or
// negative interval disables the class.
func classSchedules(cfg config.RefreshConf) []schedule {
	var out []schedule
	for _, entry := range []struct {
		class   string
		seconds int
	}{
		{"crypto", cfg.Crypto},
		{"stock", cfg.Stock},
		{"etf", cfg.Etf},
		{"fx", cfg.Fx},
		{"metal", cfg.Metal},
	} {
		if entry.seconds <= 0 {
			continue
		}
		out = append(out, schedule{class: entry.class, interval: time.Duration(entry.seconds) * time.Second})
	}
	return out
}

// runClassRefresh sweeps one asset class on a fixed cadence, starting with
// an immediate run.
func runClassRefresh(ctx context.Context, refresher *engine.Refresher, class string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refreshOnce(ctx, refresher, class)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[%s] Stopping refresh loop", class)
			return
		case <-ticker.C:
			refreshOnce(ctx, refresher, class)
		}
	}
}

func refreshOnce(ctx context.Context, refresher *engine.Refresher, class string) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	stats, err := refresher.RefreshClass(ctx, class)
	elapsed := time.Since(start)
	if err != nil {
		log.Printf("[%s] [ERROR] %v, took %dms", class, err, elapsed.Milliseconds())
		return
	}
	log.Printf("[%s] [OK] updated=%d skipped=%d failed=%d, took %dms",
		class, stats.Updated, stats.Skipped, stats.Failed, elapsed.Milliseconds())
}
