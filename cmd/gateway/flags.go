package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/admission/config"
)

// applyFlags overlays command line flags onto the loaded configuration.
// Flags win over environment variables.
func applyFlags(cfg *config.Config, args []string, output io.Writer) {
	if output == nil {
		output = io.Discard
	}
	fs := flag.NewFlagSet("gateway", flag.ExitOnError)
	fs.SetOutput(output)

	listenAddr := fs.String("listen_addr", "", "http listen address")
	storeBackend := fs.String("store", "", "counter store backend (memory or redis)")
	redisAddr := fs.String("redis_addr", "", "redis address")
	sweepInterval := fs.Duration("sweep_interval", 0, "cleanup sweep interval")
	globalRPS := fs.Float64("global_rps", -1, "global request rate cap, 0 disables")
	disabled := fs.Bool("disable_ratelimit", false, "disable rate limiting")
	fs.Usage = func() {
		fmt.Fprintln(output, "Usage")
		fmt.Fprintln(output, "  gateway [flags]")
		fmt.Fprintln(output, "")
		fmt.Fprintln(output, "Flags")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *storeBackend != "" {
		cfg.StoreBackend = *storeBackend
	}
	if *redisAddr != "" {
		cfg.RedisAddr = *redisAddr
	}
	if *sweepInterval > time.Duration(0) {
		cfg.SweepInterval = *sweepInterval
	}
	if *globalRPS >= 0 {
		cfg.GlobalRPS = *globalRPS
	}
	if *disabled {
		cfg.RateLimiting = false
	}
}
