package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/matst80/warppipe/internal/obs"
	"github.com/matst80/warppipe/internal/ratelimit"
)

func main() {
	flag.Parse()
	if err := applyConfigFile(); err != nil {
		obs.Error("config.load", obs.Fields{"err": err.Error(), "file": cfg.ConfigFile})
		os.Exit(1)
	}
	if cfg.Debug {
		obs.EnableDebug(true)
	}
	obs.Info("relay.start", obs.Fields{"public": cfg.PublicAddr, "aux": cfg.AuxAddr, "metrics": cfg.MetricsAddr})

	store, err := newSessionStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		obs.Error("state.init", obs.Fields{"err": err.Error()})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pubLn, err := net.Listen("tcp", cfg.PublicAddr)
	if err != nil {
		obs.Error("listen.public", obs.Fields{"err": err.Error(), "addr": cfg.PublicAddr})
		os.Exit(1)
	}
	defer pubLn.Close()

	auxLn, err := net.Listen("tcp", cfg.AuxAddr)
	if err != nil {
		obs.Error("listen.aux", obs.Fields{"err": err.Error(), "addr": cfg.AuxAddr})
		os.Exit(1)
	}
	defer auxLn.Close()

	limiter := ratelimit.New(cfg.AcceptRate, cfg.AcceptBurst)

	go startMetricsServer(cfg.MetricsAddr, store)
	go runSweepLoop(ctx, store, limiter, cfg.SweepInterval, cfg.AwaitTimeout)
	if rs, ok := store.(*redisStore); ok {
		go rs.startMaintenance(ctx, 30*time.Second)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); acceptAux(ctx, auxLn, store) }()
	wg.Add(1)
	go func() { defer wg.Done(); acceptPlayers(ctx, pubLn, store, limiter, cfg.AwaitTimeout) }()

	store.setReady(true)
	obs.Info("relay.ready", obs.Fields{})

	<-ctx.Done()
	obs.Info("relay.shutdown.signal", obs.Fields{})
	store.setClosing(true)
	_ = pubLn.Close()
	_ = auxLn.Close()
	// Final sweep flushes every still-awaiting player.
	store.evictExpired(cfg.AwaitTimeout)
	wg.Wait()
	obs.Info("relay.shutdown.complete", obs.Fields{})
}
