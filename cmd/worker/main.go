package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vascredit/internal/config"
	"vascredit/internal/gateway"
	"vascredit/internal/journal"
	"vascredit/internal/ledger"
	"vascredit/internal/worker"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := journal.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	gw, err := gateway.NewMultiClient(
		cfg.Gateway.Endpoints,
		gateway.Credentials{Username: cfg.Gateway.Username, Password: cfg.Gateway.Password},
		time.Duration(cfg.Gateway.TimeoutSeconds)*time.Second,
		cfg.Gateway.FailoverThreshold,
	)
	if err != nil {
		log.Fatalf("gateway client failed: %v", err)
	}

	w := &worker.Worker{
		Journal:      journal.New(pool),
		Gateway:      gw,
		Ledger:       ledger.NewClient(cfg.Ledger.BaseURL, time.Duration(cfg.Ledger.TimeoutSeconds)*time.Second),
		Interval:     time.Duration(cfg.Worker.IntervalSeconds) * time.Second,
		StaleAfter:   time.Duration(cfg.Worker.StaleAfterSeconds) * time.Second,
		AbandonAfter: time.Duration(cfg.Worker.AbandonAfterSeconds) * time.Second,
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		cancel()
	}()

	log.Printf("reconciliation worker started interval=%s", w.Interval)
	w.Run(ctx)
}
