package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vascredit/internal/config"
	"vascredit/internal/gateway"
	internalhttp "vascredit/internal/http"
	"vascredit/internal/journal"
	"vascredit/internal/ledger"
	"vascredit/internal/saga"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx := context.Background()
	pool, err := journal.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	jnl := journal.New(pool)
	gw, err := gateway.NewMultiClient(
		cfg.Gateway.Endpoints,
		gateway.Credentials{Username: cfg.Gateway.Username, Password: cfg.Gateway.Password},
		time.Duration(cfg.Gateway.TimeoutSeconds)*time.Second,
		cfg.Gateway.FailoverThreshold,
	)
	if err != nil {
		log.Fatalf("gateway client failed: %v", err)
	}
	ldg := ledger.NewClient(cfg.Ledger.BaseURL, time.Duration(cfg.Ledger.TimeoutSeconds)*time.Second)

	hub := internalhttp.NewHub()
	orchestrator := &saga.Orchestrator{
		Gateway: gw,
		Ledger:  ldg,
		Journal: jnl,
		Notify:  hub,
		Policy: saga.PollPolicy{
			Interval:    time.Duration(cfg.Polling.IntervalSeconds) * time.Second,
			MaxAttempts: cfg.Polling.MaxAttempts,
		},
	}

	h := &internalhttp.Handler{
		Purchases: orchestrator,
		Catalog:   gw,
		Ledger:    ldg,
		Journal:   jnl,
		Hub:       hub,
	}
	srv := internalhttp.NewServer(h)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		log.Printf("api listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
