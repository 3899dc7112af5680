package app

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sandeepkv93/checkin-gateway/internal/config"
	"github.com/sandeepkv93/checkin-gateway/internal/store"
)

type countingSweeper struct {
	*store.MemoryKV
	sweeps atomic.Int32
}

func (s *countingSweeper) PurgeExpired(ctx context.Context) (int64, error) {
	s.sweeps.Add(1)
	return s.MemoryKV.PurgeExpired(ctx)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestNewAssignsDependenciesAndTimeouts(t *testing.T) {
	cfg := config.Config{
		ShutdownTimeout:              10 * time.Second,
		ShutdownHTTPDrainTimeout:     2 * time.Second,
		ShutdownObservabilityTimeout: 3 * time.Second,
		StoreSweepInterval:           time.Minute,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := &http.Server{Addr: ":8080", ReadHeaderTimeout: time.Second}
	kv := store.NewMemoryKV()

	a := New(cfg, logger, server, nil, kv)
	if a.Logger != logger || a.Server != server || a.Store != kv {
		t.Fatal("expected app dependencies to be assigned")
	}
	if a.ShutdownTimeout != cfg.ShutdownTimeout || a.ShutdownHTTPDrainTimeout != cfg.ShutdownHTTPDrainTimeout || a.ShutdownObservabilityTimeout != cfg.ShutdownObservabilityTimeout {
		t.Fatal("expected app shutdown timeouts copied from config")
	}
	if a.SweepInterval != time.Minute {
		t.Fatalf("expected sweep interval from config, got %s", a.SweepInterval)
	}
}

func TestRunServesUntilCancelledAndSweeps(t *testing.T) {
	addr := freeAddr(t)
	kv := &countingSweeper{MemoryKV: store.NewMemoryKV()}
	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	}
	a := New(config.Config{ShutdownTimeout: 2 * time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)), server, nil, kv)
	a.SweepInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusNoContent {
				t.Fatalf("expected 204, got %d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	for kv.sweeps.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if kv.sweeps.Load() == 0 {
		t.Fatal("expected the sweeper to run")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRunReportsListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	server := &http.Server{Addr: ln.Addr().String(), ReadHeaderTimeout: time.Second}
	a := New(config.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)), server, nil, store.NewMemoryKV())
	if err := a.Run(context.Background()); err == nil {
		t.Fatal("expected listen error on an occupied port")
	}
}
