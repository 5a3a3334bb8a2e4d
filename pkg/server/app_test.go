package server

import (
	"context"
	"testing"
	"time"

	"PriceFlow/pkg/config"
	applogger "PriceFlow/pkg/logger"
)

func testApp(t *testing.T, shutdownTimeout time.Duration) *App {
	t.Helper()
	log, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	cfg := &config.Config{}
	cfg.Server.ShutdownTimeout = shutdownTimeout
	return New(cfg, log, nil, nil, nil, nil, nil, nil, nil, nil, nil)
}

func TestShutdownWaitsForMemberExit(t *testing.T) {
	app := testApp(t, time.Second)

	memberDone := make(chan error)
	go func() {
		time.Sleep(60 * time.Millisecond)
		close(memberDone)
	}()

	start := time.Now()
	if err := app.shutdown(context.Background(), memberDone); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if time.Since(start) < 60*time.Millisecond {
		t.Fatal("shutdown returned before the consumer member finished")
	}
}

func TestShutdownGivesUpOnStuckMember(t *testing.T) {
	app := testApp(t, 40*time.Millisecond)

	memberDone := make(chan error) // never signaled

	start := time.Now()
	if err := app.shutdown(context.Background(), memberDone); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 40*time.Millisecond {
		t.Fatalf("shutdown returned after %v, before the timeout", elapsed)
	}
	if elapsed > time.Second {
		t.Fatalf("shutdown hung for %v on a stuck member", elapsed)
	}
}
