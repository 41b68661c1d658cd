package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakePruner struct {
	calls  atomic.Int64
	pruned int64
	err    error
}

func (f *fakePruner) DeleteExpiredFingerprints(ctx context.Context, window time.Duration) (int64, error) {
	f.calls.Add(1)
	if f.err != nil {
		return 0, f.err
	}
	return f.pruned, nil
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"interval too short", func(c *Config) { c.Interval = time.Second }},
		{"retention too short", func(c *Config) { c.RetentionWindow = time.Minute }},
		{"shutdown timeout too short", func(c *Config) { c.ShutdownTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNewJanitorRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = 0
	if _, err := NewJanitor(&fakePruner{}, cfg, testLogger); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestJanitorSweepsOnStart(t *testing.T) {
	pruner := &fakePruner{pruned: 5}

	cfg := DefaultConfig()
	cfg.Interval = time.Hour // only the startup sweep should run

	janitor, err := NewJanitor(pruner, cfg, testLogger)
	if err != nil {
		t.Fatalf("NewJanitor() error: %v", err)
	}

	janitor.Start(context.Background())
	defer janitor.Stop()

	deadline := time.Now().Add(time.Second)
	for pruner.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if pruner.calls.Load() != 1 {
		t.Errorf("sweeps = %d, want 1 immediate sweep", pruner.calls.Load())
	}
}

func TestJanitorSurvivesSweepErrors(t *testing.T) {
	pruner := &fakePruner{err: errors.New("db down")}

	janitor, err := NewJanitor(pruner, DefaultConfig(), testLogger)
	if err != nil {
		t.Fatalf("NewJanitor() error: %v", err)
	}

	janitor.Start(context.Background())

	deadline := time.Now().Add(time.Second)
	for pruner.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// Stop must return promptly even though the sweep failed.
	done := make(chan struct{})
	go func() {
		janitor.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return")
	}
}
