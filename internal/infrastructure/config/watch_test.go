package config

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, validYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) {
			select {
			case changes <- c:
			default:
			}
		}, nil)
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	updated := strings.Replace(validYAML, `device_name: "dev"`, `device_name: "dev-2"`, 1)
	if err := os.WriteFile(path, []byte(updated), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-changes:
		if cfg.Platform.DeviceName != "dev-2" {
			t.Errorf("reloaded DeviceName = %q, want dev-2", cfg.Platform.DeviceName)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watch() did not return after cancel")
	}
}

func TestWatch_InvalidEditReportsError(t *testing.T) {
	path := writeConfig(t, validYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(chan error, 1)
	go func() {
		_ = Watch(ctx, path, func(*Config) {
			t.Error("onChange called for invalid config")
		}, func(err error) {
			select {
			case errs <- err:
			default:
			}
		})
	}()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("platform: ["), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case err := <-errs:
		if err == nil {
			t.Error("onError called with nil")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload error")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), "/nonexistent/dir/config.yaml", func(*Config) {}, nil)
	if err == nil {
		t.Error("Watch() expected error for missing directory")
	}
}
