package tor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewEmbeddedTor(t *testing.T) {
	t.Parallel()

	t.Run("creates with default timeout", func(t *testing.T) {
		t.Parallel()

		embedded := NewEmbeddedTor()
		if embedded.startupTimeout != DefaultStartupTimeout {
			t.Errorf("expected default timeout %v, got %v", DefaultStartupTimeout, embedded.startupTimeout)
		}
	})

	t.Run("ignores a non-positive timeout", func(t *testing.T) {
		t.Parallel()

		embedded := NewEmbeddedTor(WithStartupTimeout(0))
		if embedded.startupTimeout != DefaultStartupTimeout {
			t.Errorf("expected default timeout, got %v", embedded.startupTimeout)
		}
	})

	t.Run("applies WithStartupTimeout", func(t *testing.T) {
		t.Parallel()

		embedded := NewEmbeddedTor(WithStartupTimeout(30 * time.Second))
		if embedded.startupTimeout != 30*time.Second {
			t.Errorf("expected timeout 30s, got %v", embedded.startupTimeout)
		}
	})
}

func TestEmbeddedTorBeforeStart(t *testing.T) {
	t.Parallel()

	embedded := NewEmbeddedTor()
	if embedded.IsRunning() {
		t.Error("expected IsRunning to be false before start")
	}
	if embedded.SocksAddr() != "" || embedded.ControlAddr() != "" {
		t.Error("expected empty addresses before start")
	}
	if err := embedded.Stop(); err != nil {
		t.Errorf("expected no error stopping unstarted instance, got %v", err)
	}
	if _, err := embedded.Proxy(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Proxy() error = %v, want ErrNotRunning", err)
	}
}

// fakeDaemon stands in for a bootstrapped Tor process.
type fakeDaemon struct {
	socks   string
	stopped int
}

func (d *fakeDaemon) SocksAddr() string   { return d.socks }
func (d *fakeDaemon) ControlAddr() string { return "127.0.0.1:9051" }
func (d *fakeDaemon) Stop() error {
	d.stopped++
	return nil
}

func TestEmbeddedTorStart(t *testing.T) {
	t.Parallel()

	t.Run("records addresses and exposes a proxy", func(t *testing.T) {
		t.Parallel()

		d := &fakeDaemon{socks: "127.0.0.1:42715"}
		var gotSocks string
		var gotTimeout time.Duration
		embedded := NewEmbeddedTor(
			WithSocksAddr("127.0.0.1:9150"),
			WithStartupTimeout(time.Minute),
			withLauncher(func(socks, _ string, timeout time.Duration) (daemon, error) {
				gotSocks, gotTimeout = socks, timeout
				return d, nil
			}),
		)

		if err := embedded.Start(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotSocks != "127.0.0.1:9150" || gotTimeout != time.Minute {
			t.Errorf("launched with %q, %v", gotSocks, gotTimeout)
		}
		if !embedded.IsRunning() || embedded.SocksAddr() != "127.0.0.1:42715" {
			t.Errorf("unexpected state: running=%v socks=%q", embedded.IsRunning(), embedded.SocksAddr())
		}

		p, err := embedded.Proxy()
		if err != nil {
			t.Fatalf("Proxy() error = %v", err)
		}
		if p.URL() != "socks5://127.0.0.1:42715" {
			t.Errorf("URL() = %q", p.URL())
		}

		if err := embedded.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
			t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
		}

		if err := embedded.Stop(); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
		if err := embedded.Stop(); err != nil {
			t.Fatalf("second Stop() error = %v", err)
		}
		if d.stopped != 1 || embedded.IsRunning() || embedded.SocksAddr() != "" {
			t.Errorf("expected one stop and cleared state, got stopped=%d", d.stopped)
		}
	})

	t.Run("launch failure", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("tor binary not found")
		embedded := NewEmbeddedTor(withLauncher(func(string, string, time.Duration) (daemon, error) {
			return nil, boom
		}))
		if err := embedded.Start(context.Background()); !errors.Is(err, boom) {
			t.Errorf("Start() error = %v, want wrapped launch error", err)
		}
		if embedded.IsRunning() {
			t.Error("expected daemon not running")
		}
	})

	t.Run("cancelled during bootstrap stops the daemon", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		d := &fakeDaemon{socks: "127.0.0.1:42715"}
		embedded := NewEmbeddedTor(withLauncher(func(string, string, time.Duration) (daemon, error) {
			cancel()
			return d, nil
		}))

		if err := embedded.Start(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Start() error = %v, want context.Canceled", err)
		}
		if d.stopped != 1 || embedded.IsRunning() {
			t.Errorf("expected the daemon to be stopped, stopped=%d", d.stopped)
		}
	})

	t.Run("cancelled before start launches nothing", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		launched := false
		embedded := NewEmbeddedTor(withLauncher(func(string, string, time.Duration) (daemon, error) {
			launched = true
			return &fakeDaemon{}, nil
		}))
		if err := embedded.Start(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Start() error = %v", err)
		}
		if launched {
			t.Error("expected no launch")
		}
	})
}
