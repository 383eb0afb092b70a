package tor

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultStartupTimeout is the maximum time to wait for Tor to bootstrap.
const DefaultStartupTimeout = 3 * time.Minute

// defaultListenAddr lets the OS pick a free port.
const defaultListenAddr = ":0"

// daemon is the running Tor process. *tornago.TorProcess implements it.
type daemon interface {
	SocksAddr() string
	ControlAddr() string
	Stop() error
}

// launchFunc starts a Tor daemon and blocks until it is bootstrapped.
type launchFunc func(socksAddr, controlAddr string, timeout time.Duration) (daemon, error)

// EmbeddedTor runs a Tor daemon for the lifetime of one madrecon run, so
// `madrecon run --tor` works on hosts without a system Tor service.
//
// Design decision: the daemon is owned by the run, not shared:
//  1. Its SOCKS port is picked by the OS, so parallel runs never collide
//  2. Stopping it when the run ends leaves no background process behind
//  3. The recon tools only see a SOCKS5 address in their environment, the
//     same contract as an external --proxy
//
// Note: bootstrapping takes one to three minutes. Tor has to:
//   - Download directory information from the Tor network
//   - Build initial circuits through the relay network
//   - Open its SOCKS and control listeners
//
// No tool is started before Start returns, so the first stage never races
// the bootstrap.
type EmbeddedTor struct {
	// process is the running daemon, nil before Start and after Stop.
	process daemon

	// socksAddr is the SOCKS5 address handed to the tools.
	socksAddr string

	// controlAddr is the control port address, logged for diagnostics.
	controlAddr string

	// listenSocks and listenControl are the requested listen addresses.
	listenSocks   string
	listenControl string

	// startupTimeout is the maximum time to wait for Tor to bootstrap.
	startupTimeout time.Duration

	// launch starts the daemon. Tests replace it.
	launch launchFunc
}

// EmbeddedTorOption configures an EmbeddedTor instance.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets the maximum time to wait for Tor to bootstrap.
// Non-positive values keep DefaultStartupTimeout.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		if timeout > 0 {
			e.startupTimeout = timeout
		}
	}
}

// WithSocksAddr pins the SOCKS listen address, e.g. "127.0.0.1:9150".
// By default the OS picks a free port.
func WithSocksAddr(addr string) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.listenSocks = addr
	}
}

// withLauncher replaces the daemon launcher.
func withLauncher(fn launchFunc) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.launch = fn
	}
}

// NewEmbeddedTor creates a new embedded Tor manager.
// Call Start() to actually launch the Tor daemon.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{
		listenSocks:    defaultListenAddr,
		listenControl:  defaultListenAddr,
		startupTimeout: DefaultStartupTimeout,
		launch:         launchTornago,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// launchTornago starts a daemon with tornago.
func launchTornago(socksAddr, controlAddr string, timeout time.Duration) (daemon, error) {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(socksAddr),
		tornago.WithTorControlAddr(controlAddr),
		tornago.WithTorStartupTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	// Blocks until Tor is bootstrapped or the startup timeout expires.
	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return nil, err
	}
	return process, nil
}

// Start launches the embedded Tor daemon and waits for it to bootstrap.
//
// The bootstrap itself cannot be interrupted. When ctx is cancelled while
// Tor starts (the operator pressed Ctrl-C), the daemon is stopped as soon
// as it is up and ctx.Err() is returned.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	if e.IsRunning() {
		return ErrAlreadyRunning
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	process, err := e.launch(e.listenSocks, e.listenControl, e.startupTimeout)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	if err := ctx.Err(); err != nil {
		_ = process.Stop() //nolint:errcheck // best effort, the run is over
		return err
	}

	e.process = process
	e.socksAddr = process.SocksAddr()
	e.controlAddr = process.ControlAddr()

	return nil
}

// Stop shuts down the embedded Tor daemon.
// run calls it when the pipeline has finished, interrupted or not.
//
// It's safe to call Stop() multiple times or on an unstarted instance.
func (e *EmbeddedTor) Stop() error {
	if e.process == nil {
		return nil
	}

	err := e.process.Stop()
	e.process = nil
	e.socksAddr = ""
	e.controlAddr = ""
	return err
}

// SocksAddr returns the SOCKS5 address of the running daemon.
// Returns an empty string if Tor is not running.
//
// The format is "host:port" (e.g., "127.0.0.1:42715"). Proxy wraps it for
// the tool environment.
func (e *EmbeddedTor) SocksAddr() string {
	return e.socksAddr
}

// ControlAddr returns the control port address of the running daemon.
// Returns an empty string if Tor is not running.
//
// madrecon only logs it; no stage talks to the control port.
func (e *EmbeddedTor) ControlAddr() string {
	return e.controlAddr
}

// IsRunning returns true if the embedded Tor daemon is currently running.
func (e *EmbeddedTor) IsRunning() bool {
	return e.process != nil
}

// Proxy returns the running daemon's SOCKS port as a Proxy, ready for the
// same handshake check and environment as an external --proxy.
func (e *EmbeddedTor) Proxy() (*Proxy, error) {
	if !e.IsRunning() {
		return nil, ErrNotRunning
	}
	return NewProxy(e.socksAddr)
}
