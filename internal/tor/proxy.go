package tor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// checkProxyTimeout bounds the SOCKS5 handshake performed by CheckConnection.
const checkProxyTimeout = 2 * time.Second

// SOCKS5 protocol constants
const (
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5AuthNoAccept  = 0xFF
	socks5CmdConnect    = 0x01
	socks5AddrTypeDomID = 0x03

	// socks5ProbeHost is a reserved name (RFC 2606) used for the CONNECT
	// probe. The request only has to be answered, not succeed.
	socks5ProbeHost = "madrecon-probe.invalid"
)

// Proxy is a SOCKS5 proxy that external tools are routed through.
type Proxy struct {
	// address is the proxy address in "host:port" format.
	address string

	// dialer dials through the proxy.
	dialer proxy.Dialer
}

// NewProxy validates address and returns a Proxy for it. It does not
// contact the proxy; call CheckConnection for that.
func NewProxy(address string) (*Proxy, error) {
	if !isValidProxyAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, address)
	}

	// Tor's SOCKS port does not require auth.
	dialer, err := proxy.SOCKS5("tcp", address, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	return &Proxy{
		address: address,
		dialer:  dialer,
	}, nil
}

// isValidProxyAddress reports whether address is host:port with a port in
// 1-65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// Address returns the proxy address.
func (p *Proxy) Address() string {
	return p.address
}

// URL returns the proxy as a socks5:// URL.
func (p *Proxy) URL() string {
	return "socks5://" + p.address
}

// Env returns the environment entries that route tool traffic through the
// proxy. Both upper and lower case names are set since tools disagree on
// which they read.
func (p *Proxy) Env() []string {
	u := p.URL()
	return []string{
		"HTTP_PROXY=" + u,
		"HTTPS_PROXY=" + u,
		"ALL_PROXY=" + u,
		"http_proxy=" + u,
		"https_proxy=" + u,
		"all_proxy=" + u,
	}
}

// CheckConnection verifies that the proxy accepts unauthenticated SOCKS5
// and answers a CONNECT request. Any SOCKS5 reply to the CONNECT, success
// or failure, counts as OK.
func (p *Proxy) CheckConnection(ctx context.Context) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// Greeting: version, one method, no auth.
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if authResp[0] != socks5Version || authResp[1] == socks5AuthNoAccept || authResp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	connectReq := []byte{
		socks5Version,
		socks5CmdConnect,
		0x00, // reserved
		socks5AddrTypeDomID,
		byte(len(socks5ProbeHost)),
	}
	connectReq = append(connectReq, socks5ProbeHost...)
	connectReq = append(connectReq, 0x00, 0x50) // port 80

	if _, err := conn.Write(connectReq); err != nil {
		return ProxyStatusCannotConnect
	}

	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}

	return ProxyStatusOK
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
}

// CheckRoute dials hostport through the proxy. It tells whether the target
// is reachable through the proxy at all before tools are started.
func (p *Proxy) CheckRoute(ctx context.Context, hostport string) error {
	var (
		conn net.Conn
		err  error
	)
	if cd, ok := p.dialer.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", hostport)
	} else {
		conn, err = p.dialer.Dial("tcp", hostport)
	}
	if err != nil {
		return fmt.Errorf("dial %s through %s: %w", hostport, p.address, err)
	}
	return conn.Close()
}
