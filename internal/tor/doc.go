// Package tor routes the traffic of external recon tools through a SOCKS5
// proxy.
//
// Two sources of proxy are supported:
//   - an external SOCKS5 proxy given as host:port, checked with a SOCKS5
//     handshake before the run starts
//   - an embedded Tor daemon started with tornago for the duration of the run
//
// Tools are not Go code, so the proxy reaches them through the
// environment: Proxy.Env returns HTTP_PROXY, HTTPS_PROXY and ALL_PROXY
// entries for the tool adapter.
package tor
