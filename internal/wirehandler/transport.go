package wirehandler

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/proxy"

	"github.com/shurlinet/radnode/internal/noise"
)

// ioTimeout bounds every individual Read/Write on a session's TCP
// connection. It is not a connection lifetime: each call gets a fresh
// deadline. A Read that sees no inbound bytes within ioTimeout returns a
// timeout error, which the reactor treats as a transport failure, so a
// connection silent for that long is torn down.
const ioTimeout = 6 * time.Second

// keepaliveIdle/Interval/Count set a 30s/10s/3-retries TCP keepalive,
// applied when the platform supports per-connection tuning.
const (
	keepaliveIdle     = 30 * time.Second
	keepaliveInterval = 10 * time.Second
	keepaliveCount    = 3
)

// netTransport adapts a net.Conn into a reactor.Transport. It carries no
// protocol knowledge of its own: Noise encryption and record framing are
// handled by the caller (see encryptRecord/feedPeer), so WriteAtomic's
// never-partial-write contract reduces to net.Conn.Write's own all-or-error
// behavior for a single buffer.
type netTransport struct {
	conn net.Conn
}

func (t *netTransport) Read(p []byte) (int, error) {
	_ = t.conn.SetReadDeadline(time.Now().Add(ioTimeout))
	return t.conn.Read(p)
}

func (t *netTransport) IsReadyToWrite() bool { return true }

func (t *netTransport) WriteAtomic(p []byte) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	n, err := t.conn.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("wirehandler: short write: %d of %d bytes", n, len(p))
	}
	return nil
}

func (t *netTransport) Close() error { return t.conn.Close() }

// DialOptions configures outbound TCP dialing.
type DialOptions struct {
	// ProxyAddr, if non-empty, is a SOCKS5 proxy address every dial goes
	// through (used for onion addresses and, optionally, all traffic).
	ProxyAddr string
	// ProxyAuth is optional SOCKS5 username/password auth.
	ProxyAuth *proxy.Auth
	// OnionStrategy selects how a ".onion" host is reached when ProxyAddr
	// is empty: "forward" resolves it as a DNS-style name through the
	// default dialer, relying on the network's own onion-aware resolver.
	// Any other non-empty value is rejected.
	OnionStrategy string
}

func isOnionAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	const suffix = ".onion"
	return len(host) > len(suffix) && host[len(host)-len(suffix):] == suffix
}

// dialTCP opens a TCP connection to addr applying this package's socket
// options, routing through opts' proxy when configured or required.
func dialTCP(addr string, opts DialOptions) (net.Conn, error) {
	onion := isOnionAddr(addr)
	if onion && opts.ProxyAddr == "" {
		switch opts.OnionStrategy {
		case "forward":
			// fall through to a direct dial; the network's resolver is
			// assumed to route .onion names (e.g. via a local Tor DNS
			// proxy already configured system-wide).
		case "":
			return nil, ErrOnionProxyRequired
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownOnionStrategy, opts.OnionStrategy)
		}
	}

	dialer := &net.Dialer{
		Timeout: ioTimeout,
		KeepAliveConfig: net.KeepAliveConfig{
			Enable:   true,
			Idle:     keepaliveIdle,
			Interval: keepaliveInterval,
			Count:    keepaliveCount,
		},
	}

	var conn net.Conn
	var err error
	if opts.ProxyAddr != "" {
		d, derr := proxy.SOCKS5("tcp", opts.ProxyAddr, opts.ProxyAuth, dialer)
		if derr != nil {
			return nil, fmt.Errorf("wirehandler: socks5 dialer: %w", derr)
		}
		conn, err = d.Dial("tcp", addr)
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("wirehandler: dial %s: %w", addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}

// encryptRecord encrypts plaintext through session and wraps the
// ciphertext in a length-prefixed record ready to send as raw Transport
// bytes. session must report IsReadyToWrite() (true for every session this
// handler drives, since WriteAtomic+Flush are always called back to back
// here rather than left pending across reactor ticks).
func encryptRecord(session *noise.Session, plaintext []byte) ([]byte, error) {
	if err := session.WriteAtomic(plaintext); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for !session.IsReadyToWrite() {
		if _, err := session.Flush(&buf); err != nil {
			return nil, err
		}
	}
	return encodeRecord(buf.Bytes()), nil
}
