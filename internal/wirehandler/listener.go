package wirehandler

import (
	"net"

	"github.com/shurlinet/radnode/internal/reactor"
)

// netListener adapts a net.Listener into a reactor.Listener, producing a
// netTransport for every accepted connection.
type netListener struct {
	ln net.Listener
}

// Listen opens a TCP listener on addr.
func Listen(addr string) (*netListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &netListener{ln: ln}, nil
}

func (l *netListener) Accept() (reactor.Transport, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return &netTransport{conn: conn}, nil
}

func (l *netListener) Close() error { return l.ln.Close() }

func (l *netListener) Addr() net.Addr { return l.ln.Addr() }

// RemoteAddr exposes the peer address of an accepted connection, used by
// the handler to evaluate Service.Accepted(ip) before completing
// registration.
func (t *netTransport) RemoteAddr() net.Addr { return t.conn.RemoteAddr() }
