package offline

import (
	"context"
	"net"
	"net/url"
	"time"
)

// Prober answers "is the HR backend reachable at the transport level".
// It distinguishes a dead network from a struggling backend: HTTP-level
// failures alone never flip the agent offline.
type Prober interface {
	Reachable(ctx context.Context) bool
}

// TCPProber dials the HR host's TCP port with a short timeout.
type TCPProber struct {
	addr    string
	timeout time.Duration
}

// NewTCPProber builds a prober for the given base URL, defaulting the
// port from the scheme.
func NewTCPProber(baseURL string, timeout time.Duration) (*TCPProber, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		if u.Scheme == "http" {
			port = "80"
		} else {
			port = "443"
		}
	}
	return &TCPProber{
		addr:    net.JoinHostPort(host, port),
		timeout: timeout,
	}, nil
}

// Reachable reports whether a TCP connection can be established.
func (p *TCPProber) Reachable(ctx context.Context) bool {
	d := net.Dialer{Timeout: p.timeout}
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
