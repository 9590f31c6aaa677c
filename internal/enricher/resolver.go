// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package enricher

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// DnsResolver resolves A records for an FQDN. Implementations must treat
// lookup failure and timeout as non-fatal: callers drop the annotation,
// never the record.
type DnsResolver interface {
	ResolveA(ctx context.Context, fqdn string) ([]net.IP, error)
}

// MiekgDNSResolver issues explicit, timeout-bounded A queries against a
// configured resolver instead of relying on the OS resolver, so enricher
// behavior doesn't depend on host-level resolv.conf/nsswitch quirks.
type MiekgDNSResolver struct {
	Server  string // host:port
	Timeout time.Duration
}

// NewMiekgDNSResolver returns a resolver querying host:port.
func NewMiekgDNSResolver(host string, port int, timeout time.Duration) *MiekgDNSResolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &MiekgDNSResolver{Server: fmt.Sprintf("%s:%d", host, port), Timeout: timeout}
}

// ResolveA performs a single A-record query for fqdn.
func (r *MiekgDNSResolver) ResolveA(ctx context.Context, fqdn string) ([]net.IP, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(fqdn), dns.TypeA)

	client := &dns.Client{Timeout: r.Timeout}
	in, _, err := client.ExchangeContext(ctx, msg, r.Server)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", fqdn, err)
	}

	var ips []net.IP
	for _, rr := range in.Answer {
		if a, ok := rr.(*dns.A); ok {
			ips = append(ips, a.A)
		}
	}
	return ips, nil
}
