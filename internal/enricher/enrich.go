// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package enricher

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/n6-community/n6/internal/logging"
	"github.com/n6-community/n6/internal/record"
)

// Enricher augments records with FQDN/address/ASN/CC annotations
// following the exact precedence chain of enrich.py (see SPEC_FULL.md §5):
// FQDN is derived from the URL only when absent; address is derived from
// the URL or from DNS resolution of the FQDN, never both; excluded IPs
// are dropped from the address list before any GeoIP lookup runs; a
// pre-existing asn/cc on an address item is always discarded, since the
// enricher is the sole authority for those fields.
type Enricher struct {
	DNS              DnsResolver
	GeoIP            GeoIPLookup
	ExcludeList      *ExcludeList
	ResolveFQDNToIP  bool
	DNSTimeout       time.Duration
}

// New returns an Enricher. geoip may be NoopGeoIP{} to disable GeoIP
// annotation entirely.
func New(dnsResolver DnsResolver, geoip GeoIPLookup, excludeList *ExcludeList, resolveFQDNToIP bool, dnsTimeout time.Duration) *Enricher {
	if geoip == nil {
		geoip = NoopGeoIP{}
	}
	if dnsTimeout <= 0 {
		dnsTimeout = 2 * time.Second
	}
	return &Enricher{DNS: dnsResolver, GeoIP: geoip, ExcludeList: excludeList, ResolveFQDNToIP: resolveFQDNToIP, DNSTimeout: dnsTimeout}
}

// Enrich mutates r in place, setting r.Enriched to the set of keys it
// added. ctx bounds any DNS lookup performed.
func (e *Enricher) Enrich(ctx context.Context, r *record.Record) {
	toplevel := make([]string, 0, 1)
	added := make(map[string][]string)

	urlHost, urlIsIPLiteral, urlIP := parseURLHost(r.URL)

	if r.FQDN == "" && urlHost != "" && !urlIsIPLiteral {
		r.FQDN = urlHost
		toplevel = append(toplevel, "fqdn")
	}

	if len(r.Address) == 0 {
		if r.FQDN != "" && e.ResolveFQDNToIP && e.DNS != nil {
			lookupCtx, cancel := context.WithTimeout(ctx, e.DNSTimeout)
			ips, err := e.DNS.ResolveA(lookupCtx, r.FQDN)
			cancel()
			if err != nil {
				logging.CtxWarn(ctx).Err(err).Str("fqdn", r.FQDN).Msg("enricher: dns resolution failed, leaving address empty")
			}
			for _, ip := range ips {
				if isPlaceholderIP(ip) {
					continue
				}
				r.Address = append(r.Address, record.Address{IP: ip.String()})
			}
		} else if urlIsIPLiteral {
			r.Address = append(r.Address, record.Address{IP: urlIP.String()})
		}
	}

	r.Address = e.filterExcluded(r.Address)

	for i := range r.Address {
		addr := &r.Address[i]
		if addr.ASN != nil || addr.CC != nil {
			logging.CtxWarn(ctx).Str("ip", addr.IP).Msg("enricher: dropping pre-existing geo annotation, enricher is authoritative")
			addr.ASN = nil
			addr.CC = nil
		}

		ip := net.ParseIP(addr.IP)
		if ip == nil {
			continue
		}

		var addedKeys []string
		if asn, ok := e.GeoIP.LookupASN(ip); ok {
			addr.ASN = &asn
			addedKeys = append(addedKeys, "asn")
		}
		if cc, ok := e.GeoIP.LookupCC(ip); ok {
			addr.CC = &cc
			addedKeys = append(addedKeys, "cc")
		}
		if len(addedKeys) > 0 {
			added[addr.IP] = addedKeys
		}
	}

	if len(toplevel) > 0 || len(added) > 0 {
		r.Enriched = &record.Enriched{TopLevel: toplevel, Address: added}
	}
}

func (e *Enricher) filterExcluded(addrs []record.Address) []record.Address {
	if e.ExcludeList == nil {
		return addrs
	}
	out := make([]record.Address, 0, len(addrs))
	for _, a := range addrs {
		ip := net.ParseIP(a.IP)
		if ip != nil && e.ExcludeList.Contains(ip) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// parseURLHost extracts the host component of rawURL, reporting whether
// it is an IPv4 literal.
func parseURLHost(rawURL string) (host string, isIPv4Literal bool, ip net.IP) {
	if rawURL == "" {
		return "", false, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false, nil
	}
	host = u.Hostname()
	if host == "" {
		return "", false, nil
	}
	parsed := net.ParseIP(host)
	if parsed != nil && parsed.To4() != nil {
		return host, true, parsed
	}
	return host, false, nil
}

// isPlaceholderIP mirrors record.stripPlaceholderAddresses: DNS answers
// of 0.0.0.0 carry no routable meaning and must never be attached.
func isPlaceholderIP(ip net.IP) bool {
	return ip.Equal(net.IPv4zero)
}
