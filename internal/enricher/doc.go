// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package enricher augments a canonical record with FQDN/address
// information derived from its URL, DNS A-record resolution, and
// GeoIP ASN/CC annotation, following the exact precedence chain from
// enrich.py (see DESIGN.md). DNS and GeoIP lookups are pluggable
// strategy interfaces so a deployment without GeoIP databases still
// runs correctly with NoopGeoIP.
package enricher
