// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package eventdb

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"
)

// exactMatchColumns maps a query parameter name to the SQL expression
// testing it. Fields that the recorder does not carry as a first-class
// column (spec.md §3.4 only names id/time/ip/dip/source/restriction/
// confidence/category/type/name/target/status/expires/modified/md5/
// sha1/sha256 as columns) are read out of the events.custom JSON blob,
// which always carries the full serialized record (recorder.Upsert).
var exactMatchColumns = map[string]string{
	"source":      "events.source",
	"category":    "events.category",
	"confidence":  "events.confidence",
	"restriction": "events.restriction",
	"name":        "events.name",
	"status":      "events.status",
	"target":      "events.target",
	"origin":      "json_extract_string(events.custom, '$.origin')",
	"proto":       "json_extract_string(events.custom, '$.proto')",
}

var substringColumns = map[string]string{
	"fqdn.sub": "json_extract_string(events.custom, '$.fqdn')",
	"url.sub":  "json_extract_string(events.custom, '$.url')",
}

var timeWindowColumns = map[string]string{
	"time":     "events.time",
	"modified": "events.modified",
	// active selects by expires, falling back to time for blacklist
	// records recorded before they ever gained an expires value.
	"active": "COALESCE(events.expires, events.time)",
}

// hashColumns are hex-digest parameters stored as raw BLOBs.
var hashColumns = map[string]string{
	"md5":    "events.md5",
	"sha1":   "events.sha1",
	"sha256": "events.sha256",
}

// Query is a compiled predicate ready to bind into a SELECT.
type Query struct {
	Where           string
	Args            []any
	NeedsClientJoin bool
}

// Compile builds a Query from a parameter map whose values are one or
// more strings; multiple values for one key are OR-ed together exactly
// like a repeated REST query-string key. Unknown keys are rejected so
// callers don't silently get an unfiltered query from a typo.
func Compile(params map[string][]string) (*Query, error) {
	var clauses []string
	var args []any
	needsClientJoin := false

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		values := params[key]
		if len(values) == 0 {
			continue
		}

		switch {
		case key == "client":
			needsClientJoin = true
			clause, a := inClause("client_to_event.client_org_id", values)
			clauses = append(clauses, clause)
			args = append(args, a...)

		case key == "ip":
			clause, a, err := ipClause(values)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, clause)
			args = append(args, a...)

		case key == "ip.net":
			clause, a, err := ipNetClause(values)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, clause)
			args = append(args, a...)

		case key == "url.b64":
			clause, a, err := urlB64Clause(values)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, clause)
			args = append(args, a...)

		case exactMatchColumns[key] != "":
			clause, a := inClause(exactMatchColumns[key], values)
			clauses = append(clauses, clause)
			args = append(args, a...)

		case hashColumns[key] != "":
			clause, a, err := hashInClause(hashColumns[key], values)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, clause)
			args = append(args, a...)

		case substringColumns[key] != "":
			col := substringColumns[key]
			var ors []string
			for _, v := range values {
				ors = append(ors, col+" LIKE ? ESCAPE '\\'")
				args = append(args, "%"+escapeLike(v)+"%")
			}
			clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")

		case isTimeWindowKey(key):
			clause, a, err := timeWindowClause(key, values)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, clause)
			args = append(args, a...)

		default:
			return nil, fmt.Errorf("eventdb: unknown query parameter %q", key)
		}
	}

	where := "1=1"
	if len(clauses) > 0 {
		where = strings.Join(clauses, " AND ")
	}
	return &Query{Where: where, Args: args, NeedsClientJoin: needsClientJoin}, nil
}

func inClause(col string, values []string) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), args
}

func hashInClause(col string, digests []string) (string, []any, error) {
	args := make([]any, 0, len(digests))
	placeholders := make([]string, 0, len(digests))
	for _, d := range digests {
		b, err := hex.DecodeString(d)
		if err != nil {
			return "", nil, fmt.Errorf("eventdb: invalid hex digest %q: %w", d, err)
		}
		placeholders = append(placeholders, "?")
		args = append(args, b)
	}
	return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), args, nil
}

// escapeLike escapes the LIKE metacharacters % and _ so a substring
// search never accidentally becomes a pattern match.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

// ipClause matches one or more exact dotted-quad addresses.
func ipClause(values []string) (string, []any, error) {
	args := make([]any, 0, len(values))
	placeholders := make([]string, 0, len(values))
	for _, v := range values {
		ip := net.ParseIP(v).To4()
		if ip == nil {
			return "", nil, fmt.Errorf("eventdb: invalid ip %q", v)
		}
		placeholders = append(placeholders, "?")
		args = append(args, ipToUint32(ip))
	}
	return fmt.Sprintf("events.ip IN (%s)", strings.Join(placeholders, ", ")), args, nil
}

// ipNetClause translates one or more CIDR ranges into [min_ip, max_ip]
// range tests, OR-ed together. min_ip is forced to be at least 1 so the
// placeholder address 0.0.0.0 (recorder.primaryIP's "no address"
// sentinel) never matches a network query.
func ipNetClause(values []string) (string, []any, error) {
	var ors []string
	var args []any
	for _, v := range values {
		_, ipnet, err := net.ParseCIDR(v)
		if err != nil {
			return "", nil, fmt.Errorf("eventdb: invalid ip.net %q: %w", v, err)
		}
		ones, bits := ipnet.Mask.Size()
		if bits != 32 {
			return "", nil, fmt.Errorf("eventdb: ip.net %q is not IPv4", v)
		}
		base := ipToUint32(ipnet.IP.To4())
		hostBits := uint(32 - ones)
		var size uint64 = 1
		if hostBits > 0 {
			size = uint64(1) << hostBits
		}
		minIP := base
		maxIP := base + uint32(size) - 1
		if minIP == 0 {
			minIP = 1
		}
		ors = append(ors, "events.ip BETWEEN ? AND ?")
		args = append(args, minIP, maxIP)
	}
	return "(" + strings.Join(ors, " OR ") + ")", args, nil
}

func ipToUint32(ip net.IP) uint32 {
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

// urlB64Clause matches a base64-encoded URL's raw bytes against the
// stored url, plus a canonicalized "provisional search key" form
// (the whole URL lowercased, one trailing slash trimmed) so a client can find
// an event by URL regardless of how the indexed event normalized it.
// The exact canonicalization n6 uses was not available in the retrieved
// sources; this is a conservative, documented best-effort rendition
// (see DESIGN.md).
func urlB64Clause(values []string) (string, []any, error) {
	var ors []string
	var args []any
	for _, v := range values {
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return "", nil, fmt.Errorf("eventdb: invalid url.b64 %q: %w", v, err)
		}
		raw := string(decoded)
		ors = append(ors, "json_extract_string(events.custom, '$.url') = ?")
		args = append(args, raw)

		canon := canonicalizeURL(raw)
		ors = append(ors, "json_extract_string(events.custom, '$.url') = ?")
		args = append(args, canon)
	}
	return "(" + strings.Join(ors, " OR ") + ")", args, nil
}

func canonicalizeURL(raw string) string {
	lower := strings.ToLower(raw)
	return strings.TrimSuffix(lower, "/")
}

func isTimeWindowKey(key string) bool {
	for prefix := range timeWindowColumns {
		if strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

// timeWindowClause handles <prefix>.min/.max/.until, closed on min/max
// and half-open on until, per spec.md §4.11. Only the last value of a
// repeated time-window parameter is meaningful; REST semantics treat
// these as scalars, not OR-able lists.
func timeWindowClause(key string, values []string) (string, []any, error) {
	dot := strings.LastIndex(key, ".")
	prefix, bound := key[:dot], key[dot+1:]
	col, ok := timeWindowColumns[prefix]
	if !ok {
		return "", nil, fmt.Errorf("eventdb: unknown time window %q", prefix)
	}

	t, err := parseQueryTime(values[len(values)-1])
	if err != nil {
		return "", nil, fmt.Errorf("eventdb: parse %s: %w", key, err)
	}

	switch bound {
	case "min":
		return col + " >= ?", []any{t}, nil
	case "max":
		return col + " <= ?", []any{t}, nil
	case "until":
		return col + " < ?", []any{t}, nil
	default:
		return "", nil, fmt.Errorf("eventdb: unknown time bound %q", bound)
	}
}

// parseQueryTime parses an RFC3339 timestamp and normalizes it to UTC,
// per spec.md §4.11 ("Time values are UTC-normalized at parse time").
func parseQueryTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

