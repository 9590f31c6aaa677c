// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package record

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Restriction is the event's sharing restriction.
type Restriction string

const (
	RestrictionPublic      Restriction = "public"
	RestrictionNeedToKnow  Restriction = "need-to-know"
	RestrictionInternal    Restriction = "internal"
)

// Confidence is the event's confidence level.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Category enumerates the recognized event categories.
type Category string

const (
	CategoryBots     Category = "bots"
	CategoryCnc      Category = "cnc"
	CategoryScanning Category = "scanning"
	CategorySpam     Category = "spam"
	CategoryMalurl   Category = "malurl"
	CategoryPhish    Category = "phish"
	CategoryOther    Category = "other"
)

// Type is the record's lifecycle/stage-flow type, carried in the AMQP
// routing key and the "type" field.
type Type string

const (
	TypeEvent      Type = "event"
	TypeHiFreq     Type = "hifreq"
	TypeSuppressed Type = "suppressed"
	TypeBlNew      Type = "bl-new"
	TypeBlUpdate   Type = "bl-update"
	TypeBlDelist   Type = "bl-delist"
	TypeBlChange   Type = "bl-change"
	TypeBlExpire   Type = "bl-expire"
)

// Proto is a transport-layer protocol enum.
type Proto string

const (
	ProtoTCP  Proto = "tcp"
	ProtoUDP  Proto = "udp"
	ProtoICMP Proto = "icmp"
)

// Address is one entry of the ordered address sequence. IP placeholder
// sentinels (0 and -1, see Open Question #3 in DESIGN.md) are normalized
// away before an Address is ever appended to Record.Address.
type Address struct {
	IP  string `json:"ip"`
	ASN *uint32 `json:"asn,omitempty"`
	CC  *string `json:"cc,omitempty"`
}

// Enriched records the provenance of fields the enricher added: top-level
// keys it set, and per-IP address keys it set.
type Enriched struct {
	TopLevel []string            `json:"-"`
	Address  map[string][]string `json:"-"`
}

// Record is the canonical mutable event envelope (C1).
type Record struct {
	ID         string      `json:"id,omitempty"`
	RID        string      `json:"rid,omitempty"`
	Source     string      `json:"source,omitempty"`
	Restriction Restriction `json:"restriction,omitempty"`
	Confidence Confidence  `json:"confidence,omitempty"`
	Category   Category    `json:"category,omitempty"`
	Time       time.Time   `json:"time,omitempty"`
	Modified   time.Time   `json:"modified,omitempty"`
	Expires    *time.Time  `json:"expires,omitempty"`
	Until      *time.Time  `json:"until,omitempty"`
	Address    []Address   `json:"address,omitempty"`
	DIP        string      `json:"dip,omitempty"`
	SPort      *int        `json:"sport,omitempty"`
	DPort      *int        `json:"dport,omitempty"`
	Proto      Proto       `json:"proto,omitempty"`
	FQDN       string      `json:"fqdn,omitempty"`
	URL        string      `json:"url,omitempty"`
	Client     []string    `json:"client,omitempty"`
	Enriched   *Enriched   `json:"enriched,omitempty"`
	Type       Type        `json:"type,omitempty"`
	Name       string      `json:"name,omitempty"`
	Target     string      `json:"target,omitempty"`
	Origin     string      `json:"origin,omitempty"`
	MD5        string      `json:"md5,omitempty"`
	SHA1       string      `json:"sha1,omitempty"`
	SHA256     string      `json:"sha256,omitempty"`
	Status     string      `json:"status,omitempty"`
	ADIP       string      `json:"adip,omitempty"`
	Replaces   string      `json:"replaces,omitempty"`
	Count      int         `json:"count,omitempty"`

	// Group is the transient "_group" control key used by the aggregator
	// to coalesce high-frequency duplicates; never serialized externally.
	Group string `json:"-"`
}

// AdjusterError is returned by a field adjuster on invalid input; its
// message is safe to surface to the record's originating collector.
type AdjusterError struct {
	Field   string
	Message string
}

func (e *AdjusterError) Error() string {
	return fmt.Sprintf("adjuster for field %q: %s", e.Field, e.Message)
}

// FieldSpec is a registry entry for one recognized field: an adjuster that
// normalizes raw input into canonical form, and an asserter that validates
// the canonical shape before it leaves the process.
type FieldSpec struct {
	Adjust  func(r *Record, raw any) error
	Assert  func(r *Record) error
}

// Fields is the field registry, built once at init, mirroring the
// teacher's table-driven enum/constant style.
var Fields = map[string]FieldSpec{
	"source": {
		Adjust: func(r *Record, raw any) error {
			s, ok := raw.(string)
			if !ok {
				return &AdjusterError{"source", "must be a string"}
			}
			s = strings.ToLower(strings.TrimSpace(s))
			parts := strings.Split(s, ".")
			if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
				return &AdjusterError{"source", "must be <provider>.<channel>"}
			}
			r.Source = s
			return nil
		},
		Assert: func(r *Record) error {
			if r.Source == "" {
				return nil
			}
			if strings.Count(r.Source, ".") != 1 {
				return &AdjusterError{"source", "malformed canonical source"}
			}
			return nil
		},
	},
	"restriction": {
		Adjust: func(r *Record, raw any) error {
			s, _ := raw.(string)
			switch Restriction(s) {
			case RestrictionPublic, RestrictionNeedToKnow, RestrictionInternal:
				r.Restriction = Restriction(s)
				return nil
			default:
				return &AdjusterError{"restriction", "unrecognized restriction"}
			}
		},
	},
	"confidence": {
		Adjust: func(r *Record, raw any) error {
			s, _ := raw.(string)
			switch Confidence(s) {
			case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
				r.Confidence = Confidence(s)
				return nil
			default:
				return &AdjusterError{"confidence", "unrecognized confidence"}
			}
		},
	},
	"client": {
		Adjust: func(r *Record, raw any) error {
			list, ok := raw.([]string)
			if !ok {
				return &AdjusterError{"client", "must be a string list"}
			}
			r.Client = normalizeClientList(list)
			return nil
		},
		Assert: func(r *Record) error {
			if !sort.StringsAreSorted(r.Client) {
				return &AdjusterError{"client", "client list must be sorted"}
			}
			return nil
		},
	},
}

// normalizeClientList sorts, deduplicates, and drops empty entries,
// matching the invariant that Record.Client is always sorted and unique.
func normalizeClientList(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, c := range list {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Adjust runs a single field's adjuster against raw input. Collectors and
// parsers outside this module call this to normalize one field at a time.
func (r *Record) Adjust(field string, raw any) error {
	spec, ok := Fields[field]
	if !ok || spec.Adjust == nil {
		return &AdjusterError{field, "no adjuster registered"}
	}
	return spec.Adjust(r, raw)
}

// RecordDictError wraps the first adjuster failure encountered while
// parsing a wire-form record.
type RecordDictError struct {
	Err error
}

func (e *RecordDictError) Error() string { return fmt.Sprintf("record dict: %v", e.Err) }
func (e *RecordDictError) Unwrap() error { return e.Err }

// FromJSON parses the wire form and normalizes placeholder addresses (see
// DESIGN.md OQ3: sentinel IPs 0 and -1 mean "no address").
func FromJSON(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &RecordDictError{err}
	}
	r.Address = stripPlaceholderAddresses(r.Address)
	if r.ID == "" {
		r.ID = r.Hash()
	}
	return &r, nil
}

func stripPlaceholderAddresses(addrs []Address) []Address {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]Address, 0, len(addrs))
	for _, a := range addrs {
		if a.IP == "0.0.0.0" || a.IP == "-1" || a.IP == "" {
			continue
		}
		out = append(out, a)
	}
	return out
}

// GetReadyJSON serializes the record, stripping null/empty values so the
// wire form never carries an empty address/client slice.
func (r *Record) GetReadyJSON() ([]byte, error) {
	return json.Marshal(r)
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	out := *r
	if r.Address != nil {
		out.Address = append([]Address(nil), r.Address...)
	}
	if r.Client != nil {
		out.Client = append([]string(nil), r.Client...)
	}
	if r.Expires != nil {
		e := *r.Expires
		out.Expires = &e
	}
	if r.Until != nil {
		u := *r.Until
		out.Until = &u
	}
	return &out
}

// Hash computes the deterministic "n6 id" for a record that arrived
// without one: SHA-256 over the canonical JSON, truncated to 16 bytes,
// hex-encoded. Documented in SPEC_FULL.md §4.1 as the n6 id algorithm.
func (r *Record) Hash() string {
	canon := r.Clone()
	canon.ID = ""
	canon.Modified = time.Time{}
	buf, err := json.Marshal(canon)
	if err != nil {
		// Fall back to a random id; this should not happen for a
		// canonical record, but a hash failure must never panic a stage.
		return uuid.NewString()
	}
	sum := sha256.Sum256(buf)
	return fmt.Sprintf("%x", sum[:16])
}
