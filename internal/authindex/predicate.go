// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package authindex

import (
	"fmt"
	"net"
	"time"

	"github.com/n6-community/n6/internal/record"
)

// Op identifies a clause's comparison kind.
type Op int

const (
	// OpEqual matches a scalar field against one of Values.
	OpEqual Op = iota
	// OpIn matches if any element of a list field is in Values.
	OpIn
	// OpCIDR matches if any of Record.Address[*].IP falls in CIDR.
	OpCIDR
	// OpTimeRange matches if Record.Time falls within [From, To).
	OpTimeRange
)

// Clause is one test in a predicate. A Predicate is the AND of its
// Clauses — spec.md describes equality, membership, CIDR, and range
// tests with no other boolean composition, so conjunction is sufficient.
type Clause struct {
	Field  string
	Op     Op
	Values []string
	CIDR   *net.IPNet
	From   time.Time
	To     time.Time
}

// Predicate is a pure function over a record view — no I/O, safe to
// evaluate concurrently from many readers against a shared snapshot.
type Predicate struct {
	clauses []Clause
}

// CompilePredicate compiles clauses once, at reload time, so Match does
// no parsing work on the hot path.
func CompilePredicate(clauses []Clause) (Predicate, error) {
	for _, c := range clauses {
		if c.Op == OpCIDR && c.CIDR == nil {
			return Predicate{}, fmt.Errorf("authindex: cidr clause on field %q missing network", c.Field)
		}
	}
	return Predicate{clauses: append([]Clause(nil), clauses...)}, nil
}

// Match reports whether r satisfies every clause.
func (p Predicate) Match(r *record.Record) bool {
	for _, c := range p.clauses {
		if !matchClause(c, r) {
			return false
		}
	}
	return true
}

func matchClause(c Clause, r *record.Record) bool {
	switch c.Op {
	case OpEqual:
		return matchEqual(c, r)
	case OpIn:
		return matchIn(c, r)
	case OpCIDR:
		return matchCIDR(c, r)
	case OpTimeRange:
		return !r.Time.Before(c.From) && r.Time.Before(c.To)
	default:
		return false
	}
}

func matchEqual(c Clause, r *record.Record) bool {
	val := scalarField(c.Field, r)
	for _, v := range c.Values {
		if v == val {
			return true
		}
	}
	return false
}

func matchIn(c Clause, r *record.Record) bool {
	wanted := make(map[string]struct{}, len(c.Values))
	for _, v := range c.Values {
		wanted[v] = struct{}{}
	}
	for _, v := range listField(c.Field, r) {
		if _, ok := wanted[v]; ok {
			return true
		}
	}
	return false
}

func matchCIDR(c Clause, r *record.Record) bool {
	for _, addr := range r.Address {
		ip := net.ParseIP(addr.IP)
		if ip != nil && c.CIDR.Contains(ip) {
			return true
		}
	}
	return false
}

func scalarField(field string, r *record.Record) string {
	switch field {
	case "source":
		return r.Source
	case "restriction":
		return string(r.Restriction)
	case "confidence":
		return string(r.Confidence)
	case "type":
		return string(r.Type)
	case "fqdn":
		return r.FQDN
	default:
		return ""
	}
}

func listField(field string, r *record.Record) []string {
	switch field {
	case "category":
		return []string{string(r.Category)}
	case "cc":
		var out []string
		for _, a := range r.Address {
			if a.CC != nil {
				out = append(out, *a.CC)
			}
		}
		return out
	case "asn":
		var out []string
		for _, a := range r.Address {
			if a.ASN != nil {
				out = append(out, fmt.Sprintf("%d", *a.ASN))
			}
		}
		return out
	default:
		return nil
	}
}
