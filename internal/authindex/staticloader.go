// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package authindex

import (
	"context"
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"
)

// StaticFileConfig is the on-disk shape StaticFileLoader reads: one entry
// per source, each with its subsources' compiled-at-load-time clauses.
type StaticFileConfig struct {
	Sources []StaticSource `yaml:"sources"`
}

// StaticSource is one source's config file entry.
type StaticSource struct {
	Source           string                    `yaml:"source"`
	AnonymizedSource string                    `yaml:"anonymized_source"`
	Subsources       map[string]StaticSubsource `yaml:"subsources"`
}

// StaticSubsource is one subsource's config file entry.
type StaticSubsource struct {
	Zones   map[string][]string `yaml:"zones"`
	Clauses []StaticClause      `yaml:"clauses"`
}

// StaticClause is the YAML-friendly mirror of Clause; Op is spelled out
// as a string instead of the internal int enum.
type StaticClause struct {
	Field string   `yaml:"field"`
	Op    string   `yaml:"op"` // equal, in, cidr (time_range is rejected)
	Values []string `yaml:"values"`
	CIDR  string   `yaml:"cidr"`
}

// StaticFileLoader reads the authorization index from a flat YAML file
// instead of the AuthAPI's relational auth database (organization,
// subsource, and org_access_\* tables upstream). There is no bundled SQL
// auth-database Loader (see DESIGN.md); this is the shipped
// zero-dependency default, grounded on the same flat-file precedent as
// internal/enricher's FlatFileGeoIP reader, swapping CSV for YAML since
// the config is structured/nested rather than tabular.
type StaticFileLoader struct {
	path string
}

// NewStaticFileLoader returns a Loader that (re-)reads path on every Load
// call, so an operator editing the file takes effect on the next
// Reloader tick without a process restart.
func NewStaticFileLoader(path string) *StaticFileLoader {
	return &StaticFileLoader{path: path}
}

// Load implements Loader.
func (l *StaticFileLoader) Load(_ context.Context) ([]SourceBuild, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("authindex: read static config %s: %w", l.path, err)
	}

	var cfg StaticFileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("authindex: parse static config %s: %w", l.path, err)
	}

	builds := make([]SourceBuild, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		subsources := make(map[string]*SubsourceEntry, len(src.Subsources))
		for name, sub := range src.Subsources {
			clauses := make([]Clause, 0, len(sub.Clauses))
			for _, sc := range sub.Clauses {
				clause, err := toClause(sc)
				if err != nil {
					return nil, fmt.Errorf("authindex: source %s subsource %s: %w", src.Source, name, err)
				}
				clauses = append(clauses, clause)
			}
			predicate, err := CompilePredicate(clauses)
			if err != nil {
				return nil, fmt.Errorf("authindex: source %s subsource %s: %w", src.Source, name, err)
			}
			subsources[name] = &SubsourceEntry{Predicate: predicate, Zones: sub.Zones}
		}
		builds = append(builds, SourceBuild{
			Source:           src.Source,
			AnonymizedSource: src.AnonymizedSource,
			Subsources:       subsources,
		})
	}
	return builds, nil
}

func toClause(sc StaticClause) (Clause, error) {
	switch sc.Op {
	case "equal":
		return Clause{Field: sc.Field, Op: OpEqual, Values: sc.Values}, nil
	case "in":
		return Clause{Field: sc.Field, Op: OpIn, Values: sc.Values}, nil
	case "cidr":
		_, ipnet, err := net.ParseCIDR(sc.CIDR)
		if err != nil {
			return Clause{}, fmt.Errorf("invalid cidr %q: %w", sc.CIDR, err)
		}
		return Clause{Field: sc.Field, Op: OpCIDR, CIDR: ipnet}, nil
	case "time_range":
		return Clause{}, fmt.Errorf("time_range clauses are not expressible in the static file format (From/To are not stable across reloads); use a Loader backed by a real clock source")
	default:
		return Clause{}, fmt.Errorf("unknown clause op %q", sc.Op)
	}
}
