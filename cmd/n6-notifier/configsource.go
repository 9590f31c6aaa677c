// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/n6-community/n6/internal/notifier"
)

// staticOrgFile is the on-disk shape staticConfigSource reads: one entry
// per organization's notification settings.
type staticOrgFile struct {
	Orgs []staticOrgEntry `yaml:"orgs"`
}

type staticOrgEntry struct {
	OrgID             string   `yaml:"org_id"`
	Name              string   `yaml:"name"`
	BusinessDaysOnly  bool     `yaml:"business_days_only"`
	NotificationTimes []string `yaml:"notification_times"`
	Emails            []string `yaml:"emails"`
	Language          string   `yaml:"language"`
	StreamAPIEnabled  bool     `yaml:"stream_api_enabled"`
}

// staticConfigSource implements notifier.ConfigSource from a flat YAML
// file instead of the Auth DB's organization/notification tables. There
// is no bundled SQL Auth DB-backed ConfigSource (see DESIGN.md); this is
// the same zero-dependency default convention as
// internal/authindex.StaticFileLoader and cmd/n6-broker-auth's
// staticUserVerifier.
type staticConfigSource struct {
	path string
}

func newStaticConfigSource(path string) *staticConfigSource {
	return &staticConfigSource{path: path}
}

func (s *staticConfigSource) Load(_ context.Context) (map[string]notifier.OrgConfig, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("static config source: read %s: %w", s.path, err)
	}

	var file staticOrgFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("static config source: parse %s: %w", s.path, err)
	}

	out := make(map[string]notifier.OrgConfig, len(file.Orgs))
	for _, o := range file.Orgs {
		out[o.OrgID] = notifier.OrgConfig{
			OrgID:             o.OrgID,
			Name:              o.Name,
			BusinessDaysOnly:  o.BusinessDaysOnly,
			NotificationTimes: o.NotificationTimes,
			Emails:            o.Emails,
			Language:          o.Language,
			StreamAPIEnabled:  o.StreamAPIEnabled,
		}
	}
	return out, nil
}
