// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// staticUserFile is the on-disk shape staticUserVerifier reads: bcrypt
// password hashes keyed by AMQP username.
type staticUserFile struct {
	Users map[string]string `yaml:"users"` // username -> bcrypt hash
}

// staticUserVerifier implements brokerauth.UserVerifier from a flat YAML
// file of bcrypt hashes. There is no bundled SQL Auth DB-backed verifier
// (see DESIGN.md); this is the zero-dependency default a deployer runs
// with until they swap in one backed by their own user store, following
// the same flat-file-default convention as internal/authindex's
// StaticFileLoader and internal/enricher's FlatFileGeoIP.
type staticUserVerifier struct {
	path string
}

func newStaticUserVerifier(path string) *staticUserVerifier {
	return &staticUserVerifier{path: path}
}

func (v *staticUserVerifier) VerifyUser(_ context.Context, username, password string) (bool, error) {
	data, err := os.ReadFile(v.path)
	if err != nil {
		return false, fmt.Errorf("static user verifier: read %s: %w", v.path, err)
	}
	var f staticUserFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return false, fmt.Errorf("static user verifier: parse %s: %w", v.path, err)
	}
	hash, ok := f.Users[username]
	if !ok {
		return false, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}
