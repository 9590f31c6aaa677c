// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package brokerauth

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/n6-community/n6/internal/authz"
	"github.com/n6-community/n6/internal/config"
)

type stubVerifier struct {
	users map[string]string
}

func (s stubVerifier) VerifyUser(_ context.Context, username, password string) (bool, error) {
	pw, ok := s.users[username]
	if !ok {
		return false, nil
	}
	return pw == password, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	enforcer, err := authz.NewEnforcer(context.Background(), &authz.EnforcerConfig{})
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	t.Cleanup(func() { enforcer.Close() })

	if _, err := enforcer.AddPolicy("producer1", "n6-prod", "connect"); err != nil {
		t.Fatalf("AddPolicy: %v", err)
	}
	if _, err := enforcer.AddPolicy("producer1", "exchange:n6-aggregated", "write"); err != nil {
		t.Fatalf("AddPolicy: %v", err)
	}
	if _, err := enforcer.AddPolicy("producer1", "topic:n6-aggregated.bots", "write"); err != nil {
		t.Fatalf("AddPolicy: %v", err)
	}

	users := stubVerifier{users: map[string]string{"producer1": "s3cret"}}
	return New(config.BrokerAuthConfig{ListenAddr: ":0"}, enforcer, users)
}

func postForm(t *testing.T, svc *Service, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleUserAllowsCorrectPassword(t *testing.T) {
	svc := newTestService(t)
	rec := postForm(t, svc, "/user", url.Values{"username": {"producer1"}, "password": {"s3cret"}})
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "allow" {
		t.Errorf("body = %q, want allow", rec.Body.String())
	}
}

func TestHandleUserDeniesWrongPassword(t *testing.T) {
	svc := newTestService(t)
	rec := postForm(t, svc, "/user", url.Values{"username": {"producer1"}, "password": {"wrong"}})
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "deny" {
		t.Errorf("body = %q, want deny", rec.Body.String())
	}
}

func TestHandleUserDeniesMissingParams(t *testing.T) {
	svc := newTestService(t)
	rec := postForm(t, svc, "/user", url.Values{"username": {"producer1"}})
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "deny" {
		t.Errorf("body = %q, want deny for a missing password param", rec.Body.String())
	}
}

func TestHandleVHostAllowsKnownUser(t *testing.T) {
	svc := newTestService(t)
	rec := postForm(t, svc, "/vhost", url.Values{
		"username": {"producer1"}, "vhost": {"n6-prod"}, "ip": {"10.0.0.1"},
	})
	if rec.Body.String() != "allow" {
		t.Errorf("body = %q, want allow", rec.Body.String())
	}
}

func TestHandleVHostDeniesUnknownVHost(t *testing.T) {
	svc := newTestService(t)
	rec := postForm(t, svc, "/vhost", url.Values{
		"username": {"producer1"}, "vhost": {"other-vhost"}, "ip": {"10.0.0.1"},
	})
	if rec.Body.String() != "deny" {
		t.Errorf("body = %q, want deny", rec.Body.String())
	}
}

func TestHandleResourceAllowsExchangeWrite(t *testing.T) {
	svc := newTestService(t)
	rec := postForm(t, svc, "/resource", url.Values{
		"username": {"producer1"}, "vhost": {"n6-prod"},
		"resource": {"exchange"}, "name": {"n6-aggregated"}, "permission": {"write"},
	})
	if rec.Body.String() != "allow" {
		t.Errorf("body = %q, want allow", rec.Body.String())
	}
}

func TestHandleResourceDeniesInvalidResourceType(t *testing.T) {
	svc := newTestService(t)
	rec := postForm(t, svc, "/resource", url.Values{
		"username": {"producer1"}, "vhost": {"n6-prod"},
		"resource": {"bogus"}, "name": {"n6-aggregated"}, "permission": {"write"},
	})
	if rec.Body.String() != "deny" {
		t.Errorf("body = %q, want deny for an invalid resource type", rec.Body.String())
	}
}

func TestHandleResourceDeniesUnauthorizedQueue(t *testing.T) {
	svc := newTestService(t)
	rec := postForm(t, svc, "/resource", url.Values{
		"username": {"producer1"}, "vhost": {"n6-prod"},
		"resource": {"queue"}, "name": {"n6-notifications"}, "permission": {"read"},
	})
	if rec.Body.String() != "deny" {
		t.Errorf("body = %q, want deny", rec.Body.String())
	}
}

func TestHandleTopicAllowsAuthorizedRoutingKey(t *testing.T) {
	svc := newTestService(t)
	rec := postForm(t, svc, "/topic", url.Values{
		"username": {"producer1"}, "vhost": {"n6-prod"},
		"resource": {"topic"}, "name": {"n6-aggregated.bots"}, "permission": {"write"},
		"routing_key": {"bots.malware"},
	})
	if rec.Body.String() != "allow" {
		t.Errorf("body = %q, want allow", rec.Body.String())
	}
}

func TestHandleTopicDeniesMissingRoutingKey(t *testing.T) {
	svc := newTestService(t)
	rec := postForm(t, svc, "/topic", url.Values{
		"username": {"producer1"}, "vhost": {"n6-prod"},
		"resource": {"topic"}, "name": {"n6-aggregated.bots"}, "permission": {"write"},
	})
	if rec.Body.String() != "deny" {
		t.Errorf("body = %q, want deny for a missing routing_key param", rec.Body.String())
	}
}

func TestHandleTopicDeniesInvalidPermission(t *testing.T) {
	svc := newTestService(t)
	rec := postForm(t, svc, "/topic", url.Values{
		"username": {"producer1"}, "vhost": {"n6-prod"},
		"resource": {"topic"}, "name": {"n6-aggregated.bots"}, "permission": {"configure"},
		"routing_key": {"bots.malware"},
	})
	if rec.Body.String() != "deny" {
		t.Errorf("body = %q, want deny for a permission not valid on topics", rec.Body.String())
	}
}
