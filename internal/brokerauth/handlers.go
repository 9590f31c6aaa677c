// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package brokerauth

import (
	"net/http"
	"time"

	"github.com/n6-community/n6/internal/logging"
	"github.com/n6-community/n6/internal/metrics"
)

const gracefulShutdownTimeout = 10 * time.Second

// allow/deny are RabbitMQ's two valid response bodies; the endpoint
// itself always answers HTTP 200 regardless of which one is sent.
const (
	allow = "allow"
	deny  = "deny"
)

func respond(w http.ResponseWriter, endpoint string, start time.Time, decision string) {
	metrics.RecordBrokerAuthDecision(endpoint, decision, time.Since(start))
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(decision))
}

// requireParams parses r's form body and denies the request outright if
// any of names is missing or empty, mirroring _deny_if_missing_params.
func requireParams(r *http.Request, names ...string) (map[string]string, bool) {
	if err := r.ParseForm(); err != nil {
		return nil, false
	}
	params := make(map[string]string, len(names))
	for _, name := range names {
		v := r.PostFormValue(name)
		if v == "" {
			return nil, false
		}
		params[name] = v
	}
	return params, true
}

// handleUser implements the user_path view: authenticate the broker
// client's username/password.
func (s *Service) handleUser(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	params, ok := requireParams(r, "username", "password")
	if !ok {
		respond(w, "user", start, deny)
		return
	}

	verified, err := s.users.VerifyUser(r.Context(), params["username"], params["password"])
	if err != nil {
		logging.CtxErr(r.Context(), err).Str("username", params["username"]).Msg("brokerauth: user verification failed")
		respond(w, "user", start, deny)
		return
	}
	if verified {
		respond(w, "user", start, allow)
		return
	}
	respond(w, "user", start, deny)
}

// handleVHost implements the vhost_path view: grant vhost-level connect
// access.
func (s *Service) handleVHost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	params, ok := requireParams(r, "username", "vhost", "ip")
	if !ok {
		respond(w, "vhost", start, deny)
		return
	}

	allowed, err := s.enforcer.Enforce(params["username"], params["vhost"], "connect")
	if err != nil {
		logging.CtxErr(r.Context(), err).Msg("brokerauth: vhost enforcement failed")
		respond(w, "vhost", start, deny)
		return
	}
	respond(w, "vhost", start, decisionOf(allowed))
}

var validResources = map[string]bool{"exchange": true, "queue": true}
var validResourcePermissions = map[string]bool{"configure": true, "write": true, "read": true}

// handleResource implements the resource_path view: grant exchange/queue
// access at a given permission level.
func (s *Service) handleResource(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	params, ok := requireParams(r, "username", "vhost", "resource", "name", "permission")
	if !ok {
		respond(w, "resource", start, deny)
		return
	}
	resource, permission := params["resource"], params["permission"]
	if !validResources[resource] || !validResourcePermissions[permission] {
		respond(w, "resource", start, deny)
		return
	}

	object := resource + ":" + params["name"]
	allowed, err := s.enforcer.Enforce(params["username"], object, permission)
	if err != nil {
		logging.CtxErr(r.Context(), err).Msg("brokerauth: resource enforcement failed")
		respond(w, "resource", start, deny)
		return
	}
	respond(w, "resource", start, decisionOf(allowed))
}

var validTopicPermissions = map[string]bool{"write": true, "read": true}

// handleTopic implements the topic_path view: grant routing-key-scoped
// topic access. The routing_key param is required by the upstream
// contract but is not itself part of the matcher the way vhost/exchange/
// queue names are — spec.md §6.2 requires it be present, not that it
// gate the decision.
func (s *Service) handleTopic(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	params, ok := requireParams(r, "username", "vhost", "resource", "name", "permission", "routing_key")
	if !ok {
		respond(w, "topic", start, deny)
		return
	}
	if params["resource"] != "topic" || !validTopicPermissions[params["permission"]] {
		respond(w, "topic", start, deny)
		return
	}

	object := "topic:" + params["name"]
	allowed, err := s.enforcer.Enforce(params["username"], object, params["permission"])
	if err != nil {
		logging.CtxErr(r.Context(), err).Msg("brokerauth: topic enforcement failed")
		respond(w, "topic", start, deny)
		return
	}
	respond(w, "topic", start, decisionOf(allowed))
}

func decisionOf(allowed bool) string {
	if allowed {
		return allow
	}
	return deny
}
