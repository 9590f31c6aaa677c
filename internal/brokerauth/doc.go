// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package brokerauth implements the four-endpoint HTTP contract RabbitMQ's
// rabbitmq-auth-backend-http plugin expects (C10): /user, /vhost,
// /resource, /topic. Every endpoint is POST, form-encoded, and always
// answers HTTP 200 with a plain-text body of exactly "allow" or "deny" —
// the plugin itself treats any other status or body as a hard error, so
// this package never returns one for a normal authorization decision.
//
// Authorization decisions for /vhost, /resource and /topic are delegated
// to internal/authz's Casbin enforcer; subject is the AMQP username,
// object is the vhost name, "exchange:<name>", "queue:<name>" or
// "topic:<name>", and action is connect/configure/write/read.
// Authentication for /user is delegated to a UserVerifier the caller
// supplies (there is no bundled Auth DB implementation — see DESIGN.md).
package brokerauth
