// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package broker wraps a Watermill AMQP 0-9-1 publisher/subscriber pair
// behind a small resilient client: circuit-breaker-protected publish,
// one Watermill-declared fanout exchange per topic name (no topic or
// headers exchanges are declared), and graceful close. Every pipeline
// stage builds one Client from its BrokerConfig and uses it for both its
// input subscription and its output publish.
package broker
