// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package broker

import "strings"

// Stage names a pipeline stage's position in the `<type>.<stage>.<source>`
// routing key convention every event exchange message uses.
type Stage string

const (
	StageParsed     Stage = "parsed"
	StageAggregated Stage = "aggregated"
	StageEnriched   Stage = "enriched"
	StageFiltered   Stage = "filtered"
)

// BuildRoutingKey assembles a routing key for the event exchange.
func BuildRoutingKey(msgType, stage, source string) string {
	return msgType + "." + stage + "." + source
}

// ParseRoutingKey splits a `<type>.<stage>.<source>` routing key. source
// may itself contain dots (feed names commonly do), so only the first
// two separators are significant.
func ParseRoutingKey(key string) (msgType, stage, source string, ok bool) {
	parts := strings.SplitN(key, ".", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
