// Package client implements the gateway HTTP/SSE consumer used by the ember
// CLI. Read calls are deduplicated so concurrent identical requests share
// one round trip.
package client
