// Package dedupe coordinates identical concurrent requests so they share one
// in-flight call, with optional TTL caching of successful results.
package dedupe
