// Package stream renders progressive terminal output for one streaming
// message at a time, coalescing rapid partial updates into throttled redraws.
package stream
