// ABOUTME: Default key generation for deduplicated requests.
// ABOUTME: JSON-encodes arguments with a plain-string fallback for unencodable values.

package dedupe

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultKey builds a key by JSON-encoding each argument. Arguments that
// cannot be marshaled (channels, funcs, cycles) degrade to fmt.Sprint rather
// than failing the call: key uniqueness is a sharing optimization, not a
// correctness requirement.
func DefaultKey(args ...any) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, len(args))
	for i, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			parts[i] = fmt.Sprint(arg)
			continue
		}
		parts[i] = string(b)
	}
	return strings.Join(parts, "|")
}
