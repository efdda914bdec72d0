// Package jsonpath implements dotted-path lookup into a decoded JSON value
// (spec §4.L2). Only JSON objects are descended by name; arrays are never
// addressed by index through this path form.
package jsonpath

import "strings"

// Resolve walks v by splitting path on ".". At each step the current node
// must be a JSON object (decoded as map[string]any) containing the next
// segment. It returns the leaf value and true on success, or (nil, false)
// if any segment is missing or an intermediate node isn't an object.
func Resolve(v any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	cur := v
	for _, seg := range segments {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := obj[seg]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}
