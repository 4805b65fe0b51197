package cache

import (
	"fmt"
	"sort"
	"strings"
)

const (
	keyPrefix       = "drinks"
	surrogatePrefix = "drinks:sk:"
)

// AllEntries is an index-only surrogate key: Set records every cache key
// under it, so PurgeSurrogate(ctx, AllEntries) empties the cache. It is never
// sent in a Surrogate-Key header.
const AllEntries = "_all"

// Key identifies a cached loader payload.
type Key struct {
	// Route is the loader route name (e.g., "drink", "tag", "home")
	Route string

	// Params are the route parameters (e.g., {"slug": "negroni"})
	Params map[string]string
}

// String generates a deterministic cache key string.
// Format: drinks:route:param1=val1:param2=val2
//
// Example:
//
//	drinks:drink:slug=negroni
func (k Key) String() string {
	parts := []string{keyPrefix}

	if route := strings.Trim(k.Route, ":/ "); route != "" {
		parts = append(parts, route)
	}

	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.Params[name]))
		}
	}

	return strings.Join(parts, ":")
}

// surrogateSetKey is the Redis set holding every cache key tagged with sk.
func surrogateSetKey(sk string) string {
	return surrogatePrefix + sk
}
