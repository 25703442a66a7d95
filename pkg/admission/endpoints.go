package admission

import "strings"

// Class is the admission treatment a path receives.
type Class int

const (
	// ClassSkip paths bypass the limiter and queue entirely. They still
	// receive best-effort informational headers.
	ClassSkip Class = iota
	// ClassLimited paths must be admitted through the gateway.
	ClassLimited
	// ClassInformational paths get snapshot headers but are never
	// admitted or queued.
	ClassInformational
)

// skipPaths never touch the limiter.
var skipPaths = map[string]struct{}{
	"/health":  {},
	"/healthz": {},
	"/ready":   {},
	"/metrics": {},
	"/docs":    {},
	"/openapi.json": {},
}

// skipPrefixes cover static asset trees.
var skipPrefixes = []string{
	"/static/",
	"/assets/",
	"/docs/",
}

// limitedPrefixes are the end-user endpoints that consume quota. The
// session coordination surface (permissions, queue introspection) is
// deliberately not limited: a blocking permission request would pin a
// concurrency slot for its whole wait.
var limitedPrefixes = []string{
	"/api/v1/chat",
	"/api/v1/stream",
	"/ws",
}

// Classify maps a request path to its admission class.
func Classify(path string) Class {
	if _, ok := skipPaths[path]; ok {
		return ClassSkip
	}
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return ClassSkip
		}
	}
	for _, prefix := range limitedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return ClassLimited
		}
	}
	return ClassInformational
}
