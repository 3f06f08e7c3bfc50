package store

import (
	"strings"
)

// Durable record keys are namespaced as "<namespace>@<key-without-sentinel>"
// so state records never collide with unrelated data in a shared backend.

func NamespaceKey(namespace, prefix, key string) string {
	return namespace + "@" + strings.TrimPrefix(key, prefix)
}

// DenamespaceKey recovers the original state key (sentinel included) from a
// namespaced record key. Reports false for keys outside the namespace.
func DenamespaceKey(namespace, prefix, recordKey string) (string, bool) {
	rest, ok := strings.CutPrefix(recordKey, namespace+"@")
	if !ok || rest == "" {
		return "", false
	}
	return prefix + rest, true
}
