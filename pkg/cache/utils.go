package cache

import "fmt"

// GenerateKey creates a cache key from a prefix and parts.
func GenerateKey(prefix string, parts ...interface{}) string {
	key := prefix
	for _, p := range parts {
		key = fmt.Sprintf("%s:%v", key, p)
	}
	return key
}

// BuildPattern creates a glob matching every key under prefix.
func BuildPattern(prefix string) string {
	return fmt.Sprintf("%s*", prefix)
}
