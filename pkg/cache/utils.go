package cache

import (
	"fmt"
	"strings"
)

// GenerateKey creates a cache key with prefix and ID.
func GenerateKey(prefix string, id string) string {
	return fmt.Sprintf("%s:%s", prefix, id)
}

// GenerateKeyWithParams joins prefix and params with ':'.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, param := range params {
		fmt.Fprintf(&b, ":%v", param)
	}
	return b.String()
}

// BuildPattern matches every key under prefix.
func BuildPattern(prefix string) string {
	return prefix + ":*"
}
