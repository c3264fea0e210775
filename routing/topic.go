package routing

import (
	"fmt"
	"strings"

	"github.com/burrowmq/burrow-go/contracts"
)

// MatchTopic reports whether a topic binding pattern matches a routing key.
// Patterns are dot-separated: * matches exactly one segment, # matches zero
// or more segments.
func MatchTopic(pattern, routingKey string) bool {
	return matchSegments(strings.Split(pattern, "."), strings.Split(routingKey, "."))
}

func matchSegments(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}
	if pattern[0] == "#" {
		// # absorbs zero segments, or one and stays in play.
		if matchSegments(pattern[1:], key) {
			return true
		}
		return len(key) > 0 && matchSegments(pattern, key[1:])
	}
	if len(key) == 0 {
		return false
	}
	if pattern[0] == "*" || pattern[0] == key[0] {
		return matchSegments(pattern[1:], key[1:])
	}
	return false
}

// ValidateTopicPattern checks that wildcards occupy whole segments. Invalid
// patterns are a declaration-time error.
func ValidateTopicPattern(pattern string) error {
	for _, seg := range strings.Split(pattern, ".") {
		if seg == "*" || seg == "#" {
			continue
		}
		if strings.ContainsAny(seg, "*#") {
			return fmt.Errorf("%w: wildcard must be a whole segment in %q", contracts.ErrInvalidPattern, pattern)
		}
	}
	return nil
}
