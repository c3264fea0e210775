package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"order.#", "order.created", true},
		{"order.#", "order.created.v2", true},
		{"order.#", "order", true},
		{"order.*", "order.created", true},
		{"order.*", "order.created.v2", false},
		{"order.*", "order", false},
		{"#", "anything.at.all", true},
		{"#", "", true},
		{"*", "one", true},
		{"*", "one.two", false},
		{"*.orange.*", "quick.orange.rabbit", true},
		{"*.orange.*", "quick.orange.male.rabbit", false},
		{"lazy.#", "lazy.brown.fox", true},
		{"#.fox", "lazy.brown.fox", true},
		{"#.fox", "fox", true},
		{"a.#.b", "a.b", true},
		{"a.#.b", "a.x.y.b", true},
		{"a.#.b", "a.b.c", false},
		{"order.created", "order.created", true},
		{"order.created", "order.cancelled", false},
	}

	for _, tc := range cases {
		t.Run(tc.pattern+"/"+tc.key, func(t *testing.T) {
			assert.Equal(t, tc.want, MatchTopic(tc.pattern, tc.key))
		})
	}
}

func TestValidateTopicPattern(t *testing.T) {
	t.Run("accepts whole-segment wildcards", func(t *testing.T) {
		assert.NoError(t, ValidateTopicPattern("order.*.shipped"))
		assert.NoError(t, ValidateTopicPattern("order.#"))
		assert.NoError(t, ValidateTopicPattern("plain.key"))
	})

	t.Run("rejects embedded wildcards", func(t *testing.T) {
		assert.Error(t, ValidateTopicPattern("order.cre*"))
		assert.Error(t, ValidateTopicPattern("or#der.x"))
	})
}
