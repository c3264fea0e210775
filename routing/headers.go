package routing

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/burrowmq/burrow-go/contracts"
	amqp "github.com/rabbitmq/amqp091-go"
)

// HeaderMatchKey selects the predicate mode of a headers binding: "all"
// (default) requires every bound header to match, "any" requires at least
// one.
const HeaderMatchKey = "x-match"

const (
	matchAll = "all"
	matchAny = "any"
)

// ValidateHeaderArguments checks the x-match argument of a headers binding.
func ValidateHeaderArguments(args amqp.Table) error {
	if args == nil {
		return nil
	}
	v, ok := args[HeaderMatchKey]
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok || (s != matchAll && s != matchAny) {
		return fmt.Errorf("%w: x-match must be \"all\" or \"any\", got %v", contracts.ErrInvalidPattern, v)
	}
	return nil
}

// MatchHeaders evaluates a headers binding's arguments against a message
// header table. Keys starting with "x-" carry binding configuration and do
// not participate in matching.
func MatchHeaders(args amqp.Table, headers amqp.Table) bool {
	mode := matchAll
	if v, ok := args[HeaderMatchKey].(string); ok {
		mode = v
	}

	matched, required := 0, 0
	for k, want := range args {
		if strings.HasPrefix(k, "x-") {
			continue
		}
		required++
		// amqp.Table values may be arrays or nested tables, which are not
		// directly comparable.
		if got, ok := headers[k]; ok && reflect.DeepEqual(got, want) {
			matched++
		}
	}

	if mode == matchAny {
		return matched > 0
	}
	return matched == required
}
