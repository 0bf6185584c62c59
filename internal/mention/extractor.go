// Package mention finds @-references in message text.
package mention

import (
	"regexp"

	"github.com/samber/lo"
)

var pattern = regexp.MustCompile(`@(\w+)`)

// Extract returns the tokens following each '@' marker, de-duplicated in
// first-occurrence order. Matching is case-sensitive. It never returns nil.
func Extract(text string) []string {
	matches := pattern.FindAllStringSubmatch(text, -1)
	tokens := lo.Map(matches, func(m []string, _ int) string {
		return m[1]
	})
	return lo.Uniq(tokens)
}
