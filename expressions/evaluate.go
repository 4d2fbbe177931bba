package expressions

import (
	"sort"
	"strings"
)

// Evaluate parses a complete string expression. It fails unless the
// whole input (ignoring surrounding spaces) is consumed.
func Evaluate(expression string) (Value, bool) {
	expression = strings.Trim(expression, " \t")
	p := &parser{src: expression}
	value, ok := p.parseStringExpression()
	if !ok || p.pos != len(expression) {
		return Value{}, false
	}
	return value, true
}

func isCandidateStart(source string, pos int) bool {
	c := source[pos]
	if c == '"' || c == '(' {
		return true
	}
	return isAlpha(c) && (pos == 0 || !isIdentifierChar(source[pos-1]))
}

// EvaluateAll scans source for string expressions and returns every
// obfuscated one whose value differs from its source text. Matches do
// not overlap and are deduplicated by their source text.
func EvaluateAll(source string) []Match {
	result := []Match{}
	seen := make(map[string]bool)

	for pos := 0; pos < len(source); {
		if !isCandidateStart(source, pos) {
			pos++
			continue
		}

		p := &parser{src: source, pos: pos}
		value, ok := p.parseStringExpression()
		if !ok || p.pos <= pos {
			pos++
			continue
		}

		encoded := source[pos:p.pos]
		if value.Kind == OBFUSCATED && value.Text != encoded && !seen[encoded] {
			seen[encoded] = true
			result = append(result, Match{
				Start:   pos,
				End:     p.pos,
				Encoded: encoded,
				Decoded: value.Text,
			})
		}
		pos = p.pos
	}

	return result
}

// Quote renders text as a VBA string literal.
func Quote(text string) string {
	return `"` + strings.ReplaceAll(text, `"`, `""`) + `"`
}

// Reveal replaces every occurrence of each match's encoded text with
// its decoded value as a quoted literal. Longer encodings are replaced
// first so they are not broken up by their own sub-expressions.
func Reveal(source string, matches []Match) string {
	sorted := append([]Match{}, matches...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Encoded) > len(sorted[j].Encoded)
	})

	for _, match := range sorted {
		if match.Encoded == "" {
			continue
		}
		source = strings.ReplaceAll(source, match.Encoded, Quote(match.Decoded))
	}
	return source
}
