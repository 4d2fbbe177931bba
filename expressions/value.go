// Package expressions evaluates the subset of VBA string and integer
// expressions commonly used to obfuscate strings in macros: Chr, Asc,
// Val, StrReverse, Environ, concatenation, arithmetic and calls taking
// hex or base64 literals.
package expressions

type Kind int

const (
	// A plain quoted string taken verbatim from the source.
	LITERAL Kind = iota

	// A string computed by evaluating an expression.
	OBFUSCATED
)

func (self Kind) String() string {
	switch self {
	case LITERAL:
		return "Literal"
	case OBFUSCATED:
		return "Obfuscated"
	}
	return "Unknown"
}

type Value struct {
	Kind Kind
	Text string
}

func literal(text string) Value {
	return Value{Kind: LITERAL, Text: text}
}

func obfuscated(text string) Value {
	return Value{Kind: OBFUSCATED, Text: text}
}

// Match is one obfuscated expression found in the source. Start and End
// are byte offsets of Encoded within the scanned text.
type Match struct {
	Start   int
	End     int
	Encoded string
	Decoded string
}
