package scanner

import (
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/elliotchance/orderedmap"
	"www.velocidex.com/golang/olevba/expressions"
)

const (
	PRINTABLE = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ" +
		"!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~ \t\n\r\x0b\x0c"
)

var (
	hex_string_re     = regexp.MustCompile(`(?:[0-9A-Fa-f]{2}){4,}`)
	base64_string_re  = regexp.MustCompile(`"` + expressions.BASE64_RE + `"`)
	dridex_string_re  = regexp.MustCompile(`"[0-9A-Za-z]{20,}"`)
	not_hex_string_re = regexp.MustCompile(`[G-Zg-z]`)

	// Strings matching the base64 grammar which are usually just words.
	BASE64_WHITELIST = map[string]bool{
		"thisdocument": true,
		"thisworkbook": true,
		"test":         true,
		"temp":         true,
		"http":         true,
		"open":         true,
		"exit":         true,
	}
)

// An encoded string found in the code along with its decoded value.
type DecodedString struct {
	Encoded string `json:"encoded"`
	Decoded string `json:"decoded"`
}

// IsPrintable is true when every byte of s is printable ASCII or ASCII
// whitespace.
func IsPrintable(s string) bool {
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(PRINTABLE, s[i]) < 0 {
			return false
		}
	}
	return true
}

// decodedSet keeps the first decoding of each encoded string in the
// order they were found.
type decodedSet struct {
	items *orderedmap.OrderedMap
}

func newDecodedSet() *decodedSet {
	return &decodedSet{items: orderedmap.NewOrderedMap()}
}

func (self *decodedSet) Has(encoded string) bool {
	_, pres := self.items.Get(encoded)
	return pres
}

func (self *decodedSet) Add(encoded, decoded string) {
	if !self.Has(encoded) {
		self.items.Set(encoded, decoded)
	}
}

func (self *decodedSet) Items() []*DecodedString {
	result := make([]*DecodedString, 0, self.items.Len())
	for el := self.items.Front(); el != nil; el = el.Next() {
		result = append(result, &DecodedString{
			Encoded: el.Key.(string),
			Decoded: el.Value.(string),
		})
	}
	return result
}

func DetectHexStrings(code string) []*DecodedString {
	result := newDecodedSet()
	for _, value := range hex_string_re.FindAllString(code, -1) {
		if result.Has(value) {
			continue
		}

		decoded, err := hex.DecodeString(value)
		if err != nil {
			continue
		}
		result.Add(value, string(decoded))
	}
	return result.Items()
}

func DetectBase64Strings(code string) []*DecodedString {
	result := newDecodedSet()
	for _, match := range base64_string_re.FindAllString(code, -1) {
		value := strings.Trim(match, `"`)

		// Pure hex strings are reported as hex.
		if !not_hex_string_re.MatchString(value) {
			continue
		}

		if result.Has(value) || BASE64_WHITELIST[strings.ToLower(value)] {
			continue
		}

		decoded, err := base64.StdEncoding.DecodeString(value)
		if err != nil || BASE64_WHITELIST[strings.ToLower(string(decoded))] {
			continue
		}
		result.Add(value, string(decoded))
	}
	return result.Items()
}

func DetectDridexStrings(code string) []*DecodedString {
	result := newDecodedSet()
	for _, match := range dridex_string_re.FindAllString(code, -1) {
		value := match[1 : len(match)-1]
		if !not_hex_string_re.MatchString(value) || result.Has(value) {
			continue
		}

		decoded, err := DridexUrlDecode(value)
		if err != nil {
			continue
		}
		result.Add(value, decoded)
	}
	return result.Items()
}

// DetectVBAStrings reports strings built with VBA expressions.
func DetectVBAStrings(code string) []*DecodedString {
	result := []*DecodedString{}
	for _, match := range expressions.EvaluateAll(code) {
		result = append(result, &DecodedString{
			Encoded: match.Encoded,
			Decoded: match.Decoded,
		})
	}
	return result
}
