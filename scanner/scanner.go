// Package scanner looks for auto executing macros, suspicious keywords,
// indicators of compromise and encoded strings in VBA source code.
package scanner

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/elliotchance/orderedmap"
	"github.com/sirupsen/logrus"
)

type Category string

const (
	AUTOEXEC      Category = "AutoExec"
	SUSPICIOUS    Category = "Suspicious"
	IOC           Category = "IOC"
	HEX_STRING    Category = "Hex String"
	BASE64_STRING Category = "Base64 String"
	DRIDEX_STRING Category = "Dridex String"
	VBA_STRING    Category = "VBA String"
)

// A single finding. For decoded strings Keyword holds the decoded value
// and Description the encoded text. For IOCs Keyword is the value and
// Description the pattern name.
type Finding struct {
	Type        Category `json:"type"`
	Keyword     string   `json:"keyword"`
	Description string   `json:"description"`
}

type Summary struct {
	AutoExec      int `json:"autoexec"`
	Suspicious    int `json:"suspicious"`
	IOCs          int `json:"iocs"`
	HexStrings    int `json:"hex_strings"`
	Base64Strings int `json:"base64_strings"`
	DridexStrings int `json:"dridex_strings"`
	VBAStrings    int `json:"vba_strings"`
}

type Results struct {
	Findings []*Finding `json:"findings"`

	HexStrings    []*DecodedString `json:"hex_strings"`
	Base64Strings []*DecodedString `json:"base64_strings"`
	DridexStrings []*DecodedString `json:"dridex_strings"`
	VBAStrings    []*DecodedString `json:"vba_strings"`
}

func (self *Results) count(category Category) int {
	result := 0
	for _, finding := range self.Findings {
		if finding.Type == category {
			result++
		}
	}
	return result
}

// ByType returns the findings of one category in report order.
func (self *Results) ByType(category Category) []*Finding {
	result := []*Finding{}
	for _, finding := range self.Findings {
		if finding.Type == category {
			result = append(result, finding)
		}
	}
	return result
}

func (self *Results) Summary() Summary {
	return Summary{
		AutoExec:      self.count(AUTOEXEC),
		Suspicious:    self.count(SUSPICIOUS),
		IOCs:          self.count(IOC),
		HexStrings:    len(self.HexStrings),
		Base64Strings: len(self.Base64Strings),
		DridexStrings: len(self.DridexStrings),
		VBAStrings:    len(self.VBAStrings),
	}
}

type keywordMatcher struct {
	keyword     string
	description string
	re          *regexp.Regexp
}

type Scanner struct {
	autoexec   []*keywordMatcher
	suspicious []*keywordMatcher
	logger     logrus.FieldLogger
}

func compileGroups(groups []*KeywordGroup) []*keywordMatcher {
	result := []*keywordMatcher{}
	for _, group := range groups {
		for _, keyword := range group.Keywords {
			result = append(result, &keywordMatcher{
				keyword:     keyword,
				description: group.Description,
				re: regexp.MustCompile(
					`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`),
			})
		}
	}
	return result
}

// NewScanner compiles the keyword tables. A nil rules uses the default
// tables.
func NewScanner(rules *Rules, logger logrus.FieldLogger) *Scanner {
	if rules == nil {
		rules = DefaultRules()
	}

	if logger == nil {
		discard := logrus.New()
		discard.SetLevel(logrus.PanicLevel)
		logger = discard
	}

	return &Scanner{
		autoexec:   compileGroups(rules.AutoExec),
		suspicious: compileGroups(rules.Suspicious),
		logger:     logger,
	}
}

// Scan with the default tables.
func Scan(code string, include_decoded, deobfuscate bool) *Results {
	return NewScanner(nil, nil).Scan(code, include_decoded, deobfuscate)
}

// CollapseLongLines joins lines split with the " _" continuation.
func CollapseLongLines(code string) string {
	code = strings.ReplaceAll(code, " _\r\n", " ")
	code = strings.ReplaceAll(code, " _\r", " ")
	return strings.ReplaceAll(code, " _\n", " ")
}

// reverse works on bytes since its input is hex decoded data.
func reverse(s string) string {
	result := []byte(s)
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return string(result)
}

type buffer struct {
	code        string
	obfuscation string
}

func joinDecoded(items []*DecodedString, transform func(*DecodedString) string) string {
	result := strings.Builder{}
	for _, item := range items {
		result.WriteString("\n")
		result.WriteString(transform(item))
	}
	return result.String()
}

// Scan analyzes the code. Decoded strings are reported when printable,
// or always if include_decoded is set. VBA expressions are only
// evaluated when deobfuscate is set since it is slow.
func (self *Scanner) Scan(code string, include_decoded, deobfuscate bool) *Results {
	code = CollapseLongLines(code)
	result := &Results{
		Findings:      []*Finding{},
		HexStrings:    DetectHexStrings(code),
		Base64Strings: DetectBase64Strings(code),
		DridexStrings: DetectDridexStrings(code),
		VBAStrings:    []*DecodedString{},
	}

	if deobfuscate {
		result.VBAStrings = DetectVBAStrings(code)
	}

	self.logger.WithFields(logrus.Fields{
		"hex":    len(result.HexStrings),
		"base64": len(result.Base64Strings),
		"dridex": len(result.DridexStrings),
		"vba":    len(result.VBAStrings),
	}).Debug("Decoded strings")

	decoded := func(item *DecodedString) string { return item.Decoded }
	buffers := []buffer{
		{code, ""},
		{joinDecoded(result.HexStrings, decoded), "Hex"},
	}

	// Hex strings may also be reversed before or after decoding.
	if strings.Contains(strings.ToLower(code), "strreverse") {
		buffers = append(buffers,
			buffer{joinDecoded(result.HexStrings, func(item *DecodedString) string {
				return reverse(item.Decoded)
			}), "Hex+StrReverse"},
			buffer{joinDecoded(result.HexStrings, func(item *DecodedString) string {
				decoded, _ := hex.DecodeString(reverse(item.Encoded))
				return string(decoded)
			}), "StrReverse+Hex"})
	}

	buffers = append(buffers,
		buffer{joinDecoded(result.Base64Strings, decoded), "Base64"},
		buffer{joinDecoded(result.DridexStrings, decoded), "Dridex"},
		buffer{joinDecoded(result.VBAStrings, decoded), "VBA expression"},
	)

	autoexec := orderedmap.NewOrderedMap()
	suspicious := orderedmap.NewOrderedMap()
	iocs := orderedmap.NewOrderedMap()

	for _, buf := range buffers {
		if buf.code == "" {
			continue
		}

		suffix := ""
		if buf.obfuscation != "" {
			suffix = " (obfuscation: " + buf.obfuscation + ")"
		}

		self.detectKeywords(self.autoexec, buf.code, suffix, autoexec)
		self.detectKeywords(self.suspicious, buf.code, suffix, suspicious)
		detectPatterns(buf.code, suffix, iocs)
	}

	for _, aggregate := range []struct {
		present     bool
		keyword     string
		description string
	}{
		{len(result.HexStrings) > 0, "Hex Strings",
			"Hex-encoded strings were detected, may be used to obfuscate strings (option --decode to see all)"},
		{len(result.Base64Strings) > 0, "Base64 Strings",
			"Base64-encoded strings were detected, may be used to obfuscate strings (option --decode to see all)"},
		{len(result.DridexStrings) > 0, "Dridex Strings",
			"Dridex-encoded strings were detected, may be used to obfuscate strings (option --decode to see all)"},
		{len(result.VBAStrings) > 0, "VBA obfuscated Strings",
			"VBA string expressions were detected, may be used to obfuscate strings (option --decode to see all)"},
	} {
		if aggregate.present {
			setOnce(suspicious, aggregate.keyword, aggregate.description)
		}
	}

	appendFindings(result, AUTOEXEC, autoexec)
	appendFindings(result, SUSPICIOUS, suspicious)
	appendFindings(result, IOC, iocs)

	for _, decoded := range []struct {
		category Category
		items    []*DecodedString
	}{
		{HEX_STRING, result.HexStrings},
		{BASE64_STRING, result.Base64Strings},
		{DRIDEX_STRING, result.DridexStrings},
		{VBA_STRING, result.VBAStrings},
	} {
		for _, item := range decoded.items {
			if include_decoded || IsPrintable(item.Decoded) {
				result.Findings = append(result.Findings, &Finding{
					Type:        decoded.category,
					Keyword:     item.Decoded,
					Description: item.Encoded,
				})
			}
		}
	}

	return result
}

// setOnce keeps the first value set for each key.
func setOnce(items *orderedmap.OrderedMap, key, value string) {
	if _, pres := items.Get(key); !pres {
		items.Set(key, value)
	}
}

func appendFindings(
	result *Results, category Category, items *orderedmap.OrderedMap) {
	for el := items.Front(); el != nil; el = el.Next() {
		result.Findings = append(result.Findings, &Finding{
			Type:        category,
			Keyword:     el.Key.(string),
			Description: el.Value.(string),
		})
	}
}

func (self *Scanner) detectKeywords(
	matchers []*keywordMatcher, code, suffix string,
	found *orderedmap.OrderedMap) {
	for _, matcher := range matchers {
		if matcher.re.MatchString(code) {
			setOnce(found, matcher.keyword, matcher.description+suffix)
		}
	}
}

func detectPatterns(code, suffix string, found *orderedmap.OrderedMap) {
	for _, pattern := range PATTERNS {
		for _, value := range pattern.Re.FindAllString(code, -1) {
			setOnce(found, value, pattern.Name+suffix)
		}
	}
}
