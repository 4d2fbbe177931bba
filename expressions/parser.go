package expressions

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const (
	// Deeper expressions are not evaluated. This keeps a scan over
	// source full of unbalanced parentheses linear.
	MAX_NESTING = 64

	// Same grammar as the scanner's base64 detection.
	BASE64_RE = `(?:[A-Za-z0-9+/]{4}){1,}(?:[A-Za-z0-9+/]{2}[AEIMQUYcgkosw048]=|[A-Za-z0-9+/][AQgw]==)?`
)

var (
	base64_prefix = regexp.MustCompile(`^` + BASE64_RE)
)

func isIdentifierChar(c byte) bool {
	return c == '_' ||
		(c >= '0' && c <= '9') ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z')
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') ||
		(c >= 'a' && c <= 'f') ||
		(c >= 'A' && c <= 'F')
}

// parser is a backtracking recursive descent parser. Every parse method
// either consumes a complete production and returns true, or leaves pos
// where it found it and returns false.
type parser struct {
	src   string
	pos   int
	depth int
}

// enter tracks the nesting of items. Callers must call leave when it
// returns true.
func (self *parser) enter() bool {
	if self.depth >= MAX_NESTING {
		return false
	}
	self.depth++
	return true
}

func (self *parser) leave() {
	self.depth--
}

func (self *parser) skipSpaces() {
	for self.pos < len(self.src) &&
		(self.src[self.pos] == ' ' || self.src[self.pos] == '\t') {
		self.pos++
	}
}

func (self *parser) atWordStart() bool {
	return self.pos == 0 || !isIdentifierChar(self.src[self.pos-1])
}

// consume skips spaces then consumes c.
func (self *parser) consume(c byte) bool {
	save := self.pos
	self.skipSpaces()
	if self.pos < len(self.src) && self.src[self.pos] == c {
		self.pos++
		return true
	}
	self.pos = save
	return false
}

// consumeFold consumes a case-insensitive literal without skipping
// spaces.
func (self *parser) consumeFold(literal string) bool {
	end := self.pos + len(literal)
	if end > len(self.src) || !strings.EqualFold(self.src[self.pos:end], literal) {
		return false
	}
	self.pos = end
	return true
}

// consumeKeyword consumes a case-insensitive keyword which must not be
// part of a longer identifier.
func (self *parser) consumeKeyword(keyword string) bool {
	save := self.pos
	self.skipSpaces()
	if !self.atWordStart() || !self.consumeFold(keyword) {
		self.pos = save
		return false
	}

	if self.pos < len(self.src) &&
		(isIdentifierChar(self.src[self.pos]) || self.src[self.pos] == '$') {
		self.pos = save
		return false
	}
	return true
}

// parseStringExpression: item {("+" | "&") item}
func (self *parser) parseStringExpression() (Value, bool) {
	left, ok := self.parseStringItem()
	if !ok {
		return Value{}, false
	}

	for {
		save := self.pos
		if !self.consume('+') && !self.consume('&') {
			break
		}

		right, ok := self.parseStringItem()
		if !ok {
			self.pos = save
			break
		}
		left = obfuscated(left.Text + right.Text)
	}

	return left, true
}

func (self *parser) parseStringItem() (Value, bool) {
	if !self.enter() {
		return Value{}, false
	}
	defer self.leave()

	save := self.pos
	self.skipSpaces()

	for _, parse := range []func() (Value, bool){
		self.parseChr,
		self.parseStrReverse,
		self.parseEnviron,
		self.parseQuotedString,
		self.parseHexCall,
		self.parseBase64Call,
		self.parseStringParens,
	} {
		value, ok := parse()
		if ok {
			return value, true
		}
	}

	self.pos = save
	return Value{}, false
}

func (self *parser) parseStringParens() (Value, bool) {
	save := self.pos
	if !self.consume('(') {
		return Value{}, false
	}

	value, ok := self.parseStringExpression()
	if !ok || !self.consume(')') {
		self.pos = save
		return Value{}, false
	}
	return value, true
}

// parseChr handles Chr, Chr$, ChrB, ChrB$, ChrW and ChrW$.
func (self *parser) parseChr() (Value, bool) {
	save := self.pos
	if !self.atWordStart() || !self.consumeFold("chr") {
		return Value{}, false
	}

	variant := byte(0)
	if self.pos < len(self.src) {
		switch self.src[self.pos] {
		case 'b', 'B':
			variant = 'b'
			self.pos++
		case 'w', 'W':
			variant = 'w'
			self.pos++
		}
	}

	if self.pos < len(self.src) && self.src[self.pos] == '$' {
		self.pos++
	}

	if !self.consume('(') {
		self.pos = save
		return Value{}, false
	}

	code, ok := self.parseIntExpression()
	if !ok || !self.consume(')') {
		self.pos = save
		return Value{}, false
	}

	return obfuscated(chrToString(variant, code)), true
}

// chrToString converts a character code. ChrW takes a code point; Chr
// and ChrB codes 128 to 255 are read as Windows-1252, the code page of
// most macro documents. Invalid codes give a placeholder so evaluation
// never aborts.
func chrToString(variant byte, code int64) string {
	if code >= 0 && code <= 127 {
		return string(rune(code))
	}

	if variant != 'w' && code >= 128 && code <= 255 {
		return string(charmap.Windows1252.DecodeByte(byte(code)))
	}

	// ChrW treats negative values as code + 65536.
	if variant == 'w' && code >= -32767 && code < 0 {
		code += 65536
	}

	if code >= 0 && code <= utf8.MaxRune && utf8.ValidRune(rune(code)) {
		return string(rune(code))
	}

	return fmt.Sprintf("Chr(%d)", code)
}

func (self *parser) parseUnaryStringCall(keyword string) (Value, bool) {
	save := self.pos
	if !self.consumeKeyword(keyword) || !self.consume('(') {
		self.pos = save
		return Value{}, false
	}

	value, ok := self.parseStringExpression()
	if !ok || !self.consume(')') {
		self.pos = save
		return Value{}, false
	}
	return value, true
}

func (self *parser) parseStrReverse() (Value, bool) {
	value, ok := self.parseUnaryStringCall("StrReverse")
	if !ok {
		return Value{}, false
	}

	reversed := []rune(value.Text)
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	return obfuscated(string(reversed)), true
}

// parseEnviron renders Environ("x") as %x% rather than resolving it.
func (self *parser) parseEnviron() (Value, bool) {
	value, ok := self.parseUnaryStringCall("Environ")
	if !ok {
		return Value{}, false
	}
	return obfuscated("%" + value.Text + "%"), true
}

// parseQuotedString reads a single line "..." literal where "" stands
// for one quote.
func (self *parser) parseQuotedString() (Value, bool) {
	if self.pos >= len(self.src) || self.src[self.pos] != '"' {
		return Value{}, false
	}

	result := strings.Builder{}
	for i := self.pos + 1; i < len(self.src); i++ {
		c := self.src[i]
		switch c {
		case '\r', '\n':
			return Value{}, false

		case '"':
			if i+1 < len(self.src) && self.src[i+1] == '"' {
				result.WriteByte('"')
				i++
				continue
			}
			self.pos = i + 1
			return literal(result.String()), true

		default:
			result.WriteByte(c)
		}
	}
	return Value{}, false
}

func (self *parser) parseIdentifier() bool {
	if self.pos >= len(self.src) || !isAlpha(self.src[self.pos]) {
		return false
	}
	for self.pos < len(self.src) && isIdentifierChar(self.src[self.pos]) {
		self.pos++
	}
	return true
}

// parseCallPrefix consumes `identifier (` and the opening quote.
func (self *parser) parseCallPrefix() bool {
	save := self.pos
	if !self.parseIdentifier() || !self.consume('(') || !self.consume('"') {
		self.pos = save
		return false
	}
	return true
}

// parseHexCall matches any function applied to a quoted string of at
// least two hex pairs and decodes the hex.
func (self *parser) parseHexCall() (Value, bool) {
	save := self.pos
	if !self.parseCallPrefix() {
		return Value{}, false
	}

	start := self.pos
	for self.pos < len(self.src) && isHexDigit(self.src[self.pos]) {
		self.pos++
	}
	digits := self.src[start:self.pos]

	if len(digits) < 4 || len(digits)%2 != 0 ||
		!self.consume('"') || !self.consume(')') {
		self.pos = save
		return Value{}, false
	}

	decoded, err := hex.DecodeString(digits)
	if err != nil {
		self.pos = save
		return Value{}, false
	}
	return obfuscated(string(decoded)), true
}

// parseBase64Call matches any function applied to a quoted base64
// string and decodes it.
func (self *parser) parseBase64Call() (Value, bool) {
	save := self.pos
	if !self.parseCallPrefix() {
		return Value{}, false
	}

	encoded := base64_prefix.FindString(self.src[self.pos:])
	self.pos += len(encoded)

	if encoded == "" || !self.consume('"') || !self.consume(')') {
		self.pos = save
		return Value{}, false
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		self.pos = save
		return Value{}, false
	}
	return obfuscated(string(decoded)), true
}

// Integer expressions: "+" binds loosest, then "-", then "*" and "/".

func (self *parser) parseIntExpression() (int64, bool) {
	return self.parseIntSum()
}

func (self *parser) parseIntSum() (int64, bool) {
	left, ok := self.parseIntDifference()
	if !ok {
		return 0, false
	}

	for {
		save := self.pos
		if !self.consume('+') {
			return left, true
		}
		right, ok := self.parseIntDifference()
		if !ok {
			self.pos = save
			return left, true
		}
		left += right
	}
}

func (self *parser) parseIntDifference() (int64, bool) {
	left, ok := self.parseIntProduct()
	if !ok {
		return 0, false
	}

	for {
		save := self.pos
		if !self.consume('-') {
			return left, true
		}
		right, ok := self.parseIntProduct()
		if !ok {
			self.pos = save
			return left, true
		}
		left -= right
	}
}

func (self *parser) parseIntProduct() (int64, bool) {
	left, ok := self.parseIntItem()
	if !ok {
		return 0, false
	}

	for {
		save := self.pos
		var op byte
		switch {
		case self.consume('*'):
			op = '*'
		case self.consume('/'):
			op = '/'
		default:
			return left, true
		}

		right, ok := self.parseIntItem()
		if !ok {
			self.pos = save
			return left, true
		}

		if op == '*' {
			left *= right
			continue
		}

		// Division by zero fails the whole fragment.
		if right == 0 {
			return 0, false
		}
		left = floorDiv(left, right)
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func (self *parser) parseIntItem() (int64, bool) {
	if !self.enter() {
		return 0, false
	}
	defer self.leave()

	save := self.pos
	self.skipSpaces()

	if value, ok := self.parseAsc(); ok {
		return value, true
	}

	if value, ok := self.parseVal(); ok {
		return value, true
	}

	if value, ok := self.parseIntegerLiteral(); ok {
		return value, true
	}

	if self.consume('(') {
		value, ok := self.parseIntExpression()
		if ok && self.consume(')') {
			return value, true
		}
	}

	self.pos = save
	return 0, false
}

// parseAsc returns the code of the first character of its argument.
func (self *parser) parseAsc() (int64, bool) {
	save := self.pos
	value, ok := self.parseUnaryStringCall("Asc")
	if !ok || value.Text == "" {
		self.pos = save
		return 0, false
	}

	r, size := utf8.DecodeRuneInString(value.Text)
	if r == utf8.RuneError && size <= 1 {
		return int64(value.Text[0]), true
	}
	return int64(r), true
}

func (self *parser) parseVal() (int64, bool) {
	value, ok := self.parseUnaryStringCall("Val")
	if !ok {
		return 0, false
	}
	return parseVal(value.Text), true
}

// parseVal returns the numeric prefix of a string as VBA's Val does,
// or 0 when there is none.
func parseVal(text string) int64 {
	text = strings.TrimLeft(text, " \t\r\n")

	base := 10
	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "&h"):
		base = 16
		text = text[2:]
	case strings.HasPrefix(lower, "&o"):
		base = 8
		text = text[2:]
	}

	sign := ""
	if base == 10 && text != "" && (text[0] == '-' || text[0] == '+') {
		sign = text[:1]
		text = text[1:]
	}

	end := 0
	for end < len(text) && digitValue(text[end]) < base {
		end++
	}
	if end == 0 {
		return 0
	}

	result, err := strconv.ParseInt(sign+text[:end], base, 64)
	if err != nil {
		return 0
	}
	return result
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return 99
}

// parseIntegerLiteral reads decimal, &O octal and &H hex literals with
// an optional %, & or ^ type suffix.
func (self *parser) parseIntegerLiteral() (int64, bool) {
	save := self.pos
	base := 10

	if self.pos < len(self.src) && self.src[self.pos] == '&' {
		self.pos++
		base = 8
		if self.pos < len(self.src) {
			switch self.src[self.pos] {
			case 'h', 'H':
				base = 16
				self.pos++
			case 'o', 'O':
				self.pos++
			}
		}

	} else if !self.atWordStart() {
		return 0, false
	}

	start := self.pos
	for self.pos < len(self.src) && digitValue(self.src[self.pos]) < base {
		self.pos++
	}
	digits := self.src[start:self.pos]

	if digits == "" {
		self.pos = save
		return 0, false
	}

	result, err := strconv.ParseInt(digits, base, 64)
	if err != nil {
		self.pos = save
		return 0, false
	}

	if self.pos < len(self.src) && strings.IndexByte("%&^", self.src[self.pos]) >= 0 {
		self.pos++
	}

	return result, true
}
