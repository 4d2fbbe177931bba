package scanner

import (
	"regexp"
)

const (
	SCHEME       = `\b(?:http|ftp)s?`
	TLD          = `(?:xn--[a-zA-Z0-9]{4,20}|[a-zA-Z]{2,20})`
	DNS_NAME     = `(?:[a-zA-Z0-9\-\.]+\.` + TLD + `)`
	NUMBER_0_255 = `(?:25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9][0-9]|[0-9])`
	IPv4         = `(?:` + NUMBER_0_255 + `\.){3}` + NUMBER_0_255
	SERVER       = `(?:` + IPv4 + `|` + DNS_NAME + `)`
	PORT         = `(?:\:[0-9]{1,5})?`
	SERVER_PORT  = SERVER + PORT
	URL_PATH     = `(?:/[a-zA-Z0-9\-\._\?\,\'/\\\+&%\$#\=~]*)?`
	URL_RE       = SCHEME + `\://` + SERVER_PORT + URL_PATH

	EMAIL_RE      = `(?i)\b[A-Z0-9._%+-]+@` + SERVER + `\b`
	EXECUTABLE_RE = `(?i)\b\w+\.(EXE|PIF|GADGET|MSI|MSP|MSC|VBS|VBE|VB|JSE|JS|WSF|WSC|WSH|WS|BAT|CMD|DLL|SCR|HTA|CPL|CLASS|JAR|PS1XML|PS1|PS2XML|PS2|PSC1|PSC2|SCF|LNK|INF|REG)\b`
)

type Pattern struct {
	Name string
	Re   *regexp.Regexp
}

// IOC patterns in reporting order.
var PATTERNS = []*Pattern{
	{"URL", regexp.MustCompile(URL_RE)},
	{"IPv4 address", regexp.MustCompile(IPv4)},
	{"E-mail address", regexp.MustCompile(EMAIL_RE)},
	{"Executable file name", regexp.MustCompile(EXECUTABLE_RE)},
}
