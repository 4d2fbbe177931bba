package olevba

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

const DEFAULT_CODEPAGE = 1252

var (
	// Windows code page identifiers as found in PROJECTCODEPAGE.
	CODEPAGES = map[uint16]encoding.Encoding{
		437:   charmap.CodePage437,
		850:   charmap.CodePage850,
		852:   charmap.CodePage852,
		855:   charmap.CodePage855,
		858:   charmap.CodePage858,
		860:   charmap.CodePage860,
		862:   charmap.CodePage862,
		863:   charmap.CodePage863,
		865:   charmap.CodePage865,
		866:   charmap.CodePage866,
		874:   charmap.Windows874,
		932:   japanese.ShiftJIS,
		936:   simplifiedchinese.GBK,
		949:   korean.EUCKR,
		950:   traditionalchinese.Big5,
		1200:  unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
		1201:  unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
		1250:  charmap.Windows1250,
		1251:  charmap.Windows1251,
		1252:  charmap.Windows1252,
		1253:  charmap.Windows1253,
		1254:  charmap.Windows1254,
		1255:  charmap.Windows1255,
		1256:  charmap.Windows1256,
		1257:  charmap.Windows1257,
		1258:  charmap.Windows1258,
		10000: charmap.Macintosh,
		10007: charmap.MacintoshCyrillic,
		20866: charmap.KOI8R,
		20932: japanese.EUCJP,
		21866: charmap.KOI8U,
		28591: charmap.ISO8859_1,
		28592: charmap.ISO8859_2,
		28593: charmap.ISO8859_3,
		28594: charmap.ISO8859_4,
		28595: charmap.ISO8859_5,
		28596: charmap.ISO8859_6,
		28597: charmap.ISO8859_7,
		28598: charmap.ISO8859_8,
		28599: charmap.ISO8859_9,
		28603: charmap.ISO8859_13,
		28605: charmap.ISO8859_15,
		50220: japanese.ISO2022JP,
		54936: simplifiedchinese.GB18030,
		65001: unicode.UTF8,
	}
)

// CodePageName returns the codec name for a code page, such as cp1252.
func CodePageName(codepage uint16) string {
	return fmt.Sprintf("cp%d", codepage)
}

func codePageEncoding(codepage uint16) (encoding.Encoding, bool) {
	enc, pres := CODEPAGES[codepage]
	if !pres {
		return charmap.Windows1252, false
	}
	return enc, true
}

// decodeCodePage converts bytes in the project code page to UTF-8.
// Unknown code pages fall back to Windows-1252.
func decodeCodePage(data []byte, codepage uint16) string {
	enc, _ := codePageEncoding(codepage)
	res, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(res)
}

// decodeUnicode decodes the UTF-16LE variant of a record field.
func decodeUnicode(data []byte) string {
	unicode_data, err := unicode.UTF16(
		unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(unicode_data)
}
