package olevba

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sebdah/goldie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"www.velocidex.com/golang/olevba/scanner"
)

const (
	AUTOOPEN_TEXT = "Sub AutoOpen()\r\n    Shell \"cmd.exe\"\r\nEnd Sub\r\n"
)

func TestMacros(t *testing.T) {
	macros, err := ParseBuffer(buildWordDocument(true, THIS_DOCUMENT, AUTOOPEN_MODULE))
	if err != nil {
		t.Fatalf("Failed to open test file: %v", err)
	}

	serialized, _ := json.MarshalIndent(macros, " ", " ")
	goldie.Assert(t, "vba_macros", serialized)
}

func TestParseFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "macros.doc")
	err := os.WriteFile(filename,
		buildWordDocument(false, THIS_DOCUMENT, AUTOOPEN_MODULE), 0600)
	require.NoError(t, err)

	macros, err := ParseFile(filename)
	require.NoError(t, err)
	require.Equal(t, 2, len(macros))
	assert.Equal(t, "Module1.bas", macros[1].Filename)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.doc"))
	assert.Error(t, err)
}

func moduleContainers(parser *VBAParser) []string {
	result := []string{}
	for _, module := range parser.ExtractModules() {
		result = append(result, module.Container+":"+module.Filename)
	}
	return result
}

func TestParserOLE(t *testing.T) {
	parser, err := Open(buildWordDocument(false, THIS_DOCUMENT, AUTOOPEN_MODULE),
		"macros.doc", nil)
	require.NoError(t, err)
	defer parser.Close()

	assert.Equal(t, TYPE_OLE, parser.Type)
	assert.True(t, parser.HasMacros())
	assert.Equal(t, []string{
		"macros.doc:ThisDocument.cls",
		"macros.doc:Module1.bas",
	}, moduleContainers(parser))

	assert.Equal(t, THIS_DOCUMENT.code+"\n"+AUTOOPEN_MODULE.code+"\n",
		parser.AllCode())

	summary := parser.Summary(false, false)
	assert.Equal(t, 1, summary.AutoExec)
	assert.Equal(t, 1, summary.Suspicious)
	assert.Equal(t, 1, summary.IOCs)
	assert.Equal(t, "OLE:MASI----", parser.Flags(false, false))

	// Results are cached per option set.
	assert.True(t, parser.Analyze(false, false) == parser.Analyze(false, false))
}

func TestParserOpenXML(t *testing.T) {
	ole := buildWordDocument(true, THIS_DOCUMENT, AUTOOPEN_MODULE)
	data := buildOpenXML(map[string][]byte{
		"[Content_Types].xml": []byte(`<?xml version="1.0"?><Types/>`),
		"word/document.xml":   []byte(`<w:document/>`),
		"word/vbaProject.bin": ole,
	}, map[string][]byte{
		"word/hidden.bin": ole,
	})

	parser, err := Open(data, "macros.docm", nil)
	require.NoError(t, err)
	defer parser.Close()

	assert.Equal(t, TYPE_OpenXML, parser.Type)
	require.Equal(t, 1, len(parser.Subparsers()))
	assert.Equal(t, TYPE_OLE, parser.Subparsers()[0].Type)

	assert.Equal(t, []string{
		"word/vbaProject.bin:ThisDocument.cls",
		"word/vbaProject.bin:Module1.bas",
	}, moduleContainers(parser))
	assert.Equal(t, "OpX:MASI----", parser.Flags(false, false))
}

func TestParserOpenXMLWithoutMacros(t *testing.T) {
	data := buildOpenXML(map[string][]byte{
		"word/document.xml": []byte(`<w:document/>`),
	}, nil)

	parser, err := Open(data, "plain.docx", nil)
	require.NoError(t, err)

	assert.Equal(t, TYPE_OpenXML, parser.Type)
	assert.False(t, parser.HasMacros())
	assert.Nil(t, parser.Analyze(false, false))
	assert.Empty(t, parser.ExtractModules())
	assert.Equal(t, "OpX:--------", parser.Flags(false, false))
}

func TestParserWord2003XML(t *testing.T) {
	mso := buildActiveMime(buildWordDocument(true, THIS_DOCUMENT, AUTOOPEN_MODULE))

	parser, err := Open(buildWord2003XML(mso), "macros.xml", nil)
	require.NoError(t, err)
	defer parser.Close()

	assert.Equal(t, TYPE_Word2003_XML, parser.Type)
	assert.Equal(t, []string{
		"editdata.mso:ThisDocument.cls",
		"editdata.mso:Module1.bas",
	}, moduleContainers(parser))
	assert.Equal(t, "XML:MASI----", parser.Flags(false, false))
}

func TestParserMHTML(t *testing.T) {
	mso := buildActiveMime(buildWordDocument(false, AUTOOPEN_MODULE))

	parser, err := Open(buildMHTML(mso), "macros.mht", nil)
	require.NoError(t, err)
	defer parser.Close()

	assert.Equal(t, TYPE_MHTML, parser.Type)
	assert.Equal(t, []string{
		"file:///C:/D1A2/Doc1_files/editdata.mso:Module1.bas",
	}, moduleContainers(parser))
	assert.Equal(t, "MHT:MASI----", parser.Flags(false, false))
}

func buildNestedMHTML(mso []byte) []byte {
	lines := []string{
		"MIME-Version: 1.0",
		`Content-Type: multipart/related; boundary="outer"`,
		"",
		"--outer",
		`Content-Type: multipart/related; boundary="middle"`,
		"",
		"--middle",
		`Content-Type: multipart/related; boundary="inner"`,
		"",
		"--inner",
		"Content-Location: file:///C:/D1A2/Doc1_files/editdata.mso",
		"Content-Transfer-Encoding: base64",
		"Content-Type: application/x-mso",
		"",
		wrapBase64(mso),
		"--inner--",
		"--middle--",
		"--outer--",
		"",
	}
	return []byte(strings.Join(lines, "\r\n"))
}

func TestParserMHTMLNesting(t *testing.T) {
	data := buildNestedMHTML(buildActiveMime(buildWordDocument(false, AUTOOPEN_MODULE)))

	parser, err := Open(data, "nested.mht", nil)
	require.NoError(t, err)
	assert.Equal(t, "MHT:MASI----", parser.Flags(false, false))

	// MaxDepth also bounds multipart nesting.
	_, err = Open(data, "nested.mht", &Options{MaxDepth: 1})
	require.Error(t, err)

	format_error := &FormatError{}
	require.True(t, errors.As(err, &format_error))
	assert.Equal(t, "MHTML", format_error.Structure)
}

func TestParserText(t *testing.T) {
	parser, err := Open([]byte(AUTOOPEN_TEXT), "macro.vba", nil)
	require.NoError(t, err)

	assert.Equal(t, TYPE_TEXT, parser.Type)
	assert.Equal(t, AUTOOPEN_TEXT, parser.AllCode())

	modules := parser.ExtractModules()
	require.Equal(t, 1, len(modules))
	assert.Equal(t, "macro.vba", modules[0].Filename)
	assert.Nil(t, modules[0].Module)

	assert.Equal(t, "TXT:MASI----", parser.Flags(false, false))

	// Plain text has no VBA modules.
	macros, err := ParseBuffer([]byte(AUTOOPEN_TEXT))
	require.NoError(t, err)
	assert.Empty(t, macros)
}

func TestParserCorruptContainer(t *testing.T) {
	// A detected container which fails to open is an error, it is
	// never retried as another type.
	data := append([]byte(OLE_SIGNATURE), make([]byte, 600)...)
	_, err := Open(data, "bad.doc", nil)
	require.Error(t, err)

	format_error := &FormatError{}
	assert.True(t, errors.As(err, &format_error))
	assert.Equal(t, "OLEHeader", format_error.Structure)

	_, err = Open([]byte("PK\x03\x04 not really a zip"), "fake.zip", nil)
	require.Error(t, err)
	assert.True(t, errors.As(err, &format_error))
	assert.Equal(t, "OpenXML", format_error.Structure)
}

func TestParserUnsupported(t *testing.T) {
	_, err := Open([]byte("MZ\x90\x00\x03\x00\x00\x00"), "sample.exe", nil)
	require.Error(t, err)

	unsupported, ok := err.(*UnsupportedFormatError)
	require.True(t, ok)
	assert.Equal(t, "sample.exe", unsupported.Filename)
}

func TestParserDepthLimit(t *testing.T) {
	options := DefaultOptions().normalize()
	_, err := newParser([]byte(AUTOOPEN_TEXT), "nested.vba",
		options, options.MaxDepth+1)
	assert.IsType(t, &FormatError{}, err)
}

func TestParserForms(t *testing.T) {
	form := []byte("\x00\x01\x02http://evil.example.com/payload.exe\x00\x03abc\x00")
	data := buildCFB(false,
		testStream("WordDocument", bytes.Repeat([]byte{0xEC, 0xA5}, 10)),
		testStorage("Macros", append(vbaProjectEntries(AUTOOPEN_MODULE),
			testStorage("UserForm1",
				testStream("\x01CompObj", []byte{0x01, 0x00}),
				testStream("f", []byte{0x00, 0x04, 0x24, 0x00}),
				testStream("o", form),
			))...),
	)

	parser, err := Open(data, "forms.doc", nil)
	require.NoError(t, err)

	form_strings := parser.ExtractFormStrings()
	require.Equal(t, 1, len(form_strings))
	assert.Equal(t, "Macros/UserForm1/o", form_strings[0].StreamPath)
	assert.Equal(t, "http://evil.example.com/payload.exe", form_strings[0].Value)

	assert.Contains(t, parser.AllCode(), "http://evil.example.com/payload.exe\n")

	results := parser.Analyze(false, false)
	require.NotNil(t, results)
	assert.NotEmpty(t, results.ByType(scanner.IOC))
}

func TestDeobfuscatedSource(t *testing.T) {
	parser, err := Open([]byte("x = Chr(72) & \"ello!\"\r\nShell x\r\n"), "obfuscated.vba", nil)
	require.NoError(t, err)

	assert.Equal(t, "x = \"Hello!\"\r\nShell x\r\n", parser.DeobfuscatedSource())
	assert.Equal(t, "TXT:M-S----V", parser.Flags(false, true))

	// Expressions are only evaluated on request.
	assert.Equal(t, "TXT:M-S-----", parser.Flags(false, false))
}

func TestParserClose(t *testing.T) {
	parser, err := Open(buildWordDocument(false, AUTOOPEN_MODULE), "macros.doc", nil)
	require.NoError(t, err)

	assert.NoError(t, parser.Close())
	assert.NoError(t, parser.Close())
	assert.Empty(t, parser.ExtractModules())
}

func TestFilterVBA(t *testing.T) {
	assert.Equal(t, "Sub AutoOpen()\n    Shell \"cmd.exe\"\nEnd Sub",
		FilterVBA(AUTOOPEN_MODULE.code))

	// Colons may hide statements after the attribute.
	assert.Equal(t, "Attribute VB_Name = \"A\": Shell x",
		FilterVBA("Attribute VB_Name = \"A\": Shell x\r\n"))
}
