package olevba

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/alexmullins/zip"
	"github.com/klauspost/compress/zlib"
)

// Builders for the documents used by the tests. Files are generated so
// every structure under test is known byte for byte.

const (
	TEST_SECTOR_SIZE      = 512
	TEST_MINI_SECTOR_SIZE = 64
	TEST_MINI_CUTOFF      = 4096
)

type testEntry struct {
	name     string
	data     []byte
	storage  bool
	children []*testEntry
}

func testStream(name string, data []byte) *testEntry {
	return &testEntry{name: name, data: data}
}

func testStorage(name string, children ...*testEntry) *testEntry {
	return &testEntry{name: name, storage: true, children: children}
}

type cfbBuilder struct {
	sectors    [][]byte
	fat        []uint32
	headers    []*DirectoryHeader
	entries    []*testEntry
	ministream []byte
	minifat    []uint32
}

func newDirectoryHeader(name string, mse byte) *DirectoryHeader {
	result := &DirectoryHeader{
		Mse:         mse,
		Flags:       1,
		SidLeftSib:  NOSTREAM,
		SidRightSib: NOSTREAM,
		SidChild:    NOSTREAM,
		SectStart:   ENDOFCHAIN,
	}

	encoded := utf16.Encode([]rune(name))
	copy(result.AB[:], encoded)
	result.CB = uint16((len(encoded) + 1) * 2)
	return result
}

// flatten assigns directory indexes depth first. Siblings are chained
// through their right sibling link.
func (self *cfbBuilder) flatten(parent int, children []*testEntry) {
	previous := -1
	for _, child := range children {
		mse := byte(STGTY_STREAM)
		if child.storage {
			mse = STGTY_STORAGE
		}

		index := len(self.headers)
		self.headers = append(self.headers, newDirectoryHeader(child.name, mse))
		self.entries = append(self.entries, child)

		if previous < 0 {
			self.headers[parent].SidChild = uint32(index)
		} else {
			self.headers[previous].SidRightSib = uint32(index)
		}
		previous = index

		if child.storage {
			self.flatten(index, child.children)
		}
	}
}

// allocate stores data in a new chain of regular sectors.
func (self *cfbBuilder) allocate(data []byte) uint32 {
	if len(data) == 0 {
		return ENDOFCHAIN
	}

	start := uint32(len(self.sectors))
	for offset := 0; offset < len(data); offset += TEST_SECTOR_SIZE {
		sector := make([]byte, TEST_SECTOR_SIZE)
		copy(sector, data[offset:])
		self.sectors = append(self.sectors, sector)
		self.fat = append(self.fat, uint32(len(self.sectors)))
	}
	self.fat[len(self.fat)-1] = ENDOFCHAIN
	return start
}

func (self *cfbBuilder) allocateMini(data []byte) uint32 {
	start := uint32(len(self.minifat))
	for offset := 0; offset < len(data); offset += TEST_MINI_SECTOR_SIZE {
		sector := make([]byte, TEST_MINI_SECTOR_SIZE)
		copy(sector, data[offset:])
		self.ministream = append(self.ministream, sector...)
		self.minifat = append(self.minifat, uint32(len(self.minifat)+1))
	}
	self.minifat[len(self.minifat)-1] = ENDOFCHAIN
	return start
}

func uint32Bytes(values []uint32, size int) []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, values)
	for buf.Len()%size != 0 {
		binary.Write(buf, binary.LittleEndian, uint32(FREESECT))
	}
	return buf.Bytes()
}

// buildCFB lays out a version 3 compound file. When mini is set,
// streams shorter than 4096 bytes are stored in the mini stream.
func buildCFB(mini bool, children ...*testEntry) []byte {
	self := &cfbBuilder{}
	self.headers = append(self.headers, newDirectoryHeader("Root Entry", STGTY_ROOT))
	self.entries = append(self.entries, nil)
	self.flatten(0, children)

	// Sector 0 holds the FAT.
	self.sectors = append(self.sectors, nil)
	self.fat = append(self.fat, FATSECT)

	// Directory sectors are reserved before the stream data.
	dir_data := make([]byte, len(self.headers)*DIRECTORY_SIZE)
	dir_start := self.allocate(dir_data)

	for index, entry := range self.entries {
		if entry == nil || entry.storage {
			continue
		}

		header := self.headers[index]
		header.Size = uint32(len(entry.data))
		if len(entry.data) == 0 {
			continue
		}

		if mini && len(entry.data) < TEST_MINI_CUTOFF {
			header.SectStart = self.allocateMini(entry.data)
		} else {
			header.SectStart = self.allocate(entry.data)
		}
	}

	header := OLEHeader{
		MinorVersion:     0x3E,
		DllVersion:       3,
		ByteOrder:        0xFFFE,
		SectorShift:      9,
		MiniSectorShift:  6,
		CsectFat:         1,
		SectDirStart:     dir_start,
		SectMiniFatStart: ENDOFCHAIN,
		SectDifStart:     ENDOFCHAIN,
	}
	copy(header.AbSig[:], OLE_SIGNATURE)
	for i := range header.SectFat {
		header.SectFat[i] = FREESECT
	}
	header.SectFat[0] = 0

	if mini && len(self.minifat) > 0 {
		header.MiniSectorCutoff = TEST_MINI_CUTOFF
		header.SectMiniFatStart = self.allocate(
			uint32Bytes(self.minifat, TEST_SECTOR_SIZE))
		header.CsectMiniFat = uint32(
			(len(self.minifat)*4 + TEST_SECTOR_SIZE - 1) / TEST_SECTOR_SIZE)
		self.headers[0].SectStart = self.allocate(self.ministream)
		self.headers[0].Size = uint32(len(self.ministream))
	}

	if len(self.fat) > TEST_SECTOR_SIZE/4 {
		panic(fmt.Sprintf("test compound file too large: %d sectors", len(self.fat)))
	}

	// Now that the stream locations are known fill in the directory.
	dir_buf := &bytes.Buffer{}
	for _, dir_header := range self.headers {
		binary.Write(dir_buf, binary.LittleEndian, dir_header)
		dir_buf.Write([]byte{0, 0})
	}
	dir_bytes := dir_buf.Bytes()
	for i := 0; i*TEST_SECTOR_SIZE < len(dir_bytes); i++ {
		copy(self.sectors[int(dir_start)+i], dir_bytes[i*TEST_SECTOR_SIZE:])
	}

	self.sectors[0] = uint32Bytes(self.fat, TEST_SECTOR_SIZE)

	result := &bytes.Buffer{}
	binary.Write(result, binary.LittleEndian, &header)
	for _, sector := range self.sectors {
		result.Write(sector)
	}
	return result.Bytes()
}

// compressLiteral produces a valid CompressedContainer made only of
// literal tokens.
func compressLiteral(data []byte) []byte {
	result := []byte{COMPRESSED_SIGNATURE}
	for len(data) > 0 {
		chunk_len := min(len(data), 2048)

		chunk := []byte{}
		for i := 0; i < chunk_len; i += 8 {
			chunk = append(chunk, 0)
			chunk = append(chunk, data[i:min(i+8, chunk_len)]...)
		}

		// Compressed flag, signature 0b011 and the size less 3.
		header := uint16(0xB000 | (len(chunk) + 2 - 3))
		result = binary.LittleEndian.AppendUint16(result, header)
		result = append(result, chunk...)
		data = data[chunk_len:]
	}
	return result
}

func utf16le(text string) []byte {
	result := []byte{}
	for _, c := range utf16.Encode([]rune(text)) {
		result = binary.LittleEndian.AppendUint16(result, c)
	}
	return result
}

type dirWriter struct {
	bytes.Buffer
}

func (self *dirWriter) u16(value uint16) *dirWriter {
	binary.Write(self, binary.LittleEndian, value)
	return self
}

func (self *dirWriter) u32(value uint32) *dirWriter {
	binary.Write(self, binary.LittleEndian, value)
	return self
}

func (self *dirWriter) sized(data []byte) *dirWriter {
	self.u32(uint32(len(data)))
	self.Write(data)
	return self
}

func (self *dirWriter) fixed(id uint16, value uint32) *dirWriter {
	return self.u16(id).u32(4).u32(value)
}

type testModule struct {
	name string

	// Module, Document or Class.
	kind ModuleKind
	code string

	// Length of the performance cache which precedes the source.
	offset int
}

// buildDirStream writes an uncompressed dir stream declaring modules.
func buildDirStream(project_name string, codepage uint16, modules []testModule) []byte {
	w := &dirWriter{}
	w.fixed(PROJECTSYSKIND, 1)
	w.fixed(PROJECTCOMPATVERSION, 0x6B)
	w.fixed(PROJECTLCID, EXPECTED_LCID)
	w.fixed(PROJECTLCIDINVOKE, EXPECTED_LCID)
	w.u16(PROJECTCODEPAGE).u32(2).u16(codepage)
	w.u16(PROJECTNAME).sized([]byte(project_name))
	w.u16(PROJECTDOCSTRING).sized(nil).u16(DOCSTRING_RESERVED).sized(nil)
	w.u16(PROJECTHELPFILEPATH).sized(nil).u16(HELPFILEPATH_RESERVED).sized(nil)
	w.fixed(PROJECTHELPCONTEXT, 0)
	w.fixed(PROJECTLIBFLAGS, 0)
	w.u16(PROJECTVERSION).u32(4).u32(0x5B4A0A3B).u16(0x11)
	w.u16(PROJECTCONSTANTS).sized(nil).u16(CONSTANTS_RESERVED).sized(nil)

	// A registered reference to stdole.
	libid := []byte(`*\G{00020430-0000-0000-C000-000000000046}#2.0#0#C:\Windows\system32\stdole2.tlb#OLE Automation`)
	w.u16(REFERENCENAME).sized([]byte("stdole"))
	w.u16(REFERENCENAME_RESERVED).sized(utf16le("stdole"))
	w.u16(REFERENCEREGISTERED).u32(uint32(4 + len(libid) + 6))
	w.sized(libid).u32(0).u16(0)

	w.u16(PROJECTMODULES).u32(2).u16(uint16(len(modules)))
	w.u16(PROJECTCOOKIE).u32(2).u16(0xFFFF)

	for _, module := range modules {
		w.u16(MODULENAME).sized([]byte(module.name))
		w.u16(MODULENAMEUNICODE).sized(utf16le(module.name))
		w.u16(MODULESTREAMNAME).sized([]byte(module.name))
		w.u16(MODULESTREAMNAME_RESERVED).sized(utf16le(module.name))
		w.u16(MODULEDOCSTRING).sized(nil).u16(MODULEDOCSTRING_RESERVED).sized(nil)
		w.u16(MODULEOFFSET).u32(4).u32(uint32(module.offset))
		w.fixed(MODULEHELPCONTEXT, 0)
		w.u16(MODULECOOKIE).u32(2).u16(0xFFFF)

		if module.kind == MODULE_STANDARD {
			w.u16(MODULETYPE_PROCEDURE).u32(0)
		} else {
			w.u16(MODULETYPE_DOCUMENT).u32(0)
		}
		w.u16(MODULETERMINATOR).u32(0)
	}

	return w.Bytes()
}

func buildProjectStream(modules []testModule) []byte {
	lines := []string{`ID="{F0A1E2B3-C4D5-4E6F-8091-A2B3C4D5E6F7}"`}
	for _, module := range modules {
		switch module.kind {
		case MODULE_DOCUMENT:
			lines = append(lines, "Document="+module.name+"/&H00000000")
		default:
			lines = append(lines, string(module.kind)+"="+module.name)
		}
	}
	lines = append(lines, `Name="VBAProject"`, `HelpContextID="0"`, "",
		"[Host Extender Info]", "&H00000001={3832D640-CF90-11CF-8E43-00A0C911005A};VBE;&H00000000")
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

// vbaProjectEntries returns the PROJECT stream and VBA storage of a
// project holding modules.
func vbaProjectEntries(modules ...testModule) []*testEntry {
	vba := []*testEntry{
		testStream("_VBA_PROJECT", []byte{0xCC, 0x61, 0xFF, 0xFF, 0x00, 0x00, 0x00}),
		testStream("dir", compressLiteral(buildDirStream("VBAProject", 1252, modules))),
	}

	for _, module := range modules {
		data := bytes.Repeat([]byte{0xAA}, module.offset)
		data = append(data, compressLiteral([]byte(module.code))...)
		vba = append(vba, testStream(module.name, data))
	}

	return []*testEntry{
		testStream("PROJECT", buildProjectStream(modules)),
		testStorage("VBA", vba...),
	}
}

var (
	THIS_DOCUMENT = testModule{
		name:   "ThisDocument",
		kind:   MODULE_DOCUMENT,
		code:   "Attribute VB_Name = \"ThisDocument\"\r\n",
		offset: 0x20,
	}

	AUTOOPEN_MODULE = testModule{
		name:   "Module1",
		kind:   MODULE_STANDARD,
		code:   "Attribute VB_Name = \"Module1\"\r\nSub AutoOpen()\r\n    Shell \"cmd.exe\"\r\nEnd Sub\r\n",
		offset: 0x31,
	}
)

// buildWordDocument lays out a Word 97 document with its project in
// the Macros storage.
func buildWordDocument(mini bool, modules ...testModule) []byte {
	return buildCFB(mini,
		testStream("WordDocument", bytes.Repeat([]byte{0xEC, 0xA5}, 300)),
		testStream("1Table", bytes.Repeat([]byte{0x00}, 100)),
		testStorage("Macros", vbaProjectEntries(modules...)...),
	)
}

// buildExcelDocument puts the project below _VBA_PROJECT_CUR.
func buildExcelDocument(modules ...testModule) []byte {
	return buildCFB(true,
		testStream("Workbook", bytes.Repeat([]byte{0x09, 0x08}, 100)),
		testStorage("_VBA_PROJECT_CUR", vbaProjectEntries(modules...)...),
	)
}

func buildOpenXML(members map[string][]byte, encrypted map[string][]byte) []byte {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)

	for _, name := range sortedByteKeys(members) {
		fd, err := w.Create(name)
		if err != nil {
			panic(err)
		}
		fd.Write(members[name])
	}

	for _, name := range sortedByteKeys(encrypted) {
		fd, err := w.Encrypt(name, "infected")
		if err != nil {
			panic(err)
		}
		fd.Write(encrypted[name])
	}

	w.Close()
	return buf.Bytes()
}

func sortedByteKeys(m map[string][]byte) []string {
	keys := make(map[string]interface{})
	for k := range m {
		keys[k] = nil
	}
	return sortedKeys(keys)
}

// buildActiveMime wraps data the way Word stores editdata.mso.
func buildActiveMime(data []byte) []byte {
	header := make([]byte, ACTIVEMIME_WORD_OFFSET)
	copy(header, ACTIVEMIME_MAGIC)
	binary.LittleEndian.PutUint16(header[ACTIVEMIME_OFFSET_FIELD:],
		ACTIVEMIME_WORD_OFFSET-46)

	buf := bytes.NewBuffer(header)
	w := zlib.NewWriter(buf)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}

func wrapBase64(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	lines := []string{}
	for len(encoded) > 76 {
		lines = append(lines, encoded[:76])
		encoded = encoded[76:]
	}
	lines = append(lines, encoded)
	return strings.Join(lines, "\r\n")
}

func buildWord2003XML(mso []byte) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<?mso-application progid="Word.Document"?>
<w:wordDocument xmlns:w="` + NS_WORD2003 + `" xmlns:o="urn:schemas-microsoft-com:office:office">
<o:DocumentProperties><o:Author>user</o:Author></o:DocumentProperties>
<w:docOleData><w:binData w:name="editdata.mso">` + wrapBase64(mso) + `</w:binData></w:docOleData>
<w:body><w:p><w:r><w:t>Hello</w:t></w:r></w:p></w:body>
</w:wordDocument>
`)
}

func buildMHTML(mso []byte) []byte {
	lines := []string{
		"MIME-Version: 1.0",
		`Content-Type: multipart/related; boundary="----=_NextPart_01D5"`,
		"",
		"This document is a Single File Web Page, also known as a Web Archive file.",
		"",
		"------=_NextPart_01D5",
		"Content-Location: file:///C:/D1A2/Doc1.htm",
		"Content-Transfer-Encoding: quoted-printable",
		`Content-Type: text/html; charset="us-ascii"`,
		"",
		"<html><body><p>Hello</p></body></html>",
		"",
		"------=_NextPart_01D5",
		"Content-Location: file:///C:/D1A2/Doc1_files/editdata.mso",
		"Content-Transfer-Encoding: base64",
		"Content-Type: application/x-mso",
		"",
		wrapBase64(mso),
		"",
		"------=_NextPart_01D5--",
		"",
	}
	return []byte(strings.Join(lines, "\r\n"))
}
