package olevba

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Record identifiers of the dir stream (MS-OVBA 2.3.4.2).
const (
	PROJECTSYSKIND       = 0x0001
	PROJECTLCID          = 0x0002
	PROJECTCODEPAGE      = 0x0003
	PROJECTNAME          = 0x0004
	PROJECTDOCSTRING     = 0x0005
	PROJECTHELPFILEPATH  = 0x0006
	PROJECTHELPCONTEXT   = 0x0007
	PROJECTLIBFLAGS      = 0x0008
	PROJECTVERSION       = 0x0009
	PROJECTCONSTANTS     = 0x000C
	REFERENCEREGISTERED  = 0x000D
	REFERENCEPROJECT     = 0x000E
	PROJECTMODULES       = 0x000F
	PROJECTCOOKIE        = 0x0013
	PROJECTLCIDINVOKE    = 0x0014
	REFERENCENAME        = 0x0016
	MODULENAME           = 0x0019
	MODULESTREAMNAME     = 0x001A
	MODULEDOCSTRING      = 0x001C
	MODULEHELPCONTEXT    = 0x001E
	MODULETYPE_PROCEDURE = 0x0021
	MODULETYPE_DOCUMENT  = 0x0022
	MODULEREADONLY       = 0x0025
	MODULEPRIVATE        = 0x0028
	MODULETERMINATOR     = 0x002B
	MODULECOOKIE         = 0x002C
	REFERENCECONTROL     = 0x002F
	MODULEOFFSET         = 0x0031
	REFERENCEORIGINAL    = 0x0033
	MODULENAMEUNICODE    = 0x0047
	PROJECTCOMPATVERSION = 0x004A

	// Reserved markers which introduce the unicode half of a record.
	DOCSTRING_RESERVED          = 0x0040
	HELPFILEPATH_RESERVED       = 0x003D
	CONSTANTS_RESERVED          = 0x003C
	REFERENCENAME_RESERVED      = 0x003E
	CONTROL_RESERVED3           = 0x0030
	MODULESTREAMNAME_RESERVED   = 0x0032
	MODULEDOCSTRING_RESERVED    = 0x0048
	MAX_PROJECTNAME_SIZE        = 128
	MAX_PROJECTDOCSTRING_SIZE   = 2000
	MAX_PROJECTHELPFILE_SIZE    = 260
	MAX_PROJECTCONSTANTS_SIZE   = 1015
	EXPECTED_LCID               = 0x409
	EXPECTED_PROJECTCOOKIE_SIZE = 2
)

// Reference is one entry of the REFERENCE array. Each record kind is
// its own type.
type Reference interface {
	Kind() string
}

type ReferenceName struct {
	Name        string
	NameUnicode string
}

func (self *ReferenceName) Kind() string { return "Name" }

type ReferenceOriginal struct {
	LibidOriginal string
}

func (self *ReferenceOriginal) Kind() string { return "Original" }

type ReferenceControl struct {
	LibidTwiddled   string
	NameExtended    *ReferenceName
	LibidExtended   string
	OriginalTypeLib [16]byte
	Cookie          uint32
}

func (self *ReferenceControl) Kind() string { return "Control" }

type ReferenceRegistered struct {
	Libid string
}

func (self *ReferenceRegistered) Kind() string { return "Registered" }

type ReferenceProject struct {
	LibidAbsolute string
	LibidRelative string
	MajorVersion  uint32
	MinorVersion  uint16
}

func (self *ReferenceProject) Kind() string { return "Project" }

// ModuleRecord describes one module as declared in the dir stream.
type ModuleRecord struct {
	Name              string
	NameUnicode       string
	StreamName        string
	StreamNameUnicode string
	DocString         string
	TextOffset        uint32
	HelpContext       uint32
	Cookie            uint16

	// MODULETYPE_PROCEDURE or MODULETYPE_DOCUMENT
	Type     uint16
	ReadOnly bool
	Private  bool
}

// ProjectInformation is the decoded content of a dir stream.
type ProjectInformation struct {
	SysKind       uint32
	CompatVersion uint32
	Lcid          uint32
	LcidInvoke    uint32
	CodePage      uint16
	Name          string
	DocString     string
	HelpFile      string
	HelpContext   uint32
	LibFlags      uint32
	VersionMajor  uint32
	VersionMinor  uint16
	Constants     string
	References    []Reference
	Cookie        uint16
	Modules       []*ModuleRecord

	// Soft anomalies found while parsing.
	Anomalies []string
}

type dirReader struct {
	data      []byte
	offset    int
	logger    logrus.FieldLogger
	anomalies []string
}

func (self *dirReader) peekUint16() (uint16, bool) {
	if self.offset+2 > len(self.data) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(self.data[self.offset:]), true
}

func (self *dirReader) readUint16(field string) (uint16, error) {
	if self.offset+2 > len(self.data) {
		return 0, formatErrorf(field, "truncated at offset %d", self.offset)
	}
	result := binary.LittleEndian.Uint16(self.data[self.offset:])
	self.offset += 2
	return result, nil
}

func (self *dirReader) readUint32(field string) (uint32, error) {
	if self.offset+4 > len(self.data) {
		return 0, formatErrorf(field, "truncated at offset %d", self.offset)
	}
	result := binary.LittleEndian.Uint32(self.data[self.offset:])
	self.offset += 4
	return result, nil
}

func (self *dirReader) readBytes(field string, size int) ([]byte, error) {
	if size < 0 || self.offset+size > len(self.data) {
		return nil, formatErrorf(field,
			"%d bytes at offset %d exceed the stream length %d",
			size, self.offset, len(self.data))
	}
	result := self.data[self.offset : self.offset+size]
	self.offset += size
	return result, nil
}

// readSized reads a u32 size followed by that many bytes.
func (self *dirReader) readSized(field string) ([]byte, error) {
	size, err := self.readUint32(field + "_Size")
	if err != nil {
		return nil, err
	}
	return self.readBytes(field, int(size))
}

// check records a soft anomaly when a field does not hold its
// documented value. Parsing always continues.
func (self *dirReader) check(name string, expected uint32, value uint32) {
	if expected == value {
		return
	}

	message := fmt.Sprintf("invalid value for %v expected %04x got %04x",
		name, expected, value)
	self.anomalies = append(self.anomalies, message)
	self.logger.WithFields(logrus.Fields{
		"field":    name,
		"expected": expected,
		"value":    value,
	}).Warn("Unexpected value in dir stream")
}

// checkedUint16 reads a u16 and checks it against the expected value.
func (self *dirReader) checkedUint16(name string, expected uint16) (uint16, error) {
	value, err := self.readUint16(name)
	if err != nil {
		return 0, err
	}
	self.check(name, uint32(expected), uint32(value))
	return value, nil
}

func (self *dirReader) checkedUint32(name string, expected uint32) (uint32, error) {
	value, err := self.readUint32(name)
	if err != nil {
		return 0, err
	}
	self.check(name, expected, value)
	return value, nil
}

// readFixed reads the id and size of a fixed size record and returns
// its u32 payload.
func (self *dirReader) readFixed(name string, id uint16, size uint32) (uint32, error) {
	_, err := self.checkedUint16(name+"_Id", id)
	if err != nil {
		return 0, err
	}

	_, err = self.checkedUint32(name+"_Size", size)
	if err != nil {
		return 0, err
	}

	return self.readUint32(name)
}

// ParseDirStream parses a decompressed dir stream (MS-OVBA 2.3.4.2).
func ParseDirStream(
	dir_stream []byte, logger logrus.FieldLogger) (*ProjectInformation, error) {
	reader := &dirReader{data: dir_stream, logger: getLogger(logger)}
	result := &ProjectInformation{}

	err := reader.parseInformation(result)
	if err != nil {
		return nil, err
	}

	err = reader.parseReferences(result)
	if err != nil {
		return nil, err
	}

	err = reader.parseModules(result)
	if err != nil {
		return nil, err
	}

	result.Anomalies = reader.anomalies
	return result, nil
}

// parseInformation reads the PROJECTINFORMATION records. They must
// appear in this order.
func (self *dirReader) parseInformation(result *ProjectInformation) (err error) {
	result.SysKind, err = self.readFixed("PROJECTSYSKIND", PROJECTSYSKIND, 4)
	if err != nil {
		return err
	}

	switch result.SysKind {
	case 0x00:
		self.logger.Debug("16-bit Windows")
	case 0x01:
		self.logger.Debug("32-bit Windows")
	case 0x02:
		self.logger.Debug("Macintosh")
	case 0x03:
		self.logger.Debug("64-bit Windows")
	default:
		self.check("PROJECTSYSKIND_SysKind", 0x01, result.SysKind)
	}

	// Optional: PROJECTCOMPATVERSION
	id, _ := self.peekUint16()
	if id == PROJECTCOMPATVERSION {
		result.CompatVersion, err = self.readFixed(
			"PROJECTCOMPATVERSION", PROJECTCOMPATVERSION, 4)
		if err != nil {
			return err
		}
	}

	result.Lcid, err = self.readFixed("PROJECTLCID", PROJECTLCID, 4)
	if err != nil {
		return err
	}
	self.check("PROJECTLCID_Lcid", EXPECTED_LCID, result.Lcid)

	result.LcidInvoke, err = self.readFixed("PROJECTLCIDINVOKE", PROJECTLCIDINVOKE, 4)
	if err != nil {
		return err
	}
	self.check("PROJECTLCIDINVOKE_LcidInvoke", EXPECTED_LCID, result.LcidInvoke)

	// PROJECTCODEPAGE
	_, err = self.checkedUint16("PROJECTCODEPAGE_Id", PROJECTCODEPAGE)
	if err != nil {
		return err
	}
	_, err = self.checkedUint32("PROJECTCODEPAGE_Size", 2)
	if err != nil {
		return err
	}
	result.CodePage, err = self.readUint16("PROJECTCODEPAGE_CodePage")
	if err != nil {
		return err
	}
	if _, known := codePageEncoding(result.CodePage); !known {
		self.logger.Warnf("Unknown code page %v, falling back to %v",
			result.CodePage, CodePageName(DEFAULT_CODEPAGE))
	}

	// PROJECTNAME
	_, err = self.checkedUint16("PROJECTNAME_Id", PROJECTNAME)
	if err != nil {
		return err
	}
	size, err := self.readUint32("PROJECTNAME_SizeOfProjectName")
	if err != nil {
		return err
	}
	if size < 1 || size > MAX_PROJECTNAME_SIZE {
		return formatErrorf("PROJECTNAME",
			"PROJECTNAME_SizeOfProjectName value not in range: %v", size)
	}
	name, err := self.readBytes("PROJECTNAME_ProjectName", int(size))
	if err != nil {
		return err
	}
	result.Name = decodeCodePage(name, result.CodePage)

	// PROJECTDOCSTRING
	_, err = self.checkedUint16("PROJECTDOCSTRING_Id", PROJECTDOCSTRING)
	if err != nil {
		return err
	}
	size, err = self.readUint32("PROJECTDOCSTRING_SizeOfDocString")
	if err != nil {
		return err
	}
	if size > MAX_PROJECTDOCSTRING_SIZE {
		return formatErrorf("PROJECTDOCSTRING",
			"PROJECTDOCSTRING_SizeOfDocString value not in range: %v", size)
	}
	docstring, err := self.readBytes("PROJECTDOCSTRING_DocString", int(size))
	if err != nil {
		return err
	}
	result.DocString = decodeCodePage(docstring, result.CodePage)

	_, err = self.checkedUint16("PROJECTDOCSTRING_Reserved", DOCSTRING_RESERVED)
	if err != nil {
		return err
	}
	size, err = self.readUint32("PROJECTDOCSTRING_SizeOfDocStringUnicode")
	if err != nil {
		return err
	}
	if size%2 != 0 {
		return formatErrorf("PROJECTDOCSTRING",
			"PROJECTDOCSTRING_SizeOfDocStringUnicode is not even")
	}
	_, err = self.readBytes("PROJECTDOCSTRING_DocStringUnicode", int(size))
	if err != nil {
		return err
	}

	// PROJECTHELPFILEPATH - MS-OVBA 2.3.4.2.1.7
	_, err = self.checkedUint16("PROJECTHELPFILEPATH_Id", PROJECTHELPFILEPATH)
	if err != nil {
		return err
	}
	size, err = self.readUint32("PROJECTHELPFILEPATH_SizeOfHelpFile1")
	if err != nil {
		return err
	}
	if size > MAX_PROJECTHELPFILE_SIZE {
		return formatErrorf("PROJECTHELPFILEPATH",
			"PROJECTHELPFILEPATH_SizeOfHelpFile1 value not in range: %v", size)
	}
	helpfile1, err := self.readBytes("PROJECTHELPFILEPATH_HelpFile1", int(size))
	if err != nil {
		return err
	}
	_, err = self.checkedUint16("PROJECTHELPFILEPATH_Reserved", HELPFILEPATH_RESERVED)
	if err != nil {
		return err
	}
	size2, err := self.checkedUint32(
		"PROJECTHELPFILEPATH_SizeOfHelpFile2", uint32(len(helpfile1)))
	if err != nil {
		return err
	}
	helpfile2, err := self.readBytes("PROJECTHELPFILEPATH_HelpFile2", int(size2))
	if err != nil {
		return err
	}
	if string(helpfile1) != string(helpfile2) {
		self.anomalies = append(self.anomalies,
			"PROJECTHELPFILEPATH_HelpFile1 does not equal PROJECTHELPFILEPATH_HelpFile2")
		self.logger.Warn("PROJECTHELPFILEPATH_HelpFile1 does not equal PROJECTHELPFILEPATH_HelpFile2")
	}
	result.HelpFile = decodeCodePage(helpfile1, result.CodePage)

	result.HelpContext, err = self.readFixed(
		"PROJECTHELPCONTEXT", PROJECTHELPCONTEXT, 4)
	if err != nil {
		return err
	}

	result.LibFlags, err = self.readFixed("PROJECTLIBFLAGS", PROJECTLIBFLAGS, 4)
	if err != nil {
		return err
	}
	self.check("PROJECTLIBFLAGS_ProjectLibFlags", 0, result.LibFlags)

	// PROJECTVERSION
	_, err = self.checkedUint16("PROJECTVERSION_Id", PROJECTVERSION)
	if err != nil {
		return err
	}
	_, err = self.checkedUint32("PROJECTVERSION_Reserved", 4)
	if err != nil {
		return err
	}
	result.VersionMajor, err = self.readUint32("PROJECTVERSION_VersionMajor")
	if err != nil {
		return err
	}
	result.VersionMinor, err = self.readUint16("PROJECTVERSION_VersionMinor")
	if err != nil {
		return err
	}

	// Optional: PROJECTCONSTANTS
	id, _ = self.peekUint16()
	if id != PROJECTCONSTANTS {
		return nil
	}
	self.offset += 2

	size, err = self.readUint32("PROJECTCONSTANTS_SizeOfConstants")
	if err != nil {
		return err
	}
	if size > MAX_PROJECTCONSTANTS_SIZE {
		return formatErrorf("PROJECTCONSTANTS",
			"PROJECTCONSTANTS_SizeOfConstants value not in range: %v", size)
	}
	constants, err := self.readBytes("PROJECTCONSTANTS_Constants", int(size))
	if err != nil {
		return err
	}
	result.Constants = decodeCodePage(constants, result.CodePage)

	_, err = self.checkedUint16("PROJECTCONSTANTS_Reserved", CONSTANTS_RESERVED)
	if err != nil {
		return err
	}
	size, err = self.readUint32("PROJECTCONSTANTS_SizeOfConstantsUnicode")
	if err != nil {
		return err
	}
	if size%2 != 0 {
		return formatErrorf("PROJECTCONSTANTS",
			"PROJECTCONSTANTS_SizeOfConstantsUnicode is not even")
	}
	_, err = self.readBytes("PROJECTCONSTANTS_ConstantsUnicode", int(size))
	return err
}

// parseReferences reads the REFERENCE array up to the PROJECTMODULES
// record. The PROJECTMODULES id is consumed.
func (self *dirReader) parseReferences(result *ProjectInformation) error {
	for {
		tag, err := self.readUint16("REFERENCE_Id")
		if err != nil {
			return err
		}
		self.logger.Debugf("reference type = %04x", tag)

		if tag == PROJECTMODULES {
			return nil
		}

		reference, err := self.decodeReference(tag)
		if err != nil {
			return err
		}
		result.References = append(result.References, reference)
	}
}

// decodeReference decodes the body of a reference record whose id was
// just read. An unknown id cannot be skipped because the record length
// depends on its kind.
func (self *dirReader) decodeReference(tag uint16) (Reference, error) {
	switch tag {
	case REFERENCENAME:
		return self.decodeReferenceName()
	case REFERENCEORIGINAL:
		return self.decodeReferenceOriginal()
	case REFERENCECONTROL:
		return self.decodeReferenceControl()
	case REFERENCEREGISTERED:
		return self.decodeReferenceRegistered()
	case REFERENCEPROJECT:
		return self.decodeReferenceProject()
	default:
		return nil, formatErrorf("REFERENCE",
			"invalid or unknown check Id %04x at offset %d", tag, self.offset-2)
	}
}

func (self *dirReader) decodeReferenceName() (*ReferenceName, error) {
	name, err := self.readSized("REFERENCENAME_Name")
	if err != nil {
		return nil, err
	}
	result := &ReferenceName{Name: string(name)}

	// MS-OVBA says Reserved MUST be 0x003E but the unicode name is
	// missing in some files (seen with Macintosh projects). Anything else
	// is the id of the following record.
	reserved, _ := self.peekUint16()
	if reserved != REFERENCENAME_RESERVED {
		self.logger.Debugf("REFERENCENAME without unicode name, next id %04x", reserved)
		return result, nil
	}
	self.offset += 2

	name_unicode, err := self.readSized("REFERENCENAME_NameUnicode")
	if err != nil {
		return nil, err
	}
	result.NameUnicode = decodeUnicode(name_unicode)
	return result, nil
}

func (self *dirReader) decodeReferenceOriginal() (*ReferenceOriginal, error) {
	libid, err := self.readSized("REFERENCEORIGINAL_LibidOriginal")
	if err != nil {
		return nil, err
	}
	return &ReferenceOriginal{LibidOriginal: string(libid)}, nil
}

func (self *dirReader) decodeReferenceControl() (*ReferenceControl, error) {
	result := &ReferenceControl{}

	// SizeTwiddled
	_, err := self.readUint32("REFERENCECONTROL_SizeTwiddled")
	if err != nil {
		return nil, err
	}
	libid, err := self.readSized("REFERENCECONTROL_LibidTwiddled")
	if err != nil {
		return nil, err
	}
	result.LibidTwiddled = string(libid)

	_, err = self.checkedUint32("REFERENCECONTROL_Reserved1", 0)
	if err != nil {
		return nil, err
	}
	_, err = self.checkedUint16("REFERENCECONTROL_Reserved2", 0)
	if err != nil {
		return nil, err
	}

	// Optional NameRecordExtended
	id, _ := self.peekUint16()
	if id == REFERENCENAME {
		self.offset += 2
		result.NameExtended, err = self.decodeReferenceName()
		if err != nil {
			return nil, err
		}
	}

	_, err = self.checkedUint16("REFERENCECONTROL_Reserved3", CONTROL_RESERVED3)
	if err != nil {
		return nil, err
	}

	// SizeExtended
	_, err = self.readUint32("REFERENCECONTROL_SizeExtended")
	if err != nil {
		return nil, err
	}
	libid, err = self.readSized("REFERENCECONTROL_LibidExtended")
	if err != nil {
		return nil, err
	}
	result.LibidExtended = string(libid)

	// Reserved4 and Reserved5
	_, err = self.readBytes("REFERENCECONTROL_Reserved4", 6)
	if err != nil {
		return nil, err
	}

	typelib, err := self.readBytes("REFERENCECONTROL_OriginalTypeLib", 16)
	if err != nil {
		return nil, err
	}
	copy(result.OriginalTypeLib[:], typelib)

	result.Cookie, err = self.readUint32("REFERENCECONTROL_Cookie")
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (self *dirReader) decodeReferenceRegistered() (*ReferenceRegistered, error) {
	// Size
	_, err := self.readUint32("REFERENCEREGISTERED_Size")
	if err != nil {
		return nil, err
	}
	libid, err := self.readSized("REFERENCEREGISTERED_Libid")
	if err != nil {
		return nil, err
	}

	_, err = self.checkedUint32("REFERENCEREGISTERED_Reserved1", 0)
	if err != nil {
		return nil, err
	}
	_, err = self.checkedUint16("REFERENCEREGISTERED_Reserved2", 0)
	if err != nil {
		return nil, err
	}
	return &ReferenceRegistered{Libid: string(libid)}, nil
}

func (self *dirReader) decodeReferenceProject() (*ReferenceProject, error) {
	result := &ReferenceProject{}

	// Size
	_, err := self.readUint32("REFERENCEPROJECT_Size")
	if err != nil {
		return nil, err
	}
	libid, err := self.readSized("REFERENCEPROJECT_LibidAbsolute")
	if err != nil {
		return nil, err
	}
	result.LibidAbsolute = string(libid)

	libid, err = self.readSized("REFERENCEPROJECT_LibidRelative")
	if err != nil {
		return nil, err
	}
	result.LibidRelative = string(libid)

	result.MajorVersion, err = self.readUint32("REFERENCEPROJECT_MajorVersion")
	if err != nil {
		return nil, err
	}
	result.MinorVersion, err = self.readUint16("REFERENCEPROJECT_MinorVersion")
	if err != nil {
		return nil, err
	}
	return result, nil
}

// parseModules reads the PROJECTMODULES record (its id is already
// consumed) and the MODULE records which follow it.
func (self *dirReader) parseModules(result *ProjectInformation) error {
	_, err := self.checkedUint32("PROJECTMODULES_Size", 2)
	if err != nil {
		return err
	}
	count, err := self.readUint16("PROJECTMODULES_Count")
	if err != nil {
		return err
	}

	_, err = self.checkedUint16("PROJECTMODULES_ProjectCookieRecord_Id", PROJECTCOOKIE)
	if err != nil {
		return err
	}
	_, err = self.checkedUint32("PROJECTMODULES_ProjectCookieRecord_Size",
		EXPECTED_PROJECTCOOKIE_SIZE)
	if err != nil {
		return err
	}
	result.Cookie, err = self.readUint16("PROJECTMODULES_ProjectCookieRecord_Cookie")
	if err != nil {
		return err
	}

	self.logger.Debugf("parsing %v modules", count)
	for i := 0; i < int(count); i++ {
		module, err := self.parseModule(result.CodePage)
		if err != nil {
			// Modules already parsed are still usable.
			self.anomalies = append(self.anomalies, err.Error())
			self.logger.WithFields(logrus.Fields{
				"module": i,
				"error":  err,
			}).Warn("Unable to parse module record")
			return nil
		}
		result.Modules = append(result.Modules, module)
	}

	return nil
}

// parseModule reads a MODULENAME record followed by the optional
// records of a module group. Optional records are recognized by
// sniffing their id.
func (self *dirReader) parseModule(codepage uint16) (*ModuleRecord, error) {
	result := &ModuleRecord{}

	_, err := self.checkedUint16("MODULENAME_Id", MODULENAME)
	if err != nil {
		return nil, err
	}
	name, err := self.readSized("MODULENAME_ModuleName")
	if err != nil {
		return nil, err
	}
	result.Name = decodeCodePage(name, codepage)

	for {
		section_id, err := self.readUint16("MODULE_SectionId")
		if err != nil {
			return nil, err
		}

		switch section_id {
		case MODULENAMEUNICODE:
			data, err := self.readSized("MODULENAMEUNICODE_ModuleNameUnicode")
			if err != nil {
				return nil, err
			}
			result.NameUnicode = decodeUnicode(data)

		case MODULESTREAMNAME:
			data, err := self.readSized("MODULESTREAMNAME_StreamName")
			if err != nil {
				return nil, err
			}
			result.StreamName = decodeCodePage(data, codepage)

			_, err = self.checkedUint16("MODULESTREAMNAME_Reserved",
				MODULESTREAMNAME_RESERVED)
			if err != nil {
				return nil, err
			}
			data, err = self.readSized("MODULESTREAMNAME_StreamNameUnicode")
			if err != nil {
				return nil, err
			}
			result.StreamNameUnicode = decodeUnicode(data)

		case MODULEDOCSTRING:
			data, err := self.readSized("MODULEDOCSTRING_DocString")
			if err != nil {
				return nil, err
			}
			result.DocString = decodeCodePage(data, codepage)

			_, err = self.checkedUint16("MODULEDOCSTRING_Reserved",
				MODULEDOCSTRING_RESERVED)
			if err != nil {
				return nil, err
			}
			_, err = self.readSized("MODULEDOCSTRING_DocStringUnicode")
			if err != nil {
				return nil, err
			}

		case MODULEOFFSET:
			_, err = self.checkedUint32("MODULEOFFSET_Size", 4)
			if err != nil {
				return nil, err
			}
			result.TextOffset, err = self.readUint32("MODULEOFFSET_TextOffset")
			if err != nil {
				return nil, err
			}

		case MODULEHELPCONTEXT:
			_, err = self.checkedUint32("MODULEHELPCONTEXT_Size", 4)
			if err != nil {
				return nil, err
			}
			result.HelpContext, err = self.readUint32("MODULEHELPCONTEXT_HelpContext")
			if err != nil {
				return nil, err
			}

		case MODULECOOKIE:
			_, err = self.checkedUint32("MODULECOOKIE_Size", 2)
			if err != nil {
				return nil, err
			}
			result.Cookie, err = self.readUint16("MODULECOOKIE_Cookie")
			if err != nil {
				return nil, err
			}

		case MODULETYPE_PROCEDURE, MODULETYPE_DOCUMENT:
			result.Type = section_id
			_, err = self.checkedUint32("MODULETYPE_Reserved", 0)
			if err != nil {
				return nil, err
			}

		case MODULEREADONLY:
			result.ReadOnly = true
			_, err = self.checkedUint32("MODULEREADONLY_Reserved", 0)
			if err != nil {
				return nil, err
			}

		case MODULEPRIVATE:
			result.Private = true
			_, err = self.checkedUint32("MODULEPRIVATE_Reserved", 0)
			if err != nil {
				return nil, err
			}

		case MODULETERMINATOR:
			_, err = self.checkedUint32("MODULE_Reserved", 0)
			if err != nil {
				return nil, err
			}
			return result, nil

		default:
			message := fmt.Sprintf("unknown or invalid module section id %04x",
				section_id)
			self.anomalies = append(self.anomalies, message)
			self.logger.Warn(message)
			return result, nil
		}
	}
}
