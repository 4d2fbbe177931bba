package olevba

import (
	"bytes"
)

type ContainerType string

const (
	TYPE_OLE          ContainerType = "OLE"
	TYPE_OpenXML      ContainerType = "OpenXML"
	TYPE_Word2003_XML ContainerType = "Word2003_XML"
	TYPE_MHTML        ContainerType = "MHTML"
	TYPE_TEXT         ContainerType = "Text"

	ZIP_SIGNATURE = "PK\x03\x04"
	NS_WORD2003   = "http://schemas.microsoft.com/office/word/2003/wordml"
)

var (
	// Short tags used by the triage flags.
	TYPE2TAG = map[ContainerType]string{
		TYPE_OLE:          "OLE:",
		TYPE_OpenXML:      "OpX:",
		TYPE_Word2003_XML: "XML:",
		TYPE_MHTML:        "MHT:",
		TYPE_TEXT:         "TXT:",
	}
)

// DetectContainer classifies a file from its content alone. The first
// matching rule wins and a parser never retries another type.
func DetectContainer(data []byte) (ContainerType, error) {
	if bytes.HasPrefix(data, []byte(OLE_SIGNATURE)) {
		return TYPE_OLE, nil
	}

	if bytes.HasPrefix(data, []byte(ZIP_SIGNATURE)) {
		return TYPE_OpenXML, nil
	}

	if bytes.Contains(data, []byte(NS_WORD2003)) {
		return TYPE_Word2003_XML, nil
	}

	lower := bytes.ToLower(data)
	if bytes.Contains(lower, []byte("mime")) &&
		bytes.Contains(lower, []byte("version")) &&
		bytes.Contains(lower, []byte("multipart")) {
		return TYPE_MHTML, nil
	}

	if bytes.IndexByte(data, 0) < 0 {
		return TYPE_TEXT, nil
	}

	return "", &UnsupportedFormatError{}
}
