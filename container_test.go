package olevba

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectContainer(t *testing.T) {
	ole := buildWordDocument(false, AUTOOPEN_MODULE)
	mso := buildActiveMime(ole)

	for _, test_case := range []struct {
		name     string
		data     []byte
		expected ContainerType
	}{
		{"ole", ole, TYPE_OLE},
		{"zip", buildOpenXML(map[string][]byte{"word/vbaProject.bin": ole}, nil), TYPE_OpenXML},
		{"word2003", buildWord2003XML(mso), TYPE_Word2003_XML},
		{"mhtml", buildMHTML(mso), TYPE_MHTML},
		{"mhtml case", []byte("mime-VERSION: 1.0\nContent-Type: MULTIPART/related"), TYPE_MHTML},
		{"text", []byte("Sub AutoOpen()\r\nEnd Sub\r\n"), TYPE_TEXT},
		{"empty", []byte{}, TYPE_TEXT},
	} {
		container_type, err := DetectContainer(test_case.data)
		require.NoError(t, err, test_case.name)
		assert.Equal(t, test_case.expected, container_type, test_case.name)
	}
}

func TestDetectContainerUnsupported(t *testing.T) {
	_, err := DetectContainer([]byte("MZ\x90\x00\x03\x00"))
	assert.IsType(t, &UnsupportedFormatError{}, err)
}

func TestDetectContainerFirstMatch(t *testing.T) {
	// Zip magic wins over text even when the rest is not a zip file.
	container_type, err := DetectContainer([]byte("PK\x03\x04 not really a zip"))
	require.NoError(t, err)
	assert.Equal(t, TYPE_OpenXML, container_type)

	// An XML document which also looks like text.
	container_type, err = DetectContainer([]byte(
		`<w:wordDocument xmlns:w="` + NS_WORD2003 + `"/>`))
	require.NoError(t, err)
	assert.Equal(t, TYPE_Word2003_XML, container_type)
}
