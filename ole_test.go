package olevba

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryPaths(entries []*Directory) []string {
	result := []string{}
	for _, entry := range entries {
		result = append(result, entry.Path)
	}
	return result
}

func TestOLEFileTree(t *testing.T) {
	for _, mini := range []bool{false, true} {
		ole, err := NewOLEFile(buildWordDocument(mini, THIS_DOCUMENT), nil)
		require.NoError(t, err)

		assert.Equal(t, []string{"Macros", "Macros/VBA"},
			entryPaths(ole.ListStorages()))
		assert.Equal(t, []string{
			"WordDocument",
			"1Table",
			"Macros/PROJECT",
			"Macros/VBA/_VBA_PROJECT",
			"Macros/VBA/dir",
			"Macros/VBA/ThisDocument",
		}, entryPaths(ole.ListStreams()))

		entry := ole.FindEntry("macros/vba/DIR")
		require.NotNil(t, entry)
		assert.Equal(t, "dir", entry.Name)
		assert.Equal(t, "Macros/VBA", entry.Parent.Path)

		assert.True(t, ole.Exists("/Macros/PROJECT"))
		assert.False(t, ole.Exists("Macros/VBA"))
		assert.False(t, ole.Exists("Macros/Missing"))
	}
}

func TestOLEFileStreams(t *testing.T) {
	large := bytes.Repeat([]byte("0123456789"), 1000)
	small := []byte("hello world")

	for _, mini := range []bool{false, true} {
		data := buildCFB(mini,
			testStream("Large", large),
			testStream("Small", small),
			testStream("Empty", nil),
			testStorage("Storage", testStream("Nested", small)),
		)

		ole, err := NewOLEFile(data, nil)
		require.NoError(t, err)

		stream, err := ole.OpenStream("Large")
		require.NoError(t, err)
		assert.Equal(t, large, stream)

		stream, err = ole.OpenStream("Small")
		require.NoError(t, err)
		assert.Equal(t, small, stream)

		stream, err = ole.OpenStream("Storage/Nested")
		require.NoError(t, err)
		assert.Equal(t, small, stream)

		stream, err = ole.OpenStream("Empty")
		require.NoError(t, err)
		assert.Empty(t, stream)

		_, err = ole.OpenStream("Storage")
		assert.Error(t, err)
	}
}

func TestOLEFileMiniStream(t *testing.T) {
	ole, err := NewOLEFile(buildExcelDocument(AUTOOPEN_MODULE), nil)
	require.NoError(t, err)

	assert.Equal(t, uint32(TEST_MINI_CUTOFF), ole.Header.MiniSectorCutoff)
	assert.NotEmpty(t, ole.MiniFat)

	stream, err := ole.OpenStream("_VBA_PROJECT_CUR/VBA/_VBA_PROJECT")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCC, 0x61, 0xFF, 0xFF, 0x00, 0x00, 0x00}, stream)
}

func TestOLEFileInvalid(t *testing.T) {
	_, err := NewOLEFile([]byte("not an ole file"), nil)
	assert.IsType(t, &FormatError{}, err)

	// Right magic but the header is truncated.
	_, err = NewOLEFile([]byte(OLE_SIGNATURE+"\x00\x00"), nil)
	assert.IsType(t, &FormatError{}, err)

	data := buildCFB(false, testStream("Stream", []byte("data")))

	// Sector size of 2^17 bytes.
	corrupted := append([]byte{}, data...)
	corrupted[0x1E] = 17
	_, err = NewOLEFile(corrupted, nil)
	assert.IsType(t, &FormatError{}, err)
}

func TestOLEFileChainLoop(t *testing.T) {
	large := bytes.Repeat([]byte("A"), 3*TEST_SECTOR_SIZE)
	data := buildCFB(false, testStream("Large", large))

	ole, err := NewOLEFile(data, nil)
	require.NoError(t, err)

	entry := ole.FindEntry("Large")
	require.NotNil(t, entry)

	// Point the last sector of the chain back at the first.
	start := entry.Header.SectStart
	ole.Fat[start+2] = start

	stream := ole.GetStream(entry.Index)
	assert.Equal(t, large, stream)
}
