package olevba

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/sirupsen/logrus"
)

const (
	ACTIVEMIME_MAGIC = "ActiveMime"

	// Word uses this data offset and Excel the second one.
	ACTIVEMIME_WORD_OFFSET  = 0x32
	ACTIVEMIME_EXCEL_OFFSET = 0x22A

	ACTIVEMIME_OFFSET_FIELD = 0x1E
	ZLIB_HEADER_BYTE        = 0x78

	MAX_ACTIVEMIME_SIZE = MAX_ZIP_MEMBER_SIZE
)

// IsActiveMime checks for the ActiveMime magic used by MSO files
// embedded in MHTML and Word 2003 XML documents.
func IsActiveMime(data []byte) bool {
	return bytes.HasPrefix(data, []byte(ACTIVEMIME_MAGIC))
}

// UnwrapActiveMime inflates the zlib payload of an ActiveMime file. The
// offset declared in the header is tried first, then the offsets used
// by Word and Excel, then up to max_candidates positions holding a zlib
// header byte.
func UnwrapActiveMime(
	data []byte, max_candidates int,
	logger logrus.FieldLogger) ([]byte, error) {
	logger = getLogger(logger)

	if !IsActiveMime(data) {
		return nil, formatErrorf("ActiveMime", "missing ActiveMime magic")
	}

	if len(data) < ACTIVEMIME_OFFSET_FIELD+2 {
		return nil, formatErrorf("ActiveMime",
			"Unable to parse MSO/ActiveMime file header")
	}

	offset := int(binary.LittleEndian.Uint16(data[ACTIVEMIME_OFFSET_FIELD:])) + 46
	logger.Debugf("Parsing MSO file: data offset = 0x%X", offset)

	for _, start := range []int{offset, ACTIVEMIME_WORD_OFFSET, ACTIVEMIME_EXCEL_OFFSET} {
		result, err := inflateAt(data, start, MAX_ACTIVEMIME_SIZE)
		if err == nil || isFormatError(err) {
			return result, err
		}
		logger.Debugf("zlib decompression failed at offset 0x%X: %v", start, err)
	}

	logger.Debug("Looking for potential zlib-compressed blocks in MSO file")
	attempts := 0
	for start := 0; start < len(data); start++ {
		if data[start] != ZLIB_HEADER_BYTE {
			continue
		}

		if attempts >= max_candidates {
			logger.Warnf("Giving up on MSO file after %d zlib attempts", attempts)
			break
		}
		attempts++

		result, err := inflateAt(data, start, MAX_ACTIVEMIME_SIZE)
		if err == nil || isFormatError(err) {
			return result, err
		}
	}

	return nil, formatErrorf("ActiveMime",
		"Unable to decompress data from a MSO/ActiveMime file")
}

// inflateAt inflates the zlib stream at start. Payloads larger than
// max_size are a FormatError.
func inflateAt(data []byte, start int, max_size int64) ([]byte, error) {
	if start < 0 || start >= len(data) {
		return nil, io.ErrUnexpectedEOF
	}

	reader, err := zlib.NewReader(bytes.NewReader(data[start:]))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	result, err := io.ReadAll(io.LimitReader(reader, max_size+1))
	if err != nil {
		return nil, err
	}

	if int64(len(result)) > max_size {
		return nil, formatErrorf("ActiveMime",
			"payload at 0x%X is larger than %d bytes", start, max_size)
	}
	return result, nil
}
