package olevba

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"
)

const (
	COMPRESSED_SIGNATURE = 0x01
	CHUNK_SIGNATURE      = 0x03
	MAX_CHUNK_SIZE       = 4098
	RAW_CHUNK_DATA_SIZE  = 4096
)

// DecompressStream decompresses a CompressedContainer (MS-OVBA 2.4.1).
func DecompressStream(
	compressed_container []byte, logger logrus.FieldLogger) ([]byte, error) {
	logger = getLogger(logger)

	// MS-OVBA 2.4.1.3.1
	if len(compressed_container) == 0 {
		return nil, formatErrorf("CompressedContainer", "empty container")
	}

	sig_byte := compressed_container[0]
	if sig_byte != COMPRESSED_SIGNATURE {
		return nil, formatErrorf("CompressedContainer",
			"invalid signature byte %02X", sig_byte)
	}

	var decompressed_container []byte
	compressed_current := 1

	for compressed_current < len(compressed_container) {
		// 2.4.1.1.5
		compressed_chunk_start := compressed_current
		if compressed_chunk_start+2 > len(compressed_container) {
			logger.Warnf("Truncated chunk header at offset %d", compressed_chunk_start)
			break
		}

		compressed_chunk_header := binary.LittleEndian.Uint16(
			compressed_container[compressed_chunk_start:])

		chunk_size := int(compressed_chunk_header&0x0FFF) + 3
		chunk_signature := (compressed_chunk_header >> 12) & 0x07
		// 1 == compressed, 0 == uncompressed
		chunk_is_compressed := (compressed_chunk_header & 0x8000) >> 15

		if chunk_signature != CHUNK_SIGNATURE {
			return nil, formatErrorf("CompressedChunkHeader",
				"invalid chunk signature %d at offset %d",
				chunk_signature, compressed_chunk_start)
		}

		if chunk_is_compressed != 0 && chunk_size > MAX_CHUNK_SIZE {
			return nil, formatErrorf("CompressedChunkHeader",
				"CompressedChunkSize %d > 4098 but CompressedChunkFlag == 1",
				chunk_size)
		}

		if chunk_is_compressed == 0 && chunk_size != MAX_CHUNK_SIZE {
			return nil, formatErrorf("CompressedChunkHeader",
				"CompressedChunkSize %d != 4098 but CompressedChunkFlag == 0",
				chunk_size)
		}

		compressed_end := compressed_chunk_start + chunk_size
		if compressed_end > len(compressed_container) {
			logger.Warnf("Chunk at offset %d declares %d bytes but only %d are available",
				compressed_chunk_start, chunk_size,
				len(compressed_container)-compressed_chunk_start)
			compressed_end = len(compressed_container)
		}

		compressed_current = compressed_chunk_start + 2

		if chunk_is_compressed == 0 {
			end := compressed_current + RAW_CHUNK_DATA_SIZE
			if end > len(compressed_container) {
				logger.Warnf("Raw chunk at offset %d is truncated", compressed_chunk_start)
				end = len(compressed_container)
			}
			decompressed_container = append(decompressed_container,
				compressed_container[compressed_current:end]...)
			compressed_current = end
			continue
		}

		decompressed_chunk_start := len(decompressed_container)
		for compressed_current < compressed_end {
			// 2.4.1.3.4 TokenSequence
			flag_byte := compressed_container[compressed_current]
			compressed_current += 1

			for bit_index := uint(0); bit_index < 8; bit_index++ {
				if compressed_current >= compressed_end {
					break
				}

				if (1<<bit_index)&flag_byte == 0 { // LiteralToken
					decompressed_container = append(decompressed_container,
						compressed_container[compressed_current])
					compressed_current += 1
					continue
				}

				// CopyToken
				if compressed_current+2 > compressed_end {
					logger.Warnf("Truncated CopyToken at offset %d", compressed_current)
					compressed_current = compressed_end
					break
				}

				copy_token := int(binary.LittleEndian.Uint16(
					compressed_container[compressed_current:]))
				compressed_current += 2

				length_mask, offset_mask, bit_count := copytoken_help(
					len(decompressed_container) - decompressed_chunk_start)

				length := (copy_token & length_mask) + 3
				offset := ((copy_token & offset_mask) >> (16 - bit_count)) + 1
				copy_source := len(decompressed_container) - offset
				if copy_source < 0 {
					return nil, formatErrorf("CopyToken",
						"offset %d points before the start of the output (length %d)",
						offset, len(decompressed_container))
				}

				// Source and destination may overlap so this must
				// proceed one byte at a time.
				for index := copy_source; index < copy_source+length; index++ {
					decompressed_container = append(decompressed_container,
						decompressed_container[index])
				}
			}
		}

		compressed_current = compressed_end
	}

	return decompressed_container, nil
}

// copytoken_help returns the length mask, offset mask and bit count of
// a CopyToken given the number of bytes already decompressed in the
// current chunk (MS-OVBA 2.4.1.3.19.1).
func copytoken_help(difference int) (int, int, uint) {
	bit_count := uint(0)
	for 1<<bit_count < difference {
		bit_count += 1
	}

	if bit_count < 4 {
		bit_count = 4
	}
	length_mask := int(uint16(0xFFFF) >> bit_count)
	offset_mask := ^length_mask & 0xFFFF

	return length_mask, offset_mask, bit_count
}
