package olevba

import (
	"bytes"
	"io"

	"github.com/emersion/go-message"
	"github.com/sirupsen/logrus"
)

// trimMHTML drops leading whitespace and any junk before the MIME
// headers so the mail parser sees a header block first.
func trimMHTML(data []byte) []byte {
	data = bytes.TrimLeft(data, "\r\n\t ")

	mime_offset := bytes.Index(data, []byte("MIME"))
	content_offset := bytes.Index(data, []byte("Content"))

	if mime_offset > -1 && mime_offset <= content_offset {
		return data[mime_offset:]
	}

	if content_offset > -1 {
		return data[content_offset:]
	}

	return data
}

// Unknown charsets still give a usable entity.
func ignoreCharsetError(entity *message.Entity, err error) (*message.Entity, error) {
	if err != nil && entity != nil && message.IsUnknownCharset(err) {
		return entity, nil
	}
	return entity, err
}

// walkEntity calls cb on every leaf part in document order. Multipart
// nesting deeper than max_depth is a FormatError.
func walkEntity(
	entity *message.Entity, depth, max_depth int,
	cb func(entity *message.Entity) error) error {

	reader := entity.MultipartReader()
	if reader == nil {
		return cb(entity)
	}

	if depth > max_depth {
		return formatErrorf("MHTML", "multipart nesting too deep")
	}

	for {
		part, err := ignoreCharsetError(reader.NextPart())
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		err = walkEntity(part, depth+1, max_depth, cb)
		if err != nil {
			return err
		}
	}
}

func partFilename(entity *message.Entity) string {
	_, params, err := entity.Header.ContentDisposition()
	if err == nil && params["filename"] != "" {
		return params["filename"]
	}

	_, params, err = entity.Header.ContentType()
	if err == nil && params["name"] != "" {
		return params["name"]
	}

	location := entity.Header.Get("Content-Location")
	if location != "" {
		return location
	}

	return DEFAULT_MSO_NAME
}

// openMHTML looks for ActiveMime attachments (usually editdata.mso) in
// a single file web page.
func (self *VBAParser) openMHTML(data []byte) error {
	entity, err := ignoreCharsetError(message.Read(bytes.NewReader(trimMHTML(data))))
	if err != nil {
		return formatErrorf("MHTML", "%v", err)
	}

	return walkEntity(entity, 0, self.options.MaxDepth, func(part *message.Entity) error {
		filename := partFilename(part)
		logger := self.logger.WithField("part", filename)

		part_data, err := io.ReadAll(io.LimitReader(part.Body, MAX_ZIP_MEMBER_SIZE))
		if err != nil {
			logger.WithFields(logrus.Fields{"error": err}).Info(
				"Unable to decode MHTML part")
			return nil
		}

		if !IsActiveMime(part_data) {
			logger.Debugf("MHTML part is not an MSO file (%d bytes)", len(part_data))
			return nil
		}

		logger.Debug("Found ActiveMime header, decompressing MSO container")
		ole_data, err := UnwrapActiveMime(
			part_data, self.options.MaxActiveMimeCandidates, logger)
		if err != nil {
			logger.WithFields(logrus.Fields{"error": err}).Error(
				"Failed decompressing an MSO container")
			return nil
		}

		self.openNested(ole_data, filename)
		return nil
	})
}
