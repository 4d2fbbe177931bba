package olevba

import (
	"bytes"
	"io"

	"github.com/alexmullins/zip"
	"github.com/sirupsen/logrus"
)

const (
	// Embedded files larger than this are not inspected.
	MAX_ZIP_MEMBER_SIZE = 256 * 1024 * 1024
)

func readZipMember(member *zip.File, length int64) ([]byte, error) {
	fd, err := member.Open()
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	return io.ReadAll(io.LimitReader(fd, length))
}

// openOpenXML looks at every member of the zip package. The project is
// usually vbaProject.bin but may be renamed, so any member starting with
// the compound file magic is parsed.
func (self *VBAParser) openOpenXML(data []byte) error {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return formatErrorf("OpenXML", "%v", err)
	}

	for _, member := range reader.File {
		if member.FileInfo().IsDir() {
			continue
		}

		logger := self.logger.WithField("member", member.Name)
		if member.IsEncrypted() {
			logger.Info("Skipping encrypted zip member")
			continue
		}

		magic, err := readZipMember(member, int64(len(OLE_SIGNATURE)))
		if err != nil {
			logger.WithFields(logrus.Fields{"error": err}).Debug(
				"Unable to read zip member")
			continue
		}

		if string(magic) != OLE_SIGNATURE {
			continue
		}

		logger.Debug("Opening OLE file within zip")
		ole_data, err := readZipMember(member, MAX_ZIP_MEMBER_SIZE)
		if err != nil {
			logger.WithFields(logrus.Fields{"error": err}).Info(
				"Unable to read zip member")
			continue
		}

		self.openNested(ole_data, member.Name)
	}

	return nil
}
