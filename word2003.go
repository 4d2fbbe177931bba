package olevba

import (
	"encoding/base64"
	"strings"

	"github.com/clbanning/mxj"
	"github.com/sirupsen/logrus"
)

const (
	TAG_BINDATA       = "binData"
	ATTR_NAME         = "name"
	DEFAULT_MSO_NAME  = "noname.mso"
	MXJ_TEXT_KEY      = "#text"
	MXJ_ATTRIBUTE_KEY = "-"
)

type binData struct {
	Name string
	Text string
}

// localName drops the attribute marker and namespace prefix of a map
// key so w:binData and binData compare equal.
func localName(key string) string {
	key = strings.TrimPrefix(key, MXJ_ATTRIBUTE_KEY)
	idx := strings.LastIndex(key, ":")
	if idx >= 0 {
		key = key[idx+1:]
	}
	return key
}

func newBinData(value interface{}) *binData {
	switch t := value.(type) {
	case string:
		return &binData{Name: DEFAULT_MSO_NAME, Text: t}

	case map[string]interface{}:
		result := &binData{Name: DEFAULT_MSO_NAME}
		for k, v := range t {
			s, ok := v.(string)
			if !ok {
				continue
			}

			if k == MXJ_TEXT_KEY {
				result.Text = s
			} else if strings.HasPrefix(k, MXJ_ATTRIBUTE_KEY) &&
				localName(k) == ATTR_NAME {
				result.Name = s
			}
		}
		return result
	}
	return nil
}

// findBinData walks the document in order collecting every binData
// element.
func findBinData(value interface{}, result []*binData) []*binData {
	switch t := value.(type) {
	case []interface{}:
		for _, item := range t {
			result = findBinData(item, result)
		}

	case map[string]interface{}:
		for _, k := range sortedKeys(t) {
			v := t[k]
			if localName(k) == TAG_BINDATA && !strings.HasPrefix(k, MXJ_ATTRIBUTE_KEY) {
				items, ok := v.([]interface{})
				if !ok {
					items = []interface{}{v}
				}

				for _, item := range items {
					bin := newBinData(item)
					if bin != nil {
						result = append(result, bin)
					}
				}
				continue
			}
			result = findBinData(v, result)
		}

	case mxj.Map:
		return findBinData(map[string]interface{}(t), result)
	}

	return result
}

// openWord2003XML extracts the ActiveMime blobs stored base64 encoded
// in binData elements. Each blob wraps a compound file holding the
// project.
func (self *VBAParser) openWord2003XML(data []byte) error {
	doc, err := mxj.NewMapXml(data)
	if err != nil {
		return formatErrorf("Word2003_XML", "%v", err)
	}

	for _, bin := range findBinData(map[string]interface{}(doc), nil) {
		logger := self.logger.WithField("bindata", bin.Name)

		mso_data, err := base64.StdEncoding.DecodeString(
			strings.Join(strings.Fields(bin.Text), ""))
		if err != nil {
			logger.WithFields(logrus.Fields{"error": err}).Error(
				"Unable to decode binData")
			continue
		}

		if !IsActiveMime(mso_data) {
			logger.Errorf("%v is not a valid MSO file", bin.Name)
			continue
		}

		ole_data, err := UnwrapActiveMime(
			mso_data, self.options.MaxActiveMimeCandidates, logger)
		if err != nil {
			logger.WithFields(logrus.Fields{"error": err}).Error(
				"Failed decompressing an MSO container")
			continue
		}

		self.openNested(ole_data, bin.Name)
	}

	return nil
}
