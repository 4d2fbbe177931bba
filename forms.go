package olevba

import (
	"rsc.io/binaryregexp"
)

var (
	// Byte oriented since form streams are not UTF-8.
	printable_string_re = binaryregexp.MustCompile(`[\t\r\n\x20-\xFF]{5,}`)
)

// A printable string found in the "o" stream of a form.
type FormString struct {
	Container  string `json:"container"`
	StreamPath string `json:"stream_path"`
	Value      string `json:"value"`
}

// FindVBAForms returns the storages holding a VBA form, that is both an
// "f" (form control) and an "o" (embedded controls) stream.
func FindVBAForms(ole *OLEFile) []*Directory {
	result := []*Directory{}
	for _, storage := range ole.ListStorages() {
		if ole.Exists(storage.Path+"/o") && ole.Exists(storage.Path+"/f") {
			ole.logger.Debugf("Found VBA Form: %v", storage.Path)
			result = append(result, storage)
		}
	}
	return result
}

// ExtractFormStrings returns the printable runs of at least 5 bytes of
// each form's "o" stream.
func ExtractFormStrings(ole *OLEFile, container string) []*FormString {
	result := []*FormString{}
	for _, storage := range FindVBAForms(ole) {
		stream_path := storage.Path + "/o"
		data, err := ole.OpenStream(stream_path)
		if err != nil {
			ole.logger.Debugf("Unable to open %v: %v", stream_path, err)
			continue
		}

		for _, match := range printable_string_re.FindAll(data, -1) {
			result = append(result, &FormString{
				Container:  container,
				StreamPath: stream_path,
				Value:      decodeCodePage(match, DEFAULT_CODEPAGE),
			})
		}
	}
	return result
}
