package olevba

import (
	"fmt"
)

// FormatError is raised when a binary structure violates one of its
// required invariants (bad signature, wrong sentinel, invalid chunk
// size). It is terminal for the structure being parsed only.
type FormatError struct {
	Structure string
	Message   string
}

func (self *FormatError) Error() string {
	if self.Structure == "" {
		return self.Message
	}
	return fmt.Sprintf("%s: %s", self.Structure, self.Message)
}

func formatErrorf(structure, format string, args ...interface{}) error {
	return &FormatError{
		Structure: structure,
		Message:   fmt.Sprintf(format, args...),
	}
}

func isFormatError(err error) bool {
	_, ok := err.(*FormatError)
	return ok
}

// UnsupportedFormatError means the input did not match any known
// container family.
type UnsupportedFormatError struct {
	Filename string
}

func (self *UnsupportedFormatError) Error() string {
	if self.Filename == "" {
		return "File format not supported"
	}
	return fmt.Sprintf("File format not supported: %s", self.Filename)
}
