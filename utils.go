package olevba

import (
	"sort"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
)

// Debug dumps a structure at debug level.
func Debug(logger logrus.FieldLogger, arg interface{}) {
	switch t := logger.(type) {
	case *logrus.Logger:
		if !t.IsLevelEnabled(logrus.DebugLevel) {
			return
		}
	case *logrus.Entry:
		if !t.Logger.IsLevelEnabled(logrus.DebugLevel) {
			return
		}
	}
	logger.Debug(spew.Sdump(arg))
}

func uint32_min(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// FilterVBA removes the leading "Attribute VB_" lines which Office adds
// to every module and the VBA editor never shows. Lines carrying a colon
// are kept since they may hide further statements.
func FilterVBA(code string) string {
	lines := splitLines(code)
	start := 0
	for _, line := range lines {
		if strings.HasPrefix(line, "Attribute VB_") &&
			!strings.Contains(line, ":") {
			start++
			continue
		}
		break
	}
	return strings.Join(lines[start:], "\n")
}

// splitLines splits on \r\n, \r and \n and drops a trailing empty line.
func splitLines(code string) []string {
	code = strings.ReplaceAll(code, "\r\n", "\n")
	code = strings.ReplaceAll(code, "\r", "\n")
	code = strings.TrimSuffix(code, "\n")
	if code == "" {
		return nil
	}
	return strings.Split(code, "\n")
}

func sortedKeys(m map[string]interface{}) []string {
	result := make([]string, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}
