package olevba

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger returns the default diagnostics sink. Output is discarded
// unless OLE_DEBUG=1 is present in the environment.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = io.Discard
	logger.SetLevel(logrus.PanicLevel)

	for _, x := range os.Environ() {
		if strings.HasPrefix(x, "OLE_DEBUG=1") {
			logger.Out = os.Stderr
			logger.SetLevel(logrus.DebugLevel)
			break
		}
	}

	return logger
}

func getLogger(logger logrus.FieldLogger) logrus.FieldLogger {
	if logger == nil {
		return NewLogger()
	}
	return logger
}
