// Package log provides loggers for pipeline components.
package log

import (
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

var debug bool

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv("CVPIPE_DEBUG"))
	if err != nil {
		debug = false
	}
}

// New returns a new logger instance. Debug level is enabled with
// CVPIPE_DEBUG environment variable.
func New() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// Silent returns a logger that discards everything.
func Silent() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
