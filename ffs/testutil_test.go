package ffs

import (
	"io"

	"github.com/sirupsen/logrus"
)

// nopLogEntry gives tests a Volume-shaped logger without writing to stderr.
func nopLogEntry() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
