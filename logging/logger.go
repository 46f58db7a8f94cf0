package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is satisfied both by the root logger returned from New and by the
// entries derived from it via WithField.
type Logger interface {
	logrus.FieldLogger
}

type logger struct {
	*logrus.Logger
}

func New() *logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	l.SetLevel(logrus.InfoLevel)
	return &logger{l}
}
