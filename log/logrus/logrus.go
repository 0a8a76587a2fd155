package logrus

import (
	"github.com/sirupsen/logrus"

	client "github.com/jsp-lqk/bmemcached"
)

type LogrusLogger struct{ E *logrus.Entry }

var _ client.Logger = LogrusLogger{}

func (l LogrusLogger) Debug(msg string, f client.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f client.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f client.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f client.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
