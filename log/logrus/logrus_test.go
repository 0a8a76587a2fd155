package logrus

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	client "github.com/jsp-lqk/bmemcached"
)

func TestLogrusLogger(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := LogrusLogger{E: logrus.NewEntry(base)}

	l.Debug("connected", client.Fields{"addr": "127.0.0.1:11211"})
	l.Warn("connection invalidated", client.Fields{"addr": "127.0.0.1:11211"})

	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, logrus.DebugLevel, hook.AllEntries()[0].Level)
	assert.Equal(t, "127.0.0.1:11211", hook.AllEntries()[0].Data["addr"])
	assert.Equal(t, "connection invalidated", hook.LastEntry().Message)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}
