package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewWithOutput(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  logrus.Level
		warn  bool
	}{
		{"empty", "", logrus.InfoLevel, false},
		{"debug", "debug", logrus.DebugLevel, false},
		{"warn", "warn", logrus.WarnLevel, false},
		{"padded", " error ", logrus.ErrorLevel, false},
		{"unknown", "chatty", logrus.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewWithOutput(&buf, tt.level)
			assert.Equal(t, tt.want, l.GetLevel())
			assert.Equal(t, tt.warn, bytes.Contains(buf.Bytes(), []byte("unknown log level")))
		})
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("dropped")
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}
