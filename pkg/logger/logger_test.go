package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLoggerCollects(t *testing.T) {
	l := New()
	l.AddInfo("tap adjusted", "trafo-1", 1.02)
	l.AddWarning("voltage low", "bus-7", 0.93)

	assert.Len(t, l.Entries(), 2)
	assert.False(t, l.HasErrors())

	l.AddError("no slack bus", "island-2", 0, nil)
	assert.True(t, l.HasErrors())
}

func TestLoggerMerge(t *testing.T) {
	a := New()
	a.AddInfo("first", "d1", 1)
	b := New()
	b.AddInfo("second", "d2", 2)

	a.Merge(b)
	a.Merge(nil)

	assert.Len(t, a.Entries(), 2)
	assert.Equal(t, "second", a.Entries()[1].Message)
}

func TestLoggerSink(t *testing.T) {
	zl := zap.NewNop()
	l := NewWithSink(zl)
	l.AddDebug("sample", "dev", 0.5)

	// entries are recorded even when forwarded
	assert.Len(t, l.Entries(), 1)
}
