package logging

import (
	"testing"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
)

func TestNewWriterDefaultsToConsole(t *testing.T) {
	assert.IsType(t, &log.ConsoleWriter{}, newWriter(""))
	assert.IsType(t, &log.ConsoleWriter{}, newWriter("console"))
	assert.IsType(t, &log.IOWriter{}, newWriter("json"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, log.DebugLevel, parseLevel("debug"))
	assert.Equal(t, log.WarnLevel, parseLevel("warning"))
	assert.Equal(t, log.InfoLevel, parseLevel(""))
	assert.Equal(t, log.InfoLevel, parseLevel("bogus"))
}
