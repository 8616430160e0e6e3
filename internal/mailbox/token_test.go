package mailbox

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractToken_DefaultPattern(t *testing.T) {
	re := regexp.MustCompile(DefaultTokenPattern)

	assert.Equal(t, "482", extractToken("Re: Order #482 shipped", re, NopSink()))
	assert.Equal(t, "", extractToken("No ticket here", re, NopSink()))
	assert.Equal(t, "", extractToken("", re, NopSink()))
}

func TestExtractToken_FirstGroupOnly(t *testing.T) {
	re := regexp.MustCompile(`\[(\w+)-(\d+)\]`)
	assert.Equal(t, "OPS", extractToken("[OPS-17] disk alert", re, NopSink()))
}

func TestExtractToken_NonParticipatingGroupNotes(t *testing.T) {
	// Group 1 only participates in the first alternation branch.
	re := regexp.MustCompile(`#(\d+)|ticketless`)
	sink := &captureSink{}

	assert.Equal(t, "", extractToken("this is ticketless", re, sink))
	assert.True(t, sink.containing("without capturing"), "expected a sink note")
}

func TestExtractToken_NilPattern(t *testing.T) {
	assert.Equal(t, "", extractToken("subject #1", nil, NopSink()))
}

func TestCompileTokenPattern(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		re, err := compileTokenPattern(`#(\d+)`)
		require.NoError(t, err)
		assert.Equal(t, 1, re.NumSubexp())
	})

	t.Run("empty", func(t *testing.T) {
		_, err := compileTokenPattern("")
		assert.True(t, IsInvalidInput(err))
	})

	t.Run("no capture group", func(t *testing.T) {
		_, err := compileTokenPattern(`#\d+`)
		assert.True(t, IsInvalidInput(err))
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := compileTokenPattern(`#(\d+`)
		assert.True(t, IsInvalidInput(err))
	})
}
