package hl7

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleORU = "MSH|^~\\&|RIS|HOSP|PORTAL|CLINIC|20240101120000||ORU^R01|12345|P|2.5\r" +
	"PID|1||P1^^^HOSP||Doe^Jane^Q||19800101|F\r" +
	"OBR|1||ACC-9|^CT Chest|||||||||||||Smith^John|||||||||F\r" +
	"OBX|1|TX|IMPRESSION||No acute disease.||||||F"

func TestParseMessage(t *testing.T) {
	msg, err := NewParser(SeparatorCR).Parse([]byte(sampleORU))
	require.NoError(t, err)

	assert.Len(t, msg.Segments, 4)
	assert.Equal(t, "ORU^R01", msg.Type())
	assert.Equal(t, "12345", msg.ControlID())
	assert.Equal(t, "2.5", msg.Header().Field(12))

	h := msg.Header()
	assert.Equal(t, "|", h.Field(1))
	assert.Equal(t, "^~\\&", h.Field(2))
	assert.Equal(t, "RIS", h.Field(3))
	assert.Equal(t, "R01", h.Component(9, 2))

	pid, ok := msg.Segment("PID")
	require.True(t, ok)
	assert.Equal(t, "P1", pid.Component(3, 1))
	assert.Equal(t, "Doe", pid.Component(5, 1))
	assert.Equal(t, "Jane", pid.Component(5, 2))
	assert.Equal(t, "F", pid.Field(8))
}

func TestFieldAccessIsTotal(t *testing.T) {
	msg, err := NewParser("").Parse([]byte("MSH|^~\\&|A\rPID|1"))
	require.NoError(t, err)

	pid, ok := msg.Segment("PID")
	require.True(t, ok)
	assert.Equal(t, "", pid.Field(0))
	assert.Equal(t, "", pid.Field(40))
	assert.Equal(t, "", pid.Component(3, 7))
	assert.Equal(t, "", pid.Component(1, 0))
	assert.Equal(t, "", msg.ControlID())

	_, ok = msg.Segment("OBR")
	assert.False(t, ok)
	assert.Empty(t, msg.SegmentsOf("OBX"))
}

func TestParseSeparators(t *testing.T) {
	t.Run("lf configured", func(t *testing.T) {
		msg, err := NewParser(SeparatorLF).Parse([]byte("MSH|^~\\&|A\nPID|1||P1\n"))
		require.NoError(t, err)
		assert.Len(t, msg.Segments, 2)
	})

	t.Run("crlf tolerated", func(t *testing.T) {
		msg, err := NewParser(SeparatorCR).Parse([]byte("MSH|^~\\&|A\r\nPID|1||P1\r\n"))
		require.NoError(t, err)
		assert.Len(t, msg.Segments, 2)
	})

	t.Run("blank lines skipped", func(t *testing.T) {
		msg, err := NewParser(SeparatorCR).Parse([]byte("MSH|^~\\&|A\r\r\rPID|1\r"))
		require.NoError(t, err)
		assert.Len(t, msg.Segments, 2)
	})

	t.Run("custom field separator", func(t *testing.T) {
		msg, err := NewParser(SeparatorCR).Parse([]byte("MSH#$~\\&#A#B#C#D#20240101##ORU$R01#77\rPID#1##P9$$$X"))
		require.NoError(t, err)
		assert.Equal(t, "77", msg.ControlID())
		assert.Equal(t, "R01", msg.Header().Component(9, 2))
		pid, _ := msg.Segment("PID")
		assert.Equal(t, "P9", pid.Component(3, 1))
	})
}

func TestParseFailures(t *testing.T) {
	p := NewParser(SeparatorCR)

	_, err := p.Parse([]byte("PID|1||P1\rMSH|^~\\&|A"))
	assert.ErrorIs(t, err, ErrMissingHeader)

	_, err = p.Parse([]byte("\r\r"))
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = p.Parse([]byte{'M', 'S', 'H', '|', 0xff, 0xfe})
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestJoinReproducesSegments(t *testing.T) {
	msg, err := NewParser(SeparatorCR).Parse([]byte(sampleORU))
	require.NoError(t, err)
	assert.Equal(t, sampleORU, string(Join(msg, SeparatorCR)))
}
