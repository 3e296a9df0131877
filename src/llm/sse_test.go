package llm

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventDecoder(t *testing.T) {
	input := ": keep-alive\r\n" +
		"event: message\r\n" +
		"data: {\"a\":1}\r\n\r\n" +
		"data: line one\n" +
		"data: line two\n\n" +
		"id: 7\n\n" +
		"data: [DONE]\n\n" +
		"data: after done\n\n"
	dec := newEventDecoder(strings.NewReader(input))

	data, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	data, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", string(data))

	_, err = dec.Next()
	assert.True(t, errors.Is(err, errStreamDone))
}

func TestEventDecoderUnterminated(t *testing.T) {
	dec := newEventDecoder(strings.NewReader("data: partial"))

	data, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "partial", string(data))

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}
