package net

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{0x65, 0x00, 0xDE, 0xAD, 0xBE, 0xEF}

	require.NoError(t, WriteFrame(&buf, payload))
	assert.Equal(t, byte(8), buf.Bytes()[0], "length header counts itself")

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFrameRejectsBadLength(t *testing.T) {
	// Declared length 2 leaves no payload.
	_, err := ReadFrame(bytes.NewReader([]byte{0x02, 0x00}))
	assert.Error(t, err)

	// Declared length 0.
	_, err = ReadFrame(bytes.NewReader([]byte{0x00, 0x00}))
	assert.Error(t, err)
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	// Header promises 6 payload bytes, only 2 follow.
	_, err := ReadFrame(bytes.NewReader([]byte{0x08, 0x00, 0x01, 0x02}))
	assert.Error(t, err)
}

func TestReadFrameConsecutive(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte{0x01, 0x02}))
	require.NoError(t, WriteFrame(&buf, []byte{0x03, 0x04, 0x05}))

	first, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, first)

	second, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x04, 0x05}, second)
}
