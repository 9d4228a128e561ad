package resp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCompleteFrame(t *testing.T) {
	buf := []byte("*3\r\n$4\r\nHSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n")
	cmd, n, err := Parse(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Len(t, cmd.Args, 3)
	assert.Equal(t, "HSET", string(cmd.Args[0]))
	assert.Equal(t, "foo", string(cmd.Args[1]))
	assert.Equal(t, "bar", string(cmd.Args[2]))
}

func TestParseNeedsMoreDataAtEveryTruncation(t *testing.T) {
	full := []byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n")
	for i := 0; i < len(full); i++ {
		cmd, n, err := Parse(full[:i])
		assert.NoError(t, err, "truncated at %d", i)
		assert.Nil(t, cmd, "truncated at %d", i)
		assert.Equal(t, 0, n, "truncated at %d", i)
	}
}

func TestParseConsumesExactlyOneFrameLeavingRemainder(t *testing.T) {
	buf := []byte("*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPONG\r\n")
	cmd, n, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, "PING", string(cmd.Args[0]))

	rest := buf[n:]
	cmd2, n2, err := Parse(rest)
	require.NoError(t, err)
	assert.Equal(t, len(rest), n2)
	assert.Equal(t, "PONG", string(cmd2.Args[0]))
}

func TestParseRejectsNonArrayStart(t *testing.T) {
	_, n, err := Parse([]byte("PING\r\n"))
	assert.Equal(t, 0, n)
	var fe *FrameError
	assert.ErrorAs(t, err, &fe)
}

func TestParseRejectsOversizedBulkCount(t *testing.T) {
	_, _, err := Parse([]byte("*200\r\n"))
	var fe *FrameError
	assert.ErrorAs(t, err, &fe)
}

func TestParseRejectsNegativeBulkLength(t *testing.T) {
	_, _, err := Parse([]byte("*1\r\n$-1\r\n"))
	var fe *FrameError
	assert.ErrorAs(t, err, &fe)
}

func TestParseRejectsMissingBulkTerminator(t *testing.T) {
	_, _, err := Parse([]byte("*1\r\n$3\r\nfooXX"))
	var fe *FrameError
	assert.ErrorAs(t, err, &fe)
}

func TestParseBinarySafePayload(t *testing.T) {
	payload := []byte{0x00, 'a', '\r', '\n', 0xff}
	buf := append([]byte("*1\r\n$5\r\n"), payload...)
	buf = append(buf, '\r', '\n')

	cmd, n, err := Parse(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	assert.Equal(t, payload, cmd.Args[0])
}

func TestParseEmptyBufferNeedsMore(t *testing.T) {
	cmd, n, err := Parse(nil)
	assert.NoError(t, err)
	assert.Nil(t, cmd)
	assert.Equal(t, 0, n)
}
