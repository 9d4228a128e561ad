package replication

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redis/internal/dict"
)

func TestNewManagerStartsAsMaster(t *testing.T) {
	m := New(dict.New())
	assert.Equal(t, RoleMaster, m.Role())
	assert.Equal(t, 0, m.SlaveCount())
}

func TestAttachSlaveSendsFullSyncThenDump(t *testing.T) {
	d := dict.New()
	d.Set([]byte("foo"), []byte("bar"))
	m := New(d)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	go func() {
		require.NoError(t, m.AttachSlave(serverConn))
	}()

	reader := bufio.NewReader(clientConn)
	greeting, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "+FULLSYNC\r\n", greeting)

	wantDump := "*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"
	dump := make([]byte, len(wantDump))
	_, err = io.ReadFull(reader, dump)
	require.NoError(t, err)
	assert.Equal(t, wantDump, string(dump))

	okLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "+OK\r\n", okLine)

	require.Eventually(t, func() bool {
		return m.SlaveCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestFeedPropagatesToAttachedSlave(t *testing.T) {
	m := New(dict.New())
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	attached := make(chan struct{})
	go func() {
		require.NoError(t, m.AttachSlave(serverConn))
		close(attached)
	}()

	reader := bufio.NewReader(clientConn)
	_, err := reader.ReadString('\n') // +FULLSYNC
	require.NoError(t, err)
	okLine, err := reader.ReadString('\n') // +OK, end of (empty) dump
	require.NoError(t, err)
	assert.Equal(t, "+OK\r\n", okLine)

	require.Eventually(t, func() bool { return m.SlaveCount() == 1 }, time.Second, 10*time.Millisecond)

	m.Feed([][]byte{[]byte("HSET"), []byte("k"), []byte("v")})

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "*3\r\n", line)
	_ = attached
}

func TestSlaveOfTransitionsRole(t *testing.T) {
	m := New(dict.New())
	require.NoError(t, m.SlaveOf("127.0.0.1", 1, func(args [][]byte) {}))
	assert.Equal(t, RoleSlave, m.Role())
}

func TestPromoteToMasterRestoresRole(t *testing.T) {
	m := New(dict.New())
	require.NoError(t, m.SlaveOf("127.0.0.1", 1, func(args [][]byte) {}))
	m.PromoteToMaster()
	assert.Equal(t, RoleMaster, m.Role())
}
