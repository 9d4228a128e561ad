package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redis/internal/dict"
	"redis/internal/resp"
)

type fakeAOF struct {
	calls [][][]byte
	err   error
}

func (f *fakeAOF) Append(args [][]byte) error {
	f.calls = append(f.calls, args)
	return f.err
}

type fakeFeed struct {
	calls [][][]byte
}

func (f *fakeFeed) Feed(args [][]byte) {
	f.calls = append(f.calls, args)
}

type fakeSave struct {
	called int
	err    error
}

func (f *fakeSave) Save() error {
	f.called++
	return f.err
}

func submit(t *testing.T, e *Engine, args ...string) []byte {
	t.Helper()
	cmdArgs := make([][]byte, len(args))
	for i, a := range args {
		cmdArgs[i] = []byte(a)
	}
	req := &Request{
		Cmd:   &resp.Command{Args: cmdArgs},
		Reply: make(chan []byte, 1),
	}
	e.Submit(req)
	return <-req.Reply
}

func TestHSetInsertRepliesOK(t *testing.T) {
	e := New(Config{Dict: dict.New()})
	defer e.Close()
	assert.Equal(t, resp.OK(), submit(t, e, "HSET", "foo", "bar"))
}

func TestHSetUpdateRepliesExist(t *testing.T) {
	e := New(Config{Dict: dict.New()})
	defer e.Close()
	submit(t, e, "HSET", "foo", "bar")
	assert.Equal(t, resp.Exist(), submit(t, e, "HSET", "foo", "baz"))
}

func TestHGetMissingRepliesNullBulk(t *testing.T) {
	e := New(Config{Dict: dict.New()})
	defer e.Close()
	assert.Equal(t, resp.NullBulk(), submit(t, e, "HGET", "nope"))
}

func TestHGetPresentRepliesBulk(t *testing.T) {
	e := New(Config{Dict: dict.New()})
	defer e.Close()
	submit(t, e, "HSET", "foo", "bar")
	assert.Equal(t, resp.Bulk([]byte("bar")), submit(t, e, "HGET", "foo"))
}

func TestHDelMissingRepliesNullBulk(t *testing.T) {
	e := New(Config{Dict: dict.New()})
	defer e.Close()
	assert.Equal(t, resp.NullBulk(), submit(t, e, "HDEL", "nope"))
}

func TestHDelExistingRepliesOK(t *testing.T) {
	e := New(Config{Dict: dict.New()})
	defer e.Close()
	submit(t, e, "HSET", "k", "v")
	assert.Equal(t, resp.OK(), submit(t, e, "HDEL", "k"))
	assert.Equal(t, resp.NullBulk(), submit(t, e, "HGET", "k"))
}

func TestHModMissingRepliesNullBulk(t *testing.T) {
	e := New(Config{Dict: dict.New()})
	defer e.Close()
	assert.Equal(t, resp.NullBulk(), submit(t, e, "HMOD", "nope", "v"))
}

func TestHModExistingRepliesOK(t *testing.T) {
	e := New(Config{Dict: dict.New()})
	defer e.Close()
	submit(t, e, "HSET", "k", "v1")
	assert.Equal(t, resp.OK(), submit(t, e, "HMOD", "k", "v2"))
	assert.Equal(t, resp.Bulk([]byte("v2")), submit(t, e, "HGET", "k"))
}

func TestHExistReflectsPresence(t *testing.T) {
	e := New(Config{Dict: dict.New()})
	defer e.Close()
	assert.Equal(t, resp.Integer(0), submit(t, e, "HEXIST", "k"))
	submit(t, e, "HSET", "k", "v")
	assert.Equal(t, resp.Integer(1), submit(t, e, "HEXIST", "k"))
}

func TestMutationsReachAOFAndFeedInOrder(t *testing.T) {
	aof := &fakeAOF{}
	feed := &fakeFeed{}
	e := New(Config{Dict: dict.New(), AOF: aof, Feed: feed})
	defer e.Close()

	submit(t, e, "HSET", "k", "v")
	submit(t, e, "HEXIST", "k") // read-only, must not be logged
	submit(t, e, "HMOD", "k", "v2")
	submit(t, e, "HDEL", "k")

	require.Len(t, aof.calls, 3)
	assert.Equal(t, "HSET", string(aof.calls[0][0]))
	assert.Equal(t, "HMOD", string(aof.calls[1][0]))
	assert.Equal(t, "HDEL", string(aof.calls[2][0]))
	assert.Equal(t, aof.calls, feed.calls)
}

func TestAOFFailureDoesNotRollBackMutation(t *testing.T) {
	aof := &fakeAOF{err: errors.New("disk full")}
	e := New(Config{Dict: dict.New(), AOF: aof})
	defer e.Close()

	assert.Equal(t, resp.OK(), submit(t, e, "HSET", "k", "v"))
	assert.Equal(t, resp.Bulk([]byte("v")), submit(t, e, "HGET", "k"))
}

func TestSaveWithoutSnapshotterErrors(t *testing.T) {
	e := New(Config{Dict: dict.New()})
	defer e.Close()
	reply := submit(t, e, "SAVE")
	assert.Contains(t, string(reply), "-ERR")
}

func TestSaveInvokesSnapshotter(t *testing.T) {
	sv := &fakeSave{}
	e := New(Config{Dict: dict.New(), Save: sv})
	defer e.Close()
	assert.Equal(t, resp.OK(), submit(t, e, "SAVE"))
	assert.Equal(t, 1, sv.called)
}

func TestUnknownCommandRepliesError(t *testing.T) {
	e := New(Config{Dict: dict.New()})
	defer e.Close()
	reply := submit(t, e, "NOSUCH")
	assert.Contains(t, string(reply), "-ERR")
}

func TestWrongArityRepliesError(t *testing.T) {
	e := New(Config{Dict: dict.New()})
	defer e.Close()
	reply := submit(t, e, "HSET", "onlyonearg")
	assert.Contains(t, string(reply), "-ERR")
}
