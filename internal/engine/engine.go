// Package engine implements the command executor: a single goroutine that
// drains a channel of parsed commands and applies them to the dictionary
// one at a time, in the order dict mutation -> AOF append -> slave feed ->
// reply, so every replica and the AOF see exactly the effects the client
// sees and in the same order. Grounded on the teacher's processor.Processor
// (commandChan + run + Submit), generalized from its many-command dispatch
// table down to this spec's six-command surface.
package engine

import (
	"bytes"
	"log"

	"redis/internal/dict"
	"redis/internal/resp"
)

// AOFAppender is the durability sink a mutating command is logged to
// before the reply is sent. Implemented by *aof.AOF; kept as an interface
// here so the engine package never imports the persistence package.
type AOFAppender interface {
	Append(args [][]byte) error
}

// ReplicaFeeder fans a mutating command out to attached replicas. Implemented
// by *replication.Manager.
type ReplicaFeeder interface {
	Feed(args [][]byte)
}

// Snapshotter is asked to write the current dictionary to disk. Implemented
// by *persist.Manager so SAVE can trigger it without the engine importing
// the RDB package directly.
type Snapshotter interface {
	Save() error
}

// Request is one parsed command awaiting execution, paired with the reply
// channel its owning connection goroutine is blocked on.
type Request struct {
	Cmd   *resp.Command
	Reply chan []byte
}

// Engine is the single-writer command executor.
type Engine struct {
	dict  *dict.Dict
	aof   AOFAppender
	feed  ReplicaFeeder
	save  Snapshotter
	queue chan *Request
	done  chan struct{}
}

// Config supplies the collaborators an Engine drives. AOF, Feed, and Save
// may be nil: a nil AOF skips durability logging, a nil Feed skips replica
// fan-out (master role disabled or no replicas attached), a nil Save makes
// SAVE reply with a "-ERR" instead of writing a snapshot.
type Config struct {
	Dict *dict.Dict
	AOF  AOFAppender
	Feed ReplicaFeeder
	Save Snapshotter
}

// New creates an Engine and starts its run loop. Callers submit commands
// with Submit and receive encoded replies on each Request's Reply channel.
func New(cfg Config) *Engine {
	e := &Engine{
		dict:  cfg.Dict,
		aof:   cfg.AOF,
		feed:  cfg.Feed,
		save:  cfg.Save,
		queue: make(chan *Request, 1024),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

// Submit enqueues a command for execution and returns immediately; the
// caller reads req.Reply to get the encoded response.
func (e *Engine) Submit(req *Request) {
	e.queue <- req
}

// Close stops the run loop after draining any commands already queued.
func (e *Engine) Close() {
	close(e.queue)
	<-e.done
}

func (e *Engine) run() {
	defer close(e.done)
	for req := range e.queue {
		req.Reply <- e.execute(req.Cmd)
	}
}

func (e *Engine) execute(cmd *resp.Command) []byte {
	if len(cmd.Args) == 0 {
		return resp.Error("empty command")
	}
	name := bytes.ToUpper(cmd.Args[0])
	args := cmd.Args[1:]

	switch string(name) {
	case "HSET":
		return e.hset(args)
	case "HGET":
		return e.hget(args)
	case "HDEL":
		return e.hdel(args)
	case "HMOD":
		return e.hmod(args)
	case "HEXIST":
		return e.hexist(args)
	case "SAVE":
		return e.saveCmd(args)
	default:
		return resp.Error("unknown command '" + string(name) + "'")
	}
}

func (e *Engine) hset(args [][]byte) []byte {
	if len(args) != 2 {
		return resp.Error("wrong number of arguments for 'HSET'")
	}
	key, value := args[0], args[1]
	inserted := e.dict.Set(key, value)
	e.logMutation(append([][]byte{[]byte("HSET")}, key, value))

	if inserted {
		return resp.OK()
	}
	return resp.Exist()
}

func (e *Engine) hget(args [][]byte) []byte {
	if len(args) != 1 {
		return resp.Error("wrong number of arguments for 'HGET'")
	}
	v, ok := e.dict.Get(args[0])
	if !ok {
		return resp.NullBulk()
	}
	return resp.Bulk(v)
}

func (e *Engine) hdel(args [][]byte) []byte {
	if len(args) != 1 {
		return resp.Error("wrong number of arguments for 'HDEL'")
	}
	if e.dict.Del(args[0]) {
		e.logMutation(append([][]byte{[]byte("HDEL")}, args[0]))
		return resp.OK()
	}
	return resp.NullBulk()
}

func (e *Engine) hmod(args [][]byte) []byte {
	if len(args) != 2 {
		return resp.Error("wrong number of arguments for 'HMOD'")
	}
	key, value := args[0], args[1]
	if e.dict.Mod(key, value) {
		e.logMutation(append([][]byte{[]byte("HMOD")}, key, value))
		return resp.OK()
	}
	return resp.NullBulk()
}

func (e *Engine) hexist(args [][]byte) []byte {
	if len(args) != 1 {
		return resp.Error("wrong number of arguments for 'HEXIST'")
	}
	if e.dict.Exist(args[0]) {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func (e *Engine) saveCmd(args [][]byte) []byte {
	if len(args) != 0 {
		return resp.Error("wrong number of arguments for 'SAVE'")
	}
	if e.save == nil {
		return resp.Error("persistence not configured")
	}
	if err := e.save.Save(); err != nil {
		log.Printf("[ENGINE] SAVE failed: %v", err)
		return resp.Error("save failed: " + err.Error())
	}
	return resp.OK()
}

// logMutation appends a command to the AOF and fans it out to replicas, in
// that order, after the dictionary mutation has already happened. Either
// sink may be nil (disabled); errors from the AOF are logged, not returned
// to the client — the in-memory mutation already succeeded and spec's
// invariant is that a write is never rolled back for a durability failure.
func (e *Engine) logMutation(args [][]byte) {
	if e.aof != nil {
		if err := e.aof.Append(args); err != nil {
			log.Printf("[AOF] append failed: %v", err)
		}
	}
	if e.feed != nil {
		e.feed.Feed(args)
	}
}
