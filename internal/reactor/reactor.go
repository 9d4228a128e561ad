package reactor

import (
	"log"
	"net"
	"time"

	"redis/internal/diag"
	"redis/internal/engine"
	"redis/internal/replication"
)

// psyncGreeting is the literal line a connecting replica sends in place of
// a normal RESP command, per this protocol's simplified handshake.
const psyncGreeting = "PSYNC\r\n"

// PeriodicChecker is asked once per tick to run persistence maintenance
// (AOF rewrite threshold, RDB auto-save interval). Implemented by
// *persist.Manager.
type PeriodicChecker interface {
	PeriodicCheck()
}

// Reactor accepts client connections, spawns a handler goroutine for each,
// and drives the 1 Hz maintenance tick.
type Reactor struct {
	listener net.Listener
	engine   *engine.Engine
	repl     *replication.Manager
	persist  PeriodicChecker
}

// New creates a Reactor bound to an already-open listener.
func New(listener net.Listener, eng *engine.Engine, repl *replication.Manager, persist PeriodicChecker) *Reactor {
	return &Reactor{listener: listener, engine: eng, repl: repl, persist: persist}
}

// Serve accepts connections until the listener is closed, handling each on
// its own goroutine, and runs the 1 Hz maintenance ticker in the
// background for as long as Serve is running.
func (r *Reactor) Serve() error {
	stop := make(chan struct{})
	defer close(stop)
	go r.runTicker(stop)

	for {
		conn, err := r.listener.Accept()
		if err != nil {
			return err
		}
		go r.handleConn(conn)
	}
}

func (r *Reactor) runTicker(stop chan struct{}) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if r.persist != nil {
				r.persist.PeriodicCheck()
			}
			if rss, err := diag.ReadRSSBytes(); err == nil {
				log.Printf("[DIAG] rss=%d slaves=%d", rss, r.repl.SlaveCount())
			}
		case <-stop:
			return
		}
	}
}
