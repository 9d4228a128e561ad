// Package replication implements master->replica propagation: a literal
// PSYNC handshake (no REPLCONF negotiation, no partial resync — a replica
// always gets a full sync), a per-slave send goroutine fed over a channel,
// and, on the replica side, ingestion of the resulting command stream into
// the local dictionary. Adapted from the teacher's ReplicationManager
// (role state machine, replica registry, propagateToReplicas fan-out),
// trading its REPLCONF/backlog/partial-resync machinery — built for a
// richer protocol than this spec calls for — for the single-step
// handshake and unbounded-but-capped slave list the spec actually wants.
package replication

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"sync"

	"redis/internal/dict"
	"redis/internal/resp"
)

// Role is the server's current replication role.
type Role string

const (
	RoleMaster Role = "master"
	RoleSlave  Role = "slave"
)

// MaxSlaves caps the number of simultaneously attached replicas.
const MaxSlaves = 128

// slave is one attached replica connection, from the master's side.
type slave struct {
	conn   net.Conn
	writer *bufio.Writer
	addr   string
	feed   chan []byte
	done   chan struct{}
}

// Manager owns both the master-side replica registry and, when acting as a
// replica, the connection back to its master. A single process only plays
// one role at a time; SlaveOf and PromoteToMaster transition between them.
type Manager struct {
	dict *dict.Dict

	mu     sync.RWMutex
	role   Role
	slaves map[string]*slave

	master *masterLink // non-nil only while role == RoleSlave
}

// New creates a Manager in the master role with no attached slaves.
func New(d *dict.Dict) *Manager {
	return &Manager{
		dict:   d,
		role:   RoleMaster,
		slaves: make(map[string]*slave),
	}
}

// Role returns the current replication role.
func (m *Manager) Role() Role {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.role
}

// SlaveCount returns the number of currently attached replicas.
func (m *Manager) SlaveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.slaves)
}

// AttachSlave registers conn as a replica after it has sent PSYNC, performs
// the full-sync dump (every entry in the dictionary as a synthetic SET
// frame), and starts the per-slave feed goroutine. Rejects the connection
// if MaxSlaves is already attached.
func (m *Manager) AttachSlave(conn net.Conn) error {
	m.mu.Lock()
	if len(m.slaves) >= MaxSlaves {
		m.mu.Unlock()
		return fmt.Errorf("replication: slave cap of %d reached", MaxSlaves)
	}
	s := &slave{
		conn:   conn,
		writer: bufio.NewWriter(conn),
		addr:   conn.RemoteAddr().String(),
		feed:   make(chan []byte, 1024),
		done:   make(chan struct{}),
	}
	m.slaves[s.addr] = s
	m.mu.Unlock()

	log.Printf("[REPLICATION] slave attached: %s", s.addr)

	if _, err := conn.Write([]byte("+FULLSYNC\r\n")); err != nil {
		m.detach(s)
		return fmt.Errorf("replication: send FULLSYNC: %w", err)
	}

	if err := m.dumpTo(s); err != nil {
		m.detach(s)
		return fmt.Errorf("replication: full-sync dump: %w", err)
	}

	// A trailing "+OK\r\n" marks the end of the full-sync dump, matching
	// the wire format exactly; it carries no meaning to this
	// implementation's slave-side ingestion, which treats it as
	// junk-prefix noise to scan past before the next '*' frame — there
	// is no separate loading/live mode to switch on this side.
	if _, err := s.writer.Write([]byte("+OK\r\n")); err != nil {
		m.detach(s)
		return fmt.Errorf("replication: send post-dump OK: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		m.detach(s)
		return fmt.Errorf("replication: flush post-dump OK: %w", err)
	}

	go m.runSlave(s)
	return nil
}

// dumpTo writes every dictionary entry to s as a synthetic "*3 SET key
// value" frame, giving the replica the master's exact current state before
// the live feed starts layering further mutations on top. The dump uses
// SET rather than the client-facing HSET, per this protocol's wire
// format; the slave applies SET as an alias for HSET (see applyReplicated),
// same as the port this was grounded on.
func (m *Manager) dumpTo(s *slave) error {
	var dumpErr error
	m.dict.Foreach(func(key, value []byte) {
		if dumpErr != nil {
			return
		}
		frame := resp.MultiBulk([][]byte{[]byte("SET"), key, value})
		_, dumpErr = s.writer.Write(frame)
	})
	if dumpErr != nil {
		return dumpErr
	}
	return s.writer.Flush()
}

// runSlave drains s's feed channel to its connection until the channel is
// closed or a write fails, at which point the slave is detached. A slave
// that falls behind or disconnects never blocks command propagation to the
// others — see Feed's non-blocking send.
func (m *Manager) runSlave(s *slave) {
	defer m.detach(s)
	for {
		select {
		case frame, ok := <-s.feed:
			if !ok {
				return
			}
			if _, err := s.writer.Write(frame); err != nil {
				log.Printf("[REPLICATION] write to slave %s failed: %v", s.addr, err)
				return
			}
			if err := s.writer.Flush(); err != nil {
				log.Printf("[REPLICATION] flush to slave %s failed: %v", s.addr, err)
				return
			}
		case <-s.done:
			return
		}
	}
}

func (m *Manager) detach(s *slave) {
	m.mu.Lock()
	if existing, ok := m.slaves[s.addr]; ok && existing == s {
		delete(m.slaves, s.addr)
	}
	m.mu.Unlock()

	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.conn.Close()
	log.Printf("[REPLICATION] slave detached: %s", s.addr)
}

// Feed fans a just-applied mutating command out to every attached slave.
// Encoding happens once; each slave's send is non-blocking — a slave whose
// feed channel is full is dropped rather than allowed to stall the master,
// matching the teacher's swap-and-close-on-failure behavior for a slow
// replica, here realized as a full-channel check instead of a write error.
func (m *Manager) Feed(args [][]byte) {
	m.mu.RLock()
	if m.role != RoleMaster || len(m.slaves) == 0 {
		m.mu.RUnlock()
		return
	}
	targets := make([]*slave, 0, len(m.slaves))
	for _, s := range m.slaves {
		targets = append(targets, s)
	}
	m.mu.RUnlock()

	frame := resp.MultiBulk(args)
	for _, s := range targets {
		select {
		case s.feed <- frame:
		default:
			log.Printf("[REPLICATION] slave %s feed full, detaching", s.addr)
			go m.detach(s)
		}
	}
}

// Shutdown closes every attached slave connection and, if acting as a
// slave, disconnects from the master.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	slaves := make([]*slave, 0, len(m.slaves))
	for _, s := range m.slaves {
		slaves = append(slaves, s)
	}
	m.mu.Unlock()

	for _, s := range slaves {
		m.detach(s)
	}

	m.mu.Lock()
	link := m.master
	m.mu.Unlock()
	if link != nil {
		link.close()
	}
}
