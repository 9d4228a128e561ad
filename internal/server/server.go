// Package server wires the dictionary, engine, persistence manager,
// replication manager, and reactor together into one running process.
// Adapted from the teacher's RedisServer/Config (load persistence, start
// listener, optionally connect to a master, shut down gracefully),
// generalized from its multi-type store and cluster/sentinel/handler
// stack down to this spec's single dictionary and six-command engine.
package server

import (
	"fmt"
	"log"
	"net"

	"redis/internal/dict"
	"redis/internal/engine"
	"redis/internal/persist"
	"redis/internal/reactor"
	"redis/internal/replication"
)

// Config holds everything needed to start a server: the listening
// address, persistence settings, and an optional master to replicate
// from.
type Config struct {
	Host string
	Port int

	Persist persist.Config

	// SlaveOfHost/SlaveOfPort, when set, make this process a replica that
	// connects to the named master at startup instead of serving writes
	// from its own clients first. Both empty/zero means start as master.
	SlaveOfHost string
	SlaveOfPort int
}

// DefaultConfig returns the teacher's connection defaults paired with
// this spec's persistence defaults.
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    6379,
		Persist: persist.DefaultConfig(),
	}
}

// Server owns the long-lived collaborators and the listener.
type Server struct {
	cfg      Config
	dict     *dict.Dict
	persist  *persist.Manager
	repl     *replication.Manager
	engine   *engine.Engine
	reactor  *reactor.Reactor
	listener net.Listener
}

// New constructs a Server: opens persistence, loads existing state, and
// builds the engine, but does not yet listen or accept connections — call
// Start for that, which also builds the reactor.
func New(cfg Config) (*Server, error) {
	d := dict.New()

	pm, err := persist.New(cfg.Persist, d)
	if err != nil {
		return nil, fmt.Errorf("server: init persistence: %w", err)
	}
	if err := pm.Load(); err != nil {
		log.Printf("[SERVER] startup load failed, starting with the entries loaded before the error: %v", err)
	}

	repl := replication.New(d)

	eng := engine.New(engine.Config{
		Dict: d,
		AOF:  pm.AOF(),
		Feed: repl,
		Save: pm,
	})

	s := &Server{
		cfg:     cfg,
		dict:    d,
		persist: pm,
		repl:    repl,
		engine:  eng,
	}

	if cfg.SlaveOfHost != "" && cfg.SlaveOfPort > 0 {
		log.Printf("[SERVER] starting as replica of %s:%d", cfg.SlaveOfHost, cfg.SlaveOfPort)
		if err := repl.SlaveOf(cfg.SlaveOfHost, cfg.SlaveOfPort, s.applyReplicated); err != nil {
			log.Printf("[SERVER] failed to start replication from master: %v", err)
		}
	}

	return s, nil
}

// applyReplicated is how a command ingested from this server's master
// reaches the local dictionary: it bypasses the engine's queue and AOF
// logging (the AOF isn't part of the replication contract here — a
// replica that restarts replays its own AOF only up to what it had
// locally persisted, then resumes a full sync) and writes straight to
// dict, matching the shape of applyReplayed in the AOF reader. SET is
// accepted as an alias for HSET: the master's full-sync dump emits SET
// frames (see replication.Manager.dumpTo) while its live feed emits the
// client-facing HSET — both must land the same way here.
func (s *Server) applyReplicated(args [][]byte) {
	if len(args) == 0 {
		return
	}
	switch string(args[0]) {
	case "HSET", "SET":
		if len(args) == 3 {
			s.dict.Set(args[1], args[2])
		}
	case "HDEL":
		if len(args) == 2 {
			s.dict.Del(args[1])
		}
	case "HMOD":
		if len(args) == 3 {
			s.dict.Mod(args[1], args[2])
		}
	}
}

// Start opens the listener and serves connections until the listener is
// closed or the accept loop errors.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.reactor = reactor.New(listener, s.engine, s.repl, s.persist)

	log.Printf("[SERVER] listening on %s", addr)
	return s.reactor.Serve()
}

// Shutdown closes the listener, detaches replicas, and stops the engine.
func (s *Server) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.repl.Shutdown()
	s.engine.Close()
}
