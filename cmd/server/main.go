package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"redis/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: server <port> [--slaveof <ip> <port>]")
		os.Exit(1)
	}

	port, err := strconv.Atoi(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", os.Args[1], err)
		os.Exit(1)
	}

	cfg := server.DefaultConfig()
	cfg.Port = port

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		if args[i] != "--slaveof" {
			fmt.Fprintf(os.Stderr, "unrecognized argument %q\n", args[i])
			os.Exit(1)
		}
		if i+2 >= len(args) {
			fmt.Fprintln(os.Stderr, "--slaveof requires <ip> <port>")
			os.Exit(1)
		}
		masterPort, err := strconv.Atoi(args[i+2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --slaveof port %q: %v\n", args[i+2], err)
			os.Exit(1)
		}
		cfg.SlaveOfHost = args[i+1]
		cfg.SlaveOfPort = masterPort
		i += 2
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("server: init failed: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("shutting down...")
		srv.Shutdown()
		os.Exit(0)
	}()

	log.Printf("starting on port %d", cfg.Port)
	if err := srv.Start(); err != nil {
		log.Fatalf("server: %v", err)
	}
}
