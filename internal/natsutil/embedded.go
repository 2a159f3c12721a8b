package natsutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// EmbeddedOptions configures StartEmbedded.
type EmbeddedOptions struct {
	// Host to listen on, 127.0.0.1 when empty.
	Host string
	// Port to listen on, a random free port when zero.
	Port int
	// StoreDir holds JetStream data. Empty keeps the server's default temp dir.
	StoreDir string
	// ReadyTimeout bounds server startup, 10s when zero.
	ReadyTimeout time.Duration
}

// StartEmbedded starts an in-process NATS server with JetStream and connects
// a client to it. Shutdown the server after closing the connection.
//
// Parameters:
//   - opts: Listen address and storage settings
//
// Returns:
//   - *server.Server: Running NATS server
//   - *nats.Conn: Client connection to the server
//   - error: Error if startup fails
func StartEmbedded(opts EmbeddedOptions) (*server.Server, *nats.Conn, error) {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Port == 0 {
		opts.Port = -1
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 10 * time.Second
	}

	ns, err := server.NewServer(&server.Options{
		Host:      opts.Host,
		Port:      opts.Port,
		JetStream: true,
		StoreDir:  opts.StoreDir,
		NoLog:     true,
		NoSigs:    true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(opts.ReadyTimeout) {
		ns.Shutdown()
		return nil, nil, errors.New("NATS server not ready")
	}

	nc, err := nats.Connect(ns.ClientURL(), nats.Name("concentrator-embedded"))
	if err != nil {
		ns.Shutdown()
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return ns, nc, nil
}
