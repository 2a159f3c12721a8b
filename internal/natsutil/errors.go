// Package natsutil holds NATS helpers shared by the transport packages.
package natsutil

import (
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

var connectivityErrors = []error{
	types.ErrConnectivity,
	nats.ErrTimeout,
	nats.ErrNoServers,
	nats.ErrDisconnected,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	jetstream.ErrNoStreamResponse,
}

// IsConnectivityError checks if an error is caused by connectivity issues
// (timeouts, refused or closed connections, no JetStream response).
//
// Kept here so the types package does not import NATS.
//
// Parameters:
//   - err: Error to check
//
// Returns:
//   - bool: true if error indicates connectivity issue
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	for _, target := range connectivityErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	msg := err.Error()

	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "i/o timeout")
}
