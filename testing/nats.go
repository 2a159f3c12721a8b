package testing

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/GridProtectionAlliance/gsf-sub046/internal/natsutil"
)

// StartEmbeddedNATS starts an in-process NATS server with JetStream for a test.
//
// The server listens on a random local port, so parallel tests never
// collide, and keeps JetStream data in t.TempDir(). Server and connection
// are shut down by t.Cleanup.
//
// Parameters:
//   - t: Testing context for failure reporting and cleanup
//
// Returns:
//   - *server.Server: The embedded NATS server instance
//   - *nats.Conn: Connected client
//
// Example:
//
//	func TestIngestor(t *testing.T) {
//	    _, nc := concentratortest.StartEmbeddedNATS(t)
//	    ing := natsbus.NewIngestor(nc, "measurements", sorter)
//	    // ...
//	}
func StartEmbeddedNATS(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	ns, nc, err := natsutil.StartEmbedded(natsutil.EmbeddedOptions{
		StoreDir:     t.TempDir(),
		ReadyTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to start embedded NATS server: %v", err)
	}

	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	return ns, nc
}

// CreateJetStreamKV creates a memory-backed KV bucket keeping one revision
// per key.
//
// Parameters:
//   - t: Testing context
//   - nc: NATS connection (from StartEmbeddedNATS)
//   - bucket: Bucket name
//
// Returns:
//   - jetstream.KeyValue: The created bucket
//
// Example:
//
//	func TestLatestValues(t *testing.T) {
//	    _, nc := concentratortest.StartEmbeddedNATS(t)
//	    kv := concentratortest.CreateJetStreamKV(t, nc, "latest")
//	    // ...
//	}
func CreateJetStreamKV(t *testing.T, nc *nats.Conn, bucket string) jetstream.KeyValue {
	t.Helper()

	kv, err := newJetStream(t, nc).CreateKeyValue(t.Context(), jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: 1,
		TTL:     time.Minute,
		Storage: jetstream.MemoryStorage,
	})
	if err != nil {
		t.Fatalf("Failed to create KV bucket %s: %v", bucket, err)
	}

	return kv
}

// CreateFrameStream creates a memory-backed stream bound to subjects, used to
// capture frames sent by a natsbus.FramePublisher.
//
// Parameters:
//   - t: Testing context
//   - nc: NATS connection (from StartEmbeddedNATS)
//   - name: Stream name
//   - subjects: Subjects captured by the stream
//
// Returns:
//   - jetstream.Stream: The created stream
func CreateFrameStream(t *testing.T, nc *nats.Conn, name string, subjects ...string) jetstream.Stream {
	t.Helper()

	stream, err := newJetStream(t, nc).CreateStream(t.Context(), jetstream.StreamConfig{
		Name:       name,
		Subjects:   subjects,
		Storage:    jetstream.MemoryStorage,
		Duplicates: time.Minute,
	})
	if err != nil {
		t.Fatalf("Failed to create stream %s: %v", name, err)
	}

	return stream
}

func newJetStream(t *testing.T, nc *nats.Conn) jetstream.JetStream {
	t.Helper()

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("Failed to get JetStream context: %v", err)
	}

	return js
}
