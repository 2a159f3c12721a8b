// Package testing provides test utilities for the concentrator and its
// NATS transport.
//
// It follows Go's convention of shipping testing helpers in a dedicated
// package (similar to net/http/httptest).
//
// Key utilities:
//   - StartEmbeddedNATS: Single in-process NATS server with JetStream
//   - CreateJetStreamKV: Memory-backed KV bucket
//   - CreateFrameStream: Memory-backed stream capturing published frames
//   - RecordingPublisher: Publisher that keeps every frame it receives
//   - NewTestLogger: Logger writing through t.Logf
//
// Example usage:
//
//	import (
//	    "testing"
//	    concentratortest "github.com/GridProtectionAlliance/gsf-sub046/testing"
//	)
//
//	func TestMyPublisher(t *testing.T) {
//	    _, nc := concentratortest.StartEmbeddedNATS(t)
//	    stream := concentratortest.CreateFrameStream(t, nc, "FRAMES", "frames.>")
//	    // publish frames, then inspect stream
//	}
package testing
