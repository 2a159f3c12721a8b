// Package concentrator provides a real-time time-series concentration engine.
//
// Many sources report time-stamped values (entities) for their signals at a
// fixed rate, but they arrive out of order and with varying delays. The
// concentrator sorts every entity into the frame whose timestamp it belongs
// to and publishes each frame exactly once, in ascending timestamp order, as
// soon as it is complete or its lag window expires.
//
// # Quick Start
//
//	cfg := concentrator.DefaultConfig()
//	cfg.FramesPerSecond = 30
//	cfg.ExpectedEntities = 12
//
//	pub := concentrator.PublisherFunc(func(ctx context.Context, frame *concentrator.Frame, index int) error {
//	    fmt.Printf("frame %s #%d: %d signals\n", frame.Timestamp, index, frame.Count())
//	    return nil
//	})
//
//	c, err := concentrator.NewConcentrator(&cfg, pub)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	if err := c.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
//	c.Sort(concentrator.NewMeasurement(signalID, concentrator.Now(), 60.01))
//
// # Key Features
//
//   - Lock-free sorting: producers add to frames concurrently while the publisher closes them
//   - Real-time estimation: trust the newest reasonable timestamp or the local clock
//   - Preemptive publishing: complete frames publish before their lag window expires
//   - Shared frame-rate timers: concentrators with the same rate share one timer goroutine
//   - Down-sampling: duplicate entities of a signal collapse through a filter function
//
// # Architecture
//
// Every concentrator follows a small state machine:
//
//	STOPPED ⇄ STARTED → DISPOSED
//
// Sort buckets entities into tracking frames held by an ordered queue. A
// dedicated goroutine, woken by the shared timer, publishes the head frame
// once it is ready and pops it whatever the publisher returns.
//
// The natsbus package connects a concentrator to NATS: an Ingestor feeds
// Sort from a subject and a FramePublisher forwards frames to JetStream.
package concentrator
