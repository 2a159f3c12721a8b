// Package heartbeat publishes periodic status snapshots of a concentrator
// instance to a NATS KV bucket.
//
// Several concentrator processes may share an input subject through a queue
// group. Each one writes its latest snapshot under "<prefix>.<instance>", so
// operators can list live instances and read their statistics with any KV
// client. The bucket TTL should be about three intervals: an instance that
// crashes disappears after three missed heartbeats, and a clean Stop deletes
// its key immediately.
//
// Example:
//
//	kv, _ := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
//	    Bucket: "concentrator-status",
//	    TTL:    15 * time.Second,
//	}, 3)
//	hb := heartbeat.New(kv, "status", "pmu-east", 5*time.Second, func() any {
//	    return conc.Statistics()
//	})
//	if err := hb.Start(ctx); err != nil {
//	    return err
//	}
//	defer hb.Stop()
package heartbeat
