// Package natsbus connects a concentrator to NATS.
//
// An Ingestor subscribes to a subject carrying measurement batches and feeds
// them to Sort. A FramePublisher implements the concentrator's Publisher and
// forwards every finalized frame to a JetStream stream, optionally mirroring
// each entity into a latest-value KV bucket.
//
// Messages are JSON. A measurement batch is either one object or an array:
//
//	[{"id":"6f1c...","ts":639000000000000000,"value":60.01,"flags":0}, ...]
//
// A frame carries its bucket timestamp, index within the second and entities:
//
//	{"ts":639000000000000000,"index":3,"publishedAt":...,"entities":[...]}
package natsbus
