// Package msgstream provides in-process, bounded-capacity message streams.
//
// The package is organised into several files:
//
//	options.go             shared limits, functional options and config file loading
//	errors.go              error kinds and StreamError
//	stream.go              the Stream capability interface
//	stream_bounded.go      BoundedStream: capacity and operation governor
//	stream_durable.go      DurableStream: journal mirroring, batched flush, resync, reset
//	journal*.go            file, BadgerDB and RAM journals
//	partition.go           PartitionedStream: key routing over owned streams
//	subscriber*.go         SubscriberStream fan-out and subscribers
//	metrics.go, logger.go  prometheus collectors and zap logger
//
// None of the stream types are safe for concurrent use, except
// SubscriberStream which serializes its own calls.
package msgstream
