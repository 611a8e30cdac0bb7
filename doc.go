// Package opflow is a runtime for graphs of concurrent operations connected
// by bounded queues.
//
// # Model
//
// Every operation runs on its own goroutine. Values travel between
// operations as variants: a tagged union of primitive scalars, strings,
// matrices and control tags. An operation reads from named input sockets,
// each backed by a bounded queue, and writes to named output sockets, each
// of which fans out to every input connected to it.
//
//	┌──────────────┐ out      key ┌──────────────┐ key       in ┌──────────────┐
//	│  generator   │─────────────▶│   cacheop    │─────────────▶│    mapper    │
//	│  (source)    │              │              │◀─────────────│  (compute)   │
//	└──────────────┘              └──────────────┘ data     out └──────────────┘
//	                                 │ found │ data
//	                                 ▼       ▼
//	                           ┌──────────┐ ┌──────────┐
//	                           │collector │ │ natspub  │
//	                           └──────────┘ └──────────┘
//
// # Control Tags
//
// Sources start the graph and emit Stop when exhausted. Pause, Resume and
// Stop travel through the graph in band: a processor relays a tag once it
// has arrived on every connected input line, so every downstream operation
// sees a consistent cut of the stream.
//
// # Packages
//
//   - variant: the value model
//   - pkg/buffer: bounded queues with Block and Reject policies
//   - socket, flow: connections and input synchronization
//   - operation: the state machine and the run loops
//   - pipeline: assembly, validation and lifecycle of a graph
//   - input, processor, output: stock operations
//   - codec, natsclient: the msgpack wire format and the NATS bridge
//   - config, metric, errors: configuration layers, Prometheus metrics and
//     classified errors
//
// The opflow command in cmd/opflow runs a configurable cache-loop graph.
package opflow
