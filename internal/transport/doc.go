// Package transport provides the process-isolated worker pool: the
// coordinator re-execs its own binary once per worker process and exchanges
// length-prefixed msgpack frames with each child over its stdin/stdout
// pipes. Tasks that cross the process boundary implement Codable and are
// registered by kind so both sides can reconstruct them, including
// follow-up layers traveling back from a worker.
package transport
