// Package buffer provides the two shared in-memory structures of the indexer:
// a FIFO Queue drained in batches by a single consumer, and a bounded
// read-through Cache. Both are safe for concurrent use.
package buffer
