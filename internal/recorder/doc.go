// Package recorder implements the resource-side change recorder: a
// durable, append-only queue a resource agent uses to replay its own
// upstream-bound notifications reliably across process restarts.
//
// File layout, little-endian:
//
//	uint64  sizeAndVersion  // low 32 bits = entry count; high 16 bits of
//	                        // the upper 32 = format version
//	uint64  startOffset     // number of entries at head already dequeued
//	entries[...]            // one after another, entry count of them
//
// Dequeue is O(1) in the common case: the head is skipped by bumping
// startOffset and patching the 16-byte header in place, without
// touching the entries that follow. A full rewrite only happens when
// the queue empties, a prior Load forced one, or Compact is called
// explicitly.
package recorder
