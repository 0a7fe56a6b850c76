/*
Package store implements the transactional data-model façade:
begin/commit/rollback, per-entity CRUD with invariant checks, Scope
resolution, and cache-policy inheritance.

# Architecture

Collections, items, parts, tags, relations and resources are persisted as
JSON-encoded records in BoltDB buckets, one bucket per entity kind, keyed
by the entity's server-assigned int64 id (BoltDB's per-bucket sequence
counter). BoltDB gives the façade two properties it needs for free:

  - a single writable transaction in-process at a time, which serializes
    writes to the same entity;
  - MVCC read transactions that never block on a writer.

A *Tx wraps one bbolt.Tx; Begin acquires it (with a context deadline that
maps a timeout to model.ErrRetryableStore, standing in for the deadlock
signal a relational store would raise under contention), Commit and
Rollback delegate to the underlying transaction. Every public CRUD method
takes an explicit *Tx so callers control transaction scope; passing a nil
Tx runs the operation in its own implicit transaction, for call sites (the
scheduler, the retrieval coordinator) that are not part of a connection's
open transaction.

# Cache policy inheritance

EffectiveCachePolicy walks a collection's ancestor chain until it finds
one with CachePolicy.Inherit == false, or reaches the root.
*/
package store
