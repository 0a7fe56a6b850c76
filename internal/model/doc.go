/*
Package model defines the core data structures shared by every other
package in itemstored: collections, items, parts, tags, relations and
resources, plus the scope selectors and cache-policy rules that the store
and handler packages operate on.

# Architecture

The model is a tree of collections rooted at each resource, with items as
leaves. Items carry named parts (payload or attribute blobs), a flag set,
and references to tags and relations. Nothing in this package talks to a
database or the network; it only describes shapes and invariants.

# Core Types

Collection tree:
  - Collection: a node in a per-resource tree, with a cache policy that
    may be inherited from an ancestor.
  - CachePolicy: inherit flag, check interval, cache timeout, sync
    preference, locally cached parts and sync-on-demand flag.

Leaves:
  - Item: owned by exactly one non-virtual collection; carries parts,
    flags, tags and a monotonically increasing revision.
  - Part: a named blob (PLD: payload, ATR: attribute), inline or external.

Cross-cutting references:
  - Tag, Relation: typed links between items.
  - Resource: the external system a collection subtree belongs to.

Selection:
  - Scope: identifies a set of entities by id, remote id, hierarchical
    remote id, or cross-resource gid.
  - FetchScope, TagFetchScope: shape what a fetch operation returns.

# Identifiers

All entity ids are server-assigned int64 values, stable for the life of
the entity. RemoteID and RemoteRevision are opaque strings meaningful only
to the owning resource; the server never interprets them.

# Thread Safety

Values in this package carry no synchronization of their own: callers
(internal/store and internal/handler) are responsible for any locking.
*/
package model
