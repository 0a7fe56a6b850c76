// Package search defines the abstract search engine the Search/
// StoreSearch/SearchResult handlers delegate to; the engine streams
// per-collection hit batches back to the handler. Concrete full-text
// backends are intentionally pluggable; this package only fixes the
// interface shape and ships a trivial in-memory engine for tests.
package search
