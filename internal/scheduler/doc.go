/*
Package scheduler runs the periodic per-collection sync rechecks: each
collection whose effective cache policy asks for synchronization gets a
recheck scheduled its interval out, and firing one calls back into the
server to reconcile the collection against its owning resource.

A single background run loop waits on a container/heap min-heap keyed
on next run time, retargeting its timer whenever the heap top changes;
collections' intervals differ and may number in the thousands, so one
timer over a heap beats a ticker per collection.
*/
package scheduler
