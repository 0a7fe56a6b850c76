/*
Package notify implements the change notification pipeline: a per-connection
Collector accumulates model.Notification values produced while a handler
processes one command, compresses them, then hands the batch to a Bus that
fans it out to subscribers whose Subscription filters decide what they
receive.

The Bus is a subscriber map guarded by a mutex with a background run
loop, plus three things a broadcast-to-everyone broker wouldn't need:
per-subscriber filtering, a short coalescing window so bursts of small
changes arrive as one batch, and a bounded per-subscriber queue whose
overflow disconnects the subscriber instead of silently dropping
notifications.
*/
package notify
