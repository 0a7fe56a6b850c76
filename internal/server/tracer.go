package server

import (
	"time"

	"github.com/cuemby/itemstored/internal/wire"
)

// Tracer is an optional per-connection hook invoked around every handler
// dispatch, feeding the same diagnostics the DebugChangeNotification
// stream exposes to subscribers: a deployment can wire one in to observe
// every command a connection runs without touching dispatch itself. New
// substitutes a no-op Tracer for nil.
type Tracer interface {
	TraceDispatch(connID string, cmd wire.Command, dur time.Duration, err error)
}

// noopTracer discards every trace; it is used whenever Deps.Tracer is nil.
type noopTracer struct{}

func (noopTracer) TraceDispatch(string, wire.Command, time.Duration, error) {}
