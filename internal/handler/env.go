package handler

import (
	"context"

	"github.com/cuemby/itemstored/internal/notify"
	"github.com/cuemby/itemstored/internal/retrieval"
	"github.com/cuemby/itemstored/internal/scheduler"
	"github.com/cuemby/itemstored/internal/search"
	"github.com/cuemby/itemstored/internal/store"
	"github.com/cuemby/itemstored/internal/wire"
)

// Env holds one connection's dependencies and transaction scope. The
// server creates one Env per connection and reuses it across commands;
// Tx is non-nil only while an explicit BeginTransaction/Commit/Rollback
// scope is open. When Tx is nil, every store call below passes nil
// through and the store façade opens and commits its own implicit
// transaction per call (autocommit).
type Env struct {
	Store     *store.Store
	Tx        *store.Tx
	Collector *notify.Collector
	Bus       *notify.Bus
	Retrieval *retrieval.Coordinator
	Scheduler *scheduler.Scheduler
	Search    search.Engine

	ConnID    string
	SessionID string
	Sub       *notify.Subscription
}

// Responder lets a handler emit response frames that precede its
// terminal response on the same tag, e.g. one FetchItemsResponse
// per matched item before the terminal TerminalResponse.
type Responder interface {
	SendIntermediate(cmd wire.Command) error
}

// Func is the shape every command handler implements: parse cmd's
// already-decoded fields, perform the transactional work, stream zero or
// more intermediate responses through resp, and return the terminal
// response body (or an error, which the server turns into a failing
// TerminalResponse).
type Func func(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error)
