package handler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cuemby/itemstored/internal/metrics"
	"github.com/cuemby/itemstored/internal/wire"
)

func init() {
	registerHandler(wire.DiscBeginTransaction, handleBeginTransaction)
	registerHandler(wire.DiscCommitTransaction, handleCommitTransaction)
	registerHandler(wire.DiscRollbackTransaction, handleRollbackTransaction)
}

// handleBeginTransaction opens an explicit transaction scope. Nesting is
// not supported.
func handleBeginTransaction(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	if env.Tx != nil {
		return nil, fmt.Errorf("handler: begin transaction: already open")
	}
	tx, err := env.Store.Begin(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("handler: begin transaction: %w", err)
	}
	env.Tx = tx
	return &wire.TerminalResponse{OK: true}, nil
}

// handleCommitTransaction commits the open transaction and releases the
// notifications buffered during it. It publishes directly rather than
// relying on the dispatcher's autocommit publish, since Tx was already
// open when this call started.
func handleCommitTransaction(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	if env.Tx == nil {
		return nil, fmt.Errorf("handler: commit transaction: none open")
	}
	metrics.StoreTransactionDuration.WithLabelValues(strconv.FormatBool(env.Tx.Writable())).Observe(env.Tx.Age().Seconds())
	if err := env.Tx.Commit(); err != nil {
		env.Tx = nil
		return nil, fmt.Errorf("handler: commit transaction: %w", err)
	}
	env.Tx = nil

	if batch := env.Collector.Drain(); len(batch) > 0 {
		env.Bus.Publish(batch)
		metrics.NotificationsPublishedTotal.Add(float64(len(batch)))
	}
	return &wire.TerminalResponse{OK: true}, nil
}

// handleRollbackTransaction aborts the open transaction and discards any
// notifications buffered during it.
func handleRollbackTransaction(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	if env.Tx == nil {
		return nil, fmt.Errorf("handler: rollback transaction: none open")
	}
	err := env.Tx.Rollback()
	env.Tx = nil
	env.Collector.Drain() // discard, result unused

	if err != nil {
		return nil, fmt.Errorf("handler: rollback transaction: %w", err)
	}
	return &wire.TerminalResponse{OK: true}, nil
}
