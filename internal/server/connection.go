package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cuemby/itemstored/internal/handler"
	"github.com/cuemby/itemstored/internal/log"
	"github.com/cuemby/itemstored/internal/metrics"
	"github.com/cuemby/itemstored/internal/model"
	"github.com/cuemby/itemstored/internal/notify"
	"github.com/cuemby/itemstored/internal/wire"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is one of the four states a connection moves through.
type State int

const (
	NonAuthenticated State = iota
	Authenticated
	Selected
	LoggingOut
)

func (s State) String() string {
	switch s {
	case NonAuthenticated:
		return "NonAuthenticated"
	case Authenticated:
		return "Authenticated"
	case Selected:
		return "Selected"
	case LoggingOut:
		return "LoggingOut"
	default:
		return "Unknown"
	}
}

// allowed maps each state to the request discriminators a client may
// send while in it. Logout is allowed from every state.
var allowed = map[State]map[uint8]bool{
	NonAuthenticated: setOf(
		wire.DiscHello, wire.DiscLogin, wire.DiscLogout,
	),
	Authenticated: setOf(
		wire.DiscLogout,
		wire.DiscBeginTransaction, wire.DiscCommitTransaction, wire.DiscRollbackTransaction,
		wire.DiscCreateItem, wire.DiscFetchItems, wire.DiscModifyItem, wire.DiscMoveItem,
		wire.DiscCopyItem, wire.DiscDeleteItem, wire.DiscLinkItem, wire.DiscUnlinkItem,
		wire.DiscCreateCollection, wire.DiscFetchCollections, wire.DiscModifyCollection,
		wire.DiscMoveCollection, wire.DiscCopyCollection, wire.DiscDeleteCollection,
		wire.DiscCreateTag, wire.DiscFetchTags, wire.DiscModifyTag, wire.DiscDeleteTag,
		wire.DiscCreateRelation, wire.DiscFetchRelations, wire.DiscDeleteRelation,
		wire.DiscSearch, wire.DiscStoreSearch, wire.DiscCreateSubscription,
	),
	Selected: setOf(
		wire.DiscLogout,
		wire.DiscBeginTransaction, wire.DiscCommitTransaction, wire.DiscRollbackTransaction,
		wire.DiscCreateItem, wire.DiscFetchItems, wire.DiscModifyItem, wire.DiscMoveItem,
		wire.DiscCopyItem, wire.DiscDeleteItem, wire.DiscLinkItem, wire.DiscUnlinkItem,
		wire.DiscCreateCollection, wire.DiscFetchCollections, wire.DiscModifyCollection,
		wire.DiscMoveCollection, wire.DiscCopyCollection, wire.DiscDeleteCollection,
		wire.DiscCreateTag, wire.DiscFetchTags, wire.DiscModifyTag, wire.DiscDeleteTag,
		wire.DiscCreateRelation, wire.DiscFetchRelations, wire.DiscDeleteRelation,
		wire.DiscSearch, wire.DiscStoreSearch, wire.DiscModifySubscription,
	),
	LoggingOut: {},
}

func setOf(discs ...uint8) map[uint8]bool {
	m := make(map[uint8]bool, len(discs))
	for _, d := range discs {
		m[d] = true
	}
	return m
}

// Connection is one client's session: its socket, state machine, and
// transactional scope (handler.Env). Command dispatch runs on the
// goroutine that calls Serve; a second goroutine drains the
// subscription's notification channel once CreateSubscription opens
// one. writeMu serializes both onto conn.
type Connection struct {
	id   string
	conn net.Conn
	deps Deps
	cfg  Config
	log  zerolog.Logger

	r *bufio.Reader
	w *bufio.Writer

	writeMu sync.Mutex

	state State
	env   *handler.Env

	notifyDone chan struct{}
}

func newConnection(conn net.Conn, cfg Config, deps Deps) *Connection {
	id := uuid.NewString()
	c := &Connection{
		id:    id,
		conn:  conn,
		deps:  deps,
		cfg:   cfg,
		log:   log.WithConnectionID(id),
		r:     bufio.NewReader(conn),
		w:     bufio.NewWriter(conn),
		state: NonAuthenticated,
	}
	c.env = &handler.Env{
		Store:     deps.Store,
		Collector: notify.NewCollector(),
		Bus:       deps.Bus,
		Retrieval: deps.Retrieval,
		Scheduler: deps.Scheduler,
		Search:    deps.Search,
		ConnID:    id,
	}
	return c
}

// Close closes the underlying connection; Serve's read loop then exits
// with an error and returns.
func (c *Connection) Close() { _ = c.conn.Close() }

// Serve runs the per-frame dispatch loop until the client logs out,
// the connection errors, or ctx is cancelled.
func (c *Connection) Serve(ctx context.Context) {
	defer c.conn.Close()
	defer c.cleanup()

	for c.state != LoggingOut {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout)); err != nil {
			return
		}

		frame, err := wire.ReadFrame(c.r)
		if err != nil {
			if isIdleTimeout(err) {
				// Idle: close the backing data-store handle and keep
				// the connection open. Our store façade hands out no
				// long-lived per-connection handle beyond an explicit
				// Tx, which an open transaction already protects from
				// idle-close, so there is nothing further to release.
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			var protoErr *wire.ErrProtocol
			if errors.As(err, &protoErr) {
				c.log.Warn().Err(err).Msg("protocol error, closing connection")
			}
			return
		}

		c.dispatch(ctx, frame)
	}
}

func isIdleTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Connection) dispatch(ctx context.Context, frame *wire.Frame) {
	disc := frame.Command.Discriminator()
	name := commandName(frame.Command)
	timer := metrics.NewTimer()

	if !handler.Known(disc) {
		c.log.Warn().Uint8("discriminator", disc).Msg("unknown command kind, terminating connection")
		metrics.CommandsTotal.WithLabelValues(name, "unknown").Inc()
		c.state = LoggingOut
		return
	}
	if !allowed[c.state][disc] {
		metrics.CommandsTotal.WithLabelValues(name, "bad_state").Inc()
		_ = c.writeFrame(frame.Tag, &wire.TerminalResponse{OK: false, ErrorMessage: fmt.Sprintf("command not allowed in state %s", c.state)})
		return
	}

	fn := handler.Lookup(disc)
	dispatchStart := time.Now()
	resp, err := c.invokeWithRetry(ctx, fn, frame.Command)
	c.deps.Tracer.TraceDispatch(c.id, frame.Command, time.Since(dispatchStart), err)
	timer.ObserveDurationVec(metrics.CommandDuration, name)

	if err != nil {
		c.handleError(frame.Tag, name, err)
		return
	}
	metrics.CommandsTotal.WithLabelValues(name, "ok").Inc()

	switch disc {
	case wire.DiscLogin:
		c.state = Authenticated
	case wire.DiscCreateSubscription:
		if c.state == Authenticated {
			c.state = Selected
		}
		c.startNotifier()
	case wire.DiscLogout:
		c.state = LoggingOut
	}

	// Outside an explicit Begin/Commit scope each command autocommits
	// against the store (internal/store.withTx), so the notifications it
	// recorded must be published here; inside a transaction env.Tx stays
	// set and handleCommitTransaction publishes the whole batch instead.
	if env := c.env; env.Tx == nil {
		if batch := env.Collector.Drain(); len(batch) > 0 {
			env.Bus.Publish(batch)
			metrics.NotificationsPublishedTotal.Add(float64(len(batch)))
		}
	}

	if resp != nil {
		_ = c.writeFrame(frame.Tag, resp)
	}
}

// invokeWithRetry is the deadlock catcher: a handler failing with
// model.ErrRetryableStore is retried up to cfg.DeadlockRetries times
// before the error surfaces.
func (c *Connection) invokeWithRetry(ctx context.Context, fn handler.Func, cmd wire.Command) (wire.Command, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.DeadlockRetries; attempt++ {
		resp, err := fn(ctx, c.env, c, cmd)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !errors.Is(err, model.ErrRetryableStore) {
			return nil, err
		}
		metrics.StoreRetriesTotal.Inc()
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return nil, lastErr
}

// handleError maps a handler failure to a TerminalResponse
// and rolls back any transaction the failing command opened, so the
// connection remains usable for the client's next command.
func (c *Connection) handleError(tag int64, name string, err error) {
	metrics.CommandsTotal.WithLabelValues(name, "error").Inc()

	if c.env.Tx != nil {
		_ = c.env.Tx.Rollback()
		c.env.Tx = nil
		c.env.Collector.Drain()
	}

	resp := &wire.TerminalResponse{OK: false, ErrorMessage: err.Error()}
	var conflict *model.ConflictError
	if errors.As(err, &conflict) {
		metrics.ConflictsTotal.Inc()
		resp.ConflictRevision = conflict.CurrentRevision
	}
	_ = c.writeFrame(tag, resp)
}

// SendIntermediate implements handler.Responder: intermediate responses
// ride an untagged (tag 0) frame ahead of the command's terminal
// response.
func (c *Connection) SendIntermediate(cmd wire.Command) error {
	return c.writeFrame(0, cmd)
}

func (c *Connection) writeFrame(tag int64, cmd wire.Command) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return wire.WriteFrame(c.w, tag, cmd)
}

// startNotifier launches the goroutine that mirrors env.Sub's delivered
// batches onto this connection as ChangeNotification frames. dispatch calls
// it after CreateSubscription; a second call is a no-op once the notifier
// is running.
func (c *Connection) startNotifier() {
	if c.notifyDone != nil || c.env.Sub == nil {
		return
	}
	c.notifyDone = make(chan struct{})
	go c.runNotifier(c.env.Sub, c.notifyDone)
}

func (c *Connection) runNotifier(sub *notify.Subscription, done chan struct{}) {
	for {
		select {
		case batch, ok := <-sub.Out():
			if !ok {
				return
			}
			for _, n := range batch {
				if err := c.writeFrame(0, c.notificationFrame(sub, n)); err != nil {
					return
				}
			}
		case <-done:
			return
		}
	}
}

func (c *Connection) cleanup() {
	if c.notifyDone != nil {
		close(c.notifyDone)
	}
	if c.env.Sub != nil {
		c.deps.Bus.Unsubscribe(c.env.Sub.ID)
	}
	if c.env.Tx != nil {
		_ = c.env.Tx.Rollback()
	}
}

// notificationFrame wraps n in the wire notification type matching its
// NotificationType. Subscription
// notifications report sub's resulting filter state; debug wraps carry
// the encoded inner notification plus delivery metadata.
func (c *Connection) notificationFrame(sub *notify.Subscription, n model.Notification) wire.Command {
	switch n.Type {
	case model.NotifyItem:
		return &wire.ItemChangeNotification{Notification: n}
	case model.NotifyCollection:
		return &wire.CollectionChangeNotification{Notification: n}
	case model.NotifyTag:
		return &wire.TagChangeNotification{Notification: n}
	case model.NotifyRelation:
		return &wire.RelationChangeNotification{Notification: n}
	case model.NotifySubscription:
		return &wire.SubscriptionChangeNotification{
			SubscriberName:       sub.ID,
			MonitoredCollections: sub.MonitoredCollections(),
			AllMonitored:         sub.AllMonitored(),
		}
	case model.NotifyDebug:
		return debugFrame(c, sub, n)
	default:
		return &wire.ItemChangeNotification{Notification: n}
	}
}

func debugFrame(c *Connection, sub *notify.Subscription, n model.Notification) wire.Command {
	out := &wire.DebugChangeNotification{
		DeliveredTo:    n.DeliveredTo,
		ServerUnixNano: n.ServerUnixNano,
	}
	if n.Wrapped != nil {
		inner := c.notificationFrame(sub, *n.Wrapped)
		out.Inner = inner.Discriminator()
		if body, err := wire.EncodeCommandBody(inner); err == nil {
			out.Payload = body
		} else {
			c.log.Warn().Err(err).Msg("encode wrapped debug notification")
		}
	}
	return out
}

// commandName renders cmd's concrete type for metrics labels, e.g.
// "*wire.FetchItemsCommand" -> "FetchItemsCommand".
func commandName(cmd wire.Command) string {
	full := fmt.Sprintf("%T", cmd)
	for i := len(full) - 1; i >= 0; i-- {
		if full[i] == '.' {
			return full[i+1:]
		}
	}
	return full
}
