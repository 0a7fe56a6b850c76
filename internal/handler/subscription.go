package handler

import (
	"context"
	"fmt"

	"github.com/cuemby/itemstored/internal/model"
	"github.com/cuemby/itemstored/internal/notify"
	"github.com/cuemby/itemstored/internal/wire"
)

func init() {
	registerHandler(wire.DiscCreateSubscription, handleCreateSubscription)
	registerHandler(wire.DiscModifySubscription, handleModifySubscription)
}

// handleCreateSubscription registers a Subscription on the bus for this
// connection; internal/server promotes the connection to Selected once
// this returns without error.
func handleCreateSubscription(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.CreateSubscriptionCommand)
	if !ok {
		return nil, fmt.Errorf("handler: create subscription: unexpected command type %T", cmd)
	}
	if env.Sub != nil {
		return nil, fmt.Errorf("handler: create subscription: already subscribed")
	}

	sessionID := c.SessionID
	if sessionID == "" {
		sessionID = env.SessionID
	}
	sub := notify.NewSubscription(c.SubscriberName, sessionID, c.StreamingAck)
	sub.SetAllMonitored(c.AllMonitored)
	env.Bus.Subscribe(sub)
	env.Sub = sub

	env.Collector.Record(model.Notification{
		Type:      model.NotifySubscription,
		Operation: model.OpSubscribe,
		SessionID: env.SessionID,
	})

	return &wire.TerminalResponse{OK: true}, nil
}

// handleModifySubscription applies incremental filter deltas to the
// connection's subscription.
func handleModifySubscription(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	c, ok := cmd.(*wire.ModifySubscriptionCommand)
	if !ok {
		return nil, fmt.Errorf("handler: modify subscription: unexpected command type %T", cmd)
	}
	if env.Sub == nil {
		return nil, fmt.Errorf("handler: modify subscription: no subscription open")
	}

	applySubscriptionDeltas(ctx, env, env.Sub, c)

	env.Collector.Record(model.Notification{
		Type:      model.NotifySubscription,
		Operation: model.OpModify,
		SessionID: env.SessionID,
	})

	return &wire.TerminalResponse{OK: true}, nil
}

func applySubscriptionDeltas(ctx context.Context, env *Env, sub *notify.Subscription, c *wire.ModifySubscriptionCommand) {
	for _, id := range c.StartMonitoringCollections {
		sub.StartMonitoringCollection(id)
	}
	for _, id := range c.StopMonitoringCollections {
		sub.StopMonitoringCollection(id)
	}
	for _, id := range c.StartMonitoringItems {
		sub.StartMonitoringItem(id)
	}
	for _, id := range c.StopMonitoringItems {
		sub.StopMonitoringItem(id)
	}
	for _, id := range c.StartMonitoringTags {
		sub.StartMonitoringTag(id)
	}
	for _, id := range c.StopMonitoringTags {
		sub.StopMonitoringTag(id)
	}
	for _, t := range c.StartMonitoringTypes {
		sub.StartMonitoringType(model.NotificationType(t))
	}
	for _, t := range c.StopMonitoringTypes {
		sub.StopMonitoringType(model.NotificationType(t))
	}
	// The wire protocol names resources; notifications identify them by
	// id, so resolve here. Unknown names are skipped: a filter on a
	// resource that doesn't exist matches nothing either way.
	for _, name := range c.StartMonitoringResources {
		if r, err := env.Store.GetResourceByName(ctx, env.Tx, name); err == nil {
			sub.StartMonitoringResource(r.ID)
		}
	}
	for _, name := range c.StopMonitoringResources {
		if r, err := env.Store.GetResourceByName(ctx, env.Tx, name); err == nil {
			sub.StopMonitoringResource(r.ID)
		}
	}
	for _, mt := range c.StartMonitoringMimeTypes {
		sub.StartMonitoringMimeType(mt)
	}
	for _, mt := range c.StopMonitoringMimeTypes {
		sub.StopMonitoringMimeType(mt)
	}
	for _, id := range c.StartIgnoringSessions {
		sub.StartIgnoringSession(id)
	}
	for _, id := range c.StopIgnoringSessions {
		sub.StopIgnoringSession(id)
	}
	if c.SetAllMonitored != nil {
		sub.SetAllMonitored(*c.SetAllMonitored)
	}
	if c.SetExclusive != nil {
		sub.SetExclusive(*c.SetExclusive)
	}
	if c.SetWantDebug != nil {
		sub.SetWantDebug(*c.SetWantDebug)
	}
}
