package wire

import "github.com/cuemby/itemstored/internal/model"

func init() {
	Register(DiscItemChangeNotification, func() Command { return &ItemChangeNotification{} })
	Register(DiscCollectionChangeNotification, func() Command { return &CollectionChangeNotification{} })
	Register(DiscTagChangeNotification, func() Command { return &TagChangeNotification{} })
	Register(DiscRelationChangeNotification, func() Command { return &RelationChangeNotification{} })
	Register(DiscSubscriptionChangeNotification, func() Command { return &SubscriptionChangeNotification{} })
	Register(DiscDebugChangeNotification, func() Command { return &DebugChangeNotification{} })
}

// ItemChangeNotification is pushed to subscribers after a commit
// touching one or more items. Tag is always sent with
// an untagged frame (tag 0): it rides the connection asynchronously,
// not in response to a request.
type ItemChangeNotification struct {
	model.Notification
}

func (n *ItemChangeNotification) Discriminator() uint8 { return DiscItemChangeNotification }

func (n *ItemChangeNotification) EncodeBody(e *Encoder) error {
	encodeNotification(e, n.Notification)
	return e.Err()
}

func (n *ItemChangeNotification) DecodeBody(d *Decoder) error {
	n.Notification = decodeNotification(d, model.NotifyItem)
	return d.Err()
}

// CollectionChangeNotification carries exactly one entity; collection
// notifications are never batched.
type CollectionChangeNotification struct {
	model.Notification
}

func (n *CollectionChangeNotification) Discriminator() uint8 {
	return DiscCollectionChangeNotification
}

func (n *CollectionChangeNotification) EncodeBody(e *Encoder) error {
	encodeNotification(e, n.Notification)
	return e.Err()
}

func (n *CollectionChangeNotification) DecodeBody(d *Decoder) error {
	n.Notification = decodeNotification(d, model.NotifyCollection)
	return d.Err()
}

type TagChangeNotification struct {
	model.Notification
}

func (n *TagChangeNotification) Discriminator() uint8 { return DiscTagChangeNotification }

func (n *TagChangeNotification) EncodeBody(e *Encoder) error {
	encodeNotification(e, n.Notification)
	return e.Err()
}

func (n *TagChangeNotification) DecodeBody(d *Decoder) error {
	n.Notification = decodeNotification(d, model.NotifyTag)
	return d.Err()
}

type RelationChangeNotification struct {
	model.Notification
}

func (n *RelationChangeNotification) Discriminator() uint8 { return DiscRelationChangeNotification }

func (n *RelationChangeNotification) EncodeBody(e *Encoder) error {
	encodeNotification(e, n.Notification)
	return e.Err()
}

func (n *RelationChangeNotification) DecodeBody(d *Decoder) error {
	n.Notification = decodeNotification(d, model.NotifyRelation)
	return d.Err()
}

// SubscriptionChangeNotification reports the resulting subscribed/
// unsubscribed set after a ModifySubscription.
type SubscriptionChangeNotification struct {
	SubscriberName       string
	MonitoredCollections []int64
	AllMonitored         bool
}

func (n *SubscriptionChangeNotification) Discriminator() uint8 {
	return DiscSubscriptionChangeNotification
}

func (n *SubscriptionChangeNotification) EncodeBody(e *Encoder) error {
	e.WriteString(n.SubscriberName)
	e.WriteInt64Slice(n.MonitoredCollections)
	e.WriteBool(n.AllMonitored)
	return e.Err()
}

func (n *SubscriptionChangeNotification) DecodeBody(d *Decoder) error {
	n.SubscriberName = d.ReadString()
	n.MonitoredCollections = d.ReadInt64Slice()
	n.AllMonitored = d.ReadBool()
	return d.Err()
}

// DebugChangeNotification wraps any of the other notification kinds
// with the list of subscriber names it was delivered to and a server
// timestamp, for subscribers that opted into the debug stream.
type DebugChangeNotification struct {
	Inner          uint8 // the wrapped notification's discriminator
	Payload        []byte
	DeliveredTo    []string
	ServerUnixNano int64
}

func (n *DebugChangeNotification) Discriminator() uint8 { return DiscDebugChangeNotification }

func (n *DebugChangeNotification) EncodeBody(e *Encoder) error {
	e.WriteUint8(n.Inner)
	e.WriteBytes(n.Payload)
	e.WriteStringSlice(n.DeliveredTo)
	e.WriteInt64(n.ServerUnixNano)
	return e.Err()
}

func (n *DebugChangeNotification) DecodeBody(d *Decoder) error {
	n.Inner = d.ReadUint8()
	n.Payload = d.ReadBytes()
	n.DeliveredTo = d.ReadStringSlice()
	n.ServerUnixNano = d.ReadInt64()
	return d.Err()
}
