package wire

func init() {
	Register(DiscCreateSubscription, func() Command { return &CreateSubscriptionCommand{} })
	Register(DiscModifySubscription, func() Command { return &ModifySubscriptionCommand{} })
}

// CreateSubscriptionCommand registers SubscriberName on this connection;
// the server begins emitting ChangeNotification frames afterward.
type CreateSubscriptionCommand struct {
	SubscriberName string
	SessionID      string
	AllMonitored   bool

	// StreamingAck opts into lazy, pull-as-you-go notification delivery
	// instead of the default eagerly-buffered stream.
	StreamingAck bool
}

func (c *CreateSubscriptionCommand) Discriminator() uint8 { return DiscCreateSubscription }

func (c *CreateSubscriptionCommand) EncodeBody(e *Encoder) error {
	e.WriteString(c.SubscriberName)
	e.WriteString(c.SessionID)
	e.WriteBool(c.AllMonitored)
	e.WriteBool(c.StreamingAck)
	return e.Err()
}

func (c *CreateSubscriptionCommand) DecodeBody(d *Decoder) error {
	c.SubscriberName = d.ReadString()
	c.SessionID = d.ReadString()
	c.AllMonitored = d.ReadBool()
	c.StreamingAck = d.ReadBool()
	return d.Err()
}

// ModifySubscriptionCommand applies incremental filter deltas to an
// existing subscription. Every field is additive: a
// zero-value command changes nothing.
type ModifySubscriptionCommand struct {
	StartMonitoringCollections []int64
	StopMonitoringCollections  []int64
	StartMonitoringItems       []int64
	StopMonitoringItems        []int64
	StartMonitoringTags        []int64
	StopMonitoringTags         []int64
	StartMonitoringTypes       []uint8 // model.NotificationType values
	StopMonitoringTypes        []uint8
	StartMonitoringResources   []string
	StopMonitoringResources    []string
	StartMonitoringMimeTypes   []string
	StopMonitoringMimeTypes    []string
	StartIgnoringSessions      []string
	StopIgnoringSessions       []string

	SetAllMonitored *bool
	SetExclusive    *bool
	SetWantDebug    *bool
}

func (c *ModifySubscriptionCommand) Discriminator() uint8 { return DiscModifySubscription }

func writeUint8Slice(e *Encoder, vs []uint8) {
	e.WriteInt32(int32(len(vs)))
	for _, v := range vs {
		e.WriteUint8(v)
	}
}

func readUint8Slice(d *Decoder) []uint8 {
	n := d.count()
	if d.err != nil || n == 0 {
		return nil
	}
	vs := make([]uint8, n)
	for i := range vs {
		vs[i] = d.ReadUint8()
	}
	return vs
}

func writeOptionalBool(e *Encoder, v *bool) {
	e.WriteBool(v != nil)
	if v != nil {
		e.WriteBool(*v)
	}
}

func readOptionalBool(d *Decoder) *bool {
	if !d.ReadBool() {
		return nil
	}
	v := d.ReadBool()
	return &v
}

func (c *ModifySubscriptionCommand) EncodeBody(e *Encoder) error {
	e.WriteInt64Slice(c.StartMonitoringCollections)
	e.WriteInt64Slice(c.StopMonitoringCollections)
	e.WriteInt64Slice(c.StartMonitoringItems)
	e.WriteInt64Slice(c.StopMonitoringItems)
	e.WriteInt64Slice(c.StartMonitoringTags)
	e.WriteInt64Slice(c.StopMonitoringTags)
	writeUint8Slice(e, c.StartMonitoringTypes)
	writeUint8Slice(e, c.StopMonitoringTypes)
	e.WriteStringSlice(c.StartMonitoringResources)
	e.WriteStringSlice(c.StopMonitoringResources)
	e.WriteStringSlice(c.StartMonitoringMimeTypes)
	e.WriteStringSlice(c.StopMonitoringMimeTypes)
	e.WriteStringSlice(c.StartIgnoringSessions)
	e.WriteStringSlice(c.StopIgnoringSessions)
	writeOptionalBool(e, c.SetAllMonitored)
	writeOptionalBool(e, c.SetExclusive)
	writeOptionalBool(e, c.SetWantDebug)
	return e.Err()
}

func (c *ModifySubscriptionCommand) DecodeBody(d *Decoder) error {
	c.StartMonitoringCollections = d.ReadInt64Slice()
	c.StopMonitoringCollections = d.ReadInt64Slice()
	c.StartMonitoringItems = d.ReadInt64Slice()
	c.StopMonitoringItems = d.ReadInt64Slice()
	c.StartMonitoringTags = d.ReadInt64Slice()
	c.StopMonitoringTags = d.ReadInt64Slice()
	c.StartMonitoringTypes = readUint8Slice(d)
	c.StopMonitoringTypes = readUint8Slice(d)
	c.StartMonitoringResources = d.ReadStringSlice()
	c.StopMonitoringResources = d.ReadStringSlice()
	c.StartMonitoringMimeTypes = d.ReadStringSlice()
	c.StopMonitoringMimeTypes = d.ReadStringSlice()
	c.StartIgnoringSessions = d.ReadStringSlice()
	c.StopIgnoringSessions = d.ReadStringSlice()
	c.SetAllMonitored = readOptionalBool(d)
	c.SetExclusive = readOptionalBool(d)
	c.SetWantDebug = readOptionalBool(d)
	return d.Err()
}
