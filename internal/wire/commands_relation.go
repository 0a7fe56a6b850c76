package wire

func init() {
	Register(DiscCreateRelation, func() Command { return &CreateRelationCommand{} })
	Register(DiscFetchRelations, func() Command { return &FetchRelationsCommand{} })
	Register(DiscFetchRelationsResponse, func() Command { return &FetchRelationsResponse{} })
	Register(DiscDeleteRelation, func() Command { return &DeleteRelationCommand{} })
}

// CreateRelationCommand creates an unordered typed link between two
// items; the (Left, Right, Type) triple is unique.
type CreateRelationCommand struct {
	LeftID   int64
	RightID  int64
	Type     string
	RemoteID string
}

func (c *CreateRelationCommand) Discriminator() uint8 { return DiscCreateRelation }

func (c *CreateRelationCommand) EncodeBody(e *Encoder) error {
	e.WriteInt64(c.LeftID)
	e.WriteInt64(c.RightID)
	e.WriteString(c.Type)
	e.WriteString(c.RemoteID)
	return e.Err()
}

func (c *CreateRelationCommand) DecodeBody(d *Decoder) error {
	c.LeftID = d.ReadInt64()
	c.RightID = d.ReadInt64()
	c.Type = d.ReadString()
	c.RemoteID = d.ReadString()
	return d.Err()
}

// FetchRelationsCommand selects relations touching ItemID, optionally
// filtered to Type (empty means any type).
type FetchRelationsCommand struct {
	ItemID int64
	Type   string
}

func (c *FetchRelationsCommand) Discriminator() uint8 { return DiscFetchRelations }

func (c *FetchRelationsCommand) EncodeBody(e *Encoder) error {
	e.WriteInt64(c.ItemID)
	e.WriteString(c.Type)
	return e.Err()
}

func (c *FetchRelationsCommand) DecodeBody(d *Decoder) error {
	c.ItemID = d.ReadInt64()
	c.Type = d.ReadString()
	return d.Err()
}

type FetchRelationsResponse struct {
	LeftID   int64
	RightID  int64
	Type     string
	RemoteID string
}

func (r *FetchRelationsResponse) Discriminator() uint8 { return DiscFetchRelationsResponse }

func (r *FetchRelationsResponse) EncodeBody(e *Encoder) error {
	e.WriteInt64(r.LeftID)
	e.WriteInt64(r.RightID)
	e.WriteString(r.Type)
	e.WriteString(r.RemoteID)
	return e.Err()
}

func (r *FetchRelationsResponse) DecodeBody(d *Decoder) error {
	r.LeftID = d.ReadInt64()
	r.RightID = d.ReadInt64()
	r.Type = d.ReadString()
	r.RemoteID = d.ReadString()
	return d.Err()
}

// DeleteRelationCommand removes the relation identified by the
// (LeftID, RightID, Type) triple.
type DeleteRelationCommand struct {
	LeftID  int64
	RightID int64
	Type    string
}

func (c *DeleteRelationCommand) Discriminator() uint8 { return DiscDeleteRelation }

func (c *DeleteRelationCommand) EncodeBody(e *Encoder) error {
	e.WriteInt64(c.LeftID)
	e.WriteInt64(c.RightID)
	e.WriteString(c.Type)
	return e.Err()
}

func (c *DeleteRelationCommand) DecodeBody(d *Decoder) error {
	c.LeftID = d.ReadInt64()
	c.RightID = d.ReadInt64()
	c.Type = d.ReadString()
	return d.Err()
}
