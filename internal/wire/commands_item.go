package wire

import "github.com/cuemby/itemstored/internal/model"

func init() {
	Register(DiscCreateItem, func() Command { return &CreateItemCommand{} })
	Register(DiscCreateItemResponse, func() Command { return &CreateItemResponse{} })
	Register(DiscFetchItems, func() Command { return &FetchItemsCommand{} })
	Register(DiscFetchItemsResponse, func() Command { return &FetchItemsResponse{} })
	Register(DiscModifyItem, func() Command { return &ModifyItemCommand{} })
	Register(DiscMoveItem, func() Command { return &MoveItemCommand{} })
	Register(DiscCopyItem, func() Command { return &CopyItemCommand{} })
	Register(DiscDeleteItem, func() Command { return &DeleteItemCommand{} })
	Register(DiscLinkItem, func() Command { return &LinkItemCommand{} })
	Register(DiscUnlinkItem, func() Command { return &UnlinkItemCommand{} })
}

// CreateItemCommand creates one item under ParentID. Payload parts travel
// inline (Data set); the server registers no handler for
// StreamPayloadCommand, so part bytes cannot follow in separate chunks.
type CreateItemCommand struct {
	ParentID int64
	MimeType string
	RemoteID string
	GID      string
	Flags    []string
	Parts    []model.Part
}

func (c *CreateItemCommand) Discriminator() uint8 { return DiscCreateItem }

func (c *CreateItemCommand) EncodeBody(e *Encoder) error {
	e.WriteInt64(c.ParentID)
	e.WriteString(c.MimeType)
	e.WriteString(c.RemoteID)
	e.WriteString(c.GID)
	e.WriteStringSlice(c.Flags)
	encodeParts(e, c.Parts)
	return e.Err()
}

func (c *CreateItemCommand) DecodeBody(d *Decoder) error {
	c.ParentID = d.ReadInt64()
	c.MimeType = d.ReadString()
	c.RemoteID = d.ReadString()
	c.GID = d.ReadString()
	c.Flags = d.ReadStringSlice()
	c.Parts = decodeParts(d)
	return d.Err()
}

// CreateItemResponse carries the id and initial revision the store
// assigned.
type CreateItemResponse struct {
	ID       int64
	Revision int64
}

func (r *CreateItemResponse) Discriminator() uint8 { return DiscCreateItemResponse }

func (r *CreateItemResponse) EncodeBody(e *Encoder) error {
	e.WriteInt64(r.ID)
	e.WriteInt64(r.Revision)
	return e.Err()
}

func (r *CreateItemResponse) DecodeBody(d *Decoder) error {
	r.ID = d.ReadInt64()
	r.Revision = d.ReadInt64()
	return d.Err()
}

// FetchItemsCommand selects items by Scope and shapes the result via
// FetchScope.
type FetchItemsCommand struct {
	Scope      model.Scope
	FetchScope model.FetchScope
}

func (c *FetchItemsCommand) Discriminator() uint8 { return DiscFetchItems }

func (c *FetchItemsCommand) EncodeBody(e *Encoder) error {
	encodeScope(e, c.Scope)
	encodeFetchScope(e, c.FetchScope)
	return e.Err()
}

func (c *FetchItemsCommand) DecodeBody(d *Decoder) error {
	c.Scope = decodeScope(d)
	c.FetchScope = decodeFetchScope(d)
	return d.Err()
}

// FetchItemsResponse is emitted once per matched item, in descending id
// order, ahead of the terminal response. When the
// originating FetchScope set CheckCachedPayloadPartsOnly, CachedPartNames
// carries cached part names instead of Parts carrying bytes.
type FetchItemsResponse struct {
	ID             int64
	ParentID       int64
	MimeType       string
	RemoteID       string
	RemoteRevision string
	GID            string
	Size           int64
	MtimeUnixNano  int64
	AtimeUnixNano  int64
	Revision       int64
	Flags          []string
	Tags           []int64

	Parts           []model.Part
	CachedPartNames []string

	// AncestorIDs lists parent collection ids nearest-first, populated
	// per FetchScope.AncestorDepth.
	AncestorIDs []int64
}

func (r *FetchItemsResponse) Discriminator() uint8 { return DiscFetchItemsResponse }

func (r *FetchItemsResponse) EncodeBody(e *Encoder) error {
	e.WriteInt64(r.ID)
	e.WriteInt64(r.ParentID)
	e.WriteString(r.MimeType)
	e.WriteString(r.RemoteID)
	e.WriteString(r.RemoteRevision)
	e.WriteString(r.GID)
	e.WriteInt64(r.Size)
	e.WriteInt64(r.MtimeUnixNano)
	e.WriteInt64(r.AtimeUnixNano)
	e.WriteInt64(r.Revision)
	e.WriteStringSlice(r.Flags)
	e.WriteInt64Slice(r.Tags)
	encodeParts(e, r.Parts)
	e.WriteStringSlice(r.CachedPartNames)
	e.WriteInt64Slice(r.AncestorIDs)
	return e.Err()
}

func (r *FetchItemsResponse) DecodeBody(d *Decoder) error {
	r.ID = d.ReadInt64()
	r.ParentID = d.ReadInt64()
	r.MimeType = d.ReadString()
	r.RemoteID = d.ReadString()
	r.RemoteRevision = d.ReadString()
	r.GID = d.ReadString()
	r.Size = d.ReadInt64()
	r.MtimeUnixNano = d.ReadInt64()
	r.AtimeUnixNano = d.ReadInt64()
	r.Revision = d.ReadInt64()
	r.Flags = d.ReadStringSlice()
	r.Tags = d.ReadInt64Slice()
	r.Parts = decodeParts(d)
	r.CachedPartNames = d.ReadStringSlice()
	r.AncestorIDs = d.ReadInt64Slice()
	return d.Err()
}

// ModifyItemFields is a presence bitmap: Modify commands only touch the
// fields flagged present, and the set-overwrite and delta (Added/
// Removed) forms of the same field are mutually exclusive.
type ModifyItemFields uint16

const (
	ModifyItemFlags ModifyItemFields = 1 << iota
	ModifyItemAddedFlags
	ModifyItemRemovedFlags
	ModifyItemTags
	ModifyItemAddedTags
	ModifyItemRemovedTags
	ModifyItemRemoteID
	ModifyItemRemoteRevision
	ModifyItemGID
	ModifyItemSize
	ModifyItemParts
	ModifyItemRemovedParts
)

func (f ModifyItemFields) Has(bit ModifyItemFields) bool { return f&bit != 0 }

// ModifyItemCommand carries the full set of possible field changes;
// Present gates which ones actually apply. OldRevision, when non-nil,
// enables optimistic concurrency.
type ModifyItemCommand struct {
	Scope   model.Scope
	Present ModifyItemFields

	Flags        []string
	AddedFlags   []string
	RemovedFlags []string

	Tags        []int64
	AddedTags   []int64
	RemovedTags []int64

	RemoteID       string
	RemoteRevision string
	GID            string
	Size           int64

	Parts        []model.Part
	RemovedParts []string

	OldRevision     *int64
	Dirty           bool
	InvalidateCache bool
	NoResponse      bool

	// SuppressNotify disables notifications for this modify, with the
	// zero value standing in for the common "notifications on" default,
	// consistent with every other flag in this
	// command: a client that leaves this field unset still gets the
	// normal behavior (notifications fire) rather than the suppressed
	// one. Independent of NoResponse, which only ever gates the tagged
	// OK.
	SuppressNotify bool
}

func (c *ModifyItemCommand) Discriminator() uint8 { return DiscModifyItem }

func (c *ModifyItemCommand) EncodeBody(e *Encoder) error {
	encodeScope(e, c.Scope)
	e.WriteInt32(int32(c.Present))
	e.WriteStringSlice(c.Flags)
	e.WriteStringSlice(c.AddedFlags)
	e.WriteStringSlice(c.RemovedFlags)
	e.WriteInt64Slice(c.Tags)
	e.WriteInt64Slice(c.AddedTags)
	e.WriteInt64Slice(c.RemovedTags)
	e.WriteString(c.RemoteID)
	e.WriteString(c.RemoteRevision)
	e.WriteString(c.GID)
	e.WriteInt64(c.Size)
	encodeParts(e, c.Parts)
	e.WriteStringSlice(c.RemovedParts)
	e.WriteBool(c.OldRevision != nil)
	if c.OldRevision != nil {
		e.WriteInt64(*c.OldRevision)
	}
	e.WriteBool(c.Dirty)
	e.WriteBool(c.InvalidateCache)
	e.WriteBool(c.NoResponse)
	e.WriteBool(c.SuppressNotify)
	return e.Err()
}

func (c *ModifyItemCommand) DecodeBody(d *Decoder) error {
	c.Scope = decodeScope(d)
	c.Present = ModifyItemFields(d.ReadInt32())
	c.Flags = d.ReadStringSlice()
	c.AddedFlags = d.ReadStringSlice()
	c.RemovedFlags = d.ReadStringSlice()
	c.Tags = d.ReadInt64Slice()
	c.AddedTags = d.ReadInt64Slice()
	c.RemovedTags = d.ReadInt64Slice()
	c.RemoteID = d.ReadString()
	c.RemoteRevision = d.ReadString()
	c.GID = d.ReadString()
	c.Size = d.ReadInt64()
	c.Parts = decodeParts(d)
	c.RemovedParts = d.ReadStringSlice()
	if d.ReadBool() {
		v := d.ReadInt64()
		c.OldRevision = &v
	}
	c.Dirty = d.ReadBool()
	c.InvalidateCache = d.ReadBool()
	c.NoResponse = d.ReadBool()
	c.SuppressNotify = d.ReadBool()
	return d.Err()
}

// MoveItemCommand moves the scoped item(s) to DestinationCollectionID.
// Intra- vs inter-resource is derived from the collections at handler
// time, not carried on the wire.
type MoveItemCommand struct {
	Scope                   model.Scope
	DestinationCollectionID int64
}

func (c *MoveItemCommand) Discriminator() uint8 { return DiscMoveItem }

func (c *MoveItemCommand) EncodeBody(e *Encoder) error {
	encodeScope(e, c.Scope)
	e.WriteInt64(c.DestinationCollectionID)
	return e.Err()
}

func (c *MoveItemCommand) DecodeBody(d *Decoder) error {
	c.Scope = decodeScope(d)
	c.DestinationCollectionID = d.ReadInt64()
	return d.Err()
}

// CopyItemCommand duplicates the scoped item(s) into
// DestinationCollectionID, assigning new ids.
type CopyItemCommand struct {
	Scope                   model.Scope
	DestinationCollectionID int64
}

func (c *CopyItemCommand) Discriminator() uint8 { return DiscCopyItem }

func (c *CopyItemCommand) EncodeBody(e *Encoder) error {
	encodeScope(e, c.Scope)
	e.WriteInt64(c.DestinationCollectionID)
	return e.Err()
}

func (c *CopyItemCommand) DecodeBody(d *Decoder) error {
	c.Scope = decodeScope(d)
	c.DestinationCollectionID = d.ReadInt64()
	return d.Err()
}

// DeleteItemCommand removes the scoped item(s).
type DeleteItemCommand struct {
	Scope model.Scope
}

func (c *DeleteItemCommand) Discriminator() uint8 { return DiscDeleteItem }

func (c *DeleteItemCommand) EncodeBody(e *Encoder) error {
	encodeScope(e, c.Scope)
	return e.Err()
}

func (c *DeleteItemCommand) DecodeBody(d *Decoder) error {
	c.Scope = decodeScope(d)
	return d.Err()
}

// LinkItemCommand adds the scoped item(s) as virtual members of
// DestinationCollectionID without changing their real ParentID.
type LinkItemCommand struct {
	Scope                   model.Scope
	DestinationCollectionID int64
}

func (c *LinkItemCommand) Discriminator() uint8 { return DiscLinkItem }

func (c *LinkItemCommand) EncodeBody(e *Encoder) error {
	encodeScope(e, c.Scope)
	e.WriteInt64(c.DestinationCollectionID)
	return e.Err()
}

func (c *LinkItemCommand) DecodeBody(d *Decoder) error {
	c.Scope = decodeScope(d)
	c.DestinationCollectionID = d.ReadInt64()
	return d.Err()
}

// UnlinkItemCommand removes the scoped item(s) as virtual members of
// DestinationCollectionID.
type UnlinkItemCommand struct {
	Scope                   model.Scope
	DestinationCollectionID int64
}

func (c *UnlinkItemCommand) Discriminator() uint8 { return DiscUnlinkItem }

func (c *UnlinkItemCommand) EncodeBody(e *Encoder) error {
	encodeScope(e, c.Scope)
	e.WriteInt64(c.DestinationCollectionID)
	return e.Err()
}

func (c *UnlinkItemCommand) DecodeBody(d *Decoder) error {
	c.Scope = decodeScope(d)
	c.DestinationCollectionID = d.ReadInt64()
	return d.Err()
}
