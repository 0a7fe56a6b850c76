package wire

import "github.com/cuemby/itemstored/internal/model"

func init() {
	Register(DiscCreateCollection, func() Command { return &CreateCollectionCommand{} })
	Register(DiscCreateCollectionResponse, func() Command { return &CreateCollectionResponse{} })
	Register(DiscFetchCollections, func() Command { return &FetchCollectionsCommand{} })
	Register(DiscFetchCollectionsResponse, func() Command { return &FetchCollectionsResponse{} })
	Register(DiscModifyCollection, func() Command { return &ModifyCollectionCommand{} })
	Register(DiscMoveCollection, func() Command { return &MoveCollectionCommand{} })
	Register(DiscCopyCollection, func() Command { return &CopyCollectionCommand{} })
	Register(DiscDeleteCollection, func() Command { return &DeleteCollectionCommand{} })
}

// CreateCollectionCommand creates one collection under ParentID (0 =
// root).
type CreateCollectionCommand struct {
	ParentID    int64
	Name        string
	RemoteID    string
	ResourceID  int64
	MimeTypes   []string
	Enabled     bool
	SyncPref    model.Preference
	DisplayPref model.Preference
	IndexPref   model.Preference
	CachePolicy model.CachePolicy
	Virtual     bool
	Referenced  bool
}

func (c *CreateCollectionCommand) Discriminator() uint8 { return DiscCreateCollection }

func (c *CreateCollectionCommand) EncodeBody(e *Encoder) error {
	e.WriteInt64(c.ParentID)
	e.WriteString(c.Name)
	e.WriteString(c.RemoteID)
	e.WriteInt64(c.ResourceID)
	e.WriteStringSlice(c.MimeTypes)
	e.WriteBool(c.Enabled)
	e.WriteUint8(uint8(c.SyncPref))
	e.WriteUint8(uint8(c.DisplayPref))
	e.WriteUint8(uint8(c.IndexPref))
	encodeCachePolicy(e, c.CachePolicy)
	e.WriteBool(c.Virtual)
	e.WriteBool(c.Referenced)
	return e.Err()
}

func (c *CreateCollectionCommand) DecodeBody(d *Decoder) error {
	c.ParentID = d.ReadInt64()
	c.Name = d.ReadString()
	c.RemoteID = d.ReadString()
	c.ResourceID = d.ReadInt64()
	c.MimeTypes = d.ReadStringSlice()
	c.Enabled = d.ReadBool()
	c.SyncPref = model.Preference(d.ReadUint8())
	c.DisplayPref = model.Preference(d.ReadUint8())
	c.IndexPref = model.Preference(d.ReadUint8())
	c.CachePolicy = decodeCachePolicy(d)
	c.Virtual = d.ReadBool()
	c.Referenced = d.ReadBool()
	return d.Err()
}

type CreateCollectionResponse struct {
	ID int64
}

func (r *CreateCollectionResponse) Discriminator() uint8 { return DiscCreateCollectionResponse }

func (r *CreateCollectionResponse) EncodeBody(e *Encoder) error {
	e.WriteInt64(r.ID)
	return e.Err()
}

func (r *CreateCollectionResponse) DecodeBody(d *Decoder) error {
	r.ID = d.ReadInt64()
	return d.Err()
}

// FetchCollectionsCommand selects collections by Scope. A ScopeUid scope
// is the literal list of ids to fetch; id 0 has no root-listing meaning.
type FetchCollectionsCommand struct {
	Scope model.Scope
}

func (c *FetchCollectionsCommand) Discriminator() uint8 { return DiscFetchCollections }

func (c *FetchCollectionsCommand) EncodeBody(e *Encoder) error {
	encodeScope(e, c.Scope)
	return e.Err()
}

func (c *FetchCollectionsCommand) DecodeBody(d *Decoder) error {
	c.Scope = decodeScope(d)
	return d.Err()
}

// FetchCollectionsResponse is emitted once per matched collection.
type FetchCollectionsResponse struct {
	ID             int64
	ParentID       int64
	Name           string
	MimeTypes      []string
	ResourceID     int64
	Enabled        bool
	SyncPref       model.Preference
	DisplayPref    model.Preference
	IndexPref      model.Preference
	CachePolicy    model.CachePolicy
	Virtual        bool
	Referenced     bool
	RemoteID       string
	RemoteRevision string
}

func (r *FetchCollectionsResponse) Discriminator() uint8 { return DiscFetchCollectionsResponse }

func (r *FetchCollectionsResponse) EncodeBody(e *Encoder) error {
	e.WriteInt64(r.ID)
	e.WriteInt64(r.ParentID)
	e.WriteString(r.Name)
	e.WriteStringSlice(r.MimeTypes)
	e.WriteInt64(r.ResourceID)
	e.WriteBool(r.Enabled)
	e.WriteUint8(uint8(r.SyncPref))
	e.WriteUint8(uint8(r.DisplayPref))
	e.WriteUint8(uint8(r.IndexPref))
	encodeCachePolicy(e, r.CachePolicy)
	e.WriteBool(r.Virtual)
	e.WriteBool(r.Referenced)
	e.WriteString(r.RemoteID)
	e.WriteString(r.RemoteRevision)
	return e.Err()
}

func (r *FetchCollectionsResponse) DecodeBody(d *Decoder) error {
	r.ID = d.ReadInt64()
	r.ParentID = d.ReadInt64()
	r.Name = d.ReadString()
	r.MimeTypes = d.ReadStringSlice()
	r.ResourceID = d.ReadInt64()
	r.Enabled = d.ReadBool()
	r.SyncPref = model.Preference(d.ReadUint8())
	r.DisplayPref = model.Preference(d.ReadUint8())
	r.IndexPref = model.Preference(d.ReadUint8())
	r.CachePolicy = decodeCachePolicy(d)
	r.Virtual = d.ReadBool()
	r.Referenced = d.ReadBool()
	r.RemoteID = d.ReadString()
	r.RemoteRevision = d.ReadString()
	return d.Err()
}

// ModifyCollectionFields is a presence bitmap mirroring ModifyItemFields.
type ModifyCollectionFields uint16

const (
	ModifyCollectionName ModifyCollectionFields = 1 << iota
	ModifyCollectionParentID
	ModifyCollectionRemoteID
	ModifyCollectionRemoteRevision
	ModifyCollectionMimeTypes
	ModifyCollectionCachePolicy
	ModifyCollectionPersistentSearch
	ModifyCollectionAttributes
	ModifyCollectionRemovedAttributes
	ModifyCollectionPreferences
	ModifyCollectionReferenced
)

func (f ModifyCollectionFields) Has(bit ModifyCollectionFields) bool { return f&bit != 0 }

type ModifyCollectionCommand struct {
	Scope   model.Scope
	Present ModifyCollectionFields

	Name           string
	ParentID       int64
	RemoteID       string
	RemoteRevision string
	MimeTypes      []string
	CachePolicy    model.CachePolicy
	Search         model.PersistentSearch

	Attributes        map[string][]byte
	RemovedAttributes []string

	Enabled     bool
	SyncPref    model.Preference
	DisplayPref model.Preference
	IndexPref   model.Preference

	Referenced bool
}

func (c *ModifyCollectionCommand) Discriminator() uint8 { return DiscModifyCollection }

func (c *ModifyCollectionCommand) EncodeBody(e *Encoder) error {
	encodeScope(e, c.Scope)
	e.WriteInt32(int32(c.Present))
	e.WriteString(c.Name)
	e.WriteInt64(c.ParentID)
	e.WriteString(c.RemoteID)
	e.WriteString(c.RemoteRevision)
	e.WriteStringSlice(c.MimeTypes)
	encodeCachePolicy(e, c.CachePolicy)
	e.WriteString(c.Search.Query)
	e.WriteInt64Slice(c.Search.SourceCollections)
	e.WriteBool(c.Search.Remote)
	e.WriteBool(c.Search.Recursive)
	e.WriteInt32(int32(len(c.Attributes)))
	for k, v := range c.Attributes {
		e.WriteString(k)
		e.WriteBytes(v)
	}
	e.WriteStringSlice(c.RemovedAttributes)
	e.WriteBool(c.Enabled)
	e.WriteUint8(uint8(c.SyncPref))
	e.WriteUint8(uint8(c.DisplayPref))
	e.WriteUint8(uint8(c.IndexPref))
	e.WriteBool(c.Referenced)
	return e.Err()
}

func (c *ModifyCollectionCommand) DecodeBody(d *Decoder) error {
	c.Scope = decodeScope(d)
	c.Present = ModifyCollectionFields(d.ReadInt32())
	c.Name = d.ReadString()
	c.ParentID = d.ReadInt64()
	c.RemoteID = d.ReadString()
	c.RemoteRevision = d.ReadString()
	c.MimeTypes = d.ReadStringSlice()
	c.CachePolicy = decodeCachePolicy(d)
	c.Search.Query = d.ReadString()
	c.Search.SourceCollections = d.ReadInt64Slice()
	c.Search.Remote = d.ReadBool()
	c.Search.Recursive = d.ReadBool()
	n := d.count()
	if d.err == nil && n > 0 {
		c.Attributes = make(map[string][]byte, n)
		for i := int32(0); i < n; i++ {
			k := d.ReadString()
			v := d.ReadBytes()
			c.Attributes[k] = v
		}
	}
	c.RemovedAttributes = d.ReadStringSlice()
	c.Enabled = d.ReadBool()
	c.SyncPref = model.Preference(d.ReadUint8())
	c.DisplayPref = model.Preference(d.ReadUint8())
	c.IndexPref = model.Preference(d.ReadUint8())
	c.Referenced = d.ReadBool()
	return d.Err()
}

type MoveCollectionCommand struct {
	Scope                   model.Scope
	DestinationCollectionID int64
}

func (c *MoveCollectionCommand) Discriminator() uint8 { return DiscMoveCollection }

func (c *MoveCollectionCommand) EncodeBody(e *Encoder) error {
	encodeScope(e, c.Scope)
	e.WriteInt64(c.DestinationCollectionID)
	return e.Err()
}

func (c *MoveCollectionCommand) DecodeBody(d *Decoder) error {
	c.Scope = decodeScope(d)
	c.DestinationCollectionID = d.ReadInt64()
	return d.Err()
}

type CopyCollectionCommand struct {
	Scope                   model.Scope
	DestinationCollectionID int64
}

func (c *CopyCollectionCommand) Discriminator() uint8 { return DiscCopyCollection }

func (c *CopyCollectionCommand) EncodeBody(e *Encoder) error {
	encodeScope(e, c.Scope)
	e.WriteInt64(c.DestinationCollectionID)
	return e.Err()
}

func (c *CopyCollectionCommand) DecodeBody(d *Decoder) error {
	c.Scope = decodeScope(d)
	c.DestinationCollectionID = d.ReadInt64()
	return d.Err()
}

type DeleteCollectionCommand struct {
	Scope model.Scope
}

func (c *DeleteCollectionCommand) Discriminator() uint8 { return DiscDeleteCollection }

func (c *DeleteCollectionCommand) EncodeBody(e *Encoder) error {
	encodeScope(e, c.Scope)
	return e.Err()
}

func (c *DeleteCollectionCommand) DecodeBody(d *Decoder) error {
	c.Scope = decodeScope(d)
	return d.Err()
}
