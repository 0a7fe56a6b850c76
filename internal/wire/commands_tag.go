package wire

import "github.com/cuemby/itemstored/internal/model"

func init() {
	Register(DiscCreateTag, func() Command { return &CreateTagCommand{} })
	Register(DiscCreateTagResponse, func() Command { return &CreateTagResponse{} })
	Register(DiscFetchTags, func() Command { return &FetchTagsCommand{} })
	Register(DiscFetchTagsResponse, func() Command { return &FetchTagsResponse{} })
	Register(DiscModifyTag, func() Command { return &ModifyTagCommand{} })
	Register(DiscDeleteTag, func() Command { return &DeleteTagCommand{} })
}

func encodeAttributes(e *Encoder, attrs map[string][]byte) {
	e.WriteInt32(int32(len(attrs)))
	for k, v := range attrs {
		e.WriteString(k)
		e.WriteBytes(v)
	}
}

func decodeAttributes(d *Decoder) map[string][]byte {
	n := d.count()
	if d.err != nil || n == 0 {
		return nil
	}
	attrs := make(map[string][]byte, n)
	for i := int32(0); i < n; i++ {
		k := d.ReadString()
		v := d.ReadBytes()
		attrs[k] = v
	}
	return attrs
}

// CreateTagCommand creates one tag, optionally under ParentID (tags form
// a tree; 0 = root).
type CreateTagCommand struct {
	GID        string
	Type       string
	RemoteID   string
	ParentID   int64
	Attributes map[string][]byte
}

func (c *CreateTagCommand) Discriminator() uint8 { return DiscCreateTag }

func (c *CreateTagCommand) EncodeBody(e *Encoder) error {
	e.WriteString(c.GID)
	e.WriteString(c.Type)
	e.WriteString(c.RemoteID)
	e.WriteInt64(c.ParentID)
	encodeAttributes(e, c.Attributes)
	return e.Err()
}

func (c *CreateTagCommand) DecodeBody(d *Decoder) error {
	c.GID = d.ReadString()
	c.Type = d.ReadString()
	c.RemoteID = d.ReadString()
	c.ParentID = d.ReadInt64()
	c.Attributes = decodeAttributes(d)
	return d.Err()
}

// CreateTagResponse carries the id the store assigned.
type CreateTagResponse struct {
	ID int64
}

func (r *CreateTagResponse) Discriminator() uint8 { return DiscCreateTagResponse }

func (r *CreateTagResponse) EncodeBody(e *Encoder) error {
	e.WriteInt64(r.ID)
	return e.Err()
}

func (r *CreateTagResponse) DecodeBody(d *Decoder) error {
	r.ID = d.ReadInt64()
	return d.Err()
}

// FetchTagsCommand selects tags by Scope.
type FetchTagsCommand struct {
	Scope model.Scope
}

func (c *FetchTagsCommand) Discriminator() uint8 { return DiscFetchTags }

func (c *FetchTagsCommand) EncodeBody(e *Encoder) error {
	encodeScope(e, c.Scope)
	return e.Err()
}

func (c *FetchTagsCommand) DecodeBody(d *Decoder) error {
	c.Scope = decodeScope(d)
	return d.Err()
}

type FetchTagsResponse struct {
	ID         int64
	GID        string
	Type       string
	RemoteID   string
	ParentID   int64
	Attributes map[string][]byte
}

func (r *FetchTagsResponse) Discriminator() uint8 { return DiscFetchTagsResponse }

func (r *FetchTagsResponse) EncodeBody(e *Encoder) error {
	e.WriteInt64(r.ID)
	e.WriteString(r.GID)
	e.WriteString(r.Type)
	e.WriteString(r.RemoteID)
	e.WriteInt64(r.ParentID)
	encodeAttributes(e, r.Attributes)
	return e.Err()
}

func (r *FetchTagsResponse) DecodeBody(d *Decoder) error {
	r.ID = d.ReadInt64()
	r.GID = d.ReadString()
	r.Type = d.ReadString()
	r.RemoteID = d.ReadString()
	r.ParentID = d.ReadInt64()
	r.Attributes = decodeAttributes(d)
	return d.Err()
}

// ModifyTagCommand overwrites the scoped tag's mutable fields; Present
// gates which ones apply, mirroring ModifyItemFields.
type ModifyTagFields uint8

const (
	ModifyTagParentID ModifyTagFields = 1 << iota
	ModifyTagRemoteID
	ModifyTagAttributes
	ModifyTagRemovedAttributes
)

func (f ModifyTagFields) Has(bit ModifyTagFields) bool { return f&bit != 0 }

type ModifyTagCommand struct {
	Scope             model.Scope
	Present           ModifyTagFields
	ParentID          int64
	RemoteID          string
	Attributes        map[string][]byte
	RemovedAttributes []string
}

func (c *ModifyTagCommand) Discriminator() uint8 { return DiscModifyTag }

func (c *ModifyTagCommand) EncodeBody(e *Encoder) error {
	encodeScope(e, c.Scope)
	e.WriteUint8(uint8(c.Present))
	e.WriteInt64(c.ParentID)
	e.WriteString(c.RemoteID)
	encodeAttributes(e, c.Attributes)
	e.WriteStringSlice(c.RemovedAttributes)
	return e.Err()
}

func (c *ModifyTagCommand) DecodeBody(d *Decoder) error {
	c.Scope = decodeScope(d)
	c.Present = ModifyTagFields(d.ReadUint8())
	c.ParentID = d.ReadInt64()
	c.RemoteID = d.ReadString()
	c.Attributes = decodeAttributes(d)
	c.RemovedAttributes = d.ReadStringSlice()
	return d.Err()
}

// DeleteTagCommand removes the scoped tag(s).
type DeleteTagCommand struct {
	Scope model.Scope
}

func (c *DeleteTagCommand) Discriminator() uint8 { return DiscDeleteTag }

func (c *DeleteTagCommand) EncodeBody(e *Encoder) error {
	encodeScope(e, c.Scope)
	return e.Err()
}

func (c *DeleteTagCommand) DecodeBody(d *Decoder) error {
	c.Scope = decodeScope(d)
	return d.Err()
}
