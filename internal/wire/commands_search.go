package wire

func init() {
	Register(DiscSearch, func() Command { return &SearchCommand{} })
	Register(DiscSearchResultResponse, func() Command { return &SearchResultResponse{} })
	Register(DiscStoreSearch, func() Command { return &StoreSearchCommand{} })
	Register(DiscStreamPayload, func() Command { return &StreamPayloadCommand{} })
}

// SearchCommand asks the search engine configured for the connection to
// run Query over CollectionIDs (empty means every collection), streaming
// hits back as SearchResultResponse frames.
type SearchCommand struct {
	SearchID      string
	Query         string
	CollectionIDs []int64
	Recursive     bool
	Remote        bool
}

func (c *SearchCommand) Discriminator() uint8 { return DiscSearch }

func (c *SearchCommand) EncodeBody(e *Encoder) error {
	e.WriteString(c.SearchID)
	e.WriteString(c.Query)
	e.WriteInt64Slice(c.CollectionIDs)
	e.WriteBool(c.Recursive)
	e.WriteBool(c.Remote)
	return e.Err()
}

func (c *SearchCommand) DecodeBody(d *Decoder) error {
	c.SearchID = d.ReadString()
	c.Query = d.ReadString()
	c.CollectionIDs = d.ReadInt64Slice()
	c.Recursive = d.ReadBool()
	c.Remote = d.ReadBool()
	return d.Err()
}

// SearchResultResponse is one batch of hits within CollectionID for
// SearchID; the search engine calls this back once per collection it
// finds matches in.
type SearchResultResponse struct {
	SearchID     string
	CollectionID int64
	ItemIDs      []int64
}

func (r *SearchResultResponse) Discriminator() uint8 { return DiscSearchResultResponse }

func (r *SearchResultResponse) EncodeBody(e *Encoder) error {
	e.WriteString(r.SearchID)
	e.WriteInt64(r.CollectionID)
	e.WriteInt64Slice(r.ItemIDs)
	return e.Err()
}

func (r *SearchResultResponse) DecodeBody(d *Decoder) error {
	r.SearchID = d.ReadString()
	r.CollectionID = d.ReadInt64()
	r.ItemIDs = d.ReadInt64Slice()
	return d.Err()
}

// StoreSearchCommand persists Query as a virtual PersistentSearch
// collection named Name under ParentID.
type StoreSearchCommand struct {
	Name              string
	ParentID          int64
	Query             string
	SourceCollections []int64
	Remote            bool
	Recursive         bool
}

func (c *StoreSearchCommand) Discriminator() uint8 { return DiscStoreSearch }

func (c *StoreSearchCommand) EncodeBody(e *Encoder) error {
	e.WriteString(c.Name)
	e.WriteInt64(c.ParentID)
	e.WriteString(c.Query)
	e.WriteInt64Slice(c.SourceCollections)
	e.WriteBool(c.Remote)
	e.WriteBool(c.Recursive)
	return e.Err()
}

func (c *StoreSearchCommand) DecodeBody(d *Decoder) error {
	c.Name = d.ReadString()
	c.ParentID = d.ReadInt64()
	c.Query = d.ReadString()
	c.SourceCollections = d.ReadInt64Slice()
	c.Remote = d.ReadBool()
	c.Recursive = d.ReadBool()
	return d.Err()
}

// StreamPayloadCommand carries one chunk of a part's bytes; More=false
// marks the final chunk for PartName. The codec encodes and decodes it,
// but the server has no handler for it: no Create/Modify/Fetch exchange
// sends or accepts these chunks.
type StreamPayloadCommand struct {
	PartName string
	Data     []byte
	More     bool
}

func (c *StreamPayloadCommand) Discriminator() uint8 { return DiscStreamPayload }

func (c *StreamPayloadCommand) EncodeBody(e *Encoder) error {
	e.WriteString(c.PartName)
	e.WriteBytes(c.Data)
	e.WriteBool(c.More)
	return e.Err()
}

func (c *StreamPayloadCommand) DecodeBody(d *Decoder) error {
	c.PartName = d.ReadString()
	c.Data = d.ReadBytes()
	c.More = d.ReadBool()
	return d.Err()
}
