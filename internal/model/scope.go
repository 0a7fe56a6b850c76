package model

// ScopeKind discriminates which selector a Scope carries.
type ScopeKind uint8

const (
	ScopeUid ScopeKind = iota
	ScopeRid
	ScopeHierarchicalRid
	ScopeGid
)

// ScopeContext disambiguates Rid/Gid scopes that are only meaningful
// relative to a collection or tag.
type ScopeContext struct {
	CollectionID  int64
	CollectionRid string
	TagID         int64
	TagRid        string
}

// Scope identifies a set of entities by id, remote id, hierarchical
// remote-id chain, or cross-resource gid.
type Scope struct {
	Kind    ScopeKind
	IDs     []int64  // ScopeUid
	Rids    []string // ScopeRid
	Chain   []string // ScopeHierarchicalRid, root-to-leaf
	Gids    []string // ScopeGid
	Context ScopeContext
}

// UidScope builds a direct-by-identifier scope.
func UidScope(ids ...int64) Scope {
	return Scope{Kind: ScopeUid, IDs: ids}
}

// AncestorDepth controls how many levels of ancestor collections are
// attached to a fetched item.
type AncestorDepth int

const (
	AncestorNone AncestorDepth = iota
	AncestorParent
	AncestorAll
)

// TagFetchScope controls which tag fields are returned with a fetched item.
type TagFetchScope struct {
	FullTags bool // false: only tag ids; true: full Tag records
}

// FetchScope shapes the result of a Fetch item(s) operation.
type FetchScope struct {
	Parts                       []string // empty means "all parts"
	AncestorDepth               AncestorDepth
	CacheOnly                   bool
	IgnoreErrors                bool
	CheckCachedPayloadPartsOnly bool
	ChangedSince                *int64 // unix nanos; nil means no filter
	FullPayload                 bool
	TagScope                    TagFetchScope
	Trusted                     bool // fetch originates from a trusted indexer session
}
