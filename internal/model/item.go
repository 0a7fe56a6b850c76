package model

import "time"

// Item is a leaf entity owned by exactly one non-virtual collection.
type Item struct {
	ID             int64
	ParentID       int64
	MimeType       string
	RemoteID       string
	RemoteRevision string
	GID            string // cross-resource correlation key

	Size     int64
	Mtime    time.Time
	Atime    time.Time
	Revision int64

	Flags []string
	Tags  []int64 // tag ids
	Parts []Part

	// VirtualParentIDs lists virtual collections this item is linked
	// from, in addition to its real ParentID.
	VirtualParentIDs []int64

	Dirty bool // locally modified, pending upstream replay
}

// FlagSet returns the item's flags as a set for membership tests.
func (i *Item) FlagSet() map[string]struct{} {
	set := make(map[string]struct{}, len(i.Flags))
	for _, f := range i.Flags {
		set[f] = struct{}{}
	}
	return set
}

// HasFlag reports whether the item currently carries flag f.
func (i *Item) HasFlag(f string) bool {
	for _, existing := range i.Flags {
		if existing == f {
			return true
		}
	}
	return false
}

// Part returns the named part and true if present.
func (i *Item) Part(name string) (Part, bool) {
	for _, p := range i.Parts {
		if p.Name == name {
			return p, true
		}
	}
	return Part{}, false
}
