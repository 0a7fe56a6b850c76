package wire

import (
	"time"

	"github.com/cuemby/itemstored/internal/model"
)

// Shared encode/decode helpers for model types that appear inside more
// than one command body (Scope, FetchScope, Part, CachePolicy,
// Notification). Keeping them here avoids re-deriving the same field
// order in every command file.

func encodeScope(e *Encoder, s model.Scope) {
	e.WriteUint8(uint8(s.Kind))
	e.WriteInt64Slice(s.IDs)
	e.WriteStringSlice(s.Rids)
	e.WriteStringSlice(s.Chain)
	e.WriteStringSlice(s.Gids)
	e.WriteInt64(s.Context.CollectionID)
	e.WriteString(s.Context.CollectionRid)
	e.WriteInt64(s.Context.TagID)
	e.WriteString(s.Context.TagRid)
}

func decodeScope(d *Decoder) model.Scope {
	var s model.Scope
	s.Kind = model.ScopeKind(d.ReadUint8())
	s.IDs = d.ReadInt64Slice()
	s.Rids = d.ReadStringSlice()
	s.Chain = d.ReadStringSlice()
	s.Gids = d.ReadStringSlice()
	s.Context.CollectionID = d.ReadInt64()
	s.Context.CollectionRid = d.ReadString()
	s.Context.TagID = d.ReadInt64()
	s.Context.TagRid = d.ReadString()
	return s
}

func encodeFetchScope(e *Encoder, fs model.FetchScope) {
	e.WriteStringSlice(fs.Parts)
	e.WriteUint8(uint8(fs.AncestorDepth))
	e.WriteBool(fs.CacheOnly)
	e.WriteBool(fs.IgnoreErrors)
	e.WriteBool(fs.CheckCachedPayloadPartsOnly)
	e.WriteBool(fs.ChangedSince != nil)
	if fs.ChangedSince != nil {
		e.WriteInt64(*fs.ChangedSince)
	}
	e.WriteBool(fs.FullPayload)
	e.WriteBool(fs.TagScope.FullTags)
	e.WriteBool(fs.Trusted)
}

func decodeFetchScope(d *Decoder) model.FetchScope {
	var fs model.FetchScope
	fs.Parts = d.ReadStringSlice()
	fs.AncestorDepth = model.AncestorDepth(d.ReadUint8())
	fs.CacheOnly = d.ReadBool()
	fs.IgnoreErrors = d.ReadBool()
	fs.CheckCachedPayloadPartsOnly = d.ReadBool()
	if d.ReadBool() {
		v := d.ReadInt64()
		fs.ChangedSince = &v
	}
	fs.FullPayload = d.ReadBool()
	fs.TagScope.FullTags = d.ReadBool()
	fs.Trusted = d.ReadBool()
	return fs
}

func encodePart(e *Encoder, p model.Part) {
	e.WriteString(p.Name)
	e.WriteUint8(uint8(p.Storage))
	e.WriteBytes(p.Data)
	e.WriteString(p.ExternalFile)
	e.WriteInt32(int32(p.Version))
	e.WriteInt64(p.Size)
}

func decodePart(d *Decoder) model.Part {
	var p model.Part
	p.Name = d.ReadString()
	p.Storage = model.Storage(d.ReadUint8())
	p.Data = d.ReadBytes()
	p.ExternalFile = d.ReadString()
	p.Version = int(d.ReadInt32())
	p.Size = d.ReadInt64()
	return p
}

func encodeParts(e *Encoder, parts []model.Part) {
	e.WriteInt32(int32(len(parts)))
	for _, p := range parts {
		encodePart(e, p)
	}
}

func decodeParts(d *Decoder) []model.Part {
	n := d.count()
	if d.err != nil || n == 0 {
		return nil
	}
	parts := make([]model.Part, n)
	for i := range parts {
		parts[i] = decodePart(d)
	}
	return parts
}

func encodeCachePolicy(e *Encoder, cp model.CachePolicy) {
	e.WriteBool(cp.Inherit)
	e.WriteInt64(int64(cp.CheckInterval))
	e.WriteInt64(int64(cp.CacheTimeout))
	e.WriteUint8(uint8(cp.SyncPref))
	e.WriteStringSlice(cp.LocalParts)
	e.WriteBool(cp.SyncOnDemand)
}

func decodeCachePolicy(d *Decoder) model.CachePolicy {
	var cp model.CachePolicy
	cp.Inherit = d.ReadBool()
	cp.CheckInterval = time.Duration(d.ReadInt64())
	cp.CacheTimeout = time.Duration(d.ReadInt64())
	cp.SyncPref = model.Preference(d.ReadUint8())
	cp.LocalParts = d.ReadStringSlice()
	cp.SyncOnDemand = d.ReadBool()
	return cp
}

func encodeEntityRef(e *Encoder, ref model.EntityRef) {
	e.WriteInt64(ref.ID)
	e.WriteString(ref.RemoteID)
	e.WriteString(ref.RemoteRevision)
	e.WriteString(ref.MimeType)
}

func decodeEntityRef(d *Decoder) model.EntityRef {
	var ref model.EntityRef
	ref.ID = d.ReadInt64()
	ref.RemoteID = d.ReadString()
	ref.RemoteRevision = d.ReadString()
	ref.MimeType = d.ReadString()
	return ref
}

func encodeEntityRefs(e *Encoder, refs []model.EntityRef) {
	e.WriteInt32(int32(len(refs)))
	for _, r := range refs {
		encodeEntityRef(e, r)
	}
}

func decodeEntityRefs(d *Decoder) []model.EntityRef {
	n := d.count()
	if d.err != nil || n == 0 {
		return nil
	}
	refs := make([]model.EntityRef, n)
	for i := range refs {
		refs[i] = decodeEntityRef(d)
	}
	return refs
}

func encodeNotification(e *Encoder, n model.Notification) {
	e.WriteUint8(uint8(n.Operation))
	e.WriteString(n.SessionID)
	encodeEntityRefs(e, n.Entities)
	e.WriteInt64(n.ParentCollection)
	e.WriteInt64(n.ParentDestCollection)
	e.WriteInt64(n.ResourceID)
	e.WriteInt64(n.DestResourceID)
	e.WriteStringSlice(n.ChangedParts)
	e.WriteStringSlice(n.AddedFlags)
	e.WriteStringSlice(n.RemovedFlags)
	e.WriteInt64Slice(n.AddedTags)
	e.WriteInt64Slice(n.RemovedTags)
}

func decodeNotification(d *Decoder, typ model.NotificationType) model.Notification {
	var n model.Notification
	n.Type = typ
	n.Operation = model.NotificationOp(d.ReadUint8())
	n.SessionID = d.ReadString()
	n.Entities = decodeEntityRefs(d)
	n.ParentCollection = d.ReadInt64()
	n.ParentDestCollection = d.ReadInt64()
	n.ResourceID = d.ReadInt64()
	n.DestResourceID = d.ReadInt64()
	n.ChangedParts = d.ReadStringSlice()
	n.AddedFlags = d.ReadStringSlice()
	n.RemovedFlags = d.ReadStringSlice()
	n.AddedTags = d.ReadInt64Slice()
	n.RemovedTags = d.ReadInt64Slice()
	return n
}
