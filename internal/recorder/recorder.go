package recorder

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cuemby/itemstored/internal/model"
	"github.com/cuemby/itemstored/internal/store"
	"github.com/cuemby/itemstored/internal/wire"
)

// currentVersion is stamped into the file header (the top 16 bits of
// sizeAndVersion) written by this build. A file whose header carries
// version 0 is rewritten in full on the next save.
const currentVersion uint16 = 1

const headerSize = 16 // two uint64: sizeAndVersion, startOffset

// EntityRef is one of an entry's affected entities: uid plus the
// resource-owned identity fields a replay needs.
type EntityRef struct {
	UID            int64
	RemoteID       string
	RemoteRevision string
	MimeType       string
}

// Entry is one recorded notification awaiting upstream replay.
type Entry struct {
	SessionID            string
	Type                 uint8 // model.NotificationType
	Operation            uint8 // model.NotificationOp
	Entities             []EntityRef
	Resource             string
	DestinationResource  string
	ParentCollection     int64
	ParentDestCollection int64
	ItemParts            []string
	AddedFlags           []string
	RemovedFlags         []string
	AddedTags            []int64
	RemovedTags          []int64
}

// FromNotification builds an Entry mirroring n, the way a resource
// agent's own subscriber stream is recorded for replay.
// resource/destResource are the agent's own names for n's resource ids,
// which the recorder stores as opaque strings rather than the server's
// internal int64 resource ids.
func FromNotification(n model.Notification, resource, destResource string) Entry {
	entities := make([]EntityRef, len(n.Entities))
	for i, e := range n.Entities {
		entities[i] = EntityRef{UID: e.ID, RemoteID: e.RemoteID, RemoteRevision: e.RemoteRevision, MimeType: e.MimeType}
	}
	return Entry{
		SessionID:            n.SessionID,
		Type:                 uint8(n.Type),
		Operation:            uint8(n.Operation),
		Entities:             entities,
		Resource:             resource,
		DestinationResource:  destResource,
		ParentCollection:     n.ParentCollection,
		ParentDestCollection: n.ParentDestCollection,
		ItemParts:            n.ChangedParts,
		AddedFlags:           n.AddedFlags,
		RemovedFlags:         n.RemovedFlags,
		AddedTags:            n.AddedTags,
		RemovedTags:          n.RemovedTags,
	}
}

// ToNotification reconstructs the model.Notification an Entry was built
// from, for a resource agent replaying its own queue.
func (e Entry) ToNotification() model.Notification {
	entities := make([]model.EntityRef, len(e.Entities))
	for i, r := range e.Entities {
		entities[i] = model.EntityRef{ID: r.UID, RemoteID: r.RemoteID, RemoteRevision: r.RemoteRevision, MimeType: r.MimeType}
	}
	return model.Notification{
		Type:                 model.NotificationType(e.Type),
		Operation:            model.NotificationOp(e.Operation),
		SessionID:            e.SessionID,
		Entities:             entities,
		ParentCollection:     e.ParentCollection,
		ParentDestCollection: e.ParentDestCollection,
		ChangedParts:         e.ItemParts,
		AddedFlags:           e.AddedFlags,
		RemovedFlags:         e.RemovedFlags,
		AddedTags:            e.AddedTags,
		RemovedTags:          e.RemovedTags,
	}
}

func encodeEntry(e *wire.Encoder, entry Entry) {
	e.WriteString(entry.SessionID)
	e.WriteUint8(entry.Type)
	e.WriteUint8(entry.Operation)
	e.WriteInt32(int32(len(entry.Entities)))
	for _, ref := range entry.Entities {
		e.WriteInt64(ref.UID)
		e.WriteString(ref.RemoteID)
		e.WriteString(ref.RemoteRevision)
		e.WriteString(ref.MimeType)
	}
	e.WriteString(entry.Resource)
	e.WriteString(entry.DestinationResource)
	e.WriteInt64(entry.ParentCollection)
	e.WriteInt64(entry.ParentDestCollection)
	e.WriteStringSlice(entry.ItemParts)
	e.WriteStringSlice(entry.AddedFlags)
	e.WriteStringSlice(entry.RemovedFlags)
	e.WriteInt64Slice(entry.AddedTags)
	e.WriteInt64Slice(entry.RemovedTags)
}

func decodeEntry(d *wire.Decoder) Entry {
	var entry Entry
	entry.SessionID = d.ReadString()
	entry.Type = d.ReadUint8()
	entry.Operation = d.ReadUint8()
	n := d.ReadInt32()
	if n > 0 {
		entry.Entities = make([]EntityRef, n)
		for i := range entry.Entities {
			entry.Entities[i] = EntityRef{
				UID:            d.ReadInt64(),
				RemoteID:       d.ReadString(),
				RemoteRevision: d.ReadString(),
				MimeType:       d.ReadString(),
			}
		}
	}
	entry.Resource = d.ReadString()
	entry.DestinationResource = d.ReadString()
	entry.ParentCollection = d.ReadInt64()
	entry.ParentDestCollection = d.ReadInt64()
	entry.ItemParts = d.ReadStringSlice()
	entry.AddedFlags = d.ReadStringSlice()
	entry.RemovedFlags = d.ReadStringSlice()
	entry.AddedTags = d.ReadInt64Slice()
	entry.RemovedTags = d.ReadInt64Slice()
	return entry
}

// EncodeLegacyEntries renders entries in the flat count-prefixed format
// the older key/value settings store used before per-resource change
// logs moved to their own file. Only used by migration tooling and
// tests that need to seed a legacy record for Load to import.
func EncodeLegacyEntries(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	e := wire.NewEncoder(&buf)
	e.WriteInt32(int32(len(entries)))
	for _, entry := range entries {
		encodeEntry(e, entry)
	}
	if err := e.Err(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Recorder is one resource's durable change queue, backed by a single
// file accessed from a single thread within the owning process.
type Recorder struct {
	mu sync.Mutex

	path string

	live         []Entry
	diskCount    uint32
	diskStart    uint32
	forceRewrite bool
	initialized  bool // true once path holds a valid header, even for zero entries
}

// Load opens or creates the recorder file at path. If the file does not
// exist yet and legacy is non-nil, it imports prior entries recorded
// under legacyKey in legacy's settings bucket and immediately compacts
// them into a fresh file at path.
func Load(path string, legacy *store.Store, legacyKey string) (*Recorder, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		r := &Recorder{path: path}
		if legacy != nil {
			if err := r.importLegacy(legacy, legacyKey); err != nil {
				return nil, err
			}
		}
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", path, err)
	}
	defer f.Close()

	return loadFrom(path, f)
}

func loadFrom(path string, f io.Reader) (*Recorder, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return &Recorder{path: path}, nil
		}
		return nil, fmt.Errorf("recorder: read header: %w", err)
	}
	sizeAndVersion := binary.LittleEndian.Uint64(header[:8])
	startOffset := binary.LittleEndian.Uint64(header[8:])

	count := uint32(sizeAndVersion & 0xFFFFFFFF)
	version := uint16(sizeAndVersion >> 48)

	d := wire.NewDecoder(f)
	entries := make([]Entry, count)
	for i := range entries {
		entries[i] = decodeEntry(d)
	}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("recorder: decode entries: %w", err)
	}

	var live []Entry
	if uint64(count) > startOffset {
		live = entries[startOffset:]
	}

	r := &Recorder{
		path:         path,
		live:         append([]Entry(nil), live...),
		diskCount:    count,
		diskStart:    uint32(startOffset),
		forceRewrite: version == 0 || startOffset != 0,
		initialized:  true,
	}
	return r, nil
}

func (r *Recorder) importLegacy(legacy *store.Store, legacyKey string) error {
	data, err := legacy.SettingsGet(context.Background(), nil, legacyKey)
	if err != nil {
		return fmt.Errorf("recorder: import legacy: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	d := wire.NewDecoder(bytes.NewReader(data))
	n := d.ReadInt32()
	entries := make([]Entry, 0, n)
	for i := int32(0); i < n; i++ {
		entries = append(entries, decodeEntry(d))
	}
	if err := d.Err(); err != nil {
		return fmt.Errorf("recorder: decode legacy entries: %w", err)
	}

	r.mu.Lock()
	r.live = entries
	r.forceRewrite = true
	err = r.rewriteLocked()
	r.mu.Unlock()
	return err
}

// Enqueue appends one entry and durably persists it. Writes are
// fsync'd so a crash immediately after Enqueue still leaves the entry
// recoverable on the next Load.
func (r *Recorder) Enqueue(entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("recorder: open for append: %w", err)
	}
	defer f.Close()

	if !r.initialized {
		var header [headerSize]byte
		if _, err := f.Write(header[:]); err != nil {
			return fmt.Errorf("recorder: write placeholder header: %w", err)
		}
		r.initialized = true
	}

	e := wire.NewEncoder(f)
	encodeEntry(e, entry)
	if err := e.Err(); err != nil {
		return fmt.Errorf("recorder: encode entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("recorder: fsync: %w", err)
	}

	r.diskCount++
	r.live = append(r.live, entry)
	return r.writeHeaderLocked()
}

// Peek returns the oldest not-yet-dequeued entry without removing it.
func (r *Recorder) Peek() (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.live) == 0 {
		return Entry{}, false
	}
	return r.live[0], true
}

// Dequeue removes the oldest entry. A caller must only call Dequeue
// after the corresponding upstream replay has succeeded.
func (r *Recorder) Dequeue() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.live) == 0 {
		return nil
	}
	r.live = r.live[1:]
	r.diskStart++

	if len(r.live) == 0 || r.forceRewrite {
		return r.rewriteLocked()
	}
	return r.writeHeaderLocked()
}

// Len reports the number of entries still pending replay.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// writeHeaderLocked patches just the 16-byte header in place, the O(1)
// path for an ordinary Enqueue or Dequeue.
func (r *Recorder) writeHeaderLocked() error {
	f, err := os.OpenFile(r.path, os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("recorder: open for header update: %w", err)
	}
	defer f.Close()

	var header [headerSize]byte
	sizeAndVersion := uint64(r.diskCount) | uint64(currentVersion)<<48
	binary.LittleEndian.PutUint64(header[:8], sizeAndVersion)
	binary.LittleEndian.PutUint64(header[8:], uint64(r.diskStart))
	if _, err := f.WriteAt(header[:], 0); err != nil {
		return fmt.Errorf("recorder: write header: %w", err)
	}
	return f.Sync()
}

// rewriteLocked rewrites the whole file from r.live, resetting
// diskStart to 0 and clearing forceRewrite. This is the compaction path:
// taken when the queue has drained to empty, or when Load found a
// pending skip or a pre-format file that needs normalizing.
func (r *Recorder) rewriteLocked() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("recorder: open for rewrite: %w", err)
	}
	defer f.Close()

	var header [headerSize]byte
	sizeAndVersion := uint64(len(r.live)) | uint64(currentVersion)<<48
	binary.LittleEndian.PutUint64(header[:8], sizeAndVersion)
	binary.LittleEndian.PutUint64(header[8:], 0)
	if _, err := f.Write(header[:]); err != nil {
		return fmt.Errorf("recorder: write header: %w", err)
	}

	e := wire.NewEncoder(f)
	for _, entry := range r.live {
		encodeEntry(e, entry)
	}
	if err := e.Err(); err != nil {
		return fmt.Errorf("recorder: encode entries: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("recorder: fsync: %w", err)
	}

	r.diskCount = uint32(len(r.live))
	r.diskStart = 0
	r.forceRewrite = false
	r.initialized = true
	return nil
}

// Compact forces a full rewrite, discarding the dead head the O(1)
// dequeue path leaves behind on disk. Resource agents call this
// periodically to bound file growth; it is never required for
// correctness.
func (r *Recorder) Compact() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rewriteLocked()
}
