package model

// NotificationType discriminates the kind of entity a notification
// describes.
type NotificationType uint8

const (
	NotifyItem NotificationType = iota
	NotifyCollection
	NotifyTag
	NotifyRelation
	NotifySubscription
	NotifyDebug
)

// NotificationOp is the operation that produced a notification.
type NotificationOp uint8

const (
	OpAdd NotificationOp = iota
	OpModify
	OpModifyFlags
	OpModifyTags
	OpModifyRelations
	OpMove
	OpRemove
	OpLink
	OpUnlink
	OpSubscribe
	OpUnsubscribe

	// OpStatisticsChanged marks a collection whose effective item count
	// changed as a side effect of an item operation (create, delete,
	// copy, move, link, unlink). Always a collection notification with
	// exactly one entity.
	OpStatisticsChanged
)

// EntityRef carries just enough identity for a subscriber to recognize
// the affected entity without a round-trip fetch.
type EntityRef struct {
	ID             int64
	RemoteID       string
	RemoteRevision string
	MimeType       string
}

// Notification describes the effect of one mutating operation, as
// accumulated by the collector in internal/notify.
type Notification struct {
	Type      NotificationType
	Operation NotificationOp
	SessionID string

	Entities []EntityRef

	ParentCollection     int64
	ParentDestCollection int64 // set for Move
	ResourceID           int64
	DestResourceID       int64

	ChangedParts []string
	AddedFlags   []string
	RemovedFlags []string
	AddedTags    []int64
	RemovedTags  []int64

	// Set only on NotifyDebug wraps: the notification being
	// debugged, the subscriber names it was delivered to, and the server
	// timestamp of the delivery.
	Wrapped        *Notification
	DeliveredTo    []string
	ServerUnixNano int64
}

// SameCollectionModifyTarget reports whether n and other are both Modify
// notifications on the same collection, for the compressor's merge pass.
func (n Notification) SameCollectionModifyTarget(other Notification) bool {
	return n.Type == NotifyCollection && other.Type == NotifyCollection &&
		n.Operation == OpModify && other.Operation == OpModify &&
		len(n.Entities) == 1 && len(other.Entities) == 1 &&
		n.Entities[0].ID == other.Entities[0].ID
}
