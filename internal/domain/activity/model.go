package activity

import "time"

// Type represents the type of sync activity event
type Type string

const (
	TypeRecordCreated      Type = "record_created"
	TypeRecordUpdated      Type = "record_updated"
	TypeRecordPushed       Type = "record_pushed"
	TypePushFailed         Type = "push_failed"
	TypeOutboxReplayed     Type = "outbox_replayed"
	TypeOutboxDeadLettered Type = "outbox_dead_lettered"
	TypeReconcileCompleted Type = "reconcile_completed"
)

// Entry represents an event in the activity log
type Entry struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Kind      string    `json:"kind,omitempty"`
	RecordID  string    `json:"recordId,omitempty"`
	Type      Type      `json:"type"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"createdAt"`
}
