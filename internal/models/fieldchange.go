package models

import "time"

// FieldChange is an append-only audit entry for a value an approver
// overwrote while reviewing. Entries are never mutated or deleted, including
// when the level they were recorded at is discarded by a send-back.
type FieldChange struct {
	ID         string    `db:"id" json:"id"`
	RequestID  string    `db:"request_id" json:"requestId"`
	Field      string    `db:"field" json:"field"`
	OldValue   string    `db:"old_value" json:"oldValue"`
	NewValue   string    `db:"new_value" json:"newValue"`
	ActorID    string    `db:"actor_id" json:"actorId"`
	Level      int       `db:"level" json:"level"`
	RecordedAt time.Time `db:"recorded_at" json:"recordedAt"`
}
