package database

import "time"

// MergeOperation is the kind of identity surgery a log entry records
type MergeOperation string

const (
	MergeOperationMerge   MergeOperation = "merge"
	MergeOperationDemerge MergeOperation = "demerge"
)

// MergeLogEntry is the immutable audit record for merge and demerge operations,
// whether performed by an operator or by the sweeper. Append-only; entries are
// never updated or deleted, so any past decision can be reconstructed and
// reversed by replaying the inverse operation.
type MergeLogEntry struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Operation        MergeOperation `gorm:"type:varchar(20);not null" json:"operation"`
	SourceIdentityID uint           `gorm:"not null;index" json:"source_identity_id"` // merge: the absorbed identity; demerge: the identity split from
	TargetIdentityID uint           `gorm:"not null;index" json:"target_identity_id"` // merge: the survivor; demerge: the identity the aliases moved to
	Reason           string         `gorm:"type:text" json:"reason"`
	PerformedBy      string         `gorm:"type:varchar(128);not null" json:"performed_by"` // "sweeper" or an operator username
	AliasesMoved     StringList     `gorm:"type:jsonb" json:"aliases_moved"`
	AppearancesMoved int            `json:"appearances_moved"`
	CreatedAt        time.Time      `json:"created_at"`
}

func (MergeLogEntry) TableName() string {
	return "merge_log_entries"
}
