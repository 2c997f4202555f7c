package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// StringList is a JSONB-backed list of strings (e.g. alias names moved by a merge)
type StringList []string

// Scan implements the sql.Scanner interface
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, l)
}

// Value implements the driver.Valuer interface
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(l)
}

// Candidate is one ranked match candidate attached to a pending review item
type Candidate struct {
	IdentityUUID string  `json:"identity_uuid"`
	Score        float64 `json:"score"`
}

// CandidateList is a JSONB-backed ranked candidate list
type CandidateList []Candidate

// Scan implements the sql.Scanner interface
func (c *CandidateList) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, c)
}

// Value implements the driver.Valuer interface
func (c CandidateList) Value() (driver.Value, error) {
	if c == nil {
		return json.Marshal([]Candidate{})
	}
	return json.Marshal(c)
}

// IdentityStatus represents the lifecycle status of an identity
type IdentityStatus string

const (
	IdentityStatusActive     IdentityStatus = "active"
	IdentityStatusTombstoned IdentityStatus = "tombstoned"
)

// Identity is a canonical person across all observed meetings.
// The UUID is stable and immutable once assigned. Merged-away identities are
// tombstoned (never deleted) so merge log entries keep resolving.
type Identity struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	UUID             string         `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	CanonicalName    string         `gorm:"size:255;not null" json:"canonical_name"`
	PlatformUserID   string         `gorm:"size:255;index" json:"platform_user_id,omitempty"` // empty for guests
	TotalAppearances int            `gorm:"not null;default:0" json:"total_appearances"`
	Status           IdentityStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	MergedIntoID     *uint          `gorm:"index" json:"merged_into_id,omitempty"` // set when tombstoned by a merge
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	// Relationships
	Aliases []Alias `gorm:"foreignKey:IdentityID" json:"aliases,omitempty"`
}

// IsActive returns true if the identity has not been tombstoned
func (i *Identity) IsActive() bool {
	return i.Status == IdentityStatusActive
}

// Alias is one raw display-name string resolved to an identity.
// A normalized string belongs to exactly one live identity at any instant;
// that invariant is enforced by the serialized resolver write path rather than
// a database constraint, because several raw variants of one identity may
// share a normalized form.
type Alias struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	IdentityID  uint      `gorm:"not null;index;uniqueIndex:idx_alias_identity_raw" json:"identity_id"`
	Raw         string    `gorm:"size:512;not null;uniqueIndex:idx_alias_identity_raw" json:"raw"`
	Normalized  string    `gorm:"size:512;not null;index" json:"normalized"`
	FirstSeenAt time.Time `gorm:"not null" json:"first_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// AttendanceRecord is one participant-per-meeting-instance row, the join key
// for weekly KPI aggregation. (meeting_instance_id, raw_name_observed) is the
// natural dedup key; resolving the same pair twice is a no-op. Only the
// identity reference is ever repointed after creation (on merge/demerge).
type AttendanceRecord struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	MeetingInstanceID string    `gorm:"size:255;not null;uniqueIndex:idx_attendance_dedup;index" json:"meeting_instance_id"`
	IdentityID        uint      `gorm:"not null;index" json:"identity_id"`
	RawNameObserved   string    `gorm:"size:512;not null;uniqueIndex:idx_attendance_dedup" json:"raw_name_observed"`
	JoinedAt          time.Time `gorm:"not null" json:"joined_at"`
	DurationSeconds   int       `json:"duration_seconds"`
	MatchReason       string    `gorm:"size:128" json:"match_reason"` // "exact", "platform_user_id", "fuzzy:<score>", "review:attach", ...
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ReviewStatus represents the status of a pending review item
type ReviewStatus string

const (
	ReviewStatusOpen      ReviewStatus = "open"
	ReviewStatusResolved  ReviewStatus = "resolved"
	ReviewStatusDismissed ReviewStatus = "dismissed"
)

// PendingReviewItem is a raw participant observation the resolver could not
// confidently assign. Closed by a reviewer decision or the sweeper job.
type PendingReviewItem struct {
	ID                uint          `gorm:"primaryKey" json:"id"`
	RawName           string        `gorm:"size:512;not null" json:"raw_name"`
	NormalizedName    string        `gorm:"size:512;index" json:"normalized_name"`
	MeetingInstanceID string        `gorm:"size:255;not null;index" json:"meeting_instance_id"`
	ObservedAt        time.Time     `gorm:"not null" json:"observed_at"`
	JoinedAt          time.Time     `json:"joined_at"`
	DurationSeconds   int           `json:"duration_seconds"`
	PlatformUserID    string        `gorm:"size:255" json:"platform_user_id,omitempty"`
	Candidates        CandidateList `gorm:"type:jsonb" json:"candidates"` // ranked by confidence, descending
	QueueReason       string        `gorm:"size:128" json:"queue_reason"` // "ambiguous", "low_confidence", "empty_name", "alias_conflict", "dismiss_rule"
	Status            ReviewStatus  `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	ResolvedBy        string        `gorm:"size:128" json:"resolved_by,omitempty"`
	ResolvedAt        *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// IsOpen returns true if the item still awaits a decision
func (p *PendingReviewItem) IsOpen() bool {
	return p.Status == ReviewStatusOpen
}

// BeforeCreate hook to set ObservedAt
func (p *PendingReviewItem) BeforeCreate(tx *gorm.DB) error {
	if p.ObservedAt.IsZero() {
		p.ObservedAt = time.Now()
	}
	return nil
}

// TableName overrides for explicit table naming
func (Identity) TableName() string {
	return "identities"
}

func (Alias) TableName() string {
	return "aliases"
}

func (AttendanceRecord) TableName() string {
	return "attendance_records"
}

func (PendingReviewItem) TableName() string {
	return "pending_review_items"
}
