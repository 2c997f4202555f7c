package api

import (
	"time"

	"github.com/rollcall/rollcall/internal/database"
)

// ========== Ingest Types ==========

// ObservationRequest is one raw participant tuple in an ingest payload.
type ObservationRequest struct {
	RawName         string    `json:"raw_name" validate:"required,max=512"`
	JoinedAt        time.Time `json:"joined_at" validate:"required"`
	DurationSeconds int       `json:"duration_seconds" validate:"gte=0"`
	PlatformUserID  string    `json:"platform_user_id" validate:"omitempty,max=255"`
}

// IngestBatchRequest is one meeting instance's participant roster.
type IngestBatchRequest struct {
	MeetingInstanceID string               `json:"meeting_instance_id" validate:"required,max=255"`
	Observations      []ObservationRequest `json:"observations" validate:"required,min=1,dive"`
}

// IngestRequest is the request body for POST /api/ingest.
type IngestRequest struct {
	Batches []IngestBatchRequest `json:"batches" validate:"required,min=1,dive"`
}

// ========== Merge Types ==========

// MergeRequest is the request body for POST /api/merge.
type MergeRequest struct {
	SourceUUID string `json:"source_uuid" validate:"required,uuid4"`
	TargetUUID string `json:"target_uuid" validate:"required,uuid4"`
	Reason     string `json:"reason" validate:"omitempty,max=1024"`
}

// DemergeRequest is the request body for POST /api/demerge.
type DemergeRequest struct {
	IdentityUUID string   `json:"identity_uuid" validate:"required,uuid4"`
	Aliases      []string `json:"aliases" validate:"required,min=1"`
	TargetUUID   string   `json:"target_uuid" validate:"omitempty,uuid4"`
	Reason       string   `json:"reason" validate:"omitempty,max=1024"`
}

// ========== Review Types ==========

// ResolveReviewRequest is the request body for POST /api/review/:id/resolve.
type ResolveReviewRequest struct {
	Decision     string `json:"decision" validate:"required,oneof=attach_to create_new dismiss"`
	IdentityUUID string `json:"identity_uuid" validate:"omitempty,uuid4"`
}

// ========== Settings Types ==========

// UpdateResolverSettingsRequest is the request body for PUT /api/settings/resolver.
// Pointer fields distinguish "leave unchanged" from an explicit zero.
type UpdateResolverSettingsRequest struct {
	FuzzyFloor             *float64 `json:"fuzzy_floor" validate:"omitempty,gte=0,lte=1"`
	AutoAttachThreshold    *float64 `json:"auto_attach_threshold" validate:"omitempty,gte=0,lte=1"`
	AmbiguityMargin        *float64 `json:"ambiguity_margin" validate:"omitempty,gte=0,lte=1"`
	MaxCandidates          *int     `json:"max_candidates" validate:"omitempty,gte=1,lte=50"`
	SweeperEnabled         *bool    `json:"sweeper_enabled"`
	SweeperIntervalMinutes *int     `json:"sweeper_interval_minutes" validate:"omitempty,gte=1"`
	NotifyReviewQueue      *bool    `json:"notify_review_queue"`
}

// ========== Pagination Types ==========

// PaginationMeta contains pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// PaginatedResponse wraps a list response with pagination metadata.
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

// ========== Mapper Output Types ==========

// IdentityListItem is a compact representation of an identity for list views.
type IdentityListItem struct {
	ID               uint                    `json:"id"`
	UUID             string                  `json:"uuid"`
	CanonicalName    string                  `json:"canonical_name"`
	PlatformUserID   string                  `json:"platform_user_id,omitempty"`
	TotalAppearances int                     `json:"total_appearances"`
	Status           database.IdentityStatus `json:"status"`
	MergedIntoID     *uint                   `json:"merged_into_id,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// IdentityDetail is the full identity view with aliases attached.
type IdentityDetail struct {
	IdentityListItem
	Aliases []AliasItem `json:"aliases"`
}

// AliasItem is one alias row in an identity view.
type AliasItem struct {
	Raw         string    `json:"raw"`
	Normalized  string    `json:"normalized"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}

// MergeLogItem is one merge log entry in an identity history view.
type MergeLogItem struct {
	Operation        database.MergeOperation `json:"operation"`
	SourceIdentityID uint                    `json:"source_identity_id"`
	TargetIdentityID uint                    `json:"target_identity_id"`
	Reason           string                  `json:"reason,omitempty"`
	PerformedBy      string                  `json:"performed_by"`
	AliasesMoved     []string                `json:"aliases_moved"`
	AppearancesMoved int                     `json:"appearances_moved"`
	CreatedAt        time.Time               `json:"created_at"`
}
