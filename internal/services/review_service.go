package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/rollcall/rollcall/internal/database"
	"github.com/rollcall/rollcall/internal/normalize"
)

// ReviewDecision is an operator's verdict on a pending review item.
type ReviewDecision string

const (
	// DecisionAttachTo assigns the observation to an existing identity.
	DecisionAttachTo ReviewDecision = "attach_to"
	// DecisionCreateNew mints a fresh identity for the observation.
	DecisionCreateNew ReviewDecision = "create_new"
	// DecisionDismiss drops the observation without creating attendance.
	DecisionDismiss ReviewDecision = "dismiss"
)

// ReviewService manages the pending review queue. Resolving an item writes the
// attendance record retroactively, exactly as if the resolver had been
// confident at ingestion time.
type ReviewService struct {
	ids *IdentityService
}

// NewReviewService creates a review service over the identity service.
func NewReviewService(ids *IdentityService) *ReviewService {
	return &ReviewService{ids: ids}
}

// ReviewFilter narrows a review queue listing. Zero values mean "any", except
// Status where the empty string defaults to open.
type ReviewFilter struct {
	Status    database.ReviewStatus
	Candidate string // identity UUID appearing in an item's candidate list
	From      time.Time
	To        time.Time
}

// ListItems returns review items matching the filter, newest observation
// first.
func (s *ReviewService) ListItems(filter ReviewFilter, offset, limit int) ([]database.PendingReviewItem, int64, error) {
	status := filter.Status
	if status == "" {
		status = database.ReviewStatusOpen
	}

	query := s.ids.db.Model(&database.PendingReviewItem{}).Where("status = ?", status)
	if filter.Candidate != "" {
		// The candidate list is serialized JSON; a substring match on the
		// UUID is portable across both drivers.
		query = query.Where("CAST(candidates AS TEXT) LIKE ?", "%"+filter.Candidate+"%")
	}
	if !filter.From.IsZero() {
		query = query.Where("observed_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("observed_at < ?", filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []database.PendingReviewItem
	err := query.Order("observed_at DESC").Offset(offset).Limit(limit).Find(&items).Error
	return items, total, err
}

// GetItem returns one review item by id.
func (s *ReviewService) GetItem(itemID uint) (*database.PendingReviewItem, error) {
	var item database.PendingReviewItem
	err := s.ids.db.First(&item, itemID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReviewItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Resolve closes an open review item with the given decision. attach_to needs
// a live target identity; create_new and dismiss ignore identityUUID. Closing
// an already-closed item is an error: two reviewers racing on the same item
// must not double-apply.
func (s *ReviewService) Resolve(itemID uint, decision ReviewDecision, identityUUID, performedBy string) (*database.PendingReviewItem, *Resolution, error) {
	return s.resolve(itemID, decision, identityUUID, performedBy, "review:attach")
}

// AutoAttach closes an open item on the sweeper's behalf, recording the score
// that justified the attachment in the match reason.
func (s *ReviewService) AutoAttach(itemID uint, identityUUID string, score float64) (*database.PendingReviewItem, *Resolution, error) {
	return s.resolve(itemID, DecisionAttachTo, identityUUID, "sweeper",
		fmt.Sprintf("sweeper:%.2f", score))
}

func (s *ReviewService) resolve(itemID uint, decision ReviewDecision, identityUUID, performedBy, attachReason string) (*database.PendingReviewItem, *Resolution, error) {
	item, err := s.GetItem(itemID)
	if err != nil {
		return nil, nil, err
	}
	if !item.IsOpen() {
		return nil, nil, ErrReviewItemClosed
	}

	obs := observationFromItem(item)
	normalized := item.NormalizedName
	if normalized == "" {
		normalized = normalize.Name(item.RawName)
	}

	var resolution *Resolution

	switch decision {
	case DecisionAttachTo:
		identity, err := s.ids.GetLiveIdentityByUUID(identityUUID)
		if err != nil {
			return nil, nil, err
		}
		unlock := s.ids.lockName(normalized)
		// Two open items can carry the same raw name. Once one of them has
		// been attached, the other must land on the same identity; anything
		// else would give the alias a second live owner.
		if owner := s.ids.exactOwnerOtherThan(normalized, identity.ID); owner != nil {
			unlock()
			return nil, nil, fmt.Errorf("%w: %q is an alias of identity %s",
				ErrAliasConflict, item.RawName, owner.IdentityUUID)
		}
		attached, err := s.ids.AttachObservation(identity, obs, normalized, attachReason)
		unlock()
		if err != nil {
			return nil, nil, err
		}
		state := ResolutionAttached
		if !attached {
			state = ResolutionDuplicate
		}
		resolution = &Resolution{
			State:        state,
			IdentityUUID: identity.UUID,
			MatchReason:  attachReason,
		}

	case DecisionCreateNew:
		if normalized == "" {
			// An empty-normalizing name has no alias to index; the reviewer
			// should attach it to a known identity or dismiss it instead.
			return nil, nil, fmt.Errorf("cannot create an identity from %q: %w", item.RawName, ErrEmptyName)
		}
		unlock := s.ids.lockName(normalized)
		// Minting a fresh identity for a name some live identity already owns
		// would split that name across two owners.
		if owner := s.ids.exactOwnerOtherThan(normalized, 0); owner != nil {
			unlock()
			return nil, nil, fmt.Errorf("%w: %q is an alias of identity %s",
				ErrAliasConflict, item.RawName, owner.IdentityUUID)
		}
		identity, err := s.ids.CreateIdentityForObservation(obs, normalized, "review:create")
		unlock()
		if err != nil {
			return nil, nil, err
		}
		resolution = &Resolution{
			State:        ResolutionAttached,
			IdentityUUID: identity.UUID,
			MatchReason:  "review:create",
			NewIdentity:  true,
		}

	case DecisionDismiss:
		resolution = &Resolution{State: ResolutionDismissed}

	default:
		return nil, nil, fmt.Errorf("unknown review decision %q", decision)
	}

	now := time.Now()
	status := database.ReviewStatusResolved
	if decision == DecisionDismiss {
		status = database.ReviewStatusDismissed
	}
	updates := map[string]interface{}{
		"status":      status,
		"resolved_by": performedBy,
		"resolved_at": now,
	}
	if err := s.ids.db.Model(&database.PendingReviewItem{}).
		Where("id = ?", item.ID).Updates(updates).Error; err != nil {
		return nil, nil, err
	}

	item.Status = status
	item.ResolvedBy = performedBy
	item.ResolvedAt = &now

	log.Printf("ReviewService: item %d (%q) closed with %s by %s",
		item.ID, item.RawName, decision, performedBy)

	resolution.ReviewItemID = item.ID
	return item, resolution, nil
}

// OpenItems returns every open item, oldest first, for the sweeper.
func (s *ReviewService) OpenItems() ([]database.PendingReviewItem, error) {
	var items []database.PendingReviewItem
	err := s.ids.db.Where("status = ?", database.ReviewStatusOpen).
		Order("observed_at ASC").Find(&items).Error
	return items, err
}

// observationFromItem reconstructs the original observation tuple.
func observationFromItem(item *database.PendingReviewItem) Observation {
	return Observation{
		MeetingInstanceID: item.MeetingInstanceID,
		RawName:           item.RawName,
		JoinedAt:          item.JoinedAt,
		DurationSeconds:   item.DurationSeconds,
		PlatformUserID:    item.PlatformUserID,
	}
}
