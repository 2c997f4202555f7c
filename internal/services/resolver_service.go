package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/rollcall/rollcall/internal/database"
	"github.com/rollcall/rollcall/internal/match"
	"github.com/rollcall/rollcall/internal/normalize"
	"github.com/rollcall/rollcall/internal/rules"
)

// ResolutionState is the terminal state of one observation.
type ResolutionState string

const (
	// ResolutionAttached means the observation was written to the attendance
	// ledger against an identity (existing or newly created).
	ResolutionAttached ResolutionState = "attached"
	// ResolutionQueued means the observation was parked as an open pending
	// review item.
	ResolutionQueued ResolutionState = "queued"
	// ResolutionDismissed means a dismiss rule matched (bot/test participant);
	// a dismissed review item records the sighting, no attendance is written.
	ResolutionDismissed ResolutionState = "dismissed"
	// ResolutionDuplicate means this (meeting instance, raw name) pair was
	// already resolved; nothing changed.
	ResolutionDuplicate ResolutionState = "duplicate"
)

// Resolution is the outcome the resolver reports for one observation.
type Resolution struct {
	State        ResolutionState `json:"state"`
	IdentityUUID string          `json:"identity_uuid,omitempty"`
	MatchReason  string          `json:"match_reason,omitempty"`
	NewIdentity  bool            `json:"new_identity,omitempty"`
	ReviewItemID uint            `json:"review_item_id,omitempty"`
}

// ReviewNotifier is told about freshly queued review items.
type ReviewNotifier interface {
	ReviewQueued(item *database.PendingReviewItem)
}

// ResolverService decides, per observation: attach to an existing identity,
// create a new one, or park for review. Per-normalized-name locking makes
// identity creation race-free: two concurrent resolutions of the same new
// name serialize, and the second one finds the first one's identity in the
// index instead of creating a duplicate.
type ResolverService struct {
	ids      *IdentityService
	dismiss  *rules.DismissRules
	notifier ReviewNotifier
}

// NewResolverService creates a resolver over the identity service.
func NewResolverService(ids *IdentityService) *ResolverService {
	return &ResolverService{ids: ids}
}

// SetDismissRules installs operator dismiss rules (may be nil).
func (s *ResolverService) SetDismissRules(d *rules.DismissRules) {
	s.dismiss = d
}

// SetNotifier installs a review-queue notifier (may be nil).
func (s *ResolverService) SetNotifier(n ReviewNotifier) {
	s.notifier = n
}

// GetSettings returns resolver settings (creates defaults if not exists).
func (s *ResolverService) GetSettings() (*database.ResolverSettings, error) {
	return database.GetOrCreateResolverSettings(s.ids.db)
}

// UpdateSettings updates resolver settings.
func (s *ResolverService) UpdateSettings(settings *database.ResolverSettings) error {
	return database.UpdateResolverSettings(s.ids.db, settings)
}

// Resolve runs one observation through the state machine:
//
//	NEW -> EXACT_MATCH / FUZZY_MATCH / AMBIGUOUS / NO_MATCH -> ATTACHED / QUEUED
//
// Empty-normalizing names always queue. Dismiss-rule hits park a dismissed
// item. Everything mutating happens inside the per-name critical section.
func (s *ResolverService) Resolve(obs Observation) (*Resolution, error) {
	if res, err := s.alreadyResolved(obs); res != nil || err != nil {
		return res, err
	}

	normalized := normalize.Name(obs.RawName)

	if reason, hit := s.dismiss.Match(obs.RawName); hit {
		return s.parkDismissed(obs, normalized, reason)
	}

	// Unusable name: no key to match or lock on, straight to review.
	if normalized == "" {
		return s.queue(obs, "", nil, "empty_name")
	}

	settings, err := s.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to load resolver settings: %w", err)
	}

	unlock := s.ids.lockName(normalized)
	defer unlock()

	// A concurrent resolution of the same name may have finished while we
	// waited on the lock; the index lookup below sees its identity, and the
	// dedup key covers the exact same observation being replayed.
	if res, err := s.alreadyResolved(obs); res != nil || err != nil {
		return res, err
	}

	// Strongest signal first: an authenticated platform account id.
	if obs.PlatformUserID != "" {
		identity, err := s.ids.FindLiveByPlatformUserID(obs.PlatformUserID)
		if err != nil {
			return nil, err
		}
		if identity != nil {
			// The account id and the alias index can disagree: the exact name
			// may already belong to a different live identity. Attaching would
			// give the alias a second owner, so a human decides instead.
			if owner := s.ids.exactOwnerOtherThan(normalized, identity.ID); owner != nil {
				candidates := []match.Candidate{
					*owner,
					{
						IdentityID:   identity.ID,
						IdentityUUID: identity.UUID,
						Score:        1.0,
						Appearances:  identity.TotalAppearances,
					},
				}
				return s.queue(obs, normalized, candidates, "alias_conflict")
			}
			return s.attach(identity, obs, normalized, "platform_user_id")
		}
	}

	candidates := s.ids.index.Lookup(normalized, match.Params{
		Floor: settings.FuzzyFloor,
		TopK:  settings.MaxCandidates,
	})

	switch verdict(candidates, settings) {
	case verdictExact:
		return s.attach(s.identityRef(candidates[0]), obs, normalized, "exact")

	case verdictFuzzy:
		reason := fmt.Sprintf("fuzzy:%.2f", candidates[0].Score)
		return s.attach(s.identityRef(candidates[0]), obs, normalized, reason)

	case verdictAmbiguous:
		return s.queue(obs, normalized, candidates, "ambiguous")

	case verdictLowConfidence:
		return s.queue(obs, normalized, candidates, "low_confidence")

	default: // verdictNoMatch
		identity, err := s.ids.CreateIdentityForObservation(obs, normalized, "new_identity")
		if err != nil {
			return nil, err
		}
		return &Resolution{
			State:        ResolutionAttached,
			IdentityUUID: identity.UUID,
			MatchReason:  "new_identity",
			NewIdentity:  true,
		}, nil
	}
}

type matchVerdict int

const (
	verdictNoMatch matchVerdict = iota
	verdictExact
	verdictFuzzy
	verdictAmbiguous
	verdictLowConfidence
)

// verdict classifies a ranked candidate list against the thresholds.
func verdict(candidates []match.Candidate, settings *database.ResolverSettings) matchVerdict {
	if len(candidates) == 0 {
		return verdictNoMatch
	}

	top := candidates[0]
	if top.Score >= 1.0 {
		return verdictExact
	}
	if top.Score < settings.FuzzyFloor {
		return verdictNoMatch
	}
	if top.Score < settings.AutoAttachThreshold {
		return verdictLowConfidence
	}
	// Above the auto threshold, but a close runner-up means a human decides.
	if len(candidates) > 1 && top.Score-candidates[1].Score < settings.AmbiguityMargin {
		return verdictAmbiguous
	}
	return verdictFuzzy
}

func (s *ResolverService) identityRef(c match.Candidate) *database.Identity {
	return &database.Identity{ID: c.IdentityID, UUID: c.IdentityUUID}
}

// alreadyResolved returns the prior outcome for this (instance, raw name)
// pair: an existing attendance record or an open review item. Nil when the
// pair is new.
func (s *ResolverService) alreadyResolved(obs Observation) (*Resolution, error) {
	var record database.AttendanceRecord
	err := s.ids.db.Where("meeting_instance_id = ? AND raw_name_observed = ?",
		obs.MeetingInstanceID, obs.RawName).First(&record).Error
	if err == nil {
		var identity database.Identity
		if err := s.ids.db.First(&identity, record.IdentityID).Error; err != nil {
			return nil, err
		}
		return &Resolution{
			State:        ResolutionDuplicate,
			IdentityUUID: identity.UUID,
			MatchReason:  record.MatchReason,
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var item database.PendingReviewItem
	err = s.ids.db.Where("meeting_instance_id = ? AND raw_name = ? AND status = ?",
		obs.MeetingInstanceID, obs.RawName, database.ReviewStatusOpen).First(&item).Error
	if err == nil {
		return &Resolution{State: ResolutionQueued, ReviewItemID: item.ID}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return nil, nil
}

// attach writes the observation against the identity and reports the result.
func (s *ResolverService) attach(identity *database.Identity, obs Observation, normalized, reason string) (*Resolution, error) {
	attached, err := s.ids.AttachObservation(identity, obs, normalized, reason)
	if err != nil {
		return nil, err
	}
	if !attached {
		return &Resolution{State: ResolutionDuplicate, IdentityUUID: identity.UUID}, nil
	}
	return &Resolution{
		State:        ResolutionAttached,
		IdentityUUID: identity.UUID,
		MatchReason:  reason,
	}, nil
}

// queue parks the observation as an open review item.
func (s *ResolverService) queue(obs Observation, normalized string, candidates []match.Candidate, queueReason string) (*Resolution, error) {
	item := &database.PendingReviewItem{
		RawName:           obs.RawName,
		NormalizedName:    normalized,
		MeetingInstanceID: obs.MeetingInstanceID,
		JoinedAt:          obs.JoinedAt,
		DurationSeconds:   obs.DurationSeconds,
		PlatformUserID:    obs.PlatformUserID,
		Candidates:        toCandidateList(candidates),
		QueueReason:       queueReason,
		Status:            database.ReviewStatusOpen,
	}
	if err := s.ids.db.Create(item).Error; err != nil {
		return nil, fmt.Errorf("failed to queue review item: %w", err)
	}

	if s.notifier != nil {
		s.notifier.ReviewQueued(item)
	}

	log.Printf("Resolver: queued %q (meeting %s) for review: %s",
		obs.RawName, obs.MeetingInstanceID, queueReason)

	return &Resolution{State: ResolutionQueued, ReviewItemID: item.ID}, nil
}

// parkDismissed records a dismiss-rule hit as an already-dismissed review
// item. No identity and no attendance row, but the sighting stays auditable.
func (s *ResolverService) parkDismissed(obs Observation, normalized, reason string) (*Resolution, error) {
	now := time.Now()
	item := &database.PendingReviewItem{
		RawName:           obs.RawName,
		NormalizedName:    normalized,
		MeetingInstanceID: obs.MeetingInstanceID,
		JoinedAt:          obs.JoinedAt,
		DurationSeconds:   obs.DurationSeconds,
		PlatformUserID:    obs.PlatformUserID,
		QueueReason:       "dismiss_rule",
		Status:            database.ReviewStatusDismissed,
		ResolvedBy:        "dismiss_rule:" + reason,
		ResolvedAt:        &now,
	}
	if err := s.ids.db.Create(item).Error; err != nil {
		return nil, fmt.Errorf("failed to record dismissed observation: %w", err)
	}
	return &Resolution{State: ResolutionDismissed, ReviewItemID: item.ID}, nil
}

func toCandidateList(candidates []match.Candidate) database.CandidateList {
	list := make(database.CandidateList, 0, len(candidates))
	for _, c := range candidates {
		list = append(list, database.Candidate{
			IdentityUUID: c.IdentityUUID,
			Score:        c.Score,
		})
	}
	return list
}
