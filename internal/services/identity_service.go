package services

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rollcall/rollcall/internal/database"
	"github.com/rollcall/rollcall/internal/match"
)

// errDuplicateObservation signals that the (meeting_instance_id, raw_name)
// pair already has an attendance record; resolution is idempotent on it.
var errDuplicateObservation = errors.New("observation already recorded")

// Observation is one raw participant tuple delivered by the ingestion
// collaborator: already deduplicated by the platform, not yet by identity.
type Observation struct {
	MeetingInstanceID string    `json:"meeting_instance_id"`
	RawName           string    `json:"raw_name"`
	JoinedAt          time.Time `json:"joined_at"`
	DurationSeconds   int       `json:"duration_seconds"`
	PlatformUserID    string    `json:"platform_user_id,omitempty"`
}

// IdentityService owns the identity registry: canonical identities, their
// alias sets and appearance counters, and the in-memory alias index projected
// from them. All alias-attachment and identity-creation flows go through its
// serialized write path.
type IdentityService struct {
	db            *gorm.DB
	index         *match.Index
	nameLocks     *keyedLocks
	identityLocks *keyedLocks
}

// NewIdentityService creates an identity service. Call RebuildIndex before
// resolving observations.
func NewIdentityService(db *gorm.DB) *IdentityService {
	return &IdentityService{
		db:            db,
		index:         match.NewIndex(),
		nameLocks:     newKeyedLocks(),
		identityLocks: newKeyedLocks(),
	}
}

// Index exposes the alias index for lookup.
func (s *IdentityService) Index() *match.Index {
	return s.index
}

// DB returns the underlying database handle.
func (s *IdentityService) DB() *gorm.DB {
	return s.db
}

// lockName serializes create-or-attach for one normalized name.
func (s *IdentityService) lockName(normalized string) func() {
	return s.nameLocks.Lock("name:" + normalized)
}

// lockIdentityPair takes exclusive locks on two identities in id order, so
// concurrent merges touching the same pair cannot deadlock.
func (s *IdentityService) lockIdentityPair(a, b uint) func() {
	if a > b {
		a, b = b, a
	}
	unlockA := s.identityLocks.Lock(fmt.Sprintf("identity:%d", a))
	if a == b {
		return unlockA
	}
	unlockB := s.identityLocks.Lock(fmt.Sprintf("identity:%d", b))
	return func() {
		unlockB()
		unlockA()
	}
}

// RebuildIndex reloads the alias index from the store. Run at startup; the
// index is kept in sync incrementally afterwards.
func (s *IdentityService) RebuildIndex() error {
	fresh := match.NewIndex()

	var identities []database.Identity
	if err := s.db.Where("status = ?", database.IdentityStatusActive).Find(&identities).Error; err != nil {
		return fmt.Errorf("failed to load identities: %w", err)
	}

	ids := make([]uint, 0, len(identities))
	for _, identity := range identities {
		fresh.SetIdentity(identity.ID, identity.UUID, identity.TotalAppearances)
		ids = append(ids, identity.ID)
	}

	if len(ids) > 0 {
		var aliases []database.Alias
		if err := s.db.Where("identity_id IN ?", ids).Find(&aliases).Error; err != nil {
			return fmt.Errorf("failed to load aliases: %w", err)
		}
		for _, alias := range aliases {
			fresh.AddAlias(alias.IdentityID, alias.Normalized)
		}
	}

	*s.index = *fresh
	return nil
}

// GetIdentityByUUID returns an identity in any status.
func (s *IdentityService) GetIdentityByUUID(identityUUID string) (*database.Identity, error) {
	var identity database.Identity
	err := s.db.Where("uuid = ?", identityUUID).First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// GetLiveIdentityByUUID returns an identity that has not been tombstoned.
func (s *IdentityService) GetLiveIdentityByUUID(identityUUID string) (*database.Identity, error) {
	identity, err := s.GetIdentityByUUID(identityUUID)
	if err != nil {
		return nil, err
	}
	if !identity.IsActive() {
		return nil, ErrIdentityTombstoned
	}
	return identity, nil
}

// FindLiveByPlatformUserID returns the live identity holding a platform
// account id, or nil when none does.
func (s *IdentityService) FindLiveByPlatformUserID(platformUserID string) (*database.Identity, error) {
	if platformUserID == "" {
		return nil, nil
	}
	var identity database.Identity
	err := s.db.Where("platform_user_id = ? AND status = ?", platformUserID, database.IdentityStatusActive).
		First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// ListIdentities returns identities, newest first, optionally filtered by a
// substring of the canonical name. Tombstoned identities are included only
// when includeTombstoned is set.
func (s *IdentityService) ListIdentities(search string, includeTombstoned bool, offset, limit int) ([]database.Identity, int64, error) {
	query := s.db.Model(&database.Identity{})
	if !includeTombstoned {
		query = query.Where("status = ?", database.IdentityStatusActive)
	}
	if search != "" {
		query = query.Where("canonical_name LIKE ?", "%"+search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var identities []database.Identity
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&identities).Error
	return identities, total, err
}

// GetAliases returns an identity's alias rows, oldest first.
func (s *IdentityService) GetAliases(identityID uint) ([]database.Alias, error) {
	var aliases []database.Alias
	err := s.db.Where("identity_id = ?", identityID).Order("first_seen_at ASC").Find(&aliases).Error
	return aliases, err
}

// GetMergeLog returns every merge log entry referencing the identity as
// source or target, oldest first. The log is the diagnosis trail for any
// past merge decision.
func (s *IdentityService) GetMergeLog(identityID uint) ([]database.MergeLogEntry, error) {
	var entries []database.MergeLogEntry
	err := s.db.Where("source_identity_id = ? OR target_identity_id = ?", identityID, identityID).
		Order("created_at ASC").Find(&entries).Error
	return entries, err
}

// AttachObservation appends the observation to an existing identity: creates
// the attendance record, adds the raw string as a new alias if unseen, and
// bumps the appearance counter. One transaction, all or nothing, under the
// identity's exclusive lock so it cannot interleave with a merge touching the
// same identity. If a merge tombstoned the identity between candidate lookup
// and attach, the observation follows the merge chain to the live survivor.
// Returns false without error when the (instance, raw_name) pair was already
// recorded.
func (s *IdentityService) AttachObservation(identity *database.Identity, obs Observation, normalized, reason string) (bool, error) {
	// Chase at most a handful of merge hops; chains longer than that mean
	// corrupted data and deserve an error rather than a spin.
	for hop := 0; hop < 8; hop++ {
		attached, next, err := s.attachToLive(identity.ID, obs, normalized, reason)
		if err != nil {
			return false, err
		}
		if next == 0 {
			return attached, nil
		}
		identity = &database.Identity{ID: next}
	}
	return false, ErrIdentityTombstoned
}

// attachToLive attempts the attach under the identity's lock. When the
// identity turned out to be tombstoned it returns the id to follow instead.
func (s *IdentityService) attachToLive(identityID uint, obs Observation, normalized, reason string) (attached bool, next uint, err error) {
	unlock := s.identityLocks.Lock(fmt.Sprintf("identity:%d", identityID))
	defer unlock()

	var identity database.Identity
	if err := s.db.First(&identity, identityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, 0, ErrIdentityNotFound
		}
		return false, 0, err
	}
	if !identity.IsActive() {
		if identity.MergedIntoID == nil {
			return false, 0, ErrIdentityTombstoned
		}
		return false, *identity.MergedIntoID, nil
	}

	var aliasAdded bool

	err = s.db.Transaction(func(tx *gorm.DB) error {
		record := &database.AttendanceRecord{
			MeetingInstanceID: obs.MeetingInstanceID,
			IdentityID:        identity.ID,
			RawNameObserved:   obs.RawName,
			JoinedAt:          obs.JoinedAt,
			DurationSeconds:   obs.DurationSeconds,
			MatchReason:       reason,
		}
		if err := tx.Create(record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errDuplicateObservation
			}
			return err
		}

		var alias database.Alias
		err := tx.Where("identity_id = ? AND raw = ?", identity.ID, obs.RawName).First(&alias).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			alias = database.Alias{
				IdentityID:  identity.ID,
				Raw:         obs.RawName,
				Normalized:  normalized,
				FirstSeenAt: obs.JoinedAt,
			}
			if err := tx.Create(&alias).Error; err != nil {
				return err
			}
			aliasAdded = true
		} else if err != nil {
			return err
		}

		updates := map[string]interface{}{
			"total_appearances": gorm.Expr("total_appearances + 1"),
		}
		// First authenticated sighting of a previously guest-only identity.
		if obs.PlatformUserID != "" && identity.PlatformUserID == "" {
			updates["platform_user_id"] = obs.PlatformUserID
		}
		return tx.Model(&database.Identity{}).Where("id = ?", identity.ID).Updates(updates).Error
	})

	if errors.Is(err, errDuplicateObservation) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}

	if aliasAdded {
		s.index.AddAlias(identity.ID, normalized)
	}
	s.index.IncrementAppearances(identity.ID, 1)
	return true, 0, nil
}

// CreateIdentityForObservation seeds a brand-new identity with this single
// alias and an attendance of 1.
func (s *IdentityService) CreateIdentityForObservation(obs Observation, normalized, reason string) (*database.Identity, error) {
	identity := &database.Identity{
		UUID:             uuid.New().String(),
		CanonicalName:    obs.RawName,
		PlatformUserID:   obs.PlatformUserID,
		TotalAppearances: 1,
		Status:           database.IdentityStatusActive,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(identity).Error; err != nil {
			return err
		}
		alias := &database.Alias{
			IdentityID:  identity.ID,
			Raw:         obs.RawName,
			Normalized:  normalized,
			FirstSeenAt: obs.JoinedAt,
		}
		if err := tx.Create(alias).Error; err != nil {
			return err
		}
		record := &database.AttendanceRecord{
			MeetingInstanceID: obs.MeetingInstanceID,
			IdentityID:        identity.ID,
			RawNameObserved:   obs.RawName,
			JoinedAt:          obs.JoinedAt,
			DurationSeconds:   obs.DurationSeconds,
			MatchReason:       reason,
		}
		if err := tx.Create(record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errDuplicateObservation
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.index.SetIdentity(identity.ID, identity.UUID, 1)
	s.index.AddAlias(identity.ID, normalized)
	return identity, nil
}

// exactOwnerOtherThan returns a live identity other than identityID that owns
// the normalized name, or nil. Every attach path that can introduce a new
// alias consults it inside the per-name critical section, so a name string
// never gains a second live owner.
func (s *IdentityService) exactOwnerOtherThan(normalized string, identityID uint) *match.Candidate {
	if normalized == "" {
		return nil
	}
	for _, c := range s.index.LookupExact(normalized) {
		if c.IdentityID != identityID {
			owner := c
			return &owner
		}
	}
	return nil
}

// VerifyCounters recomputes each live identity's appearance count from the
// attendance ledger and reports mismatches. Diagnostic, read-only.
func (s *IdentityService) VerifyCounters() ([]string, error) {
	var identities []database.Identity
	if err := s.db.Where("status = ?", database.IdentityStatusActive).Find(&identities).Error; err != nil {
		return nil, err
	}

	var problems []string
	for _, identity := range identities {
		var count int64
		if err := s.db.Model(&database.AttendanceRecord{}).
			Where("identity_id = ?", identity.ID).Count(&count).Error; err != nil {
			return nil, err
		}
		if int(count) != identity.TotalAppearances {
			problems = append(problems, fmt.Sprintf(
				"identity %s: total_appearances=%d but %d attendance records",
				identity.UUID, identity.TotalAppearances, count))
		}
	}
	sort.Strings(problems)
	return problems, nil
}

// VerifyAliasOwnership reports normalized alias strings owned by more than one
// live identity. Diagnostic, read-only; a non-empty result means an attach
// path skipped the ownership check.
func (s *IdentityService) VerifyAliasOwnership() ([]string, error) {
	type ownership struct {
		Normalized string
		Owners     int
	}
	var rows []ownership
	err := s.db.Model(&database.Alias{}).
		Select("aliases.normalized AS normalized, COUNT(DISTINCT aliases.identity_id) AS owners").
		Joins("JOIN identities ON identities.id = aliases.identity_id").
		Where("identities.status = ?", database.IdentityStatusActive).
		Group("aliases.normalized").
		Having("COUNT(DISTINCT aliases.identity_id) > 1").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var problems []string
	for _, row := range rows {
		problems = append(problems, fmt.Sprintf(
			"alias %q has %d live owners", row.Normalized, row.Owners))
	}
	sort.Strings(problems)
	return problems, nil
}
