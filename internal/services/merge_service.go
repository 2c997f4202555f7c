package services

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rollcall/rollcall/internal/database"
)

// MergeService performs operator-driven merge and demerge operations.
// Every operation appends an immutable merge log entry; the log is never
// rewritten, so a demerge after a merge produces two entries, not zero.
type MergeService struct {
	ids *IdentityService
}

// NewMergeService creates a merge service over the identity service.
func NewMergeService(ids *IdentityService) *MergeService {
	return &MergeService{ids: ids}
}

// Merge folds the source identity into the target: aliases and attendance
// records move over, counters transfer, and the source is tombstoned with a
// pointer to the target. The source UUID keeps resolving through that pointer.
// Both identities are locked in id order for the duration, so a concurrent
// attach or merge on either one serializes behind us.
func (s *MergeService) Merge(sourceUUID, targetUUID, reason, performedBy string) (*database.MergeLogEntry, error) {
	if sourceUUID == targetUUID {
		return nil, ErrSelfMerge
	}

	source, err := s.ids.GetLiveIdentityByUUID(sourceUUID)
	if err != nil {
		return nil, err
	}
	target, err := s.ids.GetLiveIdentityByUUID(targetUUID)
	if err != nil {
		return nil, err
	}

	unlock := s.ids.lockIdentityPair(source.ID, target.ID)
	defer unlock()

	// Re-read under the lock; either side may have been merged away while we
	// were acquiring it.
	if err := s.ids.db.First(source, source.ID).Error; err != nil {
		return nil, err
	}
	if err := s.ids.db.First(target, target.ID).Error; err != nil {
		return nil, err
	}
	if !source.IsActive() || !target.IsActive() {
		return nil, ErrIdentityTombstoned
	}

	sourceAliases, err := s.ids.GetAliases(source.ID)
	if err != nil {
		return nil, err
	}
	targetAliases, err := s.ids.GetAliases(target.ID)
	if err != nil {
		return nil, err
	}
	targetRaws := make(map[string]bool, len(targetAliases))
	for _, a := range targetAliases {
		targetRaws[a.Raw] = true
	}

	var movedRaws database.StringList
	var entry *database.MergeLogEntry

	err = s.ids.db.Transaction(func(tx *gorm.DB) error {
		for _, alias := range sourceAliases {
			if targetRaws[alias.Raw] {
				// Target already knows this raw string; drop the source row
				// instead of violating the per-identity raw uniqueness.
				if err := tx.Delete(&database.Alias{}, alias.ID).Error; err != nil {
					return err
				}
				continue
			}
			if err := tx.Model(&database.Alias{}).Where("id = ?", alias.ID).
				Update("identity_id", target.ID).Error; err != nil {
				return err
			}
			movedRaws = append(movedRaws, alias.Raw)
		}

		if err := tx.Model(&database.AttendanceRecord{}).
			Where("identity_id = ?", source.ID).
			Update("identity_id", target.ID).Error; err != nil {
			return err
		}

		targetUpdates := map[string]interface{}{
			"total_appearances": gorm.Expr("total_appearances + ?", source.TotalAppearances),
		}
		// The account id follows the survivor when only the source had one.
		if target.PlatformUserID == "" && source.PlatformUserID != "" {
			targetUpdates["platform_user_id"] = source.PlatformUserID
		}
		if err := tx.Model(&database.Identity{}).Where("id = ?", target.ID).
			Updates(targetUpdates).Error; err != nil {
			return err
		}

		if err := tx.Model(&database.Identity{}).Where("id = ?", source.ID).
			Updates(map[string]interface{}{
				"status":            database.IdentityStatusTombstoned,
				"merged_into_id":    target.ID,
				"total_appearances": 0,
			}).Error; err != nil {
			return err
		}

		entry = &database.MergeLogEntry{
			Operation:        database.MergeOperationMerge,
			SourceIdentityID: source.ID,
			TargetIdentityID: target.ID,
			Reason:           reason,
			PerformedBy:      performedBy,
			AliasesMoved:     movedRaws,
			AppearancesMoved: source.TotalAppearances,
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, fmt.Errorf("merge failed: %w", err)
	}

	index := s.ids.index
	index.RemoveIdentity(source.ID)
	for _, alias := range sourceAliases {
		if targetRaws[alias.Raw] {
			// Deleted in the transaction as a raw duplicate; the target's own
			// alias row already accounts for this normalized name.
			continue
		}
		index.AddAlias(target.ID, alias.Normalized)
	}
	index.IncrementAppearances(target.ID, source.TotalAppearances)

	log.Printf("MergeService: merged identity %s into %s (%d aliases, %d appearances) by %s",
		sourceUUID, targetUUID, len(movedRaws), source.TotalAppearances, performedBy)

	return entry, nil
}

// Demerge splits the given raw alias strings out of an identity, together with
// every attendance record observed under them. When targetUUID is empty a new
// identity is created for the split; otherwise the aliases move to that live
// identity. Returns the receiving identity and the log entry.
func (s *MergeService) Demerge(identityUUID string, aliasRaws []string, targetUUID, reason, performedBy string) (*database.Identity, *database.MergeLogEntry, error) {
	if len(aliasRaws) == 0 {
		return nil, nil, fmt.Errorf("%w: no aliases named", ErrAliasNotOwned)
	}
	if targetUUID == identityUUID {
		return nil, nil, ErrSelfMerge
	}

	source, err := s.ids.GetLiveIdentityByUUID(identityUUID)
	if err != nil {
		return nil, nil, err
	}

	var target *database.Identity
	if targetUUID != "" {
		target, err = s.ids.GetLiveIdentityByUUID(targetUUID)
		if err != nil {
			return nil, nil, err
		}
	}

	var unlock func()
	if target != nil {
		unlock = s.ids.lockIdentityPair(source.ID, target.ID)
	} else {
		unlock = s.ids.identityLocks.Lock(fmt.Sprintf("identity:%d", source.ID))
	}
	defer unlock()

	if err := s.ids.db.First(source, source.ID).Error; err != nil {
		return nil, nil, err
	}
	if !source.IsActive() {
		return nil, nil, ErrIdentityTombstoned
	}

	aliases, err := s.ownedAliases(source.ID, aliasRaws)
	if err != nil {
		return nil, nil, err
	}

	var movedAppearances int64
	if err := s.ids.db.Model(&database.AttendanceRecord{}).
		Where("identity_id = ? AND raw_name_observed IN ?", source.ID, aliasRaws).
		Count(&movedAppearances).Error; err != nil {
		return nil, nil, err
	}

	var entry *database.MergeLogEntry
	createdTarget := false

	err = s.ids.db.Transaction(func(tx *gorm.DB) error {
		if target == nil {
			// The split starts a fresh identity named after the first alias.
			target = &database.Identity{
				UUID:          uuid.New().String(),
				CanonicalName: aliases[0].Raw,
				Status:        database.IdentityStatusActive,
			}
			if err := tx.Create(target).Error; err != nil {
				return err
			}
			createdTarget = true
		}

		for _, alias := range aliases {
			if err := tx.Model(&database.Alias{}).Where("id = ?", alias.ID).
				Update("identity_id", target.ID).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&database.AttendanceRecord{}).
			Where("identity_id = ? AND raw_name_observed IN ?", source.ID, aliasRaws).
			Update("identity_id", target.ID).Error; err != nil {
			return err
		}

		if err := tx.Model(&database.Identity{}).Where("id = ?", source.ID).
			Update("total_appearances", gorm.Expr("total_appearances - ?", movedAppearances)).Error; err != nil {
			return err
		}
		if err := tx.Model(&database.Identity{}).Where("id = ?", target.ID).
			Update("total_appearances", gorm.Expr("total_appearances + ?", movedAppearances)).Error; err != nil {
			return err
		}

		raws := make(database.StringList, 0, len(aliases))
		for _, alias := range aliases {
			raws = append(raws, alias.Raw)
		}
		entry = &database.MergeLogEntry{
			Operation:        database.MergeOperationDemerge,
			SourceIdentityID: source.ID,
			TargetIdentityID: target.ID,
			Reason:           reason,
			PerformedBy:      performedBy,
			AliasesMoved:     raws,
			AppearancesMoved: int(movedAppearances),
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, nil, fmt.Errorf("demerge failed: %w", err)
	}

	index := s.ids.index
	if createdTarget {
		index.SetIdentity(target.ID, target.UUID, 0)
	}
	for _, alias := range aliases {
		index.RemoveAlias(source.ID, alias.Normalized)
		index.AddAlias(target.ID, alias.Normalized)
	}
	index.IncrementAppearances(source.ID, -int(movedAppearances))
	index.IncrementAppearances(target.ID, int(movedAppearances))

	log.Printf("MergeService: demerged %d alias(es) from identity %s into %s by %s",
		len(aliases), identityUUID, target.UUID, performedBy)

	if err := s.ids.db.First(target, target.ID).Error; err != nil {
		return nil, nil, err
	}
	return target, entry, nil
}

// ownedAliases resolves the raw strings to alias rows of the identity; every
// named raw must exist, and at least one alias must stay behind.
func (s *MergeService) ownedAliases(identityID uint, raws []string) ([]database.Alias, error) {
	var aliases []database.Alias
	if err := s.ids.db.Where("identity_id = ? AND raw IN ?", identityID, raws).
		Order("first_seen_at ASC").Find(&aliases).Error; err != nil {
		return nil, err
	}
	if len(aliases) != len(raws) {
		return nil, fmt.Errorf("%w: %d of %d named aliases belong to the identity",
			ErrAliasNotOwned, len(aliases), len(raws))
	}

	var total int64
	if err := s.ids.db.Model(&database.Alias{}).
		Where("identity_id = ?", identityID).Count(&total).Error; err != nil {
		return nil, err
	}
	if int(total) == len(aliases) {
		return nil, fmt.Errorf("%w: cannot demerge every alias of an identity", ErrAliasNotOwned)
	}
	return aliases, nil
}
