package api

import "github.com/rollcall/rollcall/internal/database"

// IdentityToListItem converts a database Identity to a compact list representation.
func IdentityToListItem(i database.Identity) IdentityListItem {
	return IdentityListItem{
		ID:               i.ID,
		UUID:             i.UUID,
		CanonicalName:    i.CanonicalName,
		PlatformUserID:   i.PlatformUserID,
		TotalAppearances: i.TotalAppearances,
		Status:           i.Status,
		MergedIntoID:     i.MergedIntoID,
		CreatedAt:        i.CreatedAt,
		UpdatedAt:        i.UpdatedAt,
	}
}

// IdentitiesToListItems converts a slice of database Identities to list items.
func IdentitiesToListItems(identities []database.Identity) []IdentityListItem {
	items := make([]IdentityListItem, len(identities))
	for i, identity := range identities {
		items[i] = IdentityToListItem(identity)
	}
	return items
}

// IdentityToDetail converts an identity and its alias rows to the full view.
func IdentityToDetail(i database.Identity, aliases []database.Alias) IdentityDetail {
	detail := IdentityDetail{
		IdentityListItem: IdentityToListItem(i),
		Aliases:          make([]AliasItem, len(aliases)),
	}
	for idx, a := range aliases {
		detail.Aliases[idx] = AliasItem{
			Raw:         a.Raw,
			Normalized:  a.Normalized,
			FirstSeenAt: a.FirstSeenAt,
		}
	}
	return detail
}

// MergeLogToItems converts merge log entries for an identity history view.
func MergeLogToItems(entries []database.MergeLogEntry) []MergeLogItem {
	items := make([]MergeLogItem, len(entries))
	for i, e := range entries {
		items[i] = MergeLogItem{
			Operation:        e.Operation,
			SourceIdentityID: e.SourceIdentityID,
			TargetIdentityID: e.TargetIdentityID,
			Reason:           e.Reason,
			PerformedBy:      e.PerformedBy,
			AliasesMoved:     e.AliasesMoved,
			AppearancesMoved: e.AppearancesMoved,
			CreatedAt:        e.CreatedAt,
		}
	}
	return items
}
