package services

import "errors"

// Operator-error class: surfaced synchronously to the caller of merge/demerge
// and review operations with no partial mutation applied. Everything else the
// resolver hits is absorbed into a queued review item, never an error.
var (
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrIdentityTombstoned = errors.New("identity has been merged away")
	ErrSelfMerge          = errors.New("cannot merge an identity into itself")
	ErrAliasNotOwned      = errors.New("alias is not owned by the identity")
	ErrAliasConflict      = errors.New("alias already belongs to another live identity")
	ErrReviewItemNotFound = errors.New("review item not found")
	ErrReviewItemClosed   = errors.New("review item is already closed")
	ErrEmptyName          = errors.New("name normalizes to nothing")
)
